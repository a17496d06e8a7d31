package smarthq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshMargin is the safety window before expiry within which
// AuthHeader refreshes proactively.
const refreshMargin = 60 * time.Second

var (
	// ErrBadGrant means the token endpoint rejected the request as
	// malformed (missing or invalid grant parameters).
	ErrBadGrant = errors.New("token endpoint: bad request")

	// ErrUnauthorizedClient means the client credentials were
	// rejected. This is terminal until reconfigured; no amount of
	// retrying helps.
	ErrUnauthorizedClient = errors.New("token endpoint: invalid client credentials")

	// ErrNotAuthenticated means no token is held and none could be
	// obtained; the bootstrap login has to be completed first.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthConfig holds the OAuth client settings.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string // authorization endpoint (browser redirect)
	TokenURL     string // token endpoint (form-encoded grants)
}

// Authenticator owns the token lifecycle: code exchange, refresh, and
// expiry-aware bearer headers. Every API call obtains credentials
// through AuthHeader; callers never track expiry themselves.
type Authenticator struct {
	cfg        AuthConfig
	store      *FileTokenStore
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token *Token

	// Concurrent callers that each observe an expiring token share a
	// single in-flight refresh instead of issuing redundant grants.
	refreshGroup singleflight.Group
}

// NewAuthenticator creates an Authenticator and loads any previously
// persisted token.
func NewAuthenticator(cfg AuthConfig, store *FileTokenStore, logger *slog.Logger) (*Authenticator, error) {
	a := &Authenticator{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "auth"),
	}
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if tok != nil {
		a.token = tok
		a.logger.Info("loaded persisted token", "expires_at", tok.ExpiresAt())
	}
	return a, nil
}

// Authorized reports whether a token pair is held (possibly expired;
// AuthHeader refreshes as needed).
func (a *Authenticator) Authorized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token != nil && a.token.RefreshToken != ""
}

// LoginURL returns the authorization endpoint URL the user visits to
// start the one-time bootstrap login.
func (a *Authenticator) LoginURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.RedirectURI)
	return a.cfg.AuthURL + "?" + q.Encode()
}

// ExchangeCode trades a one-time authorization code for a token pair
// and persists it.
func (a *Authenticator) ExchangeCode(ctx context.Context, code string) error {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("redirect_uri", a.cfg.RedirectURI)
	form.Set("code", code)
	return a.grant(ctx, form)
}

// Refresh exchanges the current refresh token for a new token pair
// and persists it. The previous token is left in place on failure.
func (a *Authenticator) Refresh(ctx context.Context) error {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok == nil || tok.RefreshToken == "" {
		return ErrNotAuthenticated
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("client_secret", a.cfg.ClientSecret)
	form.Set("refresh_token", tok.RefreshToken)

	_, err, _ := a.refreshGroup.Do("refresh", func() (any, error) {
		return nil, a.grant(ctx, form)
	})
	return err
}

// AuthHeader returns a bearer Authorization header value, refreshing
// first if no token is held or its remaining lifetime is inside the
// safety margin.
func (a *Authenticator) AuthHeader(ctx context.Context) (string, error) {
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()

	if tok == nil {
		return "", ErrNotAuthenticated
	}
	if tok.AccessToken == "" || tok.ExpiresWithin(refreshMargin) {
		if err := a.Refresh(ctx); err != nil {
			return "", fmt.Errorf("refresh before request: %w", err)
		}
		a.mu.RLock()
		tok = a.token
		a.mu.RUnlock()
	}
	return "Bearer " + tok.AccessToken, nil
}

// grant performs one form-encoded token-endpoint exchange and stores
// the resulting token.
func (a *Authenticator) grant(ctx context.Context, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadRequest:
		a.logger.Error("token grant rejected as bad request", "grant_type", form.Get("grant_type"))
		return ErrBadGrant
	case http.StatusUnauthorized:
		a.logger.Error("client credentials rejected, re-authorization required")
		return ErrUnauthorizedClient
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	tok.AcquiredAt = time.Now()

	a.mu.Lock()
	a.token = &tok
	a.mu.Unlock()

	// An in-memory token stays usable until restart even when the
	// file write fails.
	if err := a.store.Save(&tok); err != nil {
		a.logger.Error("persist token", "err", err)
	}
	a.logger.Info("token acquired", "grant_type", form.Get("grant_type"), "expires_at", tok.ExpiresAt())
	return nil
}
