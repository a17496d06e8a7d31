package smarthq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnauthorized means the API returned 401 for an otherwise
	// well-formed call. The client fires one refresh attempt and the
	// current call yields an empty result; the next caller-driven
	// poll picks up the corrected token. No automatic re-issue.
	ErrUnauthorized = errors.New("api: unauthorized")

	// ErrForbidden means the client lacks permission for the device.
	ErrForbidden = errors.New("api: forbidden")
)

// Client is the typed wrapper around the vendor's device, service,
// alert, and command endpoints. Every call authorizes itself through
// the Authenticator first.
type Client struct {
	baseURL    string
	auth       *Authenticator
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an API client against baseURL.
func NewClient(baseURL string, auth *Authenticator, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "api"),
	}
}

// ListDevices returns the account's appliances.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var payload struct {
		Devices []Device `json:"devices"`
	}
	if err := c.get(ctx, "/v2/device", &payload); err != nil {
		return nil, err
	}
	return payload.Devices, nil
}

// DeviceServices returns the device's service catalog, sorted by
// serviceDeviceType for stable enumeration and debug output.
func (c *Client) DeviceServices(ctx context.Context, deviceID string) ([]ServiceDescriptor, error) {
	var payload struct {
		Services []ServiceDescriptor `json:"services"`
	}
	if err := c.get(ctx, "/v2/device/"+deviceID, &payload); err != nil {
		return nil, err
	}
	sort.SliceStable(payload.Services, func(i, j int) bool {
		return payload.Services[i].ServiceDeviceType < payload.Services[j].ServiceDeviceType
	})
	return payload.Services, nil
}

// ServiceState fetches the current state of one service. Transient:
// the result is never cached beyond this call.
func (c *Client) ServiceState(ctx context.Context, deviceID, serviceID string) (ServiceState, error) {
	var payload struct {
		State ServiceState `json:"state"`
	}
	if err := c.get(ctx, "/v2/device/"+deviceID+"/service/"+serviceID, &payload); err != nil {
		return nil, err
	}
	return payload.State, nil
}

// RecentAlerts returns alerts raised within the given window spec,
// e.g. "1m".
func (c *Client) RecentAlerts(ctx context.Context, window string) ([]Alert, error) {
	if window == "" {
		window = "1m"
	}
	var payload struct {
		Alerts []Alert `json:"alerts"`
	}
	if err := c.get(ctx, "/v2/alert/recent?after="+window, &payload); err != nil {
		return nil, err
	}
	return payload.Alerts, nil
}

// SendCommand posts a control command to the cloud.
func (c *Client) SendCommand(ctx context.Context, env CommandEnvelope) (CommandResult, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return CommandResult{}, fmt.Errorf("marshal command: %w", err)
	}

	var result CommandResult
	if err := c.do(ctx, http.MethodPost, "/v2/command", bytes.NewReader(body), &result); err != nil {
		c.logger.Error("send command",
			"device", env.DeviceID,
			"command", env.Command.CommandType,
			"err", err)
		return CommandResult{}, err
	}
	c.logger.Debug("command sent",
		"device", env.DeviceID,
		"command", env.Command.CommandType,
		"outcome", result.Outcome)
	return result, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do issues one authenticated request. A 401 triggers exactly one
// refresh attempt and fails the current call; there is no retry loop
// here because every read is an idempotent poll that repeats anyway.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	header, err := c.auth.AuthHeader(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", header)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Warn("401 from api, refreshing token", "path", path)
		if err := c.auth.Refresh(ctx); err != nil {
			c.logger.Error("refresh after 401", "err", err)
		}
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		c.logger.Error("403 from api", "path", path)
		return ErrForbidden
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("api error", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
