package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"smarthq-bridge/internal/accessory"
	"smarthq-bridge/internal/discovery"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/poll"
	"smarthq-bridge/internal/smarthq"
	"smarthq-bridge/internal/store"
	"smarthq-bridge/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	SmartHQ struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		RedirectURI  string `yaml:"redirect_uri"`
		TokenPath    string `yaml:"token_path"`
		APIURL       string `yaml:"api_url"`
		AuthURL      string `yaml:"auth_url"`
		TokenURL     string `yaml:"token_url"`
	} `yaml:"smarthq"`
	// Features toggles optional accessory features by name, e.g.
	// "ice_maker: false". A missing entry means enabled.
	Features map[string]bool `yaml:"features"`
	MQTT     struct {
		Enabled         bool   `yaml:"enabled"`
		Broker          string `yaml:"broker"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		TopicPrefix     string `yaml:"topic_prefix"`
		DiscoveryPrefix string `yaml:"discovery_prefix"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		BotToken string   `yaml:"bot_token"`
		ChatIDs  []string `yaml:"chat_ids"`
	} `yaml:"telegram"`
	Exec struct {
		Allowlist []string `yaml:"allowlist"`
		Timeout   string   `yaml:"timeout"`
	} `yaml:"exec"`
	ScriptsDir string `yaml:"scripts_dir"`
}

func (c *Config) validate() error {
	if c.SmartHQ.ClientID == "" {
		return fmt.Errorf("smarthq.client_id is required")
	}
	if c.SmartHQ.ClientSecret == "" {
		return fmt.Errorf("smarthq.client_secret is required")
	}
	if c.SmartHQ.RedirectURI == "" {
		return fmt.Errorf("smarthq.redirect_uri is required")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	// Create configured logger.
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("smarthq-bridge starting", "version", version)

	// Open the accessory registry store
	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.NewBus(logger)

	// Cloud session: token store, authenticator, API client.
	tokens := smarthq.NewFileTokenStore(cfg.SmartHQ.TokenPath)
	auth, err := smarthq.NewAuthenticator(smarthq.AuthConfig{
		ClientID:     cfg.SmartHQ.ClientID,
		ClientSecret: cfg.SmartHQ.ClientSecret,
		RedirectURI:  cfg.SmartHQ.RedirectURI,
		AuthURL:      cfg.SmartHQ.AuthURL,
		TokenURL:     cfg.SmartHQ.TokenURL,
	}, tokens, logger)
	if err != nil {
		logger.Error("init authenticator", "err", err)
		os.Exit(1)
	}
	client := smarthq.NewClient(cfg.SmartHQ.APIURL, auth, logger)

	builder := accessory.NewBuilder(client, accessory.Flags(cfg.Features), logger)
	sched := poll.NewScheduler(logger)

	// Accessory host (no-op log host when built with no_mqtt or when
	// mqtt is disabled in config).
	host, mqttStop := initHost(cfg, sched, bus, logger)

	disc := discovery.New(client, builder, host, db, bus, logger)

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(client, bus, cfg, logger)

	// Start web server
	var webOpts []web.ServerOption
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithVersion(version))
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(auth, client, db, bus, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	if auth.Authorized() {
		// Tokens survived from a previous run; reconcile immediately
		// instead of waiting for a login that will never happen.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			if err := disc.Run(ctx); err != nil {
				logger.Error("discovery run", "err", err)
			}
		}()
	} else {
		logger.Info("Not authorized, open /login to connect the account", "addr", cfg.Web.Listen)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqttStop.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	sched.Stop()

	logger.Info("goodbye")
}

// logHost stands in for the MQTT bridge when it is disabled or
// unavailable, so discovery can still maintain the registry.
type logHost struct {
	logger *slog.Logger
}

func (h *logHost) Register(acc *accessory.Accessory) error {
	h.logger.Info("Accessory registered (no host)", "device", acc.DeviceID, "name", acc.Name)
	return nil
}

func (h *logHost) Update(acc *accessory.Accessory) error {
	h.logger.Info("Accessory updated (no host)", "device", acc.DeviceID, "name", acc.Name)
	return nil
}

func (h *logHost) Remove(deviceID string) error {
	h.logger.Info("Accessory removed (no host)", "device", deviceID)
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.SmartHQ.TokenPath == "" {
		cfg.SmartHQ.TokenPath = "smarthq-token.json"
	}
	if cfg.SmartHQ.APIURL == "" {
		cfg.SmartHQ.APIURL = "https://client.mysmarthq.com"
	}
	if cfg.SmartHQ.AuthURL == "" {
		cfg.SmartHQ.AuthURL = "https://accounts.brillion.geappliances.com/oauth2/auth"
	}
	if cfg.SmartHQ.TokenURL == "" {
		cfg.SmartHQ.TokenURL = "https://accounts.brillion.geappliances.com/oauth2/token"
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "smarthq-bridge.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "smarthq"
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
