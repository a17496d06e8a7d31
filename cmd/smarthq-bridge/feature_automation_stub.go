//go:build no_automation

package main

import (
	"log/slog"

	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/smarthq"
	"smarthq-bridge/internal/web"
)

type autoStopper struct{}

func (a *autoStopper) Stop() {}

func initAutomation(_ *smarthq.Client, _ *events.Bus, _ *Config, _ *slog.Logger) (*autoStopper, []web.ServerOption) {
	return &autoStopper{}, nil
}
