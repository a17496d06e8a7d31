//go:build no_mqtt

package main

import (
	"log/slog"

	"smarthq-bridge/internal/discovery"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/poll"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initHost(_ *Config, _ *poll.Scheduler, _ *events.Bus, logger *slog.Logger) (discovery.Host, *mqttStopper) {
	return &logHost{logger: logger}, &mqttStopper{}
}
