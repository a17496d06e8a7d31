//go:build !no_mqtt

package main

import (
	"log/slog"

	"smarthq-bridge/internal/bridge"
	"smarthq-bridge/internal/discovery"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/poll"
)

type mqttStopper struct {
	bridge *bridge.Bridge
}

func (m *mqttStopper) Stop() {
	if m.bridge != nil {
		m.bridge.Stop()
	}
}

func initHost(cfg *Config, sched *poll.Scheduler, bus *events.Bus, logger *slog.Logger) (discovery.Host, *mqttStopper) {
	if !cfg.MQTT.Enabled {
		logger.Info("MQTT disabled, accessories will not be announced")
		return &logHost{logger: logger}, &mqttStopper{}
	}
	b, err := bridge.NewBridge(bridge.Config{
		Broker:          cfg.MQTT.Broker,
		Username:        cfg.MQTT.Username,
		Password:        cfg.MQTT.Password,
		TopicPrefix:     cfg.MQTT.TopicPrefix,
		DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
	}, sched, bus, logger)
	if err != nil {
		logger.Error("mqtt bridge", "err", err)
		return &logHost{logger: logger}, &mqttStopper{}
	}
	return b, &mqttStopper{bridge: b}
}
