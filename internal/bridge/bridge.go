//go:build !no_mqtt

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"smarthq-bridge/internal/accessory"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/poll"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
}

// Bridge is the accessory host: it announces accessories to Home
// Assistant over MQTT autodiscovery, publishes their polled state, and
// routes command topics back to attribute setters.
type Bridge struct {
	client          pahomqtt.Client
	prefix          string
	discoveryPrefix string
	sched           *poll.Scheduler
	bus             *events.Bus
	logger          *slog.Logger

	mu     sync.Mutex
	hosted map[string]*hostedAccessory // deviceID -> hosted
}

// hostedAccessory is one registered accessory plus its runtime wiring.
type hostedAccessory struct {
	acc       *accessory.Accessory
	state     map[string]any
	cancels   []func()
	cmdTopics []string
}

// NewBridge creates and connects the MQTT bridge.
func NewBridge(cfg Config, sched *poll.Scheduler, bus *events.Bus, logger *slog.Logger) (*Bridge, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "smarthq"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	b := &Bridge{
		prefix:          cfg.TopicPrefix,
		discoveryPrefix: cfg.DiscoveryPrefix,
		sched:           sched,
		bus:             bus,
		logger:          logger.With("component", "mqtt"),
		hosted:          make(map[string]*hostedAccessory),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("smarthq-bridge").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.republishAll()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Stop publishes offline state and disconnects. Poll jobs are
// cancelled so nothing publishes into a closed client.
func (b *Bridge) Stop() {
	b.mu.Lock()
	for _, h := range b.hosted {
		for _, cancel := range h.cancels {
			cancel()
		}
		h.cancels = nil
	}
	b.mu.Unlock()

	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// Register announces an accessory: one retained discovery config per
// attribute, command subscriptions for the settable ones, and a poll
// job per polled attribute. Registering an already-known device is the
// same as Update.
func (b *Bridge) Register(acc *accessory.Accessory) error {
	b.mu.Lock()
	if prev, ok := b.hosted[acc.DeviceID]; ok {
		b.teardownLocked(prev)
	}
	h := &hostedAccessory{acc: acc, state: make(map[string]any)}
	b.hosted[acc.DeviceID] = h
	b.mu.Unlock()

	for _, msg := range buildDiscovery(acc, b.prefix, b.discoveryPrefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.subscribeCommands(h)
	b.schedulePolls(h)

	b.logger.Info("Accessory registered",
		"device", acc.DeviceID, "name", acc.Name, "attributes", len(acc.Attributes))
	return nil
}

// Update refreshes a known accessory's discovery configs and wiring.
func (b *Bridge) Update(acc *accessory.Accessory) error {
	return b.Register(acc)
}

// Remove deletes the accessory from the host: empty retained payloads
// take the discovery configs and state down.
func (b *Bridge) Remove(deviceID string) error {
	b.mu.Lock()
	h, ok := b.hosted[deviceID]
	if ok {
		b.teardownLocked(h)
		delete(b.hosted, deviceID)
	}
	b.mu.Unlock()

	var acc *accessory.Accessory
	if ok {
		acc = h.acc
	} else {
		// Unknown to this process (registered by a previous run):
		// state topic still gets cleared below, configs are gone once
		// the next registration overwrites them.
		b.logger.Warn("Removing accessory not hosted in this process", "device", deviceID)
	}

	if acc != nil {
		for _, msg := range buildRemoveDiscovery(acc, b.discoveryPrefix) {
			b.publish(msg.Topic, nil, true)
		}
	}
	b.publish(b.stateTopic(deviceID), nil, true)
	b.logger.Info("Accessory removed", "device", deviceID)
	return nil
}

func (b *Bridge) teardownLocked(h *hostedAccessory) {
	for _, cancel := range h.cancels {
		cancel()
	}
	h.cancels = nil
	for _, topic := range h.cmdTopics {
		b.client.Unsubscribe(topic)
	}
	h.cmdTopics = nil
}

// republishAll restores retained discovery and subscriptions after a
// reconnect.
func (b *Bridge) republishAll() {
	b.mu.Lock()
	hosted := make([]*hostedAccessory, 0, len(b.hosted))
	for _, h := range b.hosted {
		hosted = append(hosted, h)
	}
	b.mu.Unlock()

	for _, h := range hosted {
		for _, msg := range buildDiscovery(h.acc, b.prefix, b.discoveryPrefix) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		b.subscribeCommands(h)
	}
}

func (b *Bridge) schedulePolls(h *hostedAccessory) {
	deviceID := h.acc.DeviceID
	var cancels []func()
	for _, attr := range h.acc.Attributes {
		if attr.Poll <= 0 || attr.Get == nil {
			continue
		}
		attr := attr
		cancels = append(cancels, b.sched.Every(attr.Poll, deviceID+"/"+attr.ID, func(ctx context.Context) {
			b.setState(deviceID, attr.ID, attr.Get(ctx))
		}))
	}
	b.mu.Lock()
	h.cancels = append(h.cancels, cancels...)
	b.mu.Unlock()
}

func (b *Bridge) subscribeCommands(h *hostedAccessory) {
	deviceID := h.acc.DeviceID
	var topics []string
	for _, attr := range h.acc.Attributes {
		if !attr.Settable || attr.Set == nil {
			continue
		}
		attr := attr
		topic := b.commandTopic(deviceID, attr.ID)
		b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			b.handleCommand(deviceID, attr, msg.Payload())
		})
		topics = append(topics, topic)

		if attr.Component == accessory.ComponentLight {
			bTopic := b.brightnessCommandTopic(deviceID, attr.ID)
			b.client.Subscribe(bTopic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
				b.handleBrightness(deviceID, attr, msg.Payload())
			})
			topics = append(topics, bTopic)
		}
	}
	b.mu.Lock()
	h.cmdTopics = append(h.cmdTopics, topics...)
	b.mu.Unlock()
}

func (b *Bridge) handleCommand(deviceID string, attr *accessory.Attribute, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	value, ok := parseCommandPayload(attr.Component, payload)
	if !ok {
		b.logger.Warn("Unparseable command payload",
			"device", deviceID, "attribute", attr.ID, "payload", string(payload))
		return
	}

	if err := attr.Set(ctx, value); err != nil {
		b.logger.Warn("Command failed", "device", deviceID, "attribute", attr.ID, "err", err)
		return
	}
	b.setState(deviceID, attr.ID, value)
	b.bus.Emit(events.Event{Type: events.EventCommandSent, Data: map[string]any{
		"device_id": deviceID,
		"attribute": attr.ID,
		"value":     value,
	}})
}

func (b *Bridge) handleBrightness(deviceID string, attr *accessory.Attribute, payload []byte) {
	level, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		b.logger.Warn("Unparseable brightness payload",
			"device", deviceID, "attribute", attr.ID, "payload", string(payload))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := attr.Set(ctx, level); err != nil {
		b.logger.Warn("Brightness command failed", "device", deviceID, "attribute", attr.ID, "err", err)
		return
	}
	b.setState(deviceID, attr.ID, level)
	b.bus.Emit(events.Event{Type: events.EventCommandSent, Data: map[string]any{
		"device_id": deviceID,
		"attribute": attr.ID,
		"value":     level,
	}})
}

// parseCommandPayload converts a raw MQTT command payload to the value
// the attribute setter expects.
func parseCommandPayload(component accessory.Component, payload []byte) (any, bool) {
	text := strings.TrimSpace(string(payload))
	switch component {
	case accessory.ComponentSwitch:
		switch strings.ToUpper(text) {
		case "ON":
			return true, true
		case "OFF":
			return false, true
		}
		return nil, false
	case accessory.ComponentNumber:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	case accessory.ComponentLight:
		// The interior light has no native power verb; OFF maps to
		// zero brightness and ON restores full.
		switch strings.ToUpper(text) {
		case "ON":
			return 100.0, true
		case "OFF":
			return 0.0, true
		}
		return nil, false
	}
	return nil, false
}

// setState folds one attribute value into the accessory's retained
// state document and publishes it.
func (b *Bridge) setState(deviceID, attrID string, value any) {
	b.mu.Lock()
	h, ok := b.hosted[deviceID]
	if !ok {
		b.mu.Unlock()
		return
	}
	h.state[attrID] = value
	payload := mustJSON(h.state)
	b.mu.Unlock()

	b.publish(b.stateTopic(deviceID), payload, true)
	b.bus.Emit(events.Event{Type: events.EventStateUpdate, Data: map[string]any{
		"device_id": deviceID,
		"attribute": attrID,
		"value":     value,
	}})
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func (b *Bridge) stateTopic(deviceID string) string {
	return b.prefix + "/" + sanitizeTopic(deviceID)
}

func (b *Bridge) commandTopic(deviceID, attrID string) string {
	return b.prefix + "/" + sanitizeTopic(deviceID) + "/" + attrID + "/set"
}

func (b *Bridge) brightnessCommandTopic(deviceID, attrID string) string {
	return b.prefix + "/" + sanitizeTopic(deviceID) + "/" + attrID + "/brightness/set"
}
