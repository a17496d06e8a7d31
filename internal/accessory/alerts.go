package accessory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smarthq-bridge/internal/smarthq"
)

const (
	// alertHold keeps a latched alert visible long enough for the
	// host to react before it clears again.
	alertHold = 2 * time.Minute

	// alertFetchGuard lets the five alert sensors share one upstream
	// fetch per poll cycle.
	alertFetchGuard = 50 * time.Second

	alertWindow = "1m"
)

// alertsProvider surfaces recent cloud alerts as binary sensors. The
// alert feed is a rolling one-minute window, so each matching alert
// kind is latched on the provider and held for alertHold; the latch
// state is instance-scoped, one latch set per appliance.
type alertsProvider struct {
	reader StateReader
	logger *slog.Logger

	mu        sync.Mutex
	deviceID  string
	latched   map[string]time.Time
	lastFetch time.Time
	now       func() time.Time
}

func newAlertsProvider(r StateReader, logger *slog.Logger) *alertsProvider {
	return &alertsProvider{
		reader:  r,
		logger:  logger,
		latched: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (p *alertsProvider) Name() string { return "alerts" }

// Supports is unconditional: the alert feed is account-level, not a
// catalog service.
func (p *alertsProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return true
}

func (p *alertsProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	p.mu.Lock()
	p.deviceID = deviceID
	p.mu.Unlock()

	kinds := []struct {
		id          string
		label       string
		match       string
		deviceClass string
	}{
		{"alert_door", "Door Alarm", "door.alarm", "door"},
		{"alert_temperature", "High Temperature Alert", "temperature.high", "problem"},
		{"alert_leak", "Leak Alert", "leak", "moisture"},
		{"alert_filter", "Filter Alert", "filter", "problem"},
		{"alert_firmware", "Firmware Update", "ota.update", "update"},
	}

	attrs := make([]*Attribute, 0, len(kinds))
	for _, kind := range kinds {
		match := kind.match
		attrs = append(attrs, &Attribute{
			ID:          kind.id,
			Name:        kind.label,
			Component:   ComponentBinarySensor,
			DeviceClass: kind.deviceClass,
			Poll:        time.Minute,
			Get: func(ctx context.Context) any {
				p.refresh(ctx)
				return p.active(match)
			},
		})
	}
	return attrs
}

// refresh pulls the recent-alert feed at most once per guard interval
// and latches every matching kind.
func (p *alertsProvider) refresh(ctx context.Context) {
	p.mu.Lock()
	if p.now().Sub(p.lastFetch) < alertFetchGuard {
		p.mu.Unlock()
		return
	}
	p.lastFetch = p.now()
	p.mu.Unlock()

	alerts, err := p.reader.RecentAlerts(ctx, alertWindow)
	if err != nil {
		p.logger.Debug("Alert fetch failed", "err", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, alert := range alerts {
		// The feed is account-level; alerts tagged for another
		// appliance stay off this one's sensors.
		if alert.DeviceID != "" && alert.DeviceID != p.deviceID {
			continue
		}
		kind := p.classify(alert.AlertType)
		if kind == "" {
			continue
		}
		p.logger.Warn("Appliance alert", "device", p.deviceID, "type", alert.AlertType)
		p.latched[kind] = p.now()
	}
}

func (p *alertsProvider) classify(alertType string) string {
	for _, match := range []string{"door.alarm", "temperature.high", "leak", "filter", "ota.update"} {
		if strings.Contains(alertType, match) {
			return match
		}
	}
	return ""
}

func (p *alertsProvider) active(match string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	at, ok := p.latched[match]
	if !ok {
		return false
	}
	if p.now().Sub(at) > alertHold {
		delete(p.latched, match)
		return false
	}
	return true
}
