package accessory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"smarthq-bridge/internal/smarthq"
)

var energyKey = smarthq.Key{
	ServiceDeviceType: smarthq.DeviceMeter,
	ServiceType:       smarthq.ServiceMeter,
	DomainType:        smarthq.DomainEnergy,
}

// energyProvider derives an hourly consumption rate from the
// cumulative meter reading. The meter only updates about every half
// hour, so the sensor polls on that cadence and doubles the 30-minute
// delta. The previous reading lives on the provider instance, scoped
// to one accessory.
type energyProvider struct {
	reader StateReader
	logger *slog.Logger

	mu      sync.Mutex
	prevKwh float64
	primed  bool
}

func newEnergyProvider(r StateReader, logger *slog.Logger) *energyProvider {
	return &energyProvider{reader: r, logger: logger}
}

func (p *energyProvider) Name() string { return "energy" }

func (p *energyProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, energyKey)
}

func (p *energyProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	return []*Attribute{{
		ID:          "energy_rate",
		Name:        "Energy Rate",
		Component:   ComponentSensor,
		DeviceClass: "power",
		Unit:        "kW",
		Icon:        "mdi:flash",
		Poll:        30 * time.Minute,
		Get: func(ctx context.Context) any {
			return p.rate(ctx, deviceID, services)
		},
	}}
}

func (p *energyProvider) rate(ctx context.Context, deviceID string, services []smarthq.ServiceDescriptor) float64 {
	state, ok := readState(ctx, p.reader, deviceID, services, smarthq.DeviceMeter, smarthq.ServiceMeter)
	if !ok {
		return 0
	}
	reading, ok := state.MeterValue()
	if !ok {
		p.logger.Debug("No meter value in state", "device", deviceID)
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.primed {
		p.prevKwh = reading
		p.primed = true
		return 0
	}
	delta := reading - p.prevKwh
	p.prevKwh = reading
	if delta < 0 {
		// Meter reset or rollover; re-prime on the new baseline.
		return 0
	}
	return delta * 2
}
