package accessory

import (
	"context"
	"log/slog"
	"time"

	"smarthq-bridge/internal/smarthq"
)

var tempUnitsKey = smarthq.Key{
	ServiceDeviceType: smarthq.DeviceRefrigerator,
	ServiceType:       smarthq.ServiceMode,
	DomainType:        smarthq.DomainTempUnits,
}

// tempUnitsProvider exposes the front-panel display units as a pair of
// mutually exclusive switches, the way the panel itself presents them.
type tempUnitsProvider struct {
	reader StateReader
	logger *slog.Logger
}

func newTempUnitsProvider(r StateReader, logger *slog.Logger) *tempUnitsProvider {
	return &tempUnitsProvider{reader: r, logger: logger}
}

func (p *tempUnitsProvider) Name() string { return "temperature_units" }

func (p *tempUnitsProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, tempUnitsKey)
}

func (p *tempUnitsProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	units := []struct {
		id    string
		label string
		mode  string
	}{
		{"units_celsius", "Units: Celsius", smarthq.ModeCelsius},
		{"units_fahrenheit", "Units: Fahrenheit", smarthq.ModeFahrenheit},
	}

	attrs := make([]*Attribute, 0, len(units))
	for _, u := range units {
		mode := u.mode
		attrs = append(attrs, &Attribute{
			ID:        u.id,
			Name:      u.label,
			Component: ComponentSwitch,
			Icon:      "mdi:thermometer",
			Settable:  true,
			Poll:      time.Minute,
			Get: func(ctx context.Context) any {
				current, ok := readMode(ctx, p.reader, deviceID, services, smarthq.DeviceRefrigerator)
				return ok && current == mode
			},
			Set: func(ctx context.Context, value any) error {
				// Units change by selecting the other unit, not by
				// switching one off.
				if !asBool(value) {
					return nil
				}
				_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, tempUnitsKey, smarthq.Command{
					CommandType: smarthq.CommandModeSet,
					Mode:        mode,
				}))
				return err
			},
		})
	}
	return attrs
}
