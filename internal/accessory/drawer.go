package accessory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"smarthq-bridge/internal/smarthq"
)

var drawerModeKey = smarthq.Key{
	ServiceDeviceType: smarthq.DeviceConvertibleDrawer,
	ServiceType:       smarthq.ServiceMode,
	DomainType:        smarthq.DomainModeSelection,
}

// drawerProvider exposes the convertible drawer: one switch per preset
// plus a temperature sensor. The drawer's temperature service is
// mode-dependent, so reading it takes two round trips: current mode
// first, then the temperature service named after that mode.
type drawerProvider struct {
	reader StateReader
	logger *slog.Logger
}

func newDrawerProvider(r StateReader, logger *slog.Logger) *drawerProvider {
	return &drawerProvider{reader: r, logger: logger}
}

func (p *drawerProvider) Name() string { return "convertible_drawer" }

func (p *drawerProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, drawerModeKey)
}

func (p *drawerProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	presets := []struct {
		id    string
		label string
		mode  string
	}{
		{"drawer_meat", "Drawer: Meat", smarthq.ModeDrawerMeat},
		{"drawer_beverages", "Drawer: Beverages", smarthq.ModeDrawerBeverages},
		{"drawer_snacks", "Drawer: Snacks", smarthq.ModeDrawerSnacks},
		{"drawer_wine", "Drawer: Wine", smarthq.ModeDrawerWine},
	}

	attrs := make([]*Attribute, 0, len(presets)+1)
	for _, preset := range presets {
		mode := preset.mode
		attrs = append(attrs, &Attribute{
			ID:        preset.id,
			Name:      preset.label,
			Component: ComponentSwitch,
			Settable:  true,
			Poll:      30 * time.Second,
			Get: func(ctx context.Context) any {
				current, ok := readMode(ctx, p.reader, deviceID, services, smarthq.DeviceConvertibleDrawer)
				return ok && current == mode
			},
			Set: func(ctx context.Context, value any) error {
				// A preset is left by selecting another one.
				if !asBool(value) {
					return nil
				}
				_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, drawerModeKey, smarthq.Command{
					CommandType: smarthq.CommandModeSet,
					Mode:        mode,
				}))
				return err
			},
		})
	}

	attrs = append(attrs, &Attribute{
		ID:          "drawer_temp",
		Name:        "Drawer Temperature",
		Component:   ComponentSensor,
		DeviceClass: "temperature",
		Unit:        "°C",
		Poll:        30 * time.Second,
		Get: func(ctx context.Context) any {
			return p.readTemperature(ctx, deviceID, services)
		},
	})
	return attrs
}

// readTemperature resolves the mode-specific temperature service. The
// mode's last dotted segment selects the service device type, e.g.
// mode ...convertibledrawer.mode5 reads from
// cloud.smarthq.device.refrigerator.convertibledrawer.mode5.
func (p *drawerProvider) readTemperature(ctx context.Context, deviceID string, services []smarthq.ServiceDescriptor) float64 {
	mode, ok := readMode(ctx, p.reader, deviceID, services, smarthq.DeviceConvertibleDrawer)
	if !ok {
		p.logger.Debug("No drawer mode available", "device", deviceID)
		return 0
	}
	suffix := mode[strings.LastIndex(mode, ".")+1:]
	return readCelsius(ctx, p.reader, deviceID, services,
		smarthq.DeviceConvertibleDrawer+"."+suffix, 0)
}
