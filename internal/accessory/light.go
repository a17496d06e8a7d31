package accessory

import (
	"context"
	"log/slog"
	"time"

	"smarthq-bridge/internal/smarthq"
)

var interiorLightKey = smarthq.Key{
	ServiceDeviceType: smarthq.DeviceRefrigerator,
	ServiceType:       smarthq.ServiceInteger,
	DomainType:        smarthq.DomainBrightness,
}

// interiorLightProvider exposes the interior backlight. The vendor
// has no on/off verb for it, only a 0-100 brightness level, so the
// light is brightness-only and "off" means brightness zero.
type interiorLightProvider struct {
	reader StateReader
	logger *slog.Logger
}

func newInteriorLightProvider(r StateReader, logger *slog.Logger) *interiorLightProvider {
	return &interiorLightProvider{reader: r, logger: logger}
}

func (p *interiorLightProvider) Name() string { return "interior_light" }

func (p *interiorLightProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, interiorLightKey)
}

func (p *interiorLightProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	return []*Attribute{{
		ID:        "interior_light",
		Name:      "Interior Light",
		Component: ComponentLight,
		Min:       0,
		Max:       100,
		Step:      1,
		Settable:  true,
		Poll:      30 * time.Second,
		Get: func(ctx context.Context) any {
			return readValue(ctx, p.reader, deviceID, services, smarthq.DeviceRefrigerator, 0)
		},
		Set: func(ctx context.Context, value any) error {
			level, ok := asFloat(value)
			if !ok {
				p.logger.Warn("Brightness payload is not a number", "value", value)
				return nil
			}
			_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, interiorLightKey, smarthq.Command{
				CommandType: smarthq.CommandIntegerSet,
				Value:       &level,
			}))
			return err
		},
	}}
}
