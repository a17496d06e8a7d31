package accessory

import (
	"context"
	"log/slog"
	"time"

	"smarthq-bridge/internal/smarthq"
)

var waterFilterKey = smarthq.Key{
	ServiceDeviceType: smarthq.DeviceWaterFilter,
	ServiceType:       smarthq.ServiceMode,
	DomainType:        smarthq.DomainState,
}

// waterFilterProvider reports filter health: a problem binary sensor
// (on when the filter wants replacing) and the remaining life level.
type waterFilterProvider struct {
	reader StateReader
	logger *slog.Logger
}

func newWaterFilterProvider(r StateReader, logger *slog.Logger) *waterFilterProvider {
	return &waterFilterProvider{reader: r, logger: logger}
}

func (p *waterFilterProvider) Name() string { return "water_filter" }

func (p *waterFilterProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, waterFilterKey)
}

func (p *waterFilterProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	replace := &Attribute{
		ID:          "filter_replace",
		Name:        "Water Filter Replacement",
		Component:   ComponentBinarySensor,
		DeviceClass: "problem",
		Poll:        time.Minute,
		Get: func(ctx context.Context) any {
			mode, ok := readMode(ctx, p.reader, deviceID, services, smarthq.DeviceWaterFilter)
			if !ok {
				return false
			}
			switch mode {
			case smarthq.ModeFilterGood, smarthq.ModeFilterBypass, smarthq.ModeFilterSoon:
				return false
			}
			return true
		},
	}

	life := &Attribute{
		ID:        "filter_life",
		Name:      "Water Filter Life",
		Component: ComponentSensor,
		Unit:      "%",
		Icon:      "mdi:water-percent",
		Poll:      time.Minute,
		Get: func(ctx context.Context) any {
			return readValue(ctx, p.reader, deviceID, services, smarthq.DeviceWaterFilter, 0)
		},
	}

	return []*Attribute{replace, life}
}
