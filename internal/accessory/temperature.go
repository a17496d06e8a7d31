package accessory

import (
	"context"
	"log/slog"
	"time"

	"smarthq-bridge/internal/smarthq"
)

// compartmentSpec parametrizes the two cooled compartments. The vendor
// exposes them as sibling service device types with identical shapes.
type compartmentSpec struct {
	name        string
	label       string
	deviceType  string
	defaultTemp float64
	minSetpoint float64
	maxSetpoint float64
	poll        time.Duration
}

// Setpoint ranges come from the vendor's service config for a GE
// Profile refrigerator: fresh food 34F..42F, freezer -6F..5F.
var (
	freshFoodCompartment = compartmentSpec{
		name:        "refrigerator",
		label:       "Refrigerator",
		deviceType:  smarthq.DeviceFreshFood,
		defaultTemp: 2.78,
		minSetpoint: 1.111,
		maxSetpoint: 5.556,
		poll:        5 * time.Second,
	}
	freezerCompartment = compartmentSpec{
		name:        "freezer",
		label:       "Freezer",
		deviceType:  smarthq.DeviceFreezer,
		defaultTemp: -17.77,
		minSetpoint: -21.111,
		maxSetpoint: -15,
		poll:        10 * time.Second,
	}
)

// compartmentProvider attaches a current-temperature sensor and a
// settable target-temperature number for one compartment. Every
// refrigerator has both compartments, so Supports is unconditional.
type compartmentProvider struct {
	reader StateReader
	logger *slog.Logger
	spec   compartmentSpec
}

func newCompartmentProvider(r StateReader, logger *slog.Logger, spec compartmentSpec) *compartmentProvider {
	return &compartmentProvider{reader: r, logger: logger, spec: spec}
}

func (p *compartmentProvider) Name() string { return p.spec.name }

func (p *compartmentProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return true
}

func (p *compartmentProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	spec := p.spec
	setpointKey := smarthq.Key{
		ServiceDeviceType: spec.deviceType,
		ServiceType:       smarthq.ServiceTemperature,
		DomainType:        smarthq.DomainSetpoint,
	}

	current := &Attribute{
		ID:          spec.name + "_temp",
		Name:        spec.label + " Temperature",
		Component:   ComponentSensor,
		DeviceClass: "temperature",
		Unit:        "°C",
		Poll:        spec.poll,
		Get: func(ctx context.Context) any {
			return readCelsius(ctx, p.reader, deviceID, services, spec.deviceType, spec.defaultTemp)
		},
	}

	target := &Attribute{
		ID:        spec.name + "_setpoint",
		Name:      spec.label + " Setpoint",
		Component: ComponentNumber,
		Unit:      "°C",
		Min:       spec.minSetpoint,
		Max:       spec.maxSetpoint,
		Step:      0.1,
		Settable:  true,
		Poll:      spec.poll,
		Get: func(ctx context.Context) any {
			return readCelsius(ctx, p.reader, deviceID, services, spec.deviceType, spec.defaultTemp)
		},
		Set: func(ctx context.Context, value any) error {
			c, ok := asFloat(value)
			if !ok {
				p.logger.Warn("Setpoint payload is not a number", "feature", spec.name, "value", value)
				return nil
			}
			_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, setpointKey, smarthq.Command{
				CommandType: smarthq.CommandTemperatureSet,
				Celsius:     &c,
			}))
			return err
		},
	}

	return []*Attribute{current, target}
}
