package accessory

import (
	"context"
	"log/slog"
	"time"

	"smarthq-bridge/internal/smarthq"
)

// toggleSpec describes one plain on/off feature.
type toggleSpec struct {
	name       string
	id         string
	label      string
	deviceType string
	domain     string
	icon       string
}

var (
	controlsLockFeature = toggleSpec{
		name:       "controls_lock",
		id:         "controls_lock",
		label:      "Controls Lock",
		deviceType: smarthq.DeviceAppliance,
		domain:     smarthq.DomainControlsLock,
		icon:       "mdi:lock",
	}
	dispenserLightFeature = toggleSpec{
		name:       "dispenser_light",
		id:         "dispenser_light",
		label:      "Dispenser Light",
		deviceType: smarthq.DeviceDispenserLight,
		domain:     smarthq.DomainActivateMotion,
		icon:       "mdi:lightbulb-on-outline",
	}
	iceMakerFeature = toggleSpec{
		name:       "ice_maker",
		id:         "ice_maker",
		label:      "Ice Maker",
		deviceType: smarthq.DeviceIceMaker,
		domain:     smarthq.DomainPower,
		icon:       "mdi:snowflake",
	}
	sabbathFeature = toggleSpec{
		name:       "sabbath",
		id:         "sabbath",
		label:      "Sabbath Mode",
		deviceType: smarthq.DeviceAppliance,
		domain:     smarthq.DomainSabbath,
		icon:       "mdi:candle",
	}
)

// toggleProvider maps one toggle service to a switch. State is read
// live per poll, never cached in the provider, so two appliances on
// the same account can not bleed state into each other.
type toggleProvider struct {
	reader StateReader
	logger *slog.Logger
	spec   toggleSpec
}

func newToggleProvider(r StateReader, logger *slog.Logger, spec toggleSpec) *toggleProvider {
	return &toggleProvider{reader: r, logger: logger, spec: spec}
}

func (p *toggleProvider) Name() string { return p.spec.name }

func (p *toggleProvider) key() smarthq.Key {
	return smarthq.Key{
		ServiceDeviceType: p.spec.deviceType,
		ServiceType:       smarthq.ServiceToggle,
		DomainType:        p.spec.domain,
	}
}

func (p *toggleProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, p.key())
}

func (p *toggleProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	spec := p.spec
	key := p.key()
	return []*Attribute{{
		ID:        spec.id,
		Name:      spec.label,
		Component: ComponentSwitch,
		Icon:      spec.icon,
		Settable:  true,
		Poll:      30 * time.Second,
		Get: func(ctx context.Context) any {
			return p.readToggle(ctx, deviceID, services, key)
		},
		Set: func(ctx context.Context, value any) error {
			on := asBool(value)
			_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, key, smarthq.Command{
				CommandType: smarthq.CommandToggleSet,
				On:          &on,
			}))
			return err
		},
	}}
}

// readToggle reads the exact keyed service. The generic readOn helper
// ignores the domain, which is wrong for toggles sharing a device type
// (appliance carries both sabbath and controls lock).
func (p *toggleProvider) readToggle(ctx context.Context, deviceID string, services []smarthq.ServiceDescriptor, key smarthq.Key) bool {
	for _, svc := range services {
		if !key.Matches(svc) {
			continue
		}
		state, err := p.reader.ServiceState(ctx, deviceID, svc.ServiceID)
		if err != nil || state == nil {
			return false
		}
		on, _ := state.On()
		return on
	}
	return false
}

// turboCoolProvider drives the rapid-cool toggles on both
// compartments. The vendor models them as two independent services.
type turboCoolProvider struct {
	reader StateReader
	logger *slog.Logger
}

func newTurboCoolProvider(r StateReader, logger *slog.Logger) *turboCoolProvider {
	return &turboCoolProvider{reader: r, logger: logger}
}

func (p *turboCoolProvider) Name() string { return "turbo_cool" }

func turboKey(deviceType string) smarthq.Key {
	return smarthq.Key{
		ServiceDeviceType: deviceType,
		ServiceType:       smarthq.ServiceToggle,
		DomainType:        smarthq.DomainTurbo,
	}
}

func (p *turboCoolProvider) Supports(services []smarthq.ServiceDescriptor) bool {
	return smarthq.Supports(services, turboKey(smarthq.DeviceFreshFood)) ||
		smarthq.Supports(services, turboKey(smarthq.DeviceFreezer))
}

func (p *turboCoolProvider) Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute {
	sides := []struct {
		id         string
		label      string
		deviceType string
	}{
		{"turbo_cool", "Turbo Cool", smarthq.DeviceFreshFood},
		{"turbo_freeze", "Turbo Freeze", smarthq.DeviceFreezer},
	}

	var attrs []*Attribute
	for _, side := range sides {
		key := turboKey(side.deviceType)
		if !smarthq.Supports(services, key) {
			continue
		}
		attrs = append(attrs, &Attribute{
			ID:        side.id,
			Name:      side.label,
			Component: ComponentSwitch,
			Icon:      "mdi:snowflake-variant",
			Settable:  true,
			Poll:      30 * time.Second,
			Get: func(ctx context.Context) any {
				for _, svc := range services {
					if !key.Matches(svc) {
						continue
					}
					state, err := p.reader.ServiceState(ctx, deviceID, svc.ServiceID)
					if err != nil || state == nil {
						return false
					}
					on, _ := state.On()
					return on
				}
				return false
			},
			Set: func(ctx context.Context, value any) error {
				on := asBool(value)
				_, err := p.reader.SendCommand(ctx, smarthq.NewCommand(deviceID, key, smarthq.Command{
					CommandType: smarthq.CommandToggleSet,
					On:          &on,
				}))
				return err
			},
		})
	}
	return attrs
}
