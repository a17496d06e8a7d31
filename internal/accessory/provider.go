package accessory

import (
	"context"
	"log/slog"

	"smarthq-bridge/internal/smarthq"
)

// StateReader is the slice of the cloud client the feature providers
// need. *smarthq.Client satisfies it.
type StateReader interface {
	ServiceState(ctx context.Context, deviceID, serviceID string) (smarthq.ServiceState, error)
	SendCommand(ctx context.Context, env smarthq.CommandEnvelope) (smarthq.CommandResult, error)
	RecentAlerts(ctx context.Context, window string) ([]smarthq.Alert, error)
}

// Flags enables or disables optional feature providers by name. A
// missing entry means enabled.
type Flags map[string]bool

// Enabled reports whether the named feature is switched on.
func (f Flags) Enabled(name string) bool {
	if f == nil {
		return true
	}
	v, ok := f[name]
	return !ok || v
}

// Provider translates one appliance feature into attributes. A
// provider only attaches when the device's service catalog carries its
// capability key; providers are constructed fresh per device so any
// state they keep (alert latches, meter readings) is scoped to that
// accessory.
type Provider interface {
	Name() string
	Supports(services []smarthq.ServiceDescriptor) bool
	Attributes(deviceID string, services []smarthq.ServiceDescriptor) []*Attribute
}

// Builder assembles accessories from the feature-provider registry.
type Builder struct {
	reader StateReader
	flags  Flags
	logger *slog.Logger
}

// NewBuilder creates a Builder over the given cloud reader.
func NewBuilder(reader StateReader, flags Flags, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		reader: reader,
		flags:  flags,
		logger: logger.With("component", "accessory"),
	}
}

// providers returns fresh provider instances for one device.
func (b *Builder) providers() []Provider {
	log := b.logger
	r := b.reader
	return []Provider{
		newCompartmentProvider(r, log, freshFoodCompartment),
		newCompartmentProvider(r, log, freezerCompartment),
		newDrawerProvider(r, log),
		newToggleProvider(r, log, controlsLockFeature),
		newToggleProvider(r, log, dispenserLightFeature),
		newToggleProvider(r, log, iceMakerFeature),
		newToggleProvider(r, log, sabbathFeature),
		newTurboCoolProvider(r, log),
		newTempUnitsProvider(r, log),
		newInteriorLightProvider(r, log),
		newWaterFilterProvider(r, log),
		newEnergyProvider(r, log),
		newAlertsProvider(r, log),
	}
}

// Build assembles the accessory for a device from its service catalog.
// Disabled and unsupported features are skipped; the two compartment
// providers attach regardless because every refrigerator has them.
func (b *Builder) Build(dev smarthq.Device, services []smarthq.ServiceDescriptor) *Accessory {
	acc := &Accessory{
		DeviceID:     dev.DeviceID,
		Name:         dev.Nickname,
		Model:        dev.Model,
		Serial:       dev.Serial,
		Manufacturer: dev.Manufacturer,
	}
	if acc.Name == "" {
		acc.Name = dev.DeviceID
	}

	for _, p := range b.providers() {
		if !b.flags.Enabled(p.Name()) {
			b.logger.Debug("Feature disabled", "feature", p.Name(), "device", dev.DeviceID)
			continue
		}
		if !p.Supports(services) {
			b.logger.Debug("Feature not supported", "feature", p.Name(), "device", dev.DeviceID)
			continue
		}
		for _, attr := range p.Attributes(dev.DeviceID, services) {
			attr.feature = p.Name()
			acc.Attributes = append(acc.Attributes, attr)
		}
	}

	b.logger.Info("Accessory built",
		"device", dev.DeviceID,
		"name", acc.Name,
		"attributes", len(acc.Attributes))
	return acc
}
