package discovery

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"smarthq-bridge/internal/accessory"
	"smarthq-bridge/internal/events"
	"smarthq-bridge/internal/smarthq"
	"smarthq-bridge/internal/store"
)

// Host is the accessory host's registration surface. Register and
// Update are idempotent for the same device.
type Host interface {
	Register(acc *accessory.Accessory) error
	Update(acc *accessory.Accessory) error
	Remove(deviceID string) error
}

// DeviceLister is the slice of the cloud client discovery needs.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]smarthq.Device, error)
	DeviceServices(ctx context.Context, deviceID string) ([]smarthq.ServiceDescriptor, error)
}

// Orchestrator reconciles the cloud's device list with the accessory
// host and the persistent registry: new devices register, known ones
// refresh, and anything the cloud no longer reports is pruned. A pass
// is triggered by auth completion and can be re-run at any time; runs
// never overlap.
type Orchestrator struct {
	client  DeviceLister
	builder *accessory.Builder
	host    Host
	store   store.Store
	bus     *events.Bus
	logger  *slog.Logger

	running atomic.Bool
}

// New creates the orchestrator and wires it to the auth_complete
// event.
func New(client DeviceLister, builder *accessory.Builder, host Host, st store.Store, bus *events.Bus, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		client:  client,
		builder: builder,
		host:    host,
		store:   st,
		bus:     bus,
		logger:  logger.With("component", "discovery"),
	}
	bus.On(events.EventAuthComplete, func(events.Event) {
		go func() {
			if err := o.Run(context.Background()); err != nil {
				o.logger.Error("Discovery run failed", "err", err)
			}
		}()
	})
	return o
}

// Run performs one reconciliation pass. A pass already in flight makes
// this call a no-op.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Debug("Discovery already running, skipping")
		return nil
	}
	defer o.running.Store(false)

	devices, err := o.client.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		// Nothing to reconcile; existing accessories are left alone so
		// a flaky empty response can not wipe the bridge.
		o.logger.Info("No devices on account")
		return nil
	}

	known, err := o.store.ListAccessories()
	if err != nil {
		return err
	}
	knownByID := make(map[string]*store.Accessory, len(known))
	for _, k := range known {
		knownByID[k.DeviceID] = k
	}

	seen := make(map[string]bool, len(devices))
	registered := 0
	for _, dev := range devices {
		// Every listed device counts as seen, failed or not: only
		// devices the cloud stopped reporting are pruned, a failed
		// catalog fetch just retries on the next pass.
		seen[dev.DeviceID] = true
		if !o.supported(dev) {
			o.logger.Info("Unsupported appliance type, skipping",
				"device", dev.DeviceID, "nickname", dev.Nickname)
			continue
		}
		if err := o.reconcile(ctx, dev, knownByID[dev.DeviceID] != nil); err != nil {
			o.logger.Error("Device reconcile failed", "device", dev.DeviceID, "err", err)
			continue
		}
		registered++
	}

	removed := o.prune(known, seen)

	status := &store.DiscoveryStatus{
		LastRun:     time.Now(),
		DeviceCount: len(devices),
		Registered:  registered,
		Removed:     removed,
	}
	if err := o.store.SaveDiscoveryStatus(status); err != nil {
		o.logger.Error("Save discovery status", "err", err)
	}

	o.logger.Info("Discovery pass complete",
		"devices", len(devices), "registered", registered, "removed", removed)
	o.bus.Emit(events.Event{Type: events.EventDiscoveryDone, Data: status})
	return nil
}

// supported reports whether the appliance type has a feature mapping.
// The cloud reports the appliance kind through the nickname field.
func (o *Orchestrator) supported(dev smarthq.Device) bool {
	return dev.Nickname == "Refrigerator"
}

func (o *Orchestrator) reconcile(ctx context.Context, dev smarthq.Device, known bool) error {
	services, err := o.client.DeviceServices(ctx, dev.DeviceID)
	if err != nil {
		return err
	}

	acc := o.builder.Build(dev, services)

	if known {
		if err := o.host.Update(acc); err != nil {
			return err
		}
		err = o.store.UpdateAccessory(dev.DeviceID, func(rec *store.Accessory) error {
			rec.Nickname = dev.Nickname
			rec.Model = dev.Model
			rec.Serial = dev.Serial
			rec.Features = acc.FeatureNames()
			rec.LastSeen = time.Now()
			return nil
		})
		if errors.Is(err, store.ErrNotFound) {
			err = o.saveRecord(dev, acc)
		}
		if err != nil {
			return err
		}
	} else {
		if err := o.host.Register(acc); err != nil {
			return err
		}
		if err := o.saveRecord(dev, acc); err != nil {
			return err
		}
	}

	o.bus.Emit(events.Event{Type: events.EventDeviceDiscovered, Data: map[string]any{
		"device_id": dev.DeviceID,
		"nickname":  dev.Nickname,
		"known":     known,
	}})
	return nil
}

func (o *Orchestrator) saveRecord(dev smarthq.Device, acc *accessory.Accessory) error {
	now := time.Now()
	return o.store.SaveAccessory(&store.Accessory{
		DeviceID:     dev.DeviceID,
		Nickname:     dev.Nickname,
		Model:        dev.Model,
		Serial:       dev.Serial,
		Manufacturer: dev.Manufacturer,
		Features:     acc.FeatureNames(),
		RegisteredAt: now,
		LastSeen:     now,
	})
}

// prune removes accessories the cloud stopped reporting. Best effort:
// a failed removal is logged and retried on the next pass.
func (o *Orchestrator) prune(known []*store.Accessory, seen map[string]bool) int {
	removed := 0
	for _, rec := range known {
		if seen[rec.DeviceID] {
			continue
		}
		o.logger.Info("Pruning stale accessory", "device", rec.DeviceID, "nickname", rec.Nickname)
		if err := o.host.Remove(rec.DeviceID); err != nil {
			o.logger.Error("Remove accessory from host", "device", rec.DeviceID, "err", err)
			continue
		}
		if err := o.store.DeleteAccessory(rec.DeviceID); err != nil {
			o.logger.Error("Delete accessory record", "device", rec.DeviceID, "err", err)
			continue
		}
		o.bus.Emit(events.Event{Type: events.EventAccessoryRemoved, Data: rec.DeviceID})
		removed++
	}
	return removed
}
