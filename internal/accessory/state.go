package accessory

import (
	"context"

	"smarthq-bridge/internal/smarthq"
)

// readState finds the (serviceDeviceType, serviceType) service in the
// catalog and fetches its live state. Missing service or failed read
// both come back as not-ok; callers substitute their defaults.
func readState(ctx context.Context, r StateReader, deviceID string, services []smarthq.ServiceDescriptor, serviceDeviceType, serviceType string) (smarthq.ServiceState, bool) {
	svc, ok := smarthq.Find(services, serviceDeviceType, serviceType)
	if !ok {
		return nil, false
	}
	state, err := r.ServiceState(ctx, deviceID, svc.ServiceID)
	if err != nil || state == nil {
		return nil, false
	}
	return state, true
}

func readCelsius(ctx context.Context, r StateReader, deviceID string, services []smarthq.ServiceDescriptor, serviceDeviceType string, fallback float64) float64 {
	state, ok := readState(ctx, r, deviceID, services, serviceDeviceType, smarthq.ServiceTemperature)
	if !ok {
		return fallback
	}
	if c, ok := state.Celsius(); ok {
		return c
	}
	return fallback
}

func readOn(ctx context.Context, r StateReader, deviceID string, services []smarthq.ServiceDescriptor, serviceDeviceType string) bool {
	state, ok := readState(ctx, r, deviceID, services, serviceDeviceType, smarthq.ServiceToggle)
	if !ok {
		return false
	}
	on, _ := state.On()
	return on
}

func readMode(ctx context.Context, r StateReader, deviceID string, services []smarthq.ServiceDescriptor, serviceDeviceType string) (string, bool) {
	state, ok := readState(ctx, r, deviceID, services, serviceDeviceType, smarthq.ServiceMode)
	if !ok {
		return "", false
	}
	return state.Mode()
}

func readValue(ctx context.Context, r StateReader, deviceID string, services []smarthq.ServiceDescriptor, serviceDeviceType string, fallback float64) float64 {
	state, ok := readState(ctx, r, deviceID, services, serviceDeviceType, smarthq.ServiceInteger)
	if !ok {
		return fallback
	}
	if v, ok := state.Value(); ok {
		return v
	}
	return fallback
}

// asBool coerces a Set payload to a bool. MQTT command payloads arrive
// as bool after parsing; anything else reads as false.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asFloat coerces a Set payload to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
