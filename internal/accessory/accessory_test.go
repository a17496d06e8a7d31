package accessory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"smarthq-bridge/internal/smarthq"
)

type fakeReader struct {
	mu       sync.Mutex
	states   map[string]smarthq.ServiceState
	alerts   []smarthq.Alert
	alertErr error
	stateErr error
	commands []smarthq.CommandEnvelope
}

func (f *fakeReader) ServiceState(ctx context.Context, deviceID, serviceID string) (smarthq.ServiceState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.states[serviceID], nil
}

func (f *fakeReader) SendCommand(ctx context.Context, env smarthq.CommandEnvelope) (smarthq.CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, env)
	return smarthq.CommandResult{Outcome: "accepted"}, nil
}

func (f *fakeReader) RecentAlerts(ctx context.Context, window string) ([]smarthq.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alerts, f.alertErr
}

func (f *fakeReader) lastCommand(t *testing.T) smarthq.CommandEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		t.Fatal("no command sent")
	}
	return f.commands[len(f.commands)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func svc(id, deviceType, serviceType, domain string) smarthq.ServiceDescriptor {
	return smarthq.ServiceDescriptor{
		ServiceID:         id,
		ServiceDeviceType: deviceType,
		ServiceType:       serviceType,
		DomainType:        domain,
	}
}

func testDevice() smarthq.Device {
	return smarthq.Device{
		DeviceID: "dev-1",
		Nickname: "Refrigerator",
		Model:    "PVD28BYNFS",
		Serial:   "AB123456",
	}
}

func newTestBuilder(r StateReader, flags Flags) *Builder {
	return NewBuilder(r, flags, testLogger())
}

func TestBuildAlwaysAttachesCompartments(t *testing.T) {
	b := newTestBuilder(&fakeReader{}, nil)

	acc := b.Build(testDevice(), nil)

	for _, id := range []string{"refrigerator_temp", "refrigerator_setpoint", "freezer_temp", "freezer_setpoint"} {
		if acc.Attribute(id) == nil {
			t.Errorf("attribute %s missing", id)
		}
	}
}

func TestBuildGatesOnCapabilityKey(t *testing.T) {
	tests := []struct {
		name     string
		services []smarthq.ServiceDescriptor
		attr     string
		want     bool
	}{
		{
			name: "drawer attached with exact key",
			services: []smarthq.ServiceDescriptor{
				svc("s1", smarthq.DeviceConvertibleDrawer, smarthq.ServiceMode, smarthq.DomainModeSelection),
			},
			attr: "drawer_meat",
			want: true,
		},
		{
			name: "drawer skipped with wrong domain",
			services: []smarthq.ServiceDescriptor{
				svc("s1", smarthq.DeviceConvertibleDrawer, smarthq.ServiceMode, smarthq.DomainTempUnits),
			},
			attr: "drawer_meat",
			want: false,
		},
		{
			name:     "ice maker skipped with empty catalog",
			services: nil,
			attr:     "ice_maker",
			want:     false,
		},
		{
			name: "ice maker attached",
			services: []smarthq.ServiceDescriptor{
				svc("s1", smarthq.DeviceIceMaker, smarthq.ServiceToggle, smarthq.DomainPower),
			},
			attr: "ice_maker",
			want: true,
		},
		{
			name: "sibling toggle does not unlock controls lock",
			services: []smarthq.ServiceDescriptor{
				svc("s1", smarthq.DeviceAppliance, smarthq.ServiceToggle, smarthq.DomainSabbath),
			},
			attr: "controls_lock",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBuilder(&fakeReader{}, nil)
			acc := b.Build(testDevice(), tt.services)
			got := acc.Attribute(tt.attr) != nil
			if got != tt.want {
				t.Errorf("attribute %s attached = %v, want %v", tt.attr, got, tt.want)
			}
		})
	}
}

func TestFlagsDisableFeature(t *testing.T) {
	services := []smarthq.ServiceDescriptor{
		svc("s1", smarthq.DeviceIceMaker, smarthq.ServiceToggle, smarthq.DomainPower),
	}
	b := newTestBuilder(&fakeReader{}, Flags{"ice_maker": false})

	acc := b.Build(testDevice(), services)

	if acc.Attribute("ice_maker") != nil {
		t.Error("disabled feature was attached")
	}
	if acc.Attribute("refrigerator_temp") == nil {
		t.Error("unrelated feature went missing")
	}
}

func TestFreshFoodTemperatureRead(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"temp-1": {"celsiusConverted": 3.3},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("temp-1", smarthq.DeviceFreshFood, smarthq.ServiceTemperature, smarthq.DomainSetpoint),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)

	got := acc.Attribute("refrigerator_temp").Get(context.Background())
	if got != 3.3 {
		t.Errorf("temperature = %v, want 3.3", got)
	}
}

func TestTemperatureDefaultsOnFailure(t *testing.T) {
	r := &fakeReader{stateErr: context.DeadlineExceeded}
	services := []smarthq.ServiceDescriptor{
		svc("temp-1", smarthq.DeviceFreshFood, smarthq.ServiceTemperature, smarthq.DomainSetpoint),
		svc("temp-2", smarthq.DeviceFreezer, smarthq.ServiceTemperature, smarthq.DomainSetpoint),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)

	if got := acc.Attribute("refrigerator_temp").Get(context.Background()); got != 2.78 {
		t.Errorf("fridge fallback = %v, want 2.78", got)
	}
	if got := acc.Attribute("freezer_temp").Get(context.Background()); got != -17.77 {
		t.Errorf("freezer fallback = %v, want -17.77", got)
	}
}

func TestSetpointCommand(t *testing.T) {
	r := &fakeReader{}
	acc := newTestBuilder(r, nil).Build(testDevice(), nil)

	if err := acc.Attribute("freezer_setpoint").Set(context.Background(), -18.0); err != nil {
		t.Fatal(err)
	}

	env := r.lastCommand(t)
	if env.Kind != "service#command" {
		t.Errorf("kind = %q", env.Kind)
	}
	if env.ServiceDeviceType != smarthq.DeviceFreezer {
		t.Errorf("serviceDeviceType = %q", env.ServiceDeviceType)
	}
	if env.DomainType != smarthq.DomainSetpoint {
		t.Errorf("domainType = %q", env.DomainType)
	}
	if env.Command.CommandType != smarthq.CommandTemperatureSet {
		t.Errorf("commandType = %q", env.Command.CommandType)
	}
	if env.Command.Celsius == nil || *env.Command.Celsius != -18.0 {
		t.Errorf("celsius = %v, want -18", env.Command.Celsius)
	}
}

func TestDrawerModeSwitchAndTemperature(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"mode-1": {"mode": smarthq.ModeDrawerSnacks},
		"temp-5": {"celsiusConverted": -2.0},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("mode-1", smarthq.DeviceConvertibleDrawer, smarthq.ServiceMode, smarthq.DomainModeSelection),
		svc("temp-5", smarthq.DeviceConvertibleDrawer+".mode5", smarthq.ServiceTemperature, smarthq.DomainSetpoint),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("drawer_snacks").Get(ctx); got != true {
		t.Error("snacks switch should read on")
	}
	if got := acc.Attribute("drawer_wine").Get(ctx); got != false {
		t.Error("wine switch should read off")
	}
	// The temperature read resolves through the current mode.
	if got := acc.Attribute("drawer_temp").Get(ctx); got != -2.0 {
		t.Errorf("drawer temp = %v, want -2", got)
	}
}

func TestDrawerPresetOffIsNoop(t *testing.T) {
	r := &fakeReader{}
	services := []smarthq.ServiceDescriptor{
		svc("mode-1", smarthq.DeviceConvertibleDrawer, smarthq.ServiceMode, smarthq.DomainModeSelection),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)

	if err := acc.Attribute("drawer_wine").Set(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if len(r.commands) != 0 {
		t.Fatalf("commands = %d, want 0", len(r.commands))
	}

	if err := acc.Attribute("drawer_wine").Set(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	env := r.lastCommand(t)
	if env.Command.Mode != smarthq.ModeDrawerWine {
		t.Errorf("mode = %q, want wine preset", env.Command.Mode)
	}
}

func TestToggleReadsExactDomain(t *testing.T) {
	// Sabbath and controls lock share the appliance device type; each
	// switch must read its own service.
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"sab-1":  {"on": true},
		"lock-1": {"on": false},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("sab-1", smarthq.DeviceAppliance, smarthq.ServiceToggle, smarthq.DomainSabbath),
		svc("lock-1", smarthq.DeviceAppliance, smarthq.ServiceToggle, smarthq.DomainControlsLock),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("sabbath").Get(ctx); got != true {
		t.Error("sabbath should read on")
	}
	if got := acc.Attribute("controls_lock").Get(ctx); got != false {
		t.Error("controls lock should read off")
	}
}

func TestTurboCoolSidesAreIndependent(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"turbo-ff": {"on": true},
		"turbo-fz": {"on": false},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("turbo-ff", smarthq.DeviceFreshFood, smarthq.ServiceToggle, smarthq.DomainTurbo),
		svc("turbo-fz", smarthq.DeviceFreezer, smarthq.ServiceToggle, smarthq.DomainTurbo),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("turbo_cool").Get(ctx); got != true {
		t.Error("fresh food turbo should read on")
	}
	if got := acc.Attribute("turbo_freeze").Get(ctx); got != false {
		t.Error("freezer turbo should read off")
	}

	on := acc.Attribute("turbo_freeze")
	if err := on.Set(ctx, true); err != nil {
		t.Fatal(err)
	}
	env := r.lastCommand(t)
	if env.ServiceDeviceType != smarthq.DeviceFreezer {
		t.Errorf("command targeted %q, want freezer", env.ServiceDeviceType)
	}
	if env.Command.On == nil || !*env.Command.On {
		t.Error("command on flag not set")
	}
}

func TestTemperatureUnitsSwitches(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"units-1": {"mode": smarthq.ModeFahrenheit},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("units-1", smarthq.DeviceRefrigerator, smarthq.ServiceMode, smarthq.DomainTempUnits),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("units_fahrenheit").Get(ctx); got != true {
		t.Error("fahrenheit should read on")
	}
	if got := acc.Attribute("units_celsius").Get(ctx); got != false {
		t.Error("celsius should read off")
	}

	if err := acc.Attribute("units_celsius").Set(ctx, true); err != nil {
		t.Fatal(err)
	}
	env := r.lastCommand(t)
	if env.Command.Mode != smarthq.ModeCelsius {
		t.Errorf("mode = %q, want celsius", env.Command.Mode)
	}

	// Switching a unit off sends nothing.
	if err := acc.Attribute("units_fahrenheit").Set(ctx, false); err != nil {
		t.Fatal(err)
	}
	if len(r.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(r.commands))
	}
}

func TestInteriorLightBrightness(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"light-1": {"value": 40.0},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("light-1", smarthq.DeviceRefrigerator, smarthq.ServiceInteger, smarthq.DomainBrightness),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("interior_light").Get(ctx); got != 40.0 {
		t.Errorf("brightness = %v, want 40", got)
	}

	if err := acc.Attribute("interior_light").Set(ctx, 75.0); err != nil {
		t.Fatal(err)
	}
	env := r.lastCommand(t)
	if env.Command.CommandType != smarthq.CommandIntegerSet {
		t.Errorf("commandType = %q", env.Command.CommandType)
	}
	if env.Command.Value == nil || *env.Command.Value != 75.0 {
		t.Errorf("value = %v, want 75", env.Command.Value)
	}
}

func TestWaterFilterStatus(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"filter-mode": {"mode": smarthq.ModeFilterGood},
		"filter-life": {"value": 82.0},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("filter-mode", smarthq.DeviceWaterFilter, smarthq.ServiceMode, smarthq.DomainState),
		svc("filter-life", smarthq.DeviceWaterFilter, smarthq.ServiceInteger, smarthq.DomainState),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()

	if got := acc.Attribute("filter_replace").Get(ctx); got != false {
		t.Error("good filter should not flag replacement")
	}
	if got := acc.Attribute("filter_life").Get(ctx); got != 82.0 {
		t.Errorf("life = %v, want 82", got)
	}

	r.mu.Lock()
	r.states["filter-mode"] = smarthq.ServiceState{"mode": "cloud.smarthq.type.mode.replace"}
	r.mu.Unlock()

	if got := acc.Attribute("filter_replace").Get(ctx); got != true {
		t.Error("unknown filter mode should flag replacement")
	}
}

func TestEnergyRateDelta(t *testing.T) {
	r := &fakeReader{states: map[string]smarthq.ServiceState{
		"meter-1": {"meterValue": 100.0},
	}}
	services := []smarthq.ServiceDescriptor{
		svc("meter-1", smarthq.DeviceMeter, smarthq.ServiceMeter, smarthq.DomainEnergy),
	}
	acc := newTestBuilder(r, nil).Build(testDevice(), services)
	ctx := context.Background()
	attr := acc.Attribute("energy_rate")

	// First read primes the meter and reports zero.
	if got := attr.Get(ctx); got != 0.0 {
		t.Errorf("first read = %v, want 0", got)
	}

	r.mu.Lock()
	r.states["meter-1"] = smarthq.ServiceState{"meterValue": 101.5}
	r.mu.Unlock()

	// 1.5 kWh over 30 minutes averages 3 kW.
	if got := attr.Get(ctx); got != 3.0 {
		t.Errorf("second read = %v, want 3", got)
	}

	// A meter reset re-primes on the new baseline instead of
	// publishing a negative rate.
	r.mu.Lock()
	r.states["meter-1"] = smarthq.ServiceState{"meterValue": 2.0}
	r.mu.Unlock()

	if got := attr.Get(ctx); got != 0.0 {
		t.Errorf("read after meter reset = %v, want 0", got)
	}

	r.mu.Lock()
	r.states["meter-1"] = smarthq.ServiceState{"meterValue": 3.0}
	r.mu.Unlock()

	if got := attr.Get(ctx); got != 2.0 {
		t.Errorf("read after re-prime = %v, want 2", got)
	}
}

func TestAlertLatchAndHold(t *testing.T) {
	r := &fakeReader{alerts: []smarthq.Alert{
		{AlertType: "cloud.smarthq.alert.door.alarm"},
	}}
	p := newAlertsProvider(r, testLogger())
	clock := time.Now()
	p.now = func() time.Time { return clock }

	attrs := p.Attributes("dev-1", nil)
	byID := make(map[string]*Attribute)
	for _, a := range attrs {
		byID[a.ID] = a
	}
	ctx := context.Background()

	if got := byID["alert_door"].Get(ctx); got != true {
		t.Error("door alert should latch on")
	}
	if got := byID["alert_leak"].Get(ctx); got != false {
		t.Error("leak alert should stay off")
	}

	// The latch holds while the feed goes quiet.
	r.mu.Lock()
	r.alerts = nil
	r.mu.Unlock()
	clock = clock.Add(time.Minute)

	if got := byID["alert_door"].Get(ctx); got != true {
		t.Error("door alert should still hold")
	}

	// And clears once the hold window passes.
	clock = clock.Add(alertHold)
	if got := byID["alert_door"].Get(ctx); got != false {
		t.Error("door alert should clear after the hold window")
	}
}

func TestAlertsScopedToDevice(t *testing.T) {
	// Account-level feed with alerts for two appliances: each
	// provider only latches the ones tagged for its own device.
	r := &fakeReader{alerts: []smarthq.Alert{
		{AlertType: "cloud.smarthq.alert.door.alarm", DeviceID: "dev-a"},
		{AlertType: "cloud.smarthq.alert.water.leak", DeviceID: "dev-b"},
	}}
	p := newAlertsProvider(r, testLogger())

	attrs := p.Attributes("dev-b", nil)
	byID := make(map[string]*Attribute)
	for _, a := range attrs {
		byID[a.ID] = a
	}
	ctx := context.Background()

	if got := byID["alert_door"].Get(ctx); got != false {
		t.Error("door alarm for dev-a should not light dev-b")
	}
	if got := byID["alert_leak"].Get(ctx); got != true {
		t.Error("leak alert for dev-b should latch on")
	}
}

func TestAlertFetchShared(t *testing.T) {
	r := &countingAlertReader{}
	p := newAlertsProvider(r, testLogger())
	attrs := p.Attributes("dev-1", nil)
	ctx := context.Background()

	for _, a := range attrs {
		a.Get(ctx)
	}
	if calls := r.calls; calls != 1 {
		t.Fatalf("alert fetches = %d, want 1 for a full poll cycle", calls)
	}
}

type countingAlertReader struct {
	fakeReader
	calls int
}

func (c *countingAlertReader) RecentAlerts(ctx context.Context, window string) ([]smarthq.Alert, error) {
	c.calls++
	return nil, nil
}
