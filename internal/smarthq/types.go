package smarthq

// Device is one appliance on the account as returned by /v2/device.
// The deviceId is the stable identifier; nickname doubles as the
// appliance-type discriminator during discovery ("Refrigerator", ...).
type Device struct {
	DeviceID         string `json:"deviceId"`
	DeviceType       string `json:"deviceType"`
	Nickname         string `json:"nickname"`
	Model            string `json:"model"`
	Serial           string `json:"serial"`
	Manufacturer     string `json:"manufacturer"`
	GatewayID        string `json:"gatewayId,omitempty"`
	MACAddress       string `json:"macAddress,omitempty"`
	Presence         string `json:"presence,omitempty"`
	Room             string `json:"room,omitempty"`
	LastSyncTime     string `json:"lastSyncTime,omitempty"`
	LastPresenceTime string `json:"lastPresenceTime,omitempty"`
}

// ServiceDescriptor is one addressable feature surface on a device.
// The (ServiceDeviceType, ServiceType, DomainType) triple is the
// capability key; see capability.go.
type ServiceDescriptor struct {
	ServiceID         string         `json:"serviceId"`
	ServiceDeviceType string         `json:"serviceDeviceType"`
	ServiceType       string         `json:"serviceType"`
	DomainType        string         `json:"domainType"`
	SupportedCommands []string       `json:"supportedCommands,omitempty"`
	Config            map[string]any `json:"config,omitempty"`
	State             ServiceState   `json:"state,omitempty"`
	LastSyncTime      string         `json:"lastSyncTime,omitempty"`
	LastStateTime     string         `json:"lastStateTime,omitempty"`
}

// ServiceState is the sparse value bag returned per service-state
// query. Which fields are present depends on the service kind.
type ServiceState map[string]any

// On returns the "on" flag of a toggle service.
func (s ServiceState) On() (bool, bool) {
	v, ok := s["on"].(bool)
	return v, ok
}

// Mode returns the "mode" enum value of a mode service.
func (s ServiceState) Mode() (string, bool) {
	v, ok := s["mode"].(string)
	return v, ok
}

// Value returns the "value" of an integer service.
func (s ServiceState) Value() (float64, bool) {
	v, ok := s["value"].(float64)
	return v, ok
}

// Celsius returns the converted Celsius reading of a temperature
// service.
func (s ServiceState) Celsius() (float64, bool) {
	v, ok := s["celsiusConverted"].(float64)
	return v, ok
}

// MeterValue returns the cumulative reading of a meter service.
func (s ServiceState) MeterValue() (float64, bool) {
	v, ok := s["meterValue"].(float64)
	return v, ok
}

// Alert is one entry from /v2/alert/recent.
type Alert struct {
	AlertType string `json:"alertType"`
	DeviceID  string `json:"deviceId,omitempty"`
	Created   string `json:"createdDateTime,omitempty"`
}

// Command is the inner command object of a CommandEnvelope.
// CommandType selects the verb; exactly one of the payload fields is
// set depending on the service kind.
type Command struct {
	CommandType string   `json:"commandType"`
	On          *bool    `json:"on,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Celsius     *float64 `json:"celsius,omitempty"`
}

// CommandEnvelope is the POST /v2/command body. Kind is always
// "service#command".
type CommandEnvelope struct {
	Kind              string  `json:"kind"`
	DeviceID          string  `json:"deviceId"`
	ServiceDeviceType string  `json:"serviceDeviceType"`
	ServiceType       string  `json:"serviceType"`
	DomainType        string  `json:"domainType"`
	Command           Command `json:"command"`
}

// CommandResult is the command endpoint's response body.
type CommandResult struct {
	Outcome string `json:"outcome,omitempty"`
}

// NewCommand builds a CommandEnvelope for the given capability key.
func NewCommand(deviceID string, key Key, cmd Command) CommandEnvelope {
	return CommandEnvelope{
		Kind:              "service#command",
		DeviceID:          deviceID,
		ServiceDeviceType: key.ServiceDeviceType,
		ServiceType:       key.ServiceType,
		DomainType:        key.DomainType,
		Command:           cmd,
	}
}

// Vendor catalog constants. These are the service/domain/command/mode
// identifiers the SmartHQ cloud uses for refrigerator sub-services.
const (
	DeviceAppliance          = "cloud.smarthq.device.appliance"
	DeviceRefrigerator       = "cloud.smarthq.device.refrigerator"
	DeviceFreshFood          = "cloud.smarthq.device.refrigerator.freshfood"
	DeviceFreezer            = "cloud.smarthq.device.refrigerator.freezer"
	DeviceConvertibleDrawer  = "cloud.smarthq.device.refrigerator.convertibledrawer"
	DeviceDispenserLight     = "cloud.smarthq.device.refrigerator.dispenser.light"
	DeviceIceMaker           = "cloud.smarthq.device.icemaker.1"
	DeviceWaterFilter        = "cloud.smarthq.device.waterfilter"
	DeviceMeter              = "cloud.smarthq.device.meter"

	ServiceTemperature = "cloud.smarthq.service.temperature"
	ServiceToggle      = "cloud.smarthq.service.toggle"
	ServiceMode        = "cloud.smarthq.service.mode"
	ServiceInteger     = "cloud.smarthq.service.integer"
	ServiceMeter       = "cloud.smarthq.service.meter"

	DomainSetpoint       = "cloud.smarthq.domain.setpoint"
	DomainSabbath        = "cloud.smarthq.domain.sabbath"
	DomainControlsLock   = "cloud.smarthq.domain.controls.lock"
	DomainPower          = "cloud.smarthq.domain.power"
	DomainTurbo          = "cloud.smarthq.domain.turbo"
	DomainActivateMotion = "cloud.smarthq.domain.activate.motion"
	DomainModeSelection  = "cloud.smarthq.domain.mode.selection"
	DomainTempUnits      = "cloud.smarthq.domain.temperatureunits"
	DomainBrightness     = "cloud.smarthq.domain.brightness.light"
	DomainState          = "cloud.smarthq.domain.state"
	DomainEnergy         = "cloud.smarthq.domain.energy"

	CommandToggleSet      = "cloud.smarthq.command.toggle.set"
	CommandModeSet        = "cloud.smarthq.command.mode.set"
	CommandIntegerSet     = "cloud.smarthq.command.integer.set"
	CommandTemperatureSet = "cloud.smarthq.command.temperature.set"

	ModeCelsius      = "cloud.smarthq.type.mode.celsius"
	ModeFahrenheit   = "cloud.smarthq.type.mode.fahrenheit"
	ModeFilterGood   = "cloud.smarthq.type.mode.good"
	ModeFilterBypass = "cloud.smarthq.type.mode.bypass"
	ModeFilterSoon   = "cloud.smarthq.type.mode.expiringsoon"

	// Convertible drawer presets. The vendor numbers the modes; the
	// names are how the panel labels them.
	ModeDrawerMeat      = "cloud.smarthq.type.mode.convertibledrawer.mode3"
	ModeDrawerBeverages = "cloud.smarthq.type.mode.convertibledrawer.mode4"
	ModeDrawerSnacks    = "cloud.smarthq.type.mode.convertibledrawer.mode5"
	ModeDrawerWine      = "cloud.smarthq.type.mode.convertibledrawer.mode6"
)
