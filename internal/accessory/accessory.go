package accessory

import (
	"context"
	"time"
)

// Component is the home-automation entity kind an attribute maps to.
type Component string

const (
	ComponentSensor       Component = "sensor"
	ComponentBinarySensor Component = "binary_sensor"
	ComponentSwitch       Component = "switch"
	ComponentLight        Component = "light"
	ComponentNumber       Component = "number"
)

// Attribute is one observable or controllable value on an accessory.
// Get never fails: on any upstream error it returns the attribute's
// default so a flaky cloud read can not take the entity down.
type Attribute struct {
	ID          string
	Name        string
	Component   Component
	DeviceClass string
	Unit        string
	Icon        string

	// Number constraints, used when Component is ComponentNumber or
	// for a light's brightness range.
	Min  float64
	Max  float64
	Step float64

	Settable bool
	Poll     time.Duration

	Get func(ctx context.Context) any
	Set func(ctx context.Context, value any) error

	// feature is the provider name that contributed this attribute,
	// filled in by the builder.
	feature string
}

// Accessory is one appliance presented to the home-automation host.
type Accessory struct {
	DeviceID     string
	Name         string
	Model        string
	Serial       string
	Manufacturer string
	Attributes   []*Attribute
}

// Attribute returns the attribute with the given ID, or nil.
func (a *Accessory) Attribute(id string) *Attribute {
	for _, attr := range a.Attributes {
		if attr.ID == id {
			return attr
		}
	}
	return nil
}

// FeatureNames lists the distinct feature providers that contributed
// attributes, in attachment order.
func (a *Accessory) FeatureNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, attr := range a.Attributes {
		if f := attr.feature; f != "" && !seen[f] {
			seen[f] = true
			names = append(names, f)
		}
	}
	return names
}
