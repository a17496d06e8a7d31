//go:build !no_mqtt

package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"smarthq-bridge/internal/accessory"
)

// discoveryMsg is one Home Assistant MQTT discovery publication.
type discoveryMsg struct {
	Topic   string
	Payload []byte // empty retained payload deletes the entity
}

// haDevice is the "device" block shared by all of an accessory's
// entities so HA groups them under one appliance.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name                   string   `json:"name"`
	UniqueID               string   `json:"unique_id"`
	StateTopic             string   `json:"state_topic"`
	CommandTopic           string   `json:"command_topic,omitempty"`
	AvailabilityTopic      string   `json:"availability_topic"`
	ValueTemplate          string   `json:"value_template,omitempty"`
	StateValueTemplate     string   `json:"state_value_template,omitempty"`
	UnitOfMeasurement      string   `json:"unit_of_measurement,omitempty"`
	DeviceClass            string   `json:"device_class,omitempty"`
	StateClass             string   `json:"state_class,omitempty"`
	Icon                   string   `json:"icon,omitempty"`
	PayloadOn              string   `json:"payload_on,omitempty"`
	PayloadOff             string   `json:"payload_off,omitempty"`
	Min                    *float64 `json:"min,omitempty"`
	Max                    *float64 `json:"max,omitempty"`
	Step                   *float64 `json:"step,omitempty"`
	BrightnessScale        int      `json:"brightness_scale,omitempty"`
	BrightnessStateTopic   string   `json:"brightness_state_topic,omitempty"`
	BrightnessCommandTopic string   `json:"brightness_command_topic,omitempty"`
	BrightnessValueTemplate string  `json:"brightness_value_template,omitempty"`
	Device                 haDevice `json:"device"`
}

// sanitizeTopic keeps only MQTT-safe characters.
func sanitizeTopic(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, s)
}

func nodeID(acc *accessory.Accessory) string {
	return "smarthq_" + sanitizeTopic(acc.DeviceID)
}

// buildDiscovery generates one discovery config per attribute.
func buildDiscovery(acc *accessory.Accessory, prefix, discoveryPrefix string) []discoveryMsg {
	node := nodeID(acc)
	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + sanitizeTopic(acc.DeviceID)

	haDev := haDevice{
		Identifiers:  []string{node},
		Manufacturer: acc.Manufacturer,
		Model:        acc.Model,
		Name:         acc.Name,
	}

	msgs := make([]discoveryMsg, 0, len(acc.Attributes))
	for _, attr := range acc.Attributes {
		payload := haDiscovery{
			Name:              acc.Name + " " + attr.Name,
			UniqueID:          node + "_" + attr.ID,
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			UnitOfMeasurement: attr.Unit,
			DeviceClass:       attr.DeviceClass,
			Icon:              attr.Icon,
			Device:            haDev,
		}
		cmdTopic := stateTopic + "/" + attr.ID + "/set"

		switch attr.Component {
		case accessory.ComponentSensor:
			payload.ValueTemplate = valueTemplate(attr.ID)
			if attr.Unit != "" {
				payload.StateClass = "measurement"
			}
		case accessory.ComponentBinarySensor:
			payload.ValueTemplate = onOffTemplate(attr.ID)
			payload.PayloadOn = "ON"
			payload.PayloadOff = "OFF"
		case accessory.ComponentSwitch:
			payload.ValueTemplate = onOffTemplate(attr.ID)
			payload.PayloadOn = "ON"
			payload.PayloadOff = "OFF"
			payload.CommandTopic = cmdTopic
		case accessory.ComponentNumber:
			payload.ValueTemplate = valueTemplate(attr.ID)
			payload.CommandTopic = cmdTopic
			min, max, step := attr.Min, attr.Max, attr.Step
			payload.Min = &min
			payload.Max = &max
			payload.Step = &step
		case accessory.ComponentLight:
			payload.CommandTopic = cmdTopic
			payload.StateValueTemplate = fmt.Sprintf(
				"{{ 'OFF' if value_json.%s == 0 else 'ON' }}", attr.ID)
			payload.PayloadOn = "ON"
			payload.PayloadOff = "OFF"
			payload.BrightnessScale = int(attr.Max)
			payload.BrightnessStateTopic = stateTopic
			payload.BrightnessCommandTopic = stateTopic + "/" + attr.ID + "/brightness/set"
			payload.BrightnessValueTemplate = valueTemplate(attr.ID)
		default:
			continue
		}

		msgs = append(msgs, discoveryMsg{
			Topic:   configTopic(discoveryPrefix, attr.Component, node, attr.ID),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}

// buildRemoveDiscovery generates empty retained messages that delete
// every entity the accessory announced.
func buildRemoveDiscovery(acc *accessory.Accessory, discoveryPrefix string) []discoveryMsg {
	node := nodeID(acc)
	msgs := make([]discoveryMsg, 0, len(acc.Attributes))
	for _, attr := range acc.Attributes {
		msgs = append(msgs, discoveryMsg{
			Topic: configTopic(discoveryPrefix, attr.Component, node, attr.ID),
		})
	}
	return msgs
}

func configTopic(discoveryPrefix string, component accessory.Component, node, objectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", discoveryPrefix, component, node, objectID)
}

func valueTemplate(id string) string {
	return fmt.Sprintf("{{ value_json.%s }}", id)
}

func onOffTemplate(id string) string {
	return fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", id)
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
