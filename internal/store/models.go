package store

import "time"

// Accessory is one registered smart-home accessory, keyed by the
// cloud deviceId. The record is what lets a later discovery pass
// prune accessories whose appliance disappeared from the account,
// even across a restart.
type Accessory struct {
	DeviceID     string    `json:"device_id"`
	Nickname     string    `json:"nickname,omitempty"`
	Model        string    `json:"model,omitempty"`
	Serial       string    `json:"serial,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Features     []string  `json:"features,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// DiscoveryStatus summarizes the most recent discovery pass.
type DiscoveryStatus struct {
	LastRun     time.Time `json:"last_run"`
	DeviceCount int       `json:"device_count"`
	Registered  int       `json:"registered"`
	Removed     int       `json:"removed"`
}
