package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Accessory operations
	SaveAccessory(acc *Accessory) error
	GetAccessory(deviceID string) (*Accessory, error)
	DeleteAccessory(deviceID string) error
	ListAccessories() ([]*Accessory, error)

	// UpdateAccessory atomically reads, modifies, and saves an accessory
	// in a single transaction. Returns ErrNotFound if it does not exist.
	UpdateAccessory(deviceID string, fn func(acc *Accessory) error) error

	// Discovery status
	SaveDiscoveryStatus(status *DiscoveryStatus) error
	GetDiscoveryStatus() (*DiscoveryStatus, error)

	// Close the store
	Close() error
}
