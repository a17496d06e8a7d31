package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccessories = []byte("accessories")
	bucketStatus      = []byte("status")
	keyDiscovery      = []byte("discovery")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAccessories, bucketStatus} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveAccessory(acc *Accessory) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAccessories)
		}
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		return b.Put([]byte(acc.DeviceID), data)
	})
}

func (s *BoltStore) GetAccessory(deviceID string) (*Accessory, error) {
	var acc Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAccessories)
		}
		data := b.Get([]byte(deviceID))
		if data == nil {
			return fmt.Errorf("accessory %s: %w", deviceID, ErrNotFound)
		}
		return json.Unmarshal(data, &acc)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *BoltStore) DeleteAccessory(deviceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAccessories)
		}
		return b.Delete([]byte(deviceID))
	})
}

func (s *BoltStore) ListAccessories() ([]*Accessory, error) {
	var accs []*Accessory
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return nil // no bucket = no accessories
		}
		accs = make([]*Accessory, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var acc Accessory
			if err := json.Unmarshal(v, &acc); err != nil {
				return err
			}
			accs = append(accs, &acc)
			return nil
		})
	})
	return accs, err
}

func (s *BoltStore) UpdateAccessory(deviceID string, fn func(acc *Accessory) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccessories)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketAccessories)
		}
		data := b.Get([]byte(deviceID))
		if data == nil {
			return fmt.Errorf("accessory %s: %w", deviceID, ErrNotFound)
		}
		var acc Accessory
		if err := json.Unmarshal(data, &acc); err != nil {
			return err
		}
		if err := fn(&acc); err != nil {
			return err
		}
		updated, err := json.Marshal(&acc)
		if err != nil {
			return err
		}
		return b.Put([]byte(deviceID), updated)
	})
}

func (s *BoltStore) SaveDiscoveryStatus(status *DiscoveryStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatus)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketStatus)
		}
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return b.Put(keyDiscovery, data)
	})
}

func (s *BoltStore) GetDiscoveryStatus() (*DiscoveryStatus, error) {
	var status DiscoveryStatus
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatus)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketStatus)
		}
		data := b.Get(keyDiscovery)
		if data == nil {
			return fmt.Errorf("discovery status: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
