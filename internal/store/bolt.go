package store

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// greenlistKey is versioned so the blob layout can change without migrating in
// place.
var (
	bucketGreenlist = []byte("greenlist")
	greenlistKey    = []byte("greenlist:v1")
)

type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketGreenlist)
		return e
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// LoadGreenlist reads the blob, seeding the fixed initial allow-set on first
// use.
func (s *BoltStore) LoadGreenlist(_ context.Context) (GreenlistState, error) {
	var state GreenlistState
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketGreenlist).Get(greenlistKey)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &state)
	})
	if err != nil {
		return GreenlistState{}, err
	}
	if !found {
		state = InitialGreenlistState()
		if err := s.SaveGreenlist(context.Background(), state); err != nil {
			return GreenlistState{}, err
		}
	}
	return state, nil
}

func (s *BoltStore) SaveGreenlist(_ context.Context, state GreenlistState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketGreenlist).Put(greenlistKey, b)
	})
}
