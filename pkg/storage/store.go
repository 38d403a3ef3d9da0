// Package storage provides the shared embedded key-value store used by
// the change tracker, the scheduled-job manager, and the state store.
// It wraps go.etcd.io/bbolt the way the teacher's pkg/storage wraps it
// for cluster entities: one bucket per logical collection, JSON-encoded
// values, transactional reads and writes.
package storage

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for the domain collections this repository persists.
// Declared here so every consumer agrees on the same physical layout.
var (
	BucketTrackedSpecs  = []byte("tracked_specs")
	BucketChangeHistory = []byte("change_history")
	BucketExecutions    = []byte("executions")
	BucketStateStore    = []byte("state_store")
)

var allBuckets = [][]byte{
	BucketTrackedSpecs,
	BucketChangeHistory,
	BucketExecutions,
	BucketStateStore,
}

// DB wraps a bbolt database with the buckets this repository needs
// already created.
type DB struct {
	bolt *bolt.DB
}

// Open opens (creating if absent) a bbolt database at path and ensures
// every known bucket exists.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{bolt: db}, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// Put JSON-encodes value and stores it under key in bucket.
func (d *DB) Put(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling value for key %s: %w", key, err)
	}
	return d.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// Get JSON-decodes the value stored under key in bucket into dest. It
// returns (false, nil) if the key is absent.
func (d *DB) Get(bucket []byte, key string, dest interface{}) (bool, error) {
	var found bool
	err := d.bolt.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, dest)
	})
	return found, err
}

// Delete removes key from bucket. Deleting an absent key is a no-op.
func (d *DB) Delete(bucket []byte, key string) error {
	return d.bolt.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// ForEach invokes fn for every key/value pair in bucket, stopping and
// returning fn's error if it returns non-nil. fn receives the raw JSON
// bytes; callers unmarshal into their own type.
func (d *DB) ForEach(bucket []byte, fn func(key string, value []byte) error) error {
	return d.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// AppendOnly stores value under an opaque, monotonically increasing key
// within bucket using bbolt's NextSequence, matching the append-only
// history semantics change_history and executions both need.
func (d *DB) AppendOnly(bucket []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling appended value: %w", err)
	}
	return d.bolt.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%020d", seq)
		return b.Put([]byte(key), data)
	})
}

// Update runs fn inside a single read-write bbolt transaction, for
// callers that need to make several related mutations atomically (e.g.
// batch_update_tracker).
func (d *DB) Update(fn func(tx *bolt.Tx) error) error {
	return d.bolt.Update(fn)
}
