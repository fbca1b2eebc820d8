// Package bolt provides a BBolt-backed localstore.Store.
package bolt

import (
	"fmt"

	"github.com/stepauth/stepauth-go/localstore"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("localstore")

// Store implements localstore.Store backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ localstore.Store = (*Store)(nil)

// New returns a Store backed by the given BBolt database.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating localstore bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromFile opens a BBolt database at the given path and returns a new
// Store.
func NewFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db)
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data != nil {
			value = string(data)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("localstore get %s: %w", key, err)
	}
	return value, found, nil
}

// Set writes the value for key.
func (s *Store) Set(key, value string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("localstore set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("localstore delete %s: %w", key, err)
	}
	return nil
}
