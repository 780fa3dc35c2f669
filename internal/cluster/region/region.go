package region

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

const (
	metaBucket         = "__meta"
	metaDescriptorKey  = "descriptor"
	familyBucketPrefix = "cf:"
)

// Region is an open region file.
type Region struct {
	db         *bolt.DB
	descriptor meta.PartitionDescriptor
}

func (r *Region) Descriptor() meta.PartitionDescriptor {
	return r.descriptor
}

// CloseDurably forces the region file to durable media and closes it,
// returning the descriptor with the flushed flag set. The region cannot
// be used afterwards; workers reopen it with Store.Open.
func (r *Region) CloseDurably() (meta.PartitionDescriptor, error) {
	if err := r.db.Sync(); err != nil {
		r.db.Close()
		return meta.PartitionDescriptor{}, fmt.Errorf("sync region %s: %w", r.descriptor.Boundary, err)
	}
	if err := r.db.Close(); err != nil {
		return meta.PartitionDescriptor{}, fmt.Errorf("close region %s: %w", r.descriptor.Boundary, err)
	}
	d := r.descriptor
	d.Flushed = true
	return d, nil
}

func (r *Region) Close() error {
	return r.db.Close()
}

// Put stores value under key in the given column family. The key must fall
// inside the region's boundary.
func (r *Region) Put(family, key, value string) error {
	if !r.descriptor.Boundary.Contains(key) {
		return &KeyOutOfRangeError{Key: key, Boundary: r.descriptor.Boundary}
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(familyBucketPrefix + family))
		if b == nil {
			return &FamilyNotFoundError{Family: family, Table: r.descriptor.Table}
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Get reads the value of key in the given column family.
func (r *Region) Get(family, key string) (string, error) {
	if !r.descriptor.Boundary.Contains(key) {
		return "", &KeyOutOfRangeError{Key: key, Boundary: r.descriptor.Boundary}
	}
	var value []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(familyBucketPrefix + family))
		if b == nil {
			return &FamilyNotFoundError{Family: family, Table: r.descriptor.Table}
		}
		v := b.Get([]byte(key))
		if v == nil {
			return &KeyNotFoundError{Key: key}
		}
		value = append(value, v...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

type KeyOutOfRangeError struct {
	Key      string
	Boundary meta.PartitionBoundary
}

func (e *KeyOutOfRangeError) Error() string {
	return "KeyOutOfRangeError: key \"" + e.Key + "\" is outside region boundary " + e.Boundary.String()
}

type FamilyNotFoundError struct {
	Family string
	Table  string
}

func (e *FamilyNotFoundError) Error() string {
	return "FamilyNotFoundError: table \"" + e.Table + "\" has no column family \"" + e.Family + "\""
}

type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return "KeyNotFoundError: the key \"" + e.Key + "\" was not found"
}
