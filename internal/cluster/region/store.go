// Package region implements durable on-disk storage for table regions.
// Each region is a single bbolt file under <root>/<table>/; a region is
// considered created only after its file has been synced and closed.
package region

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

const descriptorFile = "descriptor.json"

// Store creates and opens region files under a shared storage root.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) TableDir(table string) string {
	return filepath.Join(s.Root, table)
}

// CreateTable makes the table's root directory and durably writes its
// descriptor there. Must run before any region of the table is created.
func (s *Store) CreateTable(desc *meta.TableDescriptor) error {
	dir := s.TableDir(desc.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create table dir %s: %w", dir, err)
	}

	data, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, descriptorFile)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("write table descriptor %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write table descriptor %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync table descriptor %s: %w", path, err)
	}
	return f.Close()
}

// LoadDescriptor reads the persisted descriptor of table.
func (s *Store) LoadDescriptor(table string) (*meta.TableDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(s.TableDir(table), descriptorFile))
	if err != nil {
		return nil, err
	}
	var desc meta.TableDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("decode descriptor of table %q: %w", table, err)
	}
	return &desc, nil
}

// Initialize creates the on-disk structure of one region: a bbolt file
// holding a metadata bucket plus one bucket per column family. The region
// must then be closed with CloseDurably before it is announced anywhere.
func (s *Store) Initialize(ctx context.Context, desc *meta.TableDescriptor, boundary meta.PartitionBoundary) (*Region, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.TableDir(desc.Name), id+".region")
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("create region file %s: %w", path, err)
	}

	descriptor := meta.PartitionDescriptor{
		ID:       id,
		Table:    desc.Name,
		Boundary: boundary,
		Path:     path,
	}
	err = db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucket([]byte(metaBucket))
		if err != nil {
			return err
		}
		data, err := json.Marshal(&descriptor)
		if err != nil {
			return err
		}
		if err := mb.Put([]byte(metaDescriptorKey), data); err != nil {
			return err
		}
		for _, f := range desc.Families {
			if _, err := tx.CreateBucket([]byte(familyBucketPrefix + f.Name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize region %s of table %q: %w", boundary, desc.Name, err)
	}

	return &Region{db: db, descriptor: descriptor}, nil
}

// Open opens an existing, durably created region file for serving.
func (s *Store) Open(path string) (*Region, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open region file %s: %w", path, err)
	}
	var descriptor meta.PartitionDescriptor
	err = db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket([]byte(metaBucket))
		if mb == nil {
			return fmt.Errorf("region file %s has no metadata bucket", path)
		}
		data := mb.Get([]byte(metaDescriptorKey))
		if data == nil {
			return fmt.Errorf("region file %s has no descriptor", path)
		}
		return json.Unmarshal(data, &descriptor)
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Region{db: db, descriptor: descriptor}, nil
}
