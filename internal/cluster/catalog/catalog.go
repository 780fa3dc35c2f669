// Package catalog is the authoritative record of which regions make up
// each table. Rows live in etcd under /catalog/<table>/<region-id>.
package catalog

import (
	"context"
	"fmt"
	"log"

	"github.com/parishadmk/tablekeeper/internal/cluster/etcd"
	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

const catalogPrefix = "/catalog/"

type Catalog struct {
	store *etcd.Store
}

func New(store *etcd.Store) *Catalog {
	return &Catalog{store: store}
}

func tableKey(table string) string {
	return catalogPrefix + table + "/"
}

// TableExists reports whether any catalog row is recorded for table.
func (c *Catalog) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := c.store.CountPrefix(ctx, tableKey(table))
	if err != nil {
		return false, fmt.Errorf("catalog lookup for table %q: %w", table, err)
	}
	return n > 0, nil
}

// AppendPartitions records all descriptors in one batch. Callers must pass
// a complete set: a table is never published region by region. An empty set
// is a no-op.
func (c *Catalog) AppendPartitions(ctx context.Context, descriptors []meta.PartitionDescriptor) error {
	if len(descriptors) == 0 {
		return nil
	}
	kvs := make(map[string]interface{}, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		kvs[tableKey(d.Table)+d.ID] = &d
	}
	if err := c.store.PutJSONBatch(ctx, kvs); err != nil {
		return fmt.Errorf("append %d catalog rows: %w", len(descriptors), err)
	}
	log.Printf("[catalog.AppendPartitions] recorded %d regions for table %q", len(descriptors), descriptors[0].Table)
	return nil
}

// ListPartitions returns every cataloged region of table.
func (c *Catalog) ListPartitions(ctx context.Context, table string) ([]meta.PartitionDescriptor, error) {
	raw, err := c.store.ListJSON(ctx, tableKey(table), func() interface{} { return &meta.PartitionDescriptor{} })
	if err != nil {
		return nil, fmt.Errorf("list catalog rows for table %q: %w", table, err)
	}
	descriptors := make([]meta.PartitionDescriptor, 0, len(raw))
	for _, v := range raw {
		descriptors = append(descriptors, *v.(*meta.PartitionDescriptor))
	}
	return descriptors, nil
}
