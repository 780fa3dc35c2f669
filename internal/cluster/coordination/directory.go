package coordination

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/parishadmk/tablekeeper/internal/cluster/etcd"
	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

const nodesPrefix = "/nodes/"

// Directory is the worker-node registry in the coordination store. Workers
// register under a lease-backed key, so a crashed worker's entry expires
// on its own; anything listed here was alive within the registration TTL.
type Directory struct {
	store *etcd.Store
}

func NewDirectory(store *etcd.Store) *Directory {
	return &Directory{store: store}
}

// Register writes node under the directory prefix and keeps its lease
// alive until ctx is done. A node id whose lease has not expired yet is
// rejected.
func (d *Directory) Register(ctx context.Context, node meta.WorkerNode, ttl int64) error {
	var existing meta.WorkerNode
	err := d.store.GetJSON(ctx, nodesPrefix+node.ID, &existing)
	if err == nil {
		return fmt.Errorf("worker id %q is already registered at %s", node.ID, existing.HTTPAddress)
	}
	if !errors.Is(err, etcd.ErrKeyNotFound) {
		return err
	}

	leaseID, err := d.store.RegisterWithLease(ctx, nodesPrefix+node.ID, node, ttl)
	if err != nil {
		return err
	}
	go func() {
		if err := d.store.KeepAliveLoop(ctx, leaseID); err != nil && ctx.Err() == nil {
			log.Printf("[coordination.Directory] lease keepalive for worker %s stopped: %v", node.ID, err)
		}
	}()
	log.Printf("[coordination.Directory] worker %s registered at %s", node.ID, node.HTTPAddress)
	return nil
}

// ListNodes returns every currently registered worker.
func (d *Directory) ListNodes(ctx context.Context) ([]meta.WorkerNode, error) {
	raw, err := d.store.ListJSON(ctx, nodesPrefix, func() interface{} { return &meta.WorkerNode{} })
	if err != nil {
		return nil, err
	}
	nodes := make([]meta.WorkerNode, 0, len(raw))
	for _, v := range raw {
		nodes = append(nodes, *v.(*meta.WorkerNode))
	}
	return nodes, nil
}
