// Package coordination keeps per-table lifecycle flags in etcd and gives
// the master an atomic claim on table creation. The flag is the only
// cluster-wide guard against two masters (or two requests on one master)
// creating the same table concurrently.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/parishadmk/tablekeeper/internal/cluster/etcd"
	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

const statePrefix = "/tables/state/"

// Guard transitions table lifecycle state through the coordination store.
// A table with no state key is ABSENT.
type Guard struct {
	store   *etcd.Store
	timeout time.Duration
}

func NewGuard(store *etcd.Store, availabilityTimeout time.Duration) *Guard {
	return &Guard{store: store, timeout: availabilityTimeout}
}

// WaitAvailable fails if the coordination store does not answer within the
// configured timeout.
func (g *Guard) WaitAvailable(ctx context.Context) error {
	return g.store.WaitAvailable(ctx, g.timeout)
}

// ClaimCreation atomically moves table from ABSENT to ENABLING. It returns
// false when the state key already exists, meaning another request claimed
// the table first (or the table is already enabled).
func (g *Guard) ClaimCreation(ctx context.Context, table string) (bool, error) {
	ok, err := g.store.CreateString(ctx, statePrefix+table, string(meta.StateEnabling))
	if err != nil {
		return false, fmt.Errorf("claim creation of table %q: %w", table, err)
	}
	if !ok {
		log.Printf("[coordination.ClaimCreation] table %q is already enabling or enabled", table)
	}
	return ok, nil
}

// MarkEnabled moves table from ENABLING to ENABLED. Any other current state
// is an error: only the request that won ClaimCreation may call this.
func (g *Guard) MarkEnabled(ctx context.Context, table string) error {
	ok, err := g.store.CompareAndSwapString(ctx, statePrefix+table,
		string(meta.StateEnabling), string(meta.StateEnabled))
	if err != nil {
		return fmt.Errorf("mark table %q enabled: %w", table, err)
	}
	if !ok {
		return fmt.Errorf("mark table %q enabled: state is not %s", table, meta.StateEnabling)
	}
	return nil
}

// State reads the current lifecycle state of table.
func (g *Guard) State(ctx context.Context, table string) (meta.TableState, error) {
	v, err := g.store.GetString(ctx, statePrefix+table)
	if errors.Is(err, etcd.ErrKeyNotFound) {
		return meta.StateAbsent, nil
	}
	if err != nil {
		return meta.StateAbsent, err
	}
	return meta.TableState(v), nil
}
