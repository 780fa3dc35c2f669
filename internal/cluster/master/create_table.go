package master

import (
	"context"
	"fmt"
	"log"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

// CreateTable runs the whole table-creation workflow:
//
//	validate -> claim ENABLING -> persist descriptor -> bring up regions
//	-> publish catalog -> hand off assignment -> mark ENABLED
//
// At most one concurrent call per table name can get past the claim; the
// loser fails with TableExistsError before any side effect. Any failure
// after the claim aborts the call and leaves the table in ENABLING with
// whatever regions were already built still on disk. Nothing is rolled
// back here; reconciling such a table is an operator concern.
func (m *Master) CreateTable(ctx context.Context, desc *meta.TableDescriptor, boundaries []meta.PartitionBoundary) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if err := meta.ValidateBoundaries(boundaries); err != nil {
		return err
	}

	// Creation is multi-step; without the coordination store there is no
	// way to guard it, so bail out before doing anything.
	if err := m.states.WaitAvailable(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCoordinationUnavailable, err)
	}

	exists, err := m.catalog.TableExists(ctx, desc.Name)
	if err != nil {
		return fmt.Errorf("check table %q in catalog: %w", desc.Name, err)
	}
	if exists {
		return &TableExistsError{Table: desc.Name}
	}

	// The catalog check above races with other create requests for the
	// same name: creation is asynchronous and catalog rows appear late.
	// The atomic ENABLING claim is what actually decides the winner.
	claimed, err := m.states.ClaimCreation(ctx, desc.Name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCoordinationUnavailable, err)
	}
	if !claimed {
		return &TableExistsError{Table: desc.Name}
	}
	log.Printf("[master.CreateTable] creating table %q with %d regions", desc.Name, len(boundaries))

	if err := m.storage.CreateTable(desc); err != nil {
		return m.failEnabling(desc.Name, err)
	}

	descriptors, err := m.bringUpRegions(ctx, desc, boundaries)
	if err != nil {
		return m.failEnabling(desc.Name, err)
	}

	if len(descriptors) > 0 {
		if err := m.catalog.AppendPartitions(ctx, descriptors); err != nil {
			return m.failEnabling(desc.Name, &CatalogWriteError{Table: desc.Name, Err: err})
		}
	}

	if err := m.handoffAssignment(ctx, desc.Name, descriptors); err != nil {
		return m.failEnabling(desc.Name, err)
	}

	if err := m.states.MarkEnabled(ctx, desc.Name); err != nil {
		return m.failEnabling(desc.Name, &EnableError{Table: desc.Name, Err: err})
	}

	log.Printf("[master.CreateTable] table %q enabled with %d regions", desc.Name, len(descriptors))
	return nil
}

// failEnabling logs the stuck-ENABLING condition and passes the error
// through. The coordination state is deliberately not reset.
func (m *Master) failEnabling(table string, err error) error {
	log.Printf("[master.CreateTable] creation of table %q failed, table left in %s state: %v",
		table, meta.StateEnabling, err)
	return err
}
