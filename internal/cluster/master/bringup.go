package master

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

// bringUpRegions creates and durably initializes one region per boundary,
// running at most min(len(boundaries), MaxBringupWorkers) initializations
// at a time. Results are collected in completion order, not submission
// order. Either every boundary yields a descriptor or the whole call fails;
// the first failure cancels all running and queued work. Regions that
// finished before the failure are left on disk untouched.
func (m *Master) bringUpRegions(ctx context.Context, desc *meta.TableDescriptor, boundaries []meta.PartitionBoundary) ([]meta.PartitionDescriptor, error) {
	workers := min(len(boundaries), m.cfg.MaxBringupWorkers)
	log.Printf("[master.bringUpRegions] creating %d regions of table %q with %d workers",
		len(boundaries), desc.Name, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	results := make(chan meta.PartitionDescriptor, len(boundaries))

	for _, boundary := range boundaries {
		boundary := boundary
		g.Go(func() error {
			// A failure elsewhere cancels gctx; queued units bail out
			// here instead of starting.
			if err := gctx.Err(); err != nil {
				return err
			}
			handle, err := m.storage.Initialize(gctx, desc, boundary)
			if err != nil {
				return &PartitionInitError{Table: desc.Name, Boundary: boundary, Err: err}
			}
			descriptor, err := handle.CloseDurably()
			if err != nil {
				return &PartitionInitError{Table: desc.Name, Boundary: boundary, Err: err}
			}
			results <- descriptor
			return nil
		})
	}

	// Wait accounts for every unit, success or failure, before the pool
	// is released.
	err := g.Wait()
	close(results)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrBringupInterrupted, ctx.Err())
		}
		return nil, err
	}

	descriptors := make([]meta.PartitionDescriptor, 0, len(boundaries))
	for d := range results {
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}
