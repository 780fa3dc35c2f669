package master

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

func manyBoundaries(n int) []meta.PartitionBoundary {
	keys := []string{"c", "f", "i", "l", "o", "r", "u", "x"}
	boundaries := make([]meta.PartitionBoundary, 0, n)
	start := ""
	for i := 0; i < n-1; i++ {
		boundaries = append(boundaries, meta.PartitionBoundary{StartKey: start, EndKey: keys[i]})
		start = keys[i]
	}
	boundaries = append(boundaries, meta.PartitionBoundary{StartKey: start, EndKey: ""})
	return boundaries
}

func TestBringUpProducesOneDescriptorPerBoundary(t *testing.T) {
	storage := &fakeStorage{}
	m := newTestMaster(newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	boundaries := manyBoundaries(5)
	descriptors, err := m.bringUpRegions(context.Background(), desc, boundaries)
	if err != nil {
		t.Fatalf("bringUpRegions failed: %v", err)
	}
	if len(descriptors) != 5 {
		t.Fatalf("expected 5 descriptors, got %d", len(descriptors))
	}

	// every boundary is covered exactly once, regardless of completion order
	seen := make(map[meta.PartitionBoundary]int)
	for _, d := range descriptors {
		seen[d.Boundary]++
		if d.Table != desc.Name {
			t.Errorf("descriptor owned by wrong table: %+v", d)
		}
	}
	for _, b := range boundaries {
		if seen[b] != 1 {
			t.Errorf("boundary %s produced %d descriptors", b, seen[b])
		}
	}
}

func TestBringUpBoundedConcurrency(t *testing.T) {
	storage := &fakeStorage{delay: 5 * time.Millisecond}
	m := newTestMaster(newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{})
	m.cfg.MaxBringupWorkers = 3

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	if _, err := m.bringUpRegions(context.Background(), desc, manyBoundaries(8)); err != nil {
		t.Fatalf("bringUpRegions failed: %v", err)
	}
	if max := atomic.LoadInt32(&storage.maxActive); max > 3 {
		t.Errorf("concurrency exceeded configured max: %d active", max)
	}
}

func TestBringUpSerialWithSingleWorker(t *testing.T) {
	storage := &fakeStorage{delay: time.Millisecond}
	m := newTestMaster(newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{})
	m.cfg.MaxBringupWorkers = 1

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	descriptors, err := m.bringUpRegions(context.Background(), desc, manyBoundaries(5))
	if err != nil {
		t.Fatalf("bringUpRegions failed: %v", err)
	}
	if len(descriptors) != 5 {
		t.Errorf("expected 5 descriptors, got %d", len(descriptors))
	}
	if max := atomic.LoadInt32(&storage.maxActive); max > 1 {
		t.Errorf("expected at most 1 active unit, saw %d", max)
	}
}

func TestBringUpClampsNonPositiveWorkerLimit(t *testing.T) {
	storage := &fakeStorage{delay: time.Millisecond}
	cfg := DefaultConfig()
	cfg.MaxBringupWorkers = 0
	m := NewMaster(cfg, newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{}, nil)

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	descriptors, err := m.bringUpRegions(context.Background(), desc, manyBoundaries(4))
	if err != nil {
		t.Fatalf("bringUpRegions failed: %v", err)
	}
	if len(descriptors) != 4 {
		t.Errorf("expected 4 descriptors, got %d", len(descriptors))
	}
	if max := atomic.LoadInt32(&storage.maxActive); max > 1 {
		t.Errorf("expected serial bring-up, saw %d active units", max)
	}
}

func TestBringUpFirstFailureCancelsQueuedUnits(t *testing.T) {
	bad := meta.PartitionBoundary{StartKey: "", EndKey: "c"}
	storage := &fakeStorage{failBoundary: &bad, failErr: errors.New("mkdir failed")}
	m := newTestMaster(newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{})
	m.cfg.MaxBringupWorkers = 1

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	_, err := m.bringUpRegions(context.Background(), desc, manyBoundaries(5))

	var initErr *PartitionInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected PartitionInitError, got %v", err)
	}
	if !errors.Is(err, storage.failErr) {
		t.Error("error should wrap the underlying cause")
	}
	// with a single worker the first unit fails before any other starts,
	// and the cancelled queue must not initialize anything further
	if calls := atomic.LoadInt32(&storage.initCalls); calls != 1 {
		t.Errorf("expected 1 initialization attempt, got %d", calls)
	}
}

func TestBringUpInterrupted(t *testing.T) {
	storage := &fakeStorage{delay: 50 * time.Millisecond}
	m := newTestMaster(newFakeStates(), &fakeCatalog{}, storage, &fakeAssigner{})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := m.bringUpRegions(ctx, desc, manyBoundaries(4))
	if !errors.Is(err, ErrBringupInterrupted) {
		t.Fatalf("expected ErrBringupInterrupted, got %v", err)
	}

	var initErr *PartitionInitError
	if errors.As(err, &initErr) {
		t.Error("interruption must not be reported as an initialization failure")
	}
}
