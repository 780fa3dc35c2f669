package master

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

type fakeStates struct {
	mu        sync.Mutex
	waitErr   error
	claimed   map[string]bool
	claimErr  error
	enableErr error
	claims    int
	enables   int
}

func newFakeStates() *fakeStates {
	return &fakeStates{claimed: make(map[string]bool)}
}

func (f *fakeStates) WaitAvailable(ctx context.Context) error { return f.waitErr }

func (f *fakeStates) ClaimCreation(ctx context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claimed[table] {
		return false, nil
	}
	f.claimed[table] = true
	return true, nil
}

func (f *fakeStates) MarkEnabled(ctx context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enables++
	return f.enableErr
}

func (f *fakeStates) State(ctx context.Context, table string) (meta.TableState, error) {
	return meta.StateAbsent, nil
}

type fakeCatalog struct {
	mu        sync.Mutex
	exists    bool
	lookups   int
	appends   [][]meta.PartitionDescriptor
	appendErr error
}

func (f *fakeCatalog) TableExists(ctx context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.exists, nil
}

func (f *fakeCatalog) AppendPartitions(ctx context.Context, descriptors []meta.PartitionDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, descriptors)
	return nil
}

func (f *fakeCatalog) ListPartitions(ctx context.Context, table string) ([]meta.PartitionDescriptor, error) {
	return nil, nil
}

// fakeStorage counts concurrent initializations and can fail chosen
// boundaries.
type fakeStorage struct {
	mu           sync.Mutex
	tables       []string
	createErr    error
	failBoundary *meta.PartitionBoundary
	failErr      error
	delay        time.Duration
	initCalls    int32
	active       int32
	maxActive    int32
}

func (f *fakeStorage) CreateTable(desc *meta.TableDescriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tables = append(f.tables, desc.Name)
	return nil
}

func (f *fakeStorage) Initialize(ctx context.Context, desc *meta.TableDescriptor, boundary meta.PartitionBoundary) (RegionHandle, error) {
	atomic.AddInt32(&f.initCalls, 1)
	active := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		max := atomic.LoadInt32(&f.maxActive)
		if active <= max || atomic.CompareAndSwapInt32(&f.maxActive, max, active) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.failBoundary != nil && *f.failBoundary == boundary {
		return nil, f.failErr
	}
	return &fakeHandle{descriptor: meta.PartitionDescriptor{
		ID:       uuid.NewString(),
		Table:    desc.Name,
		Boundary: boundary,
		Flushed:  true,
	}}, nil
}

type fakeHandle struct {
	descriptor meta.PartitionDescriptor
	closeErr   error
}

func (h *fakeHandle) CloseDurably() (meta.PartitionDescriptor, error) {
	if h.closeErr != nil {
		return meta.PartitionDescriptor{}, h.closeErr
	}
	return h.descriptor, nil
}

type fakeAssigner struct {
	mu    sync.Mutex
	calls int
	last  []meta.PartitionDescriptor
	nodes []meta.WorkerNode
	err   error
}

func (f *fakeAssigner) Assign(ctx context.Context, descriptors []meta.PartitionDescriptor, nodes []meta.WorkerNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = descriptors
	f.nodes = nodes
	return f.err
}

func testBoundaries() []meta.PartitionBoundary {
	return []meta.PartitionBoundary{
		{StartKey: "", EndKey: "b"},
		{StartKey: "b", EndKey: "m"},
		{StartKey: "m", EndKey: ""},
	}
}

func newTestMaster(states TableStates, cat Catalog, storage RegionStorage, assigner Assigner) *Master {
	return NewMaster(DefaultConfig(), states, cat, storage, assigner, nil)
}

func TestCreateTableSuccess(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{}
	storage := &fakeStorage{}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, storage, assigner)

	m.registry.Heartbeat(meta.WorkerNode{ID: "w1", HTTPAddress: "http://w1:8000"})
	m.registry.Heartbeat(meta.WorkerNode{ID: "w2", HTTPAddress: "http://w2:8000"})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	if err := m.CreateTable(context.Background(), desc, testBoundaries()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	if len(cat.appends) != 1 {
		t.Fatalf("expected exactly one catalog publish, got %d", len(cat.appends))
	}
	if len(cat.appends[0]) != 3 {
		t.Errorf("expected 3 catalog rows, got %d", len(cat.appends[0]))
	}
	for _, d := range cat.appends[0] {
		if !d.Flushed {
			t.Errorf("unflushed region published to catalog: %+v", d)
		}
	}
	if assigner.calls != 1 {
		t.Fatalf("expected one assignment handoff, got %d", assigner.calls)
	}
	if len(assigner.last) != 3 {
		t.Errorf("expected 3 regions handed off, got %d", len(assigner.last))
	}
	if len(assigner.nodes) != 2 {
		t.Errorf("expected 2 eligible workers, got %d", len(assigner.nodes))
	}
	if states.enables != 1 {
		t.Errorf("expected table marked enabled once, got %d", states.enables)
	}
}

func TestCreateTableExcludesDeadWorkersFromHandoff(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{}
	storage := &fakeStorage{}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, storage, assigner)

	m.registry.Heartbeat(meta.WorkerNode{ID: "w1", HTTPAddress: "http://w1:8000"})
	m.registry.Heartbeat(meta.WorkerNode{ID: "w2", HTTPAddress: "http://w2:8000"})
	// w2 goes silent long enough to be marked dead but not yet expired
	m.registry.sweep(time.Now().Add(m.cfg.HeartbeatExpiry + time.Second))
	m.registry.Heartbeat(meta.WorkerNode{ID: "w1", HTTPAddress: "http://w1:8000"})
	m.registry.nodes["w2"].node.Status = meta.NodeDead

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	if err := m.CreateTable(context.Background(), desc, testBoundaries()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	if len(assigner.nodes) != 1 || assigner.nodes[0].ID != "w1" {
		t.Errorf("dead-but-not-expired worker should be excluded, got %v", assigner.nodes)
	}
}

func TestCreateTableLosesClaim(t *testing.T) {
	states := newFakeStates()
	states.claimed["users"] = true // someone else is already creating it
	cat := &fakeCatalog{}
	storage := &fakeStorage{}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, storage, assigner)

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())

	var existsErr *TableExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("expected TableExistsError, got %v", err)
	}
	if len(storage.tables) != 0 || atomic.LoadInt32(&storage.initCalls) != 0 {
		t.Error("losing the claim must not touch storage")
	}
	if len(cat.appends) != 0 {
		t.Error("losing the claim must not publish to the catalog")
	}
	if assigner.calls != 0 {
		t.Error("losing the claim must not hand off assignment")
	}
}

func TestCreateTableAlreadyInCatalog(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{exists: true}
	m := newTestMaster(states, cat, &fakeStorage{}, &fakeAssigner{})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())

	var existsErr *TableExistsError
	if !errors.As(err, &existsErr) {
		t.Fatalf("expected TableExistsError, got %v", err)
	}
	if states.claims != 0 {
		t.Error("should not attempt a claim when the catalog already lists the table")
	}
}

func TestCreateTableCoordinationUnavailable(t *testing.T) {
	states := newFakeStates()
	states.waitErr = errors.New("all endpoints down")
	m := newTestMaster(states, &fakeCatalog{}, &fakeStorage{}, &fakeAssigner{})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())
	if !errors.Is(err, ErrCoordinationUnavailable) {
		t.Fatalf("expected ErrCoordinationUnavailable, got %v", err)
	}
	if states.claims != 0 {
		t.Error("should not claim when the coordination store is unreachable")
	}
}

func TestCreateTablePartitionFailureSkipsCatalog(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{}
	bad := meta.PartitionBoundary{StartKey: "b", EndKey: "m"}
	storage := &fakeStorage{failBoundary: &bad, failErr: errors.New("disk full")}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, storage, assigner)

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())

	var initErr *PartitionInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected PartitionInitError, got %v", err)
	}
	if initErr.Boundary != bad {
		t.Errorf("error should identify the failed boundary, got %v", initErr.Boundary)
	}
	if len(cat.appends) != 0 {
		t.Error("catalog must never see a partial region set")
	}
	if assigner.calls != 0 {
		t.Error("assignment must not run after a failed bring-up")
	}
	if states.enables != 0 {
		t.Error("table must not be enabled after a failed bring-up")
	}
}

func TestCreateTableCatalogWriteFailure(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{appendErr: errors.New("etcd txn failed")}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, &fakeStorage{}, assigner)

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())

	var catErr *CatalogWriteError
	if !errors.As(err, &catErr) {
		t.Fatalf("expected CatalogWriteError, got %v", err)
	}
	if assigner.calls != 0 {
		t.Error("assignment must not run after a failed catalog publish")
	}
	if states.enables != 0 {
		t.Error("table must not be enabled after a failed catalog publish")
	}
}

func TestCreateTableEnableFailure(t *testing.T) {
	states := newFakeStates()
	states.enableErr = errors.New("etcd txn failed")
	cat := &fakeCatalog{}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, &fakeStorage{}, assigner)
	m.registry.Heartbeat(meta.WorkerNode{ID: "w1"})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	err := m.CreateTable(context.Background(), desc, testBoundaries())

	var enableErr *EnableError
	if !errors.As(err, &enableErr) {
		t.Fatalf("expected EnableError, got %v", err)
	}
	// the table is functionally created; only the final transition failed
	if len(cat.appends) != 1 || assigner.calls != 1 {
		t.Error("catalog publish and handoff should have happened before the enable failure")
	}
}

func TestCreateTableRejectsInvalidBoundaries(t *testing.T) {
	states := newFakeStates()
	m := newTestMaster(states, &fakeCatalog{}, &fakeStorage{}, &fakeAssigner{})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	gap := []meta.PartitionBoundary{
		{StartKey: "", EndKey: "b"},
		{StartKey: "c", EndKey: ""},
	}
	if err := m.CreateTable(context.Background(), desc, gap); err == nil {
		t.Fatal("expected validation error")
	}
	if states.claims != 0 {
		t.Error("invalid boundaries must fail before any coordination call")
	}
}

func TestConcurrentCreateSameTable(t *testing.T) {
	states := newFakeStates()
	cat := &fakeCatalog{}
	storage := &fakeStorage{}
	assigner := &fakeAssigner{}
	m := newTestMaster(states, cat, storage, assigner)
	m.registry.Heartbeat(meta.WorkerNode{ID: "w1"})

	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.CreateTable(context.Background(), desc, testBoundaries())
		}()
	}
	wg.Wait()
	close(results)

	var successes, exists int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var existsErr *TableExistsError
		if errors.As(err, &existsErr) {
			exists++
		} else {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || exists != 1 {
		t.Fatalf("expected one winner and one TableExistsError, got %d/%d", successes, exists)
	}
	if len(storage.tables) != 1 {
		t.Errorf("only the winner may persist the descriptor, got %d", len(storage.tables))
	}
	if len(cat.appends) != 1 {
		t.Errorf("only the winner may publish to the catalog, got %d", len(cat.appends))
	}
}
