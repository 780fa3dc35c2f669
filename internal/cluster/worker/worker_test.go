package worker

import (
	"context"
	"testing"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
	"github.com/parishadmk/tablekeeper/internal/cluster/region"
)

func buildRegion(t *testing.T, store *region.Store, boundary meta.PartitionBoundary) meta.PartitionDescriptor {
	t.Helper()
	desc := &meta.TableDescriptor{Name: "users", Families: []meta.ColumnFamily{{Name: "info"}}}
	if err := store.CreateTable(desc); err != nil {
		t.Fatal(err)
	}
	r, err := store.Initialize(context.Background(), desc, boundary)
	if err != nil {
		t.Fatal(err)
	}
	d, err := r.CloseDurably()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestWorkerOpensAssignedRegion(t *testing.T) {
	store := region.NewStore(t.TempDir())
	d := buildRegion(t, store, meta.PartitionBoundary{StartKey: "b", EndKey: "m"})

	w := NewWorker("w1", "http://master:8080", "http://w1:8000", store, nil)
	if err := w.openRegion(d); err != nil {
		t.Fatalf("openRegion failed: %v", err)
	}

	if err := w.set("users", "info", "bob", "engineer"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := w.get("users", "info", "bob")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "engineer" {
		t.Errorf("expected 'engineer', got %q", value)
	}

	// keys outside every hosted region are rejected
	if err := w.set("users", "info", "zed", "x"); err == nil {
		t.Error("expected error for key outside hosted regions")
	}
}

func TestWorkerRejectsDuplicateOpen(t *testing.T) {
	store := region.NewStore(t.TempDir())
	d := buildRegion(t, store, meta.PartitionBoundary{})

	w := NewWorker("w1", "http://master:8080", "http://w1:8000", store, nil)
	if err := w.openRegion(d); err != nil {
		t.Fatal(err)
	}
	if err := w.openRegion(d); err == nil {
		t.Error("expected error when opening the same region twice")
	}
}

func TestWorkerRejectsUnflushedRegion(t *testing.T) {
	store := region.NewStore(t.TempDir())
	w := NewWorker("w1", "http://master:8080", "http://w1:8000", store, nil)

	d := meta.PartitionDescriptor{ID: "r1", Table: "users", Path: "/nowhere"}
	if err := w.openRegion(d); err == nil {
		t.Error("expected error when the region was never durably flushed")
	}
}
