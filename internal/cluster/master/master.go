// Package master runs the cluster's coordinating node. Its central job is
// the table-creation workflow: claim the table in the coordination store,
// build every region durably, publish the region set to the catalog and
// hand it to assignment, then mark the table enabled.
package master

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

// TableStates is the coordination-store contract the master depends on.
type TableStates interface {
	WaitAvailable(ctx context.Context) error
	ClaimCreation(ctx context.Context, table string) (bool, error)
	MarkEnabled(ctx context.Context, table string) error
	State(ctx context.Context, table string) (meta.TableState, error)
}

// Catalog records which regions make up each table.
type Catalog interface {
	TableExists(ctx context.Context, table string) (bool, error)
	AppendPartitions(ctx context.Context, descriptors []meta.PartitionDescriptor) error
	ListPartitions(ctx context.Context, table string) ([]meta.PartitionDescriptor, error)
}

// RegionStorage creates table roots and region files.
type RegionStorage interface {
	CreateTable(desc *meta.TableDescriptor) error
	Initialize(ctx context.Context, desc *meta.TableDescriptor, boundary meta.PartitionBoundary) (RegionHandle, error)
}

// RegionHandle is a freshly initialized, still-open region.
type RegionHandle interface {
	CloseDurably() (meta.PartitionDescriptor, error)
}

// Assigner places a complete region set onto worker nodes.
type Assigner interface {
	Assign(ctx context.Context, descriptors []meta.PartitionDescriptor, nodes []meta.WorkerNode) error
}

// NodeDirectory lists the workers registered in the coordination store.
type NodeDirectory interface {
	ListNodes(ctx context.Context) ([]meta.WorkerNode, error)
}

type Config struct {
	// CoordinationTimeout bounds the pre-flight availability check on the
	// coordination store.
	CoordinationTimeout time.Duration
	// MaxBringupWorkers caps how many regions are initialized concurrently.
	MaxBringupWorkers int
	// HeartbeatExpiry is how long a worker may stay silent before it is
	// considered dead.
	HeartbeatExpiry time.Duration
	// DeadNodeExpiry is how long a dead worker is remembered before it is
	// dropped from the registry.
	DeadNodeExpiry time.Duration
}

func DefaultConfig() Config {
	return Config{
		CoordinationTimeout: 10 * time.Second,
		MaxBringupWorkers:   10,
		HeartbeatExpiry:     5 * time.Second,
		DeadNodeExpiry:      30 * time.Second,
	}
}

type Master struct {
	cfg       Config
	states    TableStates
	catalog   Catalog
	storage   RegionStorage
	assigner  Assigner
	directory NodeDirectory
	registry  *Registry
	ginEngine *gin.Engine
}

func NewMaster(cfg Config, states TableStates, catalog Catalog, storage RegionStorage, assigner Assigner, directory NodeDirectory) *Master {
	// a non-positive limit would stall the bring-up pool
	if cfg.MaxBringupWorkers < 1 {
		cfg.MaxBringupWorkers = 1
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	m := &Master{
		cfg:       cfg,
		states:    states,
		catalog:   catalog,
		storage:   storage,
		assigner:  assigner,
		directory: directory,
		registry:  NewRegistry(cfg.HeartbeatExpiry, cfg.DeadNodeExpiry),
		ginEngine: router,
	}
	m.setupRoutes()
	return m
}

// Start seeds the registry from the node directory, runs the registry
// sweeper and serves the HTTP API on addr until the server stops.
func (m *Master) Start(ctx context.Context, addr string) error {
	if m.directory != nil {
		m.seedRegistry(ctx)
	}
	go m.registry.Run(ctx)
	return m.ginEngine.Run(addr)
}

// seedRegistry primes the registry with the workers registered in the
// coordination store, so a freshly started master knows the live worker
// set before the first heartbeat arrives. Directory entries are
// lease-backed, so every listed worker was alive within its registration
// TTL.
func (m *Master) seedRegistry(ctx context.Context) {
	nodes, err := m.directory.ListNodes(ctx)
	if err != nil {
		log.Printf("[master.seedRegistry] listing registered workers failed: %v", err)
		return
	}
	for _, node := range nodes {
		m.registry.Heartbeat(node)
	}
	if len(nodes) > 0 {
		log.Printf("[master.seedRegistry] seeded %d workers from the node directory", len(nodes))
	}
}
