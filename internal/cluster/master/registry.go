package master

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

type workerRecord struct {
	node     meta.WorkerNode
	lastSeen time.Time
}

// Registry tracks worker-node liveness from heartbeats. A silent worker is
// first marked dead, then forgotten once DeadNodeExpiry has passed. The
// window in between is the dead-but-not-expired state: such nodes are still
// listed but must not receive new regions.
type Registry struct {
	mu              sync.RWMutex
	nodes           map[string]*workerRecord
	heartbeatExpiry time.Duration
	deadExpiry      time.Duration
}

func NewRegistry(heartbeatExpiry, deadExpiry time.Duration) *Registry {
	return &Registry{
		nodes:           make(map[string]*workerRecord),
		heartbeatExpiry: heartbeatExpiry,
		deadExpiry:      deadExpiry,
	}
}

// Heartbeat records that node is alive right now.
func (r *Registry) Heartbeat(node meta.WorkerNode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.nodes[node.ID]
	if !exists {
		log.Printf("[master.Registry] worker %s joined at %s", node.ID, node.HTTPAddress)
		rec = &workerRecord{}
		r.nodes[node.ID] = rec
	} else if rec.node.Status == meta.NodeDead {
		log.Printf("[master.Registry] worker %s revived", node.ID)
	}
	node.Status = meta.NodeAlive
	rec.node = node
	rec.lastSeen = time.Now()
}

// OnlineNodes returns every known worker, dead-but-not-expired included.
func (r *Registry) OnlineNodes() []meta.WorkerNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]meta.WorkerNode, 0, len(r.nodes))
	for _, rec := range r.nodes {
		nodes = append(nodes, rec.node)
	}
	return nodes
}

// FilterDeadNotExpired drops workers that are marked dead but still
// remembered, leaving the set eligible for new region assignments.
func (r *Registry) FilterDeadNotExpired(nodes []meta.WorkerNode) []meta.WorkerNode {
	eligible := make([]meta.WorkerNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Status != meta.NodeDead {
			eligible = append(eligible, n)
		}
	}
	return eligible
}

// Run sweeps liveness until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatExpiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.nodes {
		silent := now.Sub(rec.lastSeen)
		switch {
		case rec.node.Status == meta.NodeDead && silent > r.deadExpiry:
			log.Printf("[master.Registry] worker %s expired, dropping it", id)
			delete(r.nodes, id)
		case rec.node.Status != meta.NodeDead && silent > r.heartbeatExpiry:
			log.Printf("[master.Registry] worker %s is not responding, marking dead", id)
			rec.node.Status = meta.NodeDead
		}
	}
}
