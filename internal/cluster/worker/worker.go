// Package worker runs a region-hosting node. Workers register themselves
// in etcd with a lease, heartbeat to the master, and serve reads/writes on
// the regions the master assigns to them. Region files live on the shared
// storage root, so an assigned region is opened in place.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parishadmk/tablekeeper/internal/cluster/coordination"
	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
	"github.com/parishadmk/tablekeeper/internal/cluster/region"
)

const (
	HEARTBEAT_TIMER = 2 * time.Second
	REGISTER_TTL    = 10 // seconds
)

type Worker struct {
	Id         string
	masterAddr string
	httpAddr   string

	store     *region.Store
	directory *coordination.Directory
	regions   map[string]*region.Region // region id -> open region

	regionsMapMutex sync.RWMutex
	ginEngine       *gin.Engine
	httpClient      *http.Client
}

func NewWorker(id, masterAddr, httpAddr string, store *region.Store, directory *coordination.Directory) *Worker {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	w := &Worker{
		Id:         id,
		masterAddr: masterAddr,
		httpAddr:   httpAddr,
		store:      store,
		directory:  directory,
		regions:    make(map[string]*region.Region),
		ginEngine:  router,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:       100,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
	w.setupRoutes()
	return w
}

func (w *Worker) node() meta.WorkerNode {
	return meta.WorkerNode{
		ID:          w.Id,
		HTTPAddress: w.httpAddr,
		Status:      meta.NodeAlive,
	}
}

// Start registers the worker, starts the heartbeat loop and serves the
// HTTP API on listenAddr.
func (w *Worker) Start(ctx context.Context, listenAddr string) error {
	if err := w.register(ctx); err != nil {
		return fmt.Errorf("worker %s failed to register: %w", w.Id, err)
	}
	go w.startHeartbeat(ctx, HEARTBEAT_TIMER)

	return w.ginEngine.Run(listenAddr)
}

func (w *Worker) register(ctx context.Context) error {
	return w.directory.Register(ctx, w.node(), REGISTER_TTL)
}

func (w *Worker) startHeartbeat(ctx context.Context, interval time.Duration) {
	for {
		if err := w.sendHeartbeat(ctx); err != nil {
			log.Printf("[worker.startHeartbeat] failed to send heartbeat: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) error {
	body, err := json.Marshal(w.node())
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.masterAddr+"/node-heartbeat", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("master returned non-OK status: %v", resp.Status)
	}
	return nil
}

// openRegion opens an assigned region file from the shared root and starts
// serving it. Opening the same region twice is a conflict.
func (w *Worker) openRegion(d meta.PartitionDescriptor) error {
	if !d.Flushed {
		return fmt.Errorf("region %s of table %q was never durably flushed", d.Boundary, d.Table)
	}

	w.regionsMapMutex.Lock()
	defer w.regionsMapMutex.Unlock()

	if _, ok := w.regions[d.ID]; ok {
		return fmt.Errorf("region %s is already open on worker %s", d.ID, w.Id)
	}
	r, err := w.store.Open(d.Path)
	if err != nil {
		return err
	}
	w.regions[d.ID] = r
	log.Printf("[worker.openRegion] worker %s now hosts region %s of table %q", w.Id, d.Boundary, d.Table)
	return nil
}

// regionFor finds the hosted region of table whose boundary contains key.
func (w *Worker) regionFor(table, key string) (*region.Region, error) {
	w.regionsMapMutex.RLock()
	defer w.regionsMapMutex.RUnlock()

	for _, r := range w.regions {
		d := r.Descriptor()
		if d.Table == table && d.Boundary.Contains(key) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("worker %s hosts no region of table %q containing key %q", w.Id, table, key)
}

func (w *Worker) set(table, family, key, value string) error {
	r, err := w.regionFor(table, key)
	if err != nil {
		return err
	}
	return r.Put(family, key, value)
}

func (w *Worker) get(table, family, key string) (string, error) {
	r, err := w.regionFor(table, key)
	if err != nil {
		return "", err
	}
	return r.Get(family, key)
}
