package master

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

// handoffAssignment computes the eligible worker set and submits the
// complete region set for placement. Dead-but-not-expired workers are
// excluded so no fresh region lands on a node that already stopped
// answering.
func (m *Master) handoffAssignment(ctx context.Context, table string, descriptors []meta.PartitionDescriptor) error {
	nodes := m.registry.OnlineNodes()
	eligible := m.registry.FilterDeadNotExpired(nodes)
	if err := m.assigner.Assign(ctx, descriptors, eligible); err != nil {
		return &AssignmentError{Table: table, Nodes: len(eligible), Err: err}
	}
	log.Printf("[master.handoffAssignment] assigned %d regions of table %q across %d workers",
		len(descriptors), table, len(eligible))
	return nil
}

// HTTPAssigner places regions on workers round-robin over their HTTP API.
type HTTPAssigner struct {
	httpClient *http.Client
}

func NewHTTPAssigner() *HTTPAssigner {
	return &HTTPAssigner{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:       100,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: false,
			},
		},
	}
}

func (a *HTTPAssigner) Assign(ctx context.Context, descriptors []meta.PartitionDescriptor, nodes []meta.WorkerNode) error {
	if len(descriptors) == 0 {
		return nil
	}
	if len(nodes) == 0 {
		return errors.New("no eligible worker nodes")
	}
	for i, d := range descriptors {
		node := nodes[i%len(nodes)]
		if err := a.openRegion(ctx, node, d); err != nil {
			return fmt.Errorf("open region %s on worker %s: %w", d.Boundary, node.ID, err)
		}
	}
	return nil
}

func (a *HTTPAssigner) openRegion(ctx context.Context, node meta.WorkerNode, d meta.PartitionDescriptor) error {
	body, err := json.Marshal(d)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node.HTTPAddress+"/region/open", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("resp status not OK: " + resp.Status)
	}
	return nil
}
