// Package client is a small HTTP client for the master API.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

type Client struct {
	BaseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		http:    &http.Client{},
	}
}

func (c *Client) CheckConnection() error {
	resp, err := c.http.Get(c.BaseURL + "/ping")
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping failed: %s", resp.Status)
	}
	return nil
}

// CreateTable asks the master to create a table partitioned at the given
// split keys. The call returns once the whole creation workflow finished.
func (c *Client) CreateTable(desc meta.TableDescriptor, splitKeys []string) error {
	boundaries, err := meta.BoundariesFromSplitKeys(splitKeys)
	if err != nil {
		return err
	}

	reqBody, err := json.Marshal(struct {
		Descriptor meta.TableDescriptor     `json:"descriptor"`
		Boundaries []meta.PartitionBoundary `json:"boundaries"`
	}{Descriptor: desc, Boundaries: boundaries})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.BaseURL+"/table/create", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create table failed: %s - %s", resp.Status, string(body))
	}
	return nil
}

// TableStatus holds the lifecycle state and cataloged regions of a table.
type TableStatus struct {
	Name       string                     `json:"name"`
	State      meta.TableState            `json:"state"`
	Partitions []meta.PartitionDescriptor `json:"partitions"`
}

func (c *Client) TableStatus(name string) (*TableStatus, error) {
	resp, err := c.http.Get(c.BaseURL + "/table/" + url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("table status failed: %s - %s", resp.Status, string(body))
	}

	var status TableStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
