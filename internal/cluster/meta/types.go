package meta

import (
	"fmt"
	"sort"
)

// TableState is the per-table lifecycle flag kept in the coordination store.
type TableState string

const (
	StateAbsent   TableState = "ABSENT"
	StateEnabling TableState = "ENABLING"
	StateEnabled  TableState = "ENABLED"
)

type NodeStatus string

const (
	NodeAlive NodeStatus = "alive"
	NodeDead  NodeStatus = "dead"
)

type ColumnFamily struct {
	Name        string `json:"name"`
	MaxVersions int    `json:"maxVersions,omitempty"`
	TTLSeconds  int    `json:"ttlSeconds,omitempty"`
}

// TableDescriptor describes a table's schema and options. It is immutable
// once creation starts; the master persists it before any region exists.
type TableDescriptor struct {
	Name     string            `json:"name"`
	Families []ColumnFamily    `json:"families"`
	Options  map[string]string `json:"options,omitempty"`
}

func (d *TableDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if len(d.Families) == 0 {
		return fmt.Errorf("table %q must declare at least one column family", d.Name)
	}
	seen := make(map[string]bool, len(d.Families))
	for _, f := range d.Families {
		if f.Name == "" {
			return fmt.Errorf("table %q has a column family with an empty name", d.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("table %q declares column family %q twice", d.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// PartitionBoundary is a half-open key range [StartKey, EndKey). An empty
// StartKey means the minimum key, an empty EndKey the maximum.
type PartitionBoundary struct {
	StartKey string `json:"startKey"`
	EndKey   string `json:"endKey"`
}

func (b PartitionBoundary) String() string {
	start, end := b.StartKey, b.EndKey
	if start == "" {
		start = "-inf"
	}
	if end == "" {
		end = "+inf"
	}
	return "[" + start + "," + end + ")"
}

// Contains reports whether key falls inside the boundary.
func (b PartitionBoundary) Contains(key string) bool {
	if b.StartKey != "" && key < b.StartKey {
		return false
	}
	if b.EndKey != "" && key >= b.EndKey {
		return false
	}
	return true
}

// PartitionDescriptor identifies a durably initialized region of a table.
// Flushed is set only after the region's storage has been synced and closed.
type PartitionDescriptor struct {
	ID       string            `json:"id"`
	Table    string            `json:"table"`
	Boundary PartitionBoundary `json:"boundary"`
	Flushed  bool              `json:"flushed"`
	Path     string            `json:"path"`
}

// WorkerNode is a cluster node eligible to host regions.
type WorkerNode struct {
	ID          string     `json:"id"`
	HTTPAddress string     `json:"http"`
	Status      NodeStatus `json:"status"`
}

// BoundariesFromSplitKeys turns operator-supplied split keys into a
// contiguous boundary set covering the whole keyspace. No split keys
// yields a single open-ended boundary.
func BoundariesFromSplitKeys(splitKeys []string) ([]PartitionBoundary, error) {
	splits := make([]string, 0, len(splitKeys))
	for _, k := range splitKeys {
		if k == "" {
			return nil, fmt.Errorf("split keys must not be empty")
		}
		splits = append(splits, k)
	}
	sort.Strings(splits)
	for i := 1; i < len(splits); i++ {
		if splits[i] == splits[i-1] {
			return nil, fmt.Errorf("duplicate split key %q", splits[i])
		}
	}

	boundaries := make([]PartitionBoundary, 0, len(splits)+1)
	start := ""
	for _, k := range splits {
		boundaries = append(boundaries, PartitionBoundary{StartKey: start, EndKey: k})
		start = k
	}
	boundaries = append(boundaries, PartitionBoundary{StartKey: start, EndKey: ""})
	return boundaries, nil
}

// ValidateBoundaries checks that boundaries are non-empty, contiguous,
// non-overlapping and cover the full keyspace: the first starts at the
// minimum key, the last ends at the maximum, and each range ends where
// the next begins.
func ValidateBoundaries(boundaries []PartitionBoundary) error {
	if len(boundaries) == 0 {
		return fmt.Errorf("at least one partition boundary is required")
	}
	if boundaries[0].StartKey != "" {
		return fmt.Errorf("first boundary %s must start at the minimum key", boundaries[0])
	}
	if boundaries[len(boundaries)-1].EndKey != "" {
		return fmt.Errorf("last boundary %s must end at the maximum key", boundaries[len(boundaries)-1])
	}
	for i, b := range boundaries {
		last := i == len(boundaries)-1
		if !last {
			if b.EndKey == "" {
				return fmt.Errorf("boundary %s ends at the maximum key but is not last", b)
			}
			if b.StartKey != "" && b.EndKey <= b.StartKey {
				return fmt.Errorf("boundary %s is empty or inverted", b)
			}
			if boundaries[i+1].StartKey != b.EndKey {
				return fmt.Errorf("gap or overlap between %s and %s", b, boundaries[i+1])
			}
		}
	}
	return nil
}
