package master

import (
	"errors"
	"strconv"

	"github.com/parishadmk/tablekeeper/internal/cluster/meta"
)

// ErrCoordinationUnavailable aborts creation before any side effect: the
// workflow cannot even start without the coordination store.
var ErrCoordinationUnavailable = errors.New("coordination store unavailable")

// ErrBringupInterrupted marks a bring-up that was cancelled from outside,
// as opposed to one where a region failed to initialize.
var ErrBringupInterrupted = errors.New("region bring-up interrupted")

type TableExistsError struct {
	Table string
}

func (e *TableExistsError) Error() string {
	return "TableExistsError: table \"" + e.Table + "\" already exists or is being created"
}

// PartitionInitError wraps the failure of the first region whose
// initialization broke the bring-up.
type PartitionInitError struct {
	Table    string
	Boundary meta.PartitionBoundary
	Err      error
}

func (e *PartitionInitError) Error() string {
	return "PartitionInitError: region " + e.Boundary.String() + " of table \"" + e.Table + "\": " + e.Err.Error()
}

func (e *PartitionInitError) Unwrap() error { return e.Err }

type CatalogWriteError struct {
	Table string
	Err   error
}

func (e *CatalogWriteError) Error() string {
	return "CatalogWriteError: table \"" + e.Table + "\": " + e.Err.Error()
}

func (e *CatalogWriteError) Unwrap() error { return e.Err }

type AssignmentError struct {
	Table string
	Nodes int
	Err   error
}

func (e *AssignmentError) Error() string {
	return "AssignmentError: table \"" + e.Table + "\" across " + strconv.Itoa(e.Nodes) + " nodes: " + e.Err.Error()
}

func (e *AssignmentError) Unwrap() error { return e.Err }

// EnableError occurs after regions and catalog rows already exist; the
// table stays stuck in ENABLING and needs external reconciliation.
type EnableError struct {
	Table string
	Err   error
}

func (e *EnableError) Error() string {
	return "EnableError: table \"" + e.Table + "\" created but not enabled: " + e.Err.Error()
}

func (e *EnableError) Unwrap() error { return e.Err }
