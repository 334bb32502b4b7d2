package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrCycleDetected is the sentinel wrapped by CycleError.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrDuplicateNode is returned when a node ID already exists.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrDanglingReference is returned when an edge names a node that is not
	// live in the same project.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrNodeNotFound is returned by operations that require an existing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrBackupFailed is returned when the pre-mutation backup could not be
	// taken. Nothing is changed.
	ErrBackupFailed = errors.New("backup failed")

	// ErrInvalidNode is wrapped by variant validation failures.
	ErrInvalidNode = errors.New("invalid node")

	// ErrProjectRequired is returned when a scoped call omits the project.
	ErrProjectRequired = errors.New("project is required")
)

// CycleError reports an insert or edge that would make the graph cyclic.
type CycleError struct {
	// NodeID is the node being inserted or extended.
	NodeID string
	// Via is the node at which the walk closed the loop.
	Via string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("adding %s would create a cycle through %s", e.NodeID, e.Via)
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
