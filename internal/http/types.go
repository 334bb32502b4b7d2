package http

import (
	"time"

	"github.com/fyrsmithlabs/codeloops/internal/graph"
	"github.com/fyrsmithlabs/codeloops/internal/memory"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ProjectsResponse is the response body for GET /api/v1/projects.
type ProjectsResponse struct {
	Projects []string `json:"projects"`
}

// NodesResponse is the response body for the node listing endpoints.
type NodesResponse struct {
	Project string       `json:"project"`
	Nodes   []graph.Node `json:"nodes"`
}

// MemoriesResponse is the response body for GET /api/v1/memories.
type MemoriesResponse struct {
	Entries []memory.Entry `json:"entries"`
}

// ChangeEvent is the data payload of a server-sent event.
type ChangeEvent struct {
	Kind string    `json:"kind"`
	At   time.Time `json:"at"`
}
