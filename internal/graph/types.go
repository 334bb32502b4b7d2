package graph

import (
	"fmt"
	"time"
)

// Role identifies the node variant.
type Role string

const (
	RoleActor   Role = "actor"
	RoleCritic  Role = "critic"
	RoleSummary Role = "summary"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleActor, RoleCritic, RoleSummary:
		return true
	}
	return false
}

// Verdict is a critic's judgment on an actor node.
type Verdict string

const (
	VerdictApproved      Verdict = "approved"
	VerdictNeedsRevision Verdict = "needs_revision"
	VerdictReject        Verdict = "reject"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictNeedsRevision, VerdictReject:
		return true
	}
	return false
}

// Artifact references a file affected by a thought.
type Artifact struct {
	Name        string `json:"name" validate:"required"`
	Path        string `json:"path" validate:"required"`
	URI         string `json:"uri,omitempty"`
	Hash        string `json:"hash,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Node is one thought in the graph. Verdict, VerdictReason and Target are
// set only on critic nodes; SummarizedSegment only on summary nodes.
type Node struct {
	ID             string     `json:"id" validate:"required"`
	Project        string     `json:"project" validate:"required"`
	ProjectContext string     `json:"projectContext"`
	Thought        string     `json:"thought" validate:"required"`
	Role           Role       `json:"role" validate:"required,oneof=actor critic summary"`
	Parents        []string   `json:"parents" validate:"dive,required"`
	Children       []string   `json:"children" validate:"dive,required"`
	CreatedAt      time.Time  `json:"createdAt" validate:"required"`
	Tags           []string   `json:"tags,omitempty"`
	Artifacts      []Artifact `json:"artifacts,omitempty" validate:"dive"`
	Diff           string     `json:"diff,omitempty"`

	Verdict       Verdict `json:"verdict,omitempty"`
	VerdictReason string  `json:"verdictReason,omitempty"`
	Target        string  `json:"target,omitempty"`

	SummarizedSegment []string `json:"summarizedSegment,omitempty" validate:"dive,required"`
}

// clone returns a deep copy of the slices so callers cannot alias stored
// edge arrays.
func (n Node) clone() Node {
	n.Parents = append([]string{}, n.Parents...)
	n.Children = append([]string{}, n.Children...)
	if n.Tags != nil {
		n.Tags = append([]string{}, n.Tags...)
	}
	if n.Artifacts != nil {
		n.Artifacts = append([]Artifact{}, n.Artifacts...)
	}
	if n.SummarizedSegment != nil {
		n.SummarizedSegment = append([]string{}, n.SummarizedSegment...)
	}
	return n
}

// DeletedNode is a node moved to the deleted log.
type DeletedNode struct {
	Node
	DeletedAt     time.Time `json:"deletedAt"`
	DeletedReason string    `json:"deletedReason,omitempty"`
	DeletedBy     string    `json:"deletedBy,omitempty"`
}

// DiffPolicy controls which nodes keep their diff payload in Resume.
type DiffPolicy string

const (
	// DiffNone strips every diff.
	DiffNone DiffPolicy = "none"
	// DiffLatest keeps the diff of the most recent node only.
	DiffLatest DiffPolicy = "latest"
	// DiffAll keeps every diff.
	DiffAll DiffPolicy = "all"
)

// ParseDiffPolicy parses s, defaulting to DiffLatest when empty.
func ParseDiffPolicy(s string) (DiffPolicy, error) {
	switch DiffPolicy(s) {
	case "":
		return DiffLatest, nil
	case DiffNone, DiffLatest, DiffAll:
		return DiffPolicy(s), nil
	}
	return "", fmt.Errorf("unknown diff policy %q (want none, latest or all)", s)
}

// DefaultResumeLimit is used when ResumeOptions.Limit is not positive.
const DefaultResumeLimit = 5

// ExportOptions selects nodes for Export.
type ExportOptions struct {
	Project string

	// Filter, when set, must return true for a node to be kept.
	Filter func(Node) bool

	// Limit keeps only the most recent matches. Zero or negative keeps all.
	Limit int
}

// ResumeOptions selects the recent context returned by Resume.
type ResumeOptions struct {
	Project      string
	Limit        int
	IncludeDiffs DiffPolicy
}

// DeleteResult reports the outcome of SoftDeleteNodes.
type DeleteResult struct {
	DeletedNodes      []DeletedNode `json:"deletedNodes"`
	BackupPath        string        `json:"backupPath"`
	AffectedSummaries []Node        `json:"affectedSummaries"`
}

// RestoreResult reports the outcome of Restore.
type RestoreResult struct {
	RestoredFrom string `json:"restoredFrom"`
	BackupPath   string `json:"backupPath"`
	Nodes        int    `json:"nodes"`
}

// Stats summarizes one project.
type Stats struct {
	Project      string          `json:"project"`
	Total        int             `json:"total"`
	ByRole       map[Role]int    `json:"byRole"`
	ByVerdict    map[Verdict]int `json:"byVerdict"`
	Summaries    int             `json:"summaries"`
	Deleted      int             `json:"deleted"`
	LastActivity time.Time       `json:"lastActivity,omitempty"`
}
