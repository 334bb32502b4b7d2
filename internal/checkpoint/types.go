package checkpoint

import (
	"errors"
	"time"
)

const (
	// DefaultKeep is the number of backups retained per prefix.
	DefaultKeep = 20

	backupMarker = ".backup."
	backupExt    = ".ndjson"

	// timestampLayout sorts lexically in chronological order.
	timestampLayout = "20060102T150405.000000000Z"
)

var (
	// ErrNotFound is returned when a named backup does not exist.
	ErrNotFound = errors.New("backup not found")

	// ErrClosed is returned by a closed service.
	ErrClosed = errors.New("checkpoint service is closed")
)

// Checkpoint describes one backup file.
type Checkpoint struct {
	// ID is the file name without directory.
	ID string `json:"id"`

	// Path is the absolute path of the backup file.
	Path string `json:"path"`

	// Source is the file that was copied. Empty for listed backups.
	Source string `json:"source,omitempty"`

	// Size in bytes.
	Size int64 `json:"size"`

	// Lines is the number of non-blank lines, counted at save time.
	// Zero for listed backups.
	Lines int `json:"lines,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Config configures the checkpoint service.
type Config struct {
	// Dir holds the backup files.
	Dir string

	// Prefix names backups of one log, e.g. "knowledge_graph".
	Prefix string

	// Keep bounds retained backups. Zero means DefaultKeep, negative
	// disables pruning.
	Keep int
}

// DefaultServiceConfig returns defaults for the knowledge graph backups.
func DefaultServiceConfig(dir string) *Config {
	return &Config{
		Dir:    dir,
		Prefix: "knowledge_graph",
		Keep:   DefaultKeep,
	}
}
