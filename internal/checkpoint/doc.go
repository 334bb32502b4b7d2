// Package checkpoint manages timestamped full-file backups of a log.
//
// A backup is taken immediately before every destructive rebuild (soft
// delete, restore). Backups live in a single directory, one file per
// snapshot, named "<prefix>.backup.<UTC timestamp>.ndjson" so that lexical
// and chronological order agree. Old backups beyond the configured retention
// are pruned after each save, best effort.
package checkpoint
