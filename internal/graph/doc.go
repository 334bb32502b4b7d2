// Package graph stores the reasoning trace of the actor/critic loop as a DAG
// of thought nodes, partitioned by project, on top of a durable JSON-lines
// log.
//
// Every mutation holds the log lock for its full read-check-write sequence:
// inserts are checked for duplicate IDs, dangling references and cycles
// against the current file before the line is appended, and soft deletes
// back up, partition and rebuild the file in one critical section. Reads are
// lock-free linear scans.
//
// Nodes are immutable once written except for two rewrites: a summary can be
// attached to an existing node's children (AddChild), and soft delete strips
// references to removed nodes from the survivors.
package graph
