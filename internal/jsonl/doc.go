// Package jsonl implements the durable, newline-delimited JSON log that every
// codeloops store is built on.
//
// # Format
//
// One JSON object per line, UTF-8, in physical append order. Readers are
// tolerant: a line that fails to decode or validate is logged and skipped
// without aborting the scan. Writers are strict: every record is encoded
// from a typed value.
//
// # Concurrency
//
// Several processes may share one data directory. Mutations take an
// advisory lock on a sidecar "<file>.lock" and hold it for the whole
// critical section:
//
//	err := log.WithLock(ctx, func(tx *jsonl.Tx[Node]) error {
//	    nodes, err := tx.ReadAll()
//	    if err != nil {
//	        return err
//	    }
//	    return tx.Rebuild(filter(nodes))
//	})
//
// Reads never lock and may observe the file before or after a concurrent
// write. Rebuilds replace the file through a temp file and rename, so a
// crash leaves either the old or the new content visible.
//
// # Retries
//
// Lock contention and transient write failures are retried with a linear
// backoff (step * attempt) up to MaxRetries times. Once the lock is held the
// context is no longer consulted, so an in-flight append or rebuild always
// runs to completion.
package jsonl
