// Package window keeps the most recent N items seen during a single pass.
package window

// Ring is a fixed-capacity FIFO. Pushing onto a full ring evicts the oldest
// item. A ring with capacity <= 0 is unbounded and keeps everything.
// Storage grows with the items pushed, never beyond the capacity.
type Ring[T any] struct {
	buf   []T
	start int
	limit int
}

// New returns a ring holding at most capacity items.
func New[T any](capacity int) *Ring[T] {
	return &Ring[T]{limit: capacity}
}

// Push adds v as the newest item.
func (r *Ring[T]) Push(v T) {
	if r.limit <= 0 || len(r.buf) < r.limit {
		r.buf = append(r.buf, v)
		return
	}
	// full: overwrite oldest
	r.buf[r.start] = v
	r.start = (r.start + 1) % r.limit
}

// Len returns the number of retained items.
func (r *Ring[T]) Len() int {
	return len(r.buf)
}

// Items returns retained items oldest first. The slice is a copy.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.start:]...)
	return append(out, r.buf[:r.start]...)
}
