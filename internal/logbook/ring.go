// Package logbook holds the bounded, in-memory logs of the simulation:
// the reading history and the operator alert log.
package logbook

// ring is a fixed-capacity FIFO. Pushing onto a full ring overwrites the
// oldest element. Not safe for concurrent use.
type ring[T any] struct {
	buf   []T
	start int // index of the oldest element
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) cap() int { return len(r.buf) }

func (r *ring[T]) len() int { return r.size }

// push appends v and reports whether an element was evicted.
func (r *ring[T]) push(v T) (evicted bool) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return true
}

// at returns the i-th element, 0 being the oldest.
func (r *ring[T]) at(i int) T {
	return r.buf[(r.start+i)%len(r.buf)]
}

// tail copies the last n elements oldest-first.
func (r *ring[T]) tail(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	off := r.size - n
	for i := 0; i < n; i++ {
		out[i] = r.at(off + i)
	}
	return out
}
