package state

// Ring is a fixed-capacity circular buffer that discards the oldest item
// on overflow. It backs the per-symbol trade windows and quantity history.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

// NewRing creates a ring buffer holding at most max items. Panics on a
// non-positive max: buffer sizes are compile-time constants here, so a bad
// value is a programming error, not an input error.
func NewRing[T any](max int) *Ring[T] {
	if max <= 0 {
		panic("state: ring buffer size must be positive")
	}
	return &Ring[T]{items: make([]T, max)}
}

// Append adds an item, evicting the oldest when full.
func (r *Ring[T]) Append(item T) {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
		return
	}
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
}

// Len returns the number of items currently buffered.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the maximum number of items the buffer holds.
func (r *Ring[T]) Cap() int { return len(r.items) }

// All returns the buffered items oldest-first as a fresh slice.
func (r *Ring[T]) All() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.head+i)%len(r.items)])
	}
	return out
}

// Filter returns the buffered items for which keep returns true,
// oldest-first.
func (r *Ring[T]) Filter(keep func(T) bool) []T {
	var out []T
	for i := 0; i < r.size; i++ {
		item := r.items[(r.head+i)%len(r.items)]
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}

// Clear removes all buffered items.
func (r *Ring[T]) Clear() {
	r.head = 0
	r.size = 0
}
