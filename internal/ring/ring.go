// Package ring provides a fixed-capacity FIFO buffer that overwrites its
// oldest element once full.
//
// Ring is not safe for concurrent use; owners wrap it with their own lock
// when more than one goroutine touches it.
package ring

// Ring holds up to Cap() values in insertion order.
type Ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

// New returns an empty ring with the given capacity. capacity must be > 0.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of stored values.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Full reports whether the next Push will evict.
func (r *Ring[T]) Full() bool { return r.size == len(r.buf) }

// Push appends v. When the ring is full the oldest value is evicted and
// returned with ok == true.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return evicted, false
	}
	evicted = r.buf[r.head]
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, true
}

// PopFront removes and returns the oldest value.
func (r *Ring[T]) PopFront() (v T, ok bool) {
	if r.size == 0 {
		return v, false
	}
	var zero T
	v = r.buf[r.head]
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return v, true
}

// At returns the i-th value, 0 being the oldest.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.size {
		panic("ring: index out of range")
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Newest returns up to n values, most recent first.
func (r *Ring[T]) Newest(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.At(r.size - 1 - i)
	}
	return out
}

// Slice returns all values, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.At(i)
	}
	return out
}

// Do calls fn for each value, oldest first.
func (r *Ring[T]) Do(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.head+i)%len(r.buf)])
	}
}

// Reset drops all values.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}
