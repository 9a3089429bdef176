package monitor

// ring is a fixed-capacity FIFO buffer. Once full, every push overwrites the
// oldest entry.
type ring[T any] struct {
	items []T
	head  int // index of the oldest entry
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

// push appends v and reports whether the oldest entry was evicted to make room.
func (r *ring[T]) push(v T) bool {
	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = v
		r.size++
		return false
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	return true
}

func (r *ring[T]) Len() int {
	return r.size
}

// at returns the i-th oldest entry.
func (r *ring[T]) at(i int) T {
	return r.items[(r.head+i)%len(r.items)]
}

// dropOldestWhile discards entries from the old end for as long as pred holds.
func (r *ring[T]) dropOldestWhile(pred func(T) bool) {
	var zero T
	for r.size > 0 && pred(r.items[r.head]) {
		r.items[r.head] = zero
		r.head = (r.head + 1) % len(r.items)
		r.size--
	}
}

// newest returns up to n entries, newest first. n <= 0 returns every entry.
func (r *ring[T]) newest(n int) []T {
	if n <= 0 || n > r.size {
		n = r.size
	}
	result := make([]T, 0, n)
	for i := r.size - 1; i >= r.size-n; i-- {
		result = append(result, r.at(i))
	}
	return result
}
