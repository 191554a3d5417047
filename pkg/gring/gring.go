package gring

import (
	"iter"
)

// Fixed capacity ring buffer, overwrites the oldest
// element once full
type Ring[T any] struct {
	l   int
	s   []T
	pos int
}

func NewRing[T any](l int) *Ring[T] {
	return &Ring[T]{
		l:   0,
		s:   make([]T, max(l, 1)),
		pos: 0,
	}
}

func (r *Ring[T]) Size() int {
	return r.l
}

func (r *Ring[T]) Push(e T) {
	r.s[r.pos] = e
	r.pos++
	if r.pos >= len(r.s) {
		r.pos = 0
	}
	if r.l < len(r.s) {
		r.l++
	}
}

// Zero value if the ring is empty
func (r *Ring[T]) Newest() T {
	var zero T
	if r.l == 0 {
		return zero
	}
	real_pos := r.pos - 1
	if real_pos < 0 {
		real_pos = len(r.s) - 1
	}
	return r.s[real_pos]
}

func (r *Ring[T]) Clear() {
	clear(r.s)
	r.l, r.pos = 0, 0
}

// Newest to oldest
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := range r.l {
			real_pos := r.pos - 1 - i
			if real_pos < 0 {
				real_pos = r.l + real_pos
			}
			if !yield(r.s[real_pos]) {
				return
			}
		}
	}
}

// Oldest to newest
func (r *Ring[T]) Chronological() []T {
	out := make([]T, r.l)
	i := r.l - 1
	for e := range r.All() {
		out[i] = e
		i--
	}
	return out
}
