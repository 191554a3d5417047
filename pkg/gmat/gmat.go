package gmat

import (
	"fmt"
	"strings"
	"text/tabwriter"
)

// Dense row-major matrix
type Mat[T any] struct {
	s          []T
	rows, cols int
}

// Returns a new matrix with pre-allocated
// backing slice
func NewMat[T any](r, c int) *Mat[T] {
	return &Mat[T]{
		s:    make([]T, r*c),
		rows: r,
		cols: c,
	}
}

func (m *Mat[T]) Dims() (int, int) { return m.rows, m.cols }

func (m *Mat[T]) At(r, c int) T {
	return m.s[m.cols*r+c]
}

// Set the value of element (r, c) in matrix m
func (m *Mat[T]) Set(r, c int, v T) error {
	if r < 0 || c < 0 || r >= m.rows || c >= m.cols {
		return fmt.Errorf("Out of bounds: (%d, %d) in %dx%d", r, c, m.rows, m.cols)
	}
	m.s[m.cols*r+c] = v
	return nil
}

// Square copy of m, the missing cells are set to fill.
// go-hungarian only solves square problems
func (m *Mat[T]) Square(fill T) *Mat[T] {
	n := max(m.rows, m.cols)
	sq := NewMat[T](n, n)
	for r := range n {
		for c := range n {
			if r < m.rows && c < m.cols {
				sq.s[n*r+c] = m.At(r, c)
			} else {
				sq.s[n*r+c] = fill
			}
		}
	}
	return sq
}

// Maps an existing matrix into a new one via f
func Map[T, E any](m *Mat[T], f func(e T, r, c int) E) *Mat[E] {
	new_mat := NewMat[E](m.rows, m.cols)
	for r := range m.rows {
		for c := range m.cols {
			new_mat.s[m.cols*r+c] = f(m.At(r, c), r, c)
		}
	}
	return new_mat
}

func (m *Mat[T]) To2d() [][]T {
	out := make([][]T, m.rows)
	for r := range m.rows {
		out[r] = m.s[m.cols*r : m.cols*(r+1)]
	}
	return out
}

// Pretty print
func (m *Mat[T]) Sprintf(format string) string {
	b := new(strings.Builder)
	t := tabwriter.NewWriter(b, 3, 1, 1, ' ', 0)
	for r := range m.rows {
		for c := range m.cols {
			fmt.Fprintf(t, format, m.At(r, c))
			fmt.Fprint(t, "\t")
		}
		fmt.Fprint(t, "\n")
	}
	t.Flush()
	return b.String()
}

func (m *Mat[T]) String() string {
	return m.Sprintf("%v")
}
