package ghung

import (
	"github.com/Robogera/detectdemo/pkg/gmat"
	hung "github.com/arthurkushman/go-hungarian"
)

// Maximum weight assignment on a rectangular matrix.
// Rows or columns left without a partner are absent from the
// result, as are pairs whose weight is not above min_weight.
// Returns row -> column
func Assign(m *gmat.Mat[float64], min_weight float64) map[int]int {
	rows, cols := m.Dims()
	ass := make(map[int]int)
	if rows == 0 || cols == 0 {
		return ass
	}
	for r, picked := range hung.SolveMax(m.Square(0).To2d()) {
		if r >= rows {
			continue
		}
		for c := range picked {
			if c < cols && m.At(r, c) > min_weight {
				ass[r] = c
			}
		}
	}
	return ass
}
