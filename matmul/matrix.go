package matmul

import (
	"fmt"

	guda "github.com/LynnColeArt/gudamm"
)

// TileSize is the edge of the square tiles staged through shared memory.
// It is also the block edge: one thread per element of an output tile.
const TileSize = 16

// Matrix is a dense row-major float32 matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// NewMatrix allocates a zeroed rows×cols matrix on the host.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float32 {
	return m.Data[i*m.Cols+j]
}

// Set stores v at (i, j).
func (m *Matrix) Set(i, j int, v float32) {
	m.Data[i*m.Cols+j] = v
}

// Bytes is the size of the matrix payload.
func (m *Matrix) Bytes() int {
	return m.Rows * m.Cols * 4
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%dx%d", m.Rows, m.Cols)
}

// ValidateShapes checks the preconditions of the tiled kernel: a is N×M,
// b is M×L, c (when non-nil) is N×L, and N, M, L are positive multiples
// of TileSize. The kernel itself performs no bounds checks.
func ValidateShapes(a, b, c *Matrix) error {
	if a == nil || b == nil {
		return guda.NewInvalidArgError("Multiply", "nil operand")
	}
	if a.Cols != b.Rows {
		return guda.NewInvalidArgError("Multiply", fmt.Sprintf(
			"inner dimensions differ: A is %v, B is %v", a, b))
	}
	if err := ValidateDims(a.Rows, a.Cols, b.Cols); err != nil {
		return err
	}
	for _, m := range []*Matrix{a, b, c} {
		if m != nil && len(m.Data) != m.Rows*m.Cols {
			return guda.NewInvalidArgError("Multiply", fmt.Sprintf(
				"%v matrix backed by %d elements", m, len(m.Data)))
		}
	}
	n, l := a.Rows, b.Cols
	if c != nil && (c.Rows != n || c.Cols != l) {
		return guda.NewInvalidArgError("Multiply", fmt.Sprintf(
			"C is %v, want %dx%d", c, n, l))
	}
	return nil
}

// ValidateDims checks that N, M and L are positive multiples of TileSize.
func ValidateDims(n, m, l int) error {
	for _, d := range []struct {
		name string
		v    int
	}{{"N", n}, {"M", m}, {"L", l}} {
		if d.v <= 0 || d.v%TileSize != 0 {
			return guda.NewInvalidArgError("Multiply", fmt.Sprintf(
				"%s = %d is not a positive multiple of %d", d.name, d.v, TileSize))
		}
	}
	return nil
}
