// Package verify checks device results against independent CPU products
// and reports where they disagree.
package verify

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	guda "github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/matmul"
)

// Oracle computes a reference product of a and b.
type Oracle func(a, b *matmul.Matrix) (*matmul.Matrix, error)

// Oracles lists the available reference implementations by name.
var Oracles = map[string]Oracle{
	"loop": Reference,
	"blas": BLASReference,
}

func checkInner(op string, a, b *matmul.Matrix) error {
	if a == nil || b == nil {
		return guda.NewInvalidArgError(op, "nil operand")
	}
	if a.Cols != b.Rows {
		return guda.NewInvalidArgError(op, fmt.Sprintf("inner dimensions differ: A is %v, B is %v", a, b))
	}
	return nil
}

// Reference is the plain triple loop. Each dot product is accumulated in
// float64 and rounded once, so the reference carries no accumulation error
// of its own at float32 precision. Any shape with matching inner
// dimensions is accepted.
func Reference(a, b *matmul.Matrix) (*matmul.Matrix, error) {
	if err := checkInner("Reference", a, b); err != nil {
		return nil, err
	}
	n, m, l := a.Rows, a.Cols, b.Cols
	cc := matmul.NewMatrix(n, l)
	for i := 0; i < n; i++ {
		for j := 0; j < l; j++ {
			var sum float64
			for k := 0; k < m; k++ {
				sum += float64(a.Data[i*m+k]) * float64(b.Data[k*l+j])
			}
			cc.Data[i*l+j] = float32(sum)
		}
	}
	return cc, nil
}

// BLASReference computes the product with gonum's float32 GEMM.
func BLASReference(a, b *matmul.Matrix) (*matmul.Matrix, error) {
	if err := checkInner("BLASReference", a, b); err != nil {
		return nil, err
	}
	cc := matmul.NewMatrix(a.Rows, b.Cols)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, general(a), general(b), 0, general(cc))
	return cc, nil
}

func general(m *matmul.Matrix) blas32.General {
	return blas32.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Cols, Data: m.Data}
}
