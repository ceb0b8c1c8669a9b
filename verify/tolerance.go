package verify

import (
	"math"

	guda "github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/matmul"
)

// DefaultRelTol is the per-element relative error a device result may show
// against the reference.
const DefaultRelTol = 2e-5

// DefaultMaxReported bounds the mismatches kept for diagnostics.
const DefaultMaxReported = 10

// Tolerance configures Compare.
type Tolerance struct {
	// RelTol is the largest accepted relative error.
	RelTol float64

	// MaxReported is how many mismatches are retained for the report.
	// All of them are counted.
	MaxReported int
}

// DefaultTolerance returns the default comparison settings
func DefaultTolerance() Tolerance {
	return Tolerance{RelTol: DefaultRelTol, MaxReported: DefaultMaxReported}
}

// Mismatch is one element outside tolerance.
type Mismatch struct {
	Row, Col int
	Got      float32
	Want     float32
	RelErr   float64
}

// Result summarises a comparison.
type Result struct {
	Checked    int
	Count      int // Elements exceeding the tolerance
	MaxRelErr  float64
	RelTol     float64
	Mismatches []Mismatch // The first MaxReported mismatches in row-major order
}

// Passed reports whether no element exceeded the tolerance.
func (r Result) Passed() bool {
	return r.Count == 0
}

// RelativeError is |got-want|/|want|, or |got-want| when want is zero.
// A NaN on either side is infinitely wrong unless both are NaN.
func RelativeError(got, want float32) float64 {
	g, w := float64(got), float64(want)
	if math.IsNaN(g) || math.IsNaN(w) {
		if math.IsNaN(g) && math.IsNaN(w) {
			return 0
		}
		return math.Inf(1)
	}
	if g == w {
		return 0
	}
	diff := math.Abs(g - w)
	if w == 0 {
		return diff
	}
	return diff / math.Abs(w)
}

// Compare checks got against want element by element.
func Compare(got, want *matmul.Matrix, tol Tolerance) (Result, error) {
	if got == nil || want == nil {
		return Result{}, guda.NewInvalidArgError("Compare", "nil matrix")
	}
	if got.Rows != want.Rows || got.Cols != want.Cols {
		return Result{}, guda.NewInvalidArgError("Compare", "shapes differ: "+got.String()+" vs "+want.String())
	}
	if tol.RelTol <= 0 {
		tol.RelTol = DefaultRelTol
	}

	res := Result{Checked: len(want.Data), RelTol: tol.RelTol}
	for idx, w := range want.Data {
		g := got.Data[idx]
		rel := RelativeError(g, w)
		if rel > res.MaxRelErr {
			res.MaxRelErr = rel
		}
		if rel <= tol.RelTol {
			continue
		}
		res.Count++
		if len(res.Mismatches) < tol.MaxReported {
			res.Mismatches = append(res.Mismatches, Mismatch{
				Row:    idx / want.Cols,
				Col:    idx % want.Cols,
				Got:    g,
				Want:   w,
				RelErr: rel,
			})
		}
	}
	return res, nil
}
