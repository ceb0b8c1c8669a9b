package verify

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	guda "github.com/LynnColeArt/gudamm"
	"github.com/LynnColeArt/gudamm/matmul"
)

// FillFunc gives the value of element (i, j), 0-based.
type FillFunc func(i, j int) float32

// Fill sets every element of m from f.
func Fill(m *matmul.Matrix, f FillFunc) {
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			m.Data[i*m.Cols+j] = f(i, j)
		}
	}
}

// SyntheticA is the shipped example's A: i*10 + j*1000 on 1-based indices.
func SyntheticA(i, j int) float32 {
	return float32((i+1)*10 + (j+1)*1000)
}

// SyntheticB is the shipped example's B: i - j on 1-based indices.
func SyntheticB(i, j int) float32 {
	return float32(i - j)
}

// Identity is 1 on the diagonal and 0 elsewhere.
func Identity(i, j int) float32 {
	return lo.Ternary[float32](i == j, 1, 0)
}

// Zero is 0 everywhere.
func Zero(i, j int) float32 {
	return 0
}

// Random returns a deterministic fill in [0, 1) drawn from a linear
// congruential generator. Values follow row-major fill order.
func Random(seed uint64) FillFunc {
	rng := seed
	return func(i, j int) float32 {
		rng = rng*1103515245 + 12345 // LCG parameters from Numerical Recipes
		return float32(rng>>40) / (1 << 24)
	}
}

// Fills names the fills selectable from the command line. "synthetic"
// picks SyntheticA or SyntheticB by operand.
var Fills = []string{"synthetic", "identity", "zero", "random"}

// FillFor returns the named fill for operand "A" or "B".
func FillFor(name, operand string, seed uint64) (FillFunc, error) {
	switch name {
	case "synthetic":
		if operand == "A" {
			return SyntheticA, nil
		}
		return SyntheticB, nil
	case "identity":
		return Identity, nil
	case "zero":
		return Zero, nil
	case "random":
		if operand == "B" {
			seed++
		}
		return Random(seed), nil
	default:
		names := append([]string(nil), Fills...)
		sort.Strings(names)
		return nil, guda.NewInvalidArgError("Fill", fmt.Sprintf("unknown fill %q (want one of %v)", name, names))
	}
}

// OracleNames returns the registered oracle names in sorted order.
func OracleNames() []string {
	names := lo.Keys(Oracles)
	sort.Strings(names)
	return names
}
