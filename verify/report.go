package verify

import (
	"fmt"
	"io"

	"github.com/samber/lo"
)

// WriteReport prints the retained mismatches followed by the totals.
// Divergence is reported, never returned as an error.
func (r Result) WriteReport(w io.Writer) error {
	for _, m := range r.Mismatches {
		if _, err := fmt.Fprintf(w, "c(%d,%d) = %g, expected %g, relative error %.3e\n",
			m.Row, m.Col, m.Got, m.Want, m.RelErr); err != nil {
			return err
		}
	}
	if r.Count > len(r.Mismatches) {
		if _, err := fmt.Fprintf(w, "... %d more not shown\n", r.Count-len(r.Mismatches)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d of %d elements exceed relative error %.0e (max %.3e): %s\n",
		r.Count, r.Checked, r.RelTol, r.MaxRelErr, lo.Ternary(r.Passed(), "PASSED", "FAILED"))
	return err
}
