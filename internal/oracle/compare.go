package oracle

import (
	"errors"
	"fmt"
	"math"

	"github.com/born-ml/fusedcheck/internal/fused"
)

// ErrMismatch is returned when an actual gradient exceeds the tolerance.
var ErrMismatch = errors.New("oracle: gradients differ")

// Tolerance is the element-wise acceptance rule
// |actual - expected| <= ATol + RTol*|expected|.
type Tolerance struct {
	RTol float64
	ATol float64
}

// DefaultTolerance returns rtol 1e-5, atol 2e-2.
func DefaultTolerance() Tolerance {
	return Tolerance{RTol: 1e-5, ATol: 2e-2}
}

// Allowed returns the permitted deviation around expected.
func (t Tolerance) Allowed(expected float64) float64 {
	return t.ATol + t.RTol*math.Abs(expected)
}

// Mismatch describes the first offending element of one gradient.
type Mismatch struct {
	Name       string  // gradient name
	Position   int     // canonical position
	Index      int     // first offending flat index
	Expected   float64 // reference value
	Actual     float64 // fused value
	Deviation  float64 // |actual - expected|
	Allowed    float64 // atol + rtol*|expected|
	Violations int     // offending elements in this gradient
	Elements   int     // elements in this gradient
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s (position %d): %d/%d elements differ, first at %d: actual %g, expected %g, deviation %g > %g",
		m.Name, m.Position, m.Violations, m.Elements, m.Index, m.Actual, m.Expected, m.Deviation, m.Allowed)
}

// AllClose compares two equally sized slices. It reports the first violation
// and the violation count; ok is true when there are none. NaN never matches.
func (t Tolerance) AllClose(expected, actual []float64) (first, violations int, ok bool) {
	first = -1
	for i := range expected {
		dev := math.Abs(actual[i] - expected[i])
		if dev <= t.Allowed(expected[i]) {
			continue
		}
		if first < 0 {
			first = i
		}
		violations++
	}
	return first, violations, violations == 0
}

// Compare matches actual against expected position by position. Names and
// shapes must line up; a structural difference is an error, numeric
// differences are returned as mismatches.
func Compare(expected, actual fused.GradientSet, tol Tolerance) ([]Mismatch, error) {
	if len(expected) != len(actual) {
		return nil, fmt.Errorf("%w: expected %d gradients, got %d", ErrMismatch, len(expected), len(actual))
	}

	var mismatches []Mismatch
	for pos := range expected {
		e, a := expected[pos], actual[pos]
		if e.Name != a.Name {
			return nil, fmt.Errorf("%w: position %d holds %q, want %q", ErrMismatch, pos, a.Name, e.Name)
		}
		if !e.Tensor.Shape().Equal(a.Tensor.Shape()) {
			return nil, fmt.Errorf("%w: %s has shape %v, want %v", ErrMismatch, e.Name, a.Tensor.Shape(), e.Tensor.Shape())
		}

		ev, av := e.Tensor.Float64s(), a.Tensor.Float64s()
		first, violations, ok := tol.AllClose(ev, av)
		if ok {
			continue
		}
		mismatches = append(mismatches, Mismatch{
			Name:       e.Name,
			Position:   pos,
			Index:      first,
			Expected:   ev[first],
			Actual:     av[first],
			Deviation:  math.Abs(av[first] - ev[first]),
			Allowed:    tol.Allowed(ev[first]),
			Violations: violations,
			Elements:   len(ev),
		})
	}
	return mismatches, nil
}
