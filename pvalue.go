package isctest

import (
	"fmt"
	"math"
)

// Side selects the tail(s) of the null distribution a p-value accounts for.
type Side int

const (
	// TwoSided counts null values at least as extreme as the observed
	// statistic in either tail.
	TwoSided Side = iota
	// LeftSided counts null values less than or equal to the observed
	// statistic.
	LeftSided
	// RightSided counts null values greater than or equal to the observed
	// statistic.
	RightSided
)

// String implements fmt.Stringer.
func (s Side) String() string {
	switch s {
	case TwoSided:
		return "two-sided"
	case LeftSided:
		return "left-sided"
	case RightSided:
		return "right-sided"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// PFromNull estimates an empirical p-value per element from a randomization
// null distribution. The distribution is indexed [iteration][element] and
// every iteration must have the same width as observed.
//
// Comparisons are inclusive, so the observed value always counts itself when
// it appears in the null distribution. NaN entries in the null distribution
// mark iterations with insufficient data and are excluded from both the
// numerator and the denominator. A NaN observed value, or an element whose
// null distribution is entirely NaN, yields a NaN p-value.
//
// With exact=false (the usual choice for randomization tests) the estimate
// is (k+1)/(n+1), which never reports an exact-zero p-value; exact=true
// returns the raw proportion k/n.
func PFromNull(observed []float64, distribution [][]float64, side Side, exact bool) []float64 {
	p := make([]float64, len(observed))
	for i, obs := range observed {
		p[i] = pFromNullScalar(obs, distribution, i, side, exact)
	}
	return p
}

func pFromNullScalar(observed float64, distribution [][]float64, elem int, side Side, exact bool) float64 {
	if math.IsNaN(observed) {
		return math.NaN()
	}

	var extreme, total int
	for _, iteration := range distribution {
		value := iteration[elem]
		if math.IsNaN(value) {
			continue
		}
		total++

		switch side {
		case LeftSided:
			if value <= observed {
				extreme++
			}
		case RightSided:
			if value >= observed {
				extreme++
			}
		default:
			if math.Abs(value) >= math.Abs(observed) {
				extreme++
			}
		}
	}

	if total == 0 {
		return math.NaN()
	}
	if exact {
		return float64(extreme) / float64(total)
	}
	return float64(extreme+1) / float64(total+1)
}
