package isctest

import (
	"fmt"
	"math"
)

// PermutationParams configures a call to PermutationISC.
type PermutationParams struct {
	// Mode states which topology produced the ISC matrix: one row per
	// subject (LeaveOneOut) or one row per unordered pair (Pairwise).
	Mode Mode
	// Summary reduces rows to one value per voxel; it must be SummaryMean
	// or SummaryMedian.
	Summary Summary
	// NPerms is the number of sign permutations; it must be positive.
	NPerms int
	// Seed makes the run reproducible when non-negative.
	Seed int64
}

// DefaultPermutationParams returns the conventional configuration for the
// given mode: median summary, DefaultIterations permutations,
// nondeterministic seed.
func DefaultPermutationParams(mode Mode) PermutationParams {
	return PermutationParams{Mode: mode, Summary: SummaryMedian, NPerms: DefaultIterations, Seed: NoSeed}
}

// PermutationISC runs a one-sample sign permutation test on a matrix of
// precomputed ISC values (as returned by ISC with SummaryNone). Each
// permutation draws a random +/-1 sign per subject; a leave-one-out row is
// multiplied by its subject's sign, and a pairwise row for subjects (i, j)
// by the product of their signs. The summarized signed rows form the null
// distribution and the p-value is the usual inclusive two-sided count with
// the +1 correction.
func PermutationISC(iscs [][]float64, params PermutationParams) (*NullResult, error) {
	if len(iscs) == 0 || len(iscs[0]) == 0 {
		return nil, ErrEmptyEnsemble
	}
	if params.NPerms <= 0 {
		return nil, fmt.Errorf("%w: got %d permutations", ErrInvalidIterations, params.NPerms)
	}

	nSubjects, err := subjectsForRows(len(iscs), params.Mode)
	if err != nil {
		return nil, err
	}

	observed, err := summarizeRows(iscs, params.Summary)
	if err != nil {
		return nil, err
	}

	prng, seeded := newEngine(params.Seed)

	signs := make([]float64, nSubjects)
	signed := make([][]float64, len(iscs))
	for r := range signed {
		signed[r] = make([]float64, len(iscs[0]))
	}
	distribution := make([][]float64, 0, params.NPerms)

	for i := 0; i < params.NPerms; i++ {
		drawFlips(prng, signs)

		if params.Mode == Pairwise {
			r := 0
			for a := 0; a < nSubjects; a++ {
				for b := a + 1; b < nSubjects; b++ {
					applySign(signed[r], iscs[r], signs[a]*signs[b])
					r++
				}
			}
		} else {
			for s := 0; s < nSubjects; s++ {
				applySign(signed[s], iscs[s], signs[s])
			}
		}

		permuted, err := summarizeRows(signed, params.Summary)
		if err != nil {
			return nil, err
		}
		distribution = append(distribution, permuted)
	}

	return &NullResult{
		Observed:     observed,
		P:            PFromNull(observed, distribution, TwoSided, false),
		Distribution: distribution,
		Seeded:       seeded,
	}, nil
}

// subjectsForRows recovers the subject count behind an ISC matrix: the row
// count itself for leave-one-out, or the n solving n*(n-1)/2 = rows for
// pairwise. A pairwise row count that is not a triangular number is a shape
// error.
func subjectsForRows(rows int, mode Mode) (int, error) {
	if mode != Pairwise {
		if rows < LeaveOneOut.minSubjects() {
			return 0, fmt.Errorf("%w: %s needs at least %d subjects, got %d",
				ErrTooFewSubjects, mode, LeaveOneOut.minSubjects(), rows)
		}
		return rows, nil
	}

	n := int(math.Round((1 + math.Sqrt(1+8*float64(rows))) / 2))
	if n < Pairwise.minSubjects() || n*(n-1)/2 != rows {
		return 0, fmt.Errorf("%w: %d rows is not a valid pair count", ErrMismatchedShape, rows)
	}
	return n, nil
}

// applySign writes sign*src into dst, preserving NaNs.
func applySign(dst, src []float64, sign float64) {
	for v, value := range src {
		dst[v] = sign * value
	}
}
