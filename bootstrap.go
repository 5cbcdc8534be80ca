package isctest

import (
	"fmt"
)

// BootstrapParams configures a call to BootstrapISC.
type BootstrapParams struct {
	// Summary reduces the resampled rows to one value per voxel; it must be
	// SummaryMean or SummaryMedian.
	Summary Summary
	// NBoots is the number of bootstrap resamples; it must be positive.
	NBoots int
	// Seed makes the run reproducible when non-negative.
	Seed int64
}

// DefaultBootstrapParams returns the conventional bootstrap configuration:
// median summary, DefaultIterations resamples, nondeterministic seed.
func DefaultBootstrapParams() BootstrapParams {
	return BootstrapParams{Summary: SummaryMedian, NBoots: DefaultIterations, Seed: NoSeed}
}

// BootstrapISC runs a subject-level bootstrap hypothesis test on a matrix of
// precomputed ISC values (one row per subject or pair, one column per voxel,
// as returned by ISC with SummaryNone). Rows are resampled with replacement
// and summarized; the resulting distribution is shifted by the observed
// summary statistic so that it is centered on zero under the null, and the
// returned Distribution holds the shifted values the p-value was counted
// against.
func BootstrapISC(iscs [][]float64, params BootstrapParams) (*NullResult, error) {
	if len(iscs) < 2 || len(iscs[0]) == 0 {
		return nil, ErrEmptyEnsemble
	}
	if params.NBoots <= 0 {
		return nil, fmt.Errorf("%w: got %d bootstraps", ErrInvalidIterations, params.NBoots)
	}

	observed, err := summarizeRows(iscs, params.Summary)
	if err != nil {
		return nil, err
	}

	prng, seeded := newEngine(params.Seed)

	n := len(iscs)
	sample := make([][]float64, n)
	distribution := make([][]float64, 0, params.NBoots)

	for i := 0; i < params.NBoots; i++ {
		for s := range sample {
			sample[s] = iscs[prng.IntN(n)]
		}

		resampled, err := summarizeRows(sample, params.Summary)
		if err != nil {
			return nil, err
		}
		for v, value := range resampled {
			resampled[v] = value - observed[v]
		}
		distribution = append(distribution, resampled)
	}

	return &NullResult{
		Observed:     observed,
		P:            PFromNull(observed, distribution, TwoSided, false),
		Distribution: distribution,
		Seeded:       seeded,
	}, nil
}
