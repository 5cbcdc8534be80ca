package isctest

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TTestResult holds the per-voxel outcome of the parametric baseline test.
type TTestResult struct {
	// T is the t-statistic per voxel.
	T []float64
	// P is the two-sided p-value per voxel.
	P []float64
}

// TTest1Samp runs a one-sample two-sided t-test per voxel against a zero
// population mean, on a matrix of precomputed ISC values (one row per
// subject or pair, as returned by ISC with SummaryNone). It is the
// parametric baseline the randomization tests are calibrated against; its
// normality assumption is exactly what the calibration questions.
//
// NaN entries are dropped per voxel. A voxel with fewer than two finite
// values yields NaN, and a zero-variance voxel yields an infinite
// t-statistic with p = 0 (or NaN when the mean is also zero).
func TTest1Samp(iscs [][]float64) (*TTestResult, error) {
	if len(iscs) == 0 || len(iscs[0]) == 0 {
		return nil, ErrEmptyEnsemble
	}

	nVoxels := len(iscs[0])
	result := &TTestResult{
		T: make([]float64, nVoxels),
		P: make([]float64, nVoxels),
	}

	finite := make([]float64, 0, len(iscs))
	for v := 0; v < nVoxels; v++ {
		finite = finite[:0]
		for _, row := range iscs {
			if len(row) != nVoxels {
				return nil, ErrMismatchedShape
			}
			if !math.IsNaN(row[v]) {
				finite = append(finite, row[v])
			}
		}

		result.T[v], result.P[v] = tTestScalar(finite)
	}
	return result, nil
}

func tTestScalar(values []float64) (t, p float64) {
	n := len(values)
	if n < 2 {
		return math.NaN(), math.NaN()
	}

	mean, stddev := stat.MeanStdDev(values, nil)
	if stddev == 0 {
		if mean == 0 {
			return math.NaN(), math.NaN()
		}
		return math.Inf(int(math.Copysign(1, mean))), 0
	}

	t = mean / (stddev / math.Sqrt(float64(n)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	p = 2 * dist.CDF(-math.Abs(t))
	return t, p
}
