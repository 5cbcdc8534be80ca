package isctest

import (
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrInvalidThreshold = errors.New("NaN tolerance threshold must be strictly between 0 and 1")
	ErrUnknownMode      = errors.New("unknown correlation mode")
	ErrUnknownSummary   = errors.New("unknown summary statistic")
)

// Mode selects the correlation topology: intersubject correlations are
// computed either between every pair of subjects, or between each subject and
// the average of all remaining subjects.
type Mode int

const (
	// Pairwise computes one correlation per unordered subject pair.
	Pairwise Mode = iota
	// LeaveOneOut computes one correlation per subject, against the mean
	// series of the other subjects.
	LeaveOneOut
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case Pairwise:
		return "pairwise"
	case LeaveOneOut:
		return "leave-one-out"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// minSubjects returns the smallest subject count that makes the mode
// meaningful: two for pairwise, three for leave-one-out so that the "rest"
// is never a single subject's own reflection.
func (m Mode) minSubjects() int {
	if m == LeaveOneOut {
		return 3
	}
	return 2
}

// Summary selects how per-pair or per-subject correlations are reduced to a
// single statistic per voxel.
type Summary int

const (
	// SummaryNone keeps one value per pair (or per subject) per voxel.
	SummaryNone Summary = iota
	// SummaryMean reduces with the arithmetic mean, ignoring NaNs.
	SummaryMean
	// SummaryMedian reduces with the median, ignoring NaNs.
	SummaryMedian
)

// String implements fmt.Stringer.
func (s Summary) String() string {
	switch s {
	case SummaryNone:
		return "none"
	case SummaryMean:
		return "mean"
	case SummaryMedian:
		return "median"
	default:
		return fmt.Sprintf("Summary(%d)", int(s))
	}
}

// NaNPolicy decides, sample by sample, whether enough non-NaN subject values
// exist to average the remaining subjects in the leave-one-out approach.
// The zero value tolerates NaNs: any non-NaN value is enough to form a mean.
//
// The policy applies only to the leave-one-out averaging step. The pairwise
// approach correlates two single-subject series directly, has no "average of
// the rest" to gate, and deliberately ignores the policy.
type NaNPolicy struct {
	strict      bool
	minFraction float64
}

// TolerateNaNs returns the policy that ignores missing values when averaging:
// the mean is taken over whatever values are present, down to a single one.
// Only an all-NaN sample produces NaN.
func TolerateNaNs() NaNPolicy { return NaNPolicy{} }

// RejectNaNs returns the strict policy: a single missing value among the
// averaged subjects makes the result NaN.
func RejectNaNs() NaNPolicy { return NaNPolicy{strict: true} }

// NaNThreshold returns the policy that requires at least the given fraction
// of subjects to be non-NaN before averaging; below the threshold the result
// is NaN. The fraction must be strictly between 0 and 1.
func NaNThreshold(fraction float64) (NaNPolicy, error) {
	if fraction <= 0 || fraction >= 1 || math.IsNaN(fraction) {
		return NaNPolicy{}, ErrInvalidThreshold
	}
	return NaNPolicy{minFraction: fraction}, nil
}

// mean averages one sample across subjects under the policy. NaN marks an
// insufficient or empty sample.
func (p NaNPolicy) mean(values []float64) float64 {
	var sum float64
	var present int
	for _, value := range values {
		if math.IsNaN(value) {
			if p.strict {
				return math.NaN()
			}
			continue
		}
		sum += value
		present++
	}

	if present == 0 {
		return math.NaN()
	}
	if p.minFraction > 0 && float64(present)/float64(len(values)) < p.minFraction {
		return math.NaN()
	}
	return sum / float64(present)
}

// ISCParams configures a call to ISC.
type ISCParams struct {
	Mode    Mode
	Summary Summary
	// NaNs gates the leave-one-out averaging step. Ignored in pairwise mode.
	NaNs NaNPolicy
}

// ISC computes intersubject correlations for the ensemble. In pairwise mode
// the result has one row per unordered subject pair, in order (0,1), (0,2),
// ..., (n-2,n-1); in leave-one-out mode one row per subject. Each row holds
// one Pearson correlation per voxel. With SummaryMean or SummaryMedian the
// rows are reduced to a single summarized row.
//
// Degenerate series (zero variance, or containing NaN where the policy does
// not apply) yield NaN correlations for the affected voxel rather than an
// error; NaNs are the per-voxel "insufficient data" marker throughout this
// package.
func ISC(e *Ensemble, params ISCParams) ([][]float64, error) {
	if e == nil || e.NumSubjects() == 0 {
		return nil, ErrEmptyEnsemble
	}

	n := e.NumSubjects()
	if n < params.Mode.minSubjects() {
		return nil, fmt.Errorf("%w: %s needs at least %d subjects, got %d",
			ErrTooFewSubjects, params.Mode, params.Mode.minSubjects(), n)
	}

	var rows [][]float64
	switch params.Mode {
	case Pairwise:
		rows = pairwiseRows(e)
	case LeaveOneOut:
		rows = leaveOneOutRows(e, params.NaNs)
	default:
		return nil, ErrUnknownMode
	}

	if params.Summary == SummaryNone {
		return rows, nil
	}

	reduced, err := summarizeRows(rows, params.Summary)
	if err != nil {
		return nil, err
	}
	return [][]float64{reduced}, nil
}

// pairwiseRows computes the correlation between every unordered subject pair,
// voxel by voxel.
func pairwiseRows(e *Ensemble) [][]float64 {
	n := e.NumSubjects()
	rows := make([][]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			row := make([]float64, e.NumVoxels())
			for v := range row {
				row[v] = stat.Correlation(e.Series(i, v), e.Series(j, v), nil)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// leaveOneOutRows correlates each subject with the policy-gated mean of the
// remaining subjects, voxel by voxel.
func leaveOneOutRows(e *Ensemble, policy NaNPolicy) [][]float64 {
	n := e.NumSubjects()
	rows := make([][]float64, n)
	for s := 0; s < n; s++ {
		rest := leaveOneOutMean(e, s, policy)
		row := make([]float64, e.NumVoxels())
		for v := range row {
			row[v] = stat.Correlation(e.Series(s, v), rest[v], nil)
		}
		rows[s] = row
	}
	return rows
}

// leaveOneOutMean averages all subjects except the excluded one, sample by
// sample under the NaN policy. The result is one series per voxel.
func leaveOneOutMean(e *Ensemble, excluded int, policy NaNPolicy) [][]float64 {
	n := e.NumSubjects()
	rest := make([][]float64, e.NumVoxels())
	values := make([]float64, 0, n-1)

	for v := range rest {
		mean := make([]float64, e.NumTRs())
		for t := 0; t < e.NumTRs(); t++ {
			values = values[:0]
			for s := 0; s < n; s++ {
				if s == excluded {
					continue
				}
				values = append(values, e.Series(s, v)[t])
			}
			mean[t] = policy.mean(values)
		}
		rest[v] = mean
	}
	return rest
}

// summarizeRows reduces a rows-by-voxels matrix to one value per voxel,
// skipping NaN entries. A voxel with no finite values reduces to NaN.
func summarizeRows(rows [][]float64, summary Summary) ([]float64, error) {
	if summary != SummaryMean && summary != SummaryMedian {
		return nil, ErrUnknownSummary
	}
	if len(rows) == 0 {
		return nil, ErrEmptyEnsemble
	}

	nVoxels := len(rows[0])
	reduced := make([]float64, nVoxels)
	finite := make([]float64, 0, len(rows))

	for v := 0; v < nVoxels; v++ {
		finite = finite[:0]
		for _, row := range rows {
			if !math.IsNaN(row[v]) {
				finite = append(finite, row[v])
			}
		}
		if len(finite) == 0 {
			reduced[v] = math.NaN()
			continue
		}

		var err error
		if summary == SummaryMean {
			reduced[v], err = stats.Mean(finite)
		} else {
			reduced[v], err = stats.Median(finite)
		}
		if err != nil {
			reduced[v] = math.NaN()
		}
	}
	return reduced, nil
}
