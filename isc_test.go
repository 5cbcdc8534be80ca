package isctest

import (
	"errors"
	"math"
	"testing"
)

const floatToleranceForISCTest = 1e-9

func TestISC_Pairwise(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	// GIVEN three subjects with exactly linear relationships

	ensemble, err := NewEnsembleFromSeries([][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},  // perfectly correlated with subject 0
		{4, 3, 2, 1},  // perfectly anticorrelated with subjects 0 and 1
	})
	if err != nil {
		t.Fatalf("NewEnsembleFromSeries failed: %v", err)
	}

	// WHEN computing pairwise ISCs without a summary

	rows, err := ISC(ensemble, ISCParams{Mode: Pairwise, Summary: SummaryNone})
	if err != nil {
		t.Fatalf("ISC failed: %v", err)
	}

	// THEN rows follow the (0,1), (0,2), (1,2) pair order

	expected := []float64{1, -1, -1}
	if len(rows) != len(expected) {
		t.Fatalf("expected %d pair rows, got %d", len(expected), len(rows))
	}
	for p, row := range rows {
		if !almostEqual(row[0], expected[p], floatToleranceForISCTest) {
			t.Errorf("pair %d: expected r=%v, got %v", p, expected[p], row[0])
		}
	}
}

func TestISC_PairwiseSummaries(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	ensemble, err := NewEnsembleFromSeries([][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},
		{4, 3, 2, 1},
	})
	if err != nil {
		t.Fatalf("NewEnsembleFromSeries failed: %v", err)
	}

	type TestCase struct {
		Name     string
		Summary  Summary
		Expected float64
	}

	// Pair correlations are {1, -1, -1}.
	testCases := []TestCase{
		{Name: "mean", Summary: SummaryMean, Expected: -1.0 / 3.0},
		{Name: "median", Summary: SummaryMedian, Expected: -1},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			rows, err := ISC(ensemble, ISCParams{Mode: Pairwise, Summary: tc.Summary})
			if err != nil {
				t.Fatalf("ISC failed: %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("expected a single summarized row, got %d rows", len(rows))
			}
			if !almostEqual(rows[0][0], tc.Expected, floatToleranceForISCTest) {
				t.Errorf("expected %s summary %v, got %v", tc.Summary, tc.Expected, rows[0][0])
			}
		})
	}
}

func TestISC_LeaveOneOut(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	// Every subject is a positive scaling of the same ramp, so each one
	// correlates perfectly with the mean of the others.
	ensemble, err := NewEnsembleFromSeries([][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},
		{3, 6, 9, 12},
	})
	if err != nil {
		t.Fatalf("NewEnsembleFromSeries failed: %v", err)
	}

	rows, err := ISC(ensemble, ISCParams{Mode: LeaveOneOut, Summary: SummaryNone, NaNs: TolerateNaNs()})
	if err != nil {
		t.Fatalf("ISC failed: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected one row per subject, got %d rows", len(rows))
	}
	for s, row := range rows {
		if !almostEqual(row[0], 1, floatToleranceForISCTest) {
			t.Errorf("subject %d: expected r=1 against the rest, got %v", s, row[0])
		}
	}
}

func TestISC_LeaveOneOutNaNPolicies(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	mustThreshold := func(f float64) NaNPolicy {
		policy, err := NaNThreshold(f)
		if err != nil {
			t.Fatalf("NaNThreshold(%v) failed: %v", f, err)
		}
		return policy
	}

	type TestCase struct {
		Name      string
		Policy    NaNPolicy
		ExpectNaN bool
	}

	// Subject 2 is missing its second sample, so the leave-subject-0-out
	// average has one sample backed by a single subject. With two averaged
	// subjects the present fraction at that sample is 1/2.
	testCases := []TestCase{
		{Name: "tolerate NaNs", Policy: TolerateNaNs(), ExpectNaN: false},
		{Name: "reject NaNs", Policy: RejectNaNs(), ExpectNaN: true},
		{Name: "threshold below present fraction", Policy: mustThreshold(0.4), ExpectNaN: false},
		{Name: "threshold above present fraction", Policy: mustThreshold(0.75), ExpectNaN: true},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			ensemble, err := NewEnsembleFromSeries([][]float64{
				{1, 2, 3, 4},
				{1, 2, 3, 4},
				{1, math.NaN(), 3, 4},
			})
			if err != nil {
				t.Fatalf("NewEnsembleFromSeries failed: %v", err)
			}

			rows, err := ISC(ensemble, ISCParams{Mode: LeaveOneOut, Summary: SummaryNone, NaNs: tc.Policy})
			if err != nil {
				t.Fatalf("ISC failed: %v", err)
			}

			// Subject 0 against the mean of subjects 1 and 2.
			actual := rows[0][0]
			if tc.ExpectNaN {
				if !math.IsNaN(actual) {
					t.Errorf("expected NaN for subject 0, got %v", actual)
				}
			} else {
				// The tolerated average reconstructs the shared ramp exactly.
				if !almostEqual(actual, 1, floatToleranceForISCTest) {
					t.Errorf("expected r=1 for subject 0, got %v", actual)
				}
			}

			// Subject 2's own series contains the NaN, so its row is NaN
			// under every policy.
			if !math.IsNaN(rows[2][0]) {
				t.Errorf("expected NaN for the subject with missing data, got %v", rows[2][0])
			}
		})
	}
}

func TestISC_PairwiseIgnoresNaNPolicy(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	// The strict policy gates only leave-one-out averaging; a NaN-free pair
	// is unaffected even when another subject has missing data.
	ensemble, err := NewEnsembleFromSeries([][]float64{
		{1, 2, 3, 4},
		{2, 4, 6, 8},
		{1, math.NaN(), 3, 4},
	})
	if err != nil {
		t.Fatalf("NewEnsembleFromSeries failed: %v", err)
	}

	rows, err := ISC(ensemble, ISCParams{Mode: Pairwise, Summary: SummaryNone, NaNs: RejectNaNs()})
	if err != nil {
		t.Fatalf("ISC failed: %v", err)
	}

	if !almostEqual(rows[0][0], 1, floatToleranceForISCTest) {
		t.Errorf("expected pair (0,1) r=1 despite strict policy, got %v", rows[0][0])
	}
	if !math.IsNaN(rows[1][0]) {
		t.Errorf("expected pair (0,2) NaN from the missing sample, got %v", rows[1][0])
	}
}

func TestISC_ZeroVarianceYieldsNaN(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	ensemble, err := NewEnsembleFromSeries([][]float64{
		{2, 2, 2, 2},
		{1, 2, 3, 4},
	})
	if err != nil {
		t.Fatalf("NewEnsembleFromSeries failed: %v", err)
	}

	rows, err := ISC(ensemble, ISCParams{Mode: Pairwise, Summary: SummaryNone})
	if err != nil {
		t.Fatalf("ISC failed: %v", err)
	}
	if !math.IsNaN(rows[0][0]) {
		t.Errorf("expected NaN correlation for a constant series, got %v", rows[0][0])
	}
}

func TestISC_TooFewSubjects(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	type TestCase struct {
		Name     string
		Subjects [][]float64
		Mode     Mode
	}

	testCases := []TestCase{
		{
			Name:     "pairwise needs two subjects",
			Subjects: [][]float64{{1, 2, 3}},
			Mode:     Pairwise,
		},
		{
			Name:     "leave-one-out needs three subjects",
			Subjects: [][]float64{{1, 2, 3}, {4, 5, 6}},
			Mode:     LeaveOneOut,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			ensemble, err := NewEnsembleFromSeries(tc.Subjects)
			if err != nil {
				t.Fatalf("NewEnsembleFromSeries failed: %v", err)
			}

			_, err = ISC(ensemble, ISCParams{Mode: tc.Mode})
			if !errors.Is(err, ErrTooFewSubjects) {
				t.Errorf("expected ErrTooFewSubjects, got %v", err)
			}
		})
	}
}

func TestNaNThreshold_Validation(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	for _, invalid := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		if _, err := NaNThreshold(invalid); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("NaNThreshold(%v): expected ErrInvalidThreshold, got %v", invalid, err)
		}
	}
	if _, err := NaNThreshold(0.5); err != nil {
		t.Errorf("NaNThreshold(0.5): unexpected error %v", err)
	}
}

func TestNaNPolicy_Mean(t *testing.T) {
	t.Parallel() // this test is stateless and can be run in parallel with other tests

	mustThreshold := func(f float64) NaNPolicy {
		policy, err := NaNThreshold(f)
		if err != nil {
			t.Fatalf("NaNThreshold(%v) failed: %v", f, err)
		}
		return policy
	}

	type TestCase struct {
		Name     string
		Policy   NaNPolicy
		Values   []float64
		Expected float64 // NaN for the insufficient-data marker
	}

	testCases := []TestCase{
		{
			Name:     "tolerant mean skips NaN",
			Policy:   TolerateNaNs(),
			Values:   []float64{1, 2, math.NaN()},
			Expected: 1.5,
		},
		{
			Name:     "tolerant mean of all-NaN is NaN",
			Policy:   TolerateNaNs(),
			Values:   []float64{math.NaN(), math.NaN()},
			Expected: math.NaN(),
		},
		{
			Name:     "strict mean rejects any NaN",
			Policy:   RejectNaNs(),
			Values:   []float64{1, 2, math.NaN()},
			Expected: math.NaN(),
		},
		{
			Name:     "strict mean of complete values",
			Policy:   RejectNaNs(),
			Values:   []float64{1, 2, 3},
			Expected: 2,
		},
		{
			Name:     "threshold met",
			Policy:   mustThreshold(0.6),
			Values:   []float64{1, 2, math.NaN()}, // 2/3 present
			Expected: 1.5,
		},
		{
			Name:     "threshold not met",
			Policy:   mustThreshold(0.7),
			Values:   []float64{1, 2, math.NaN()},
			Expected: math.NaN(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			actual := tc.Policy.mean(tc.Values)

			if math.IsNaN(tc.Expected) {
				if !math.IsNaN(actual) {
					t.Errorf("expected NaN, got %v", actual)
				}
				return
			}
			if !almostEqual(actual, tc.Expected, floatToleranceForISCTest) {
				t.Errorf("expected %v, got %v", tc.Expected, actual)
			}
		})
	}
}
