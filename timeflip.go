// MIT License
//
// Copyright (c) 2025 David L Kinney <david@pinkhop.com> <david@kinney.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
// FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS
// IN THE SOFTWARE.

// Package isctest implements intersubject correlation (ISC) statistics and
// nonparametric significance tests for them, for calibrating the tests'
// false-positive rates on simulated data. ISC quantifies shared structure in
// per-subject response time series, either between every pair of subjects or
// between each subject and the average of the rest (leave-one-out). The
// package's centerpiece is the time-series flipping (sign-flipping)
// randomization test; circular time-shift, phase-randomization, bootstrap,
// permutation, and parametric t-test baselines round out the suite.
//
// Citation: Samuel A. Nastase, Valeria Gazzola, Uri Hasson and Christian
// Keysers (2019), Measuring shared responses across subjects using
// intersubject correlation, Social Cognitive and Affective Neuroscience,
// 14(6), 667-685.
package isctest

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"
)

// DefaultIterations is the number of randomizations used when callers have no
// reason to choose otherwise.
const DefaultIterations = 1000

// NoSeed requests a nondeterministically seeded randomization. Results from
// unseeded runs are not reproducible; NullResult.Seeded reports which kind of
// run produced it.
const NoSeed int64 = -1

var ErrInvalidIterations = errors.New("iteration count must be a positive integer")

// NullResult is the outcome of a randomization test: the observed statistic,
// its empirical two-sided p-value, and the full null distribution for
// diagnostics. All three share the same element layout: one element per voxel
// when a reducing Summary was used, otherwise one element per (row, voxel)
// in row-major order, where rows are subject pairs (pairwise) or subjects
// (leave-one-out).
type NullResult struct {
	// Observed holds the statistic computed on the unperturbed data.
	Observed []float64
	// P holds the two-sided empirical p-value per element.
	P []float64
	// Distribution is the null distribution, indexed [iteration][element].
	Distribution [][]float64
	// Seeded is false when the run used a nondeterministic seed and is
	// therefore not reproducible.
	Seeded bool
}

// TimeFlipParams configures a call to TimeFlip.
type TimeFlipParams struct {
	Mode    Mode
	Summary Summary
	// NFlips is the number of randomized sign flips. It must be positive;
	// use DefaultIterations when in doubt.
	NFlips int
	// NaNs gates leave-one-out averaging; ignored in pairwise mode.
	NaNs NaNPolicy
	// Seed makes the run reproducible when non-negative. NoSeed (or any
	// negative value) draws a nondeterministic seed.
	Seed int64
}

// DefaultTimeFlipParams returns the conventional configuration for the given
// mode: median summary, DefaultIterations flips, NaN-tolerant averaging, and
// a nondeterministic seed.
func DefaultTimeFlipParams(mode Mode) TimeFlipParams {
	return TimeFlipParams{
		Mode:    mode,
		Summary: SummaryMedian,
		NFlips:  DefaultIterations,
		NaNs:    TolerateNaNs(),
		Seed:    NoSeed,
	}
}

// TimeFlip runs the time-series flipping randomization test for one-sample
// ISC significance. Series are mean-centered, the observed ISC statistic is
// computed, and then NFlips rounds build a null distribution by multiplying
// series by random +/-1 signs, which destroys true intersubject correlation
// while preserving each series' marginal structure around zero.
//
// In pairwise mode every subject's series is flipped by its drawn sign and
// one pairwise ISC is computed on the fully flipped ensemble. In
// leave-one-out mode only the left-out subject's series is flipped in each
// of the round's correlations; the averaged remainder stays unflipped, so
// the perturbation targets exactly the subject whose agreement is being
// tested.
//
// A fixed non-negative seed makes the returned result reproducible
// bit-for-bit: one pseudo-random engine is seeded up front and advanced in a
// fixed draw order (one sign per subject, subjects ascending, rounds
// sequential).
func TimeFlip(e *Ensemble, params TimeFlipParams) (*NullResult, error) {
	if e == nil || e.NumSubjects() == 0 {
		return nil, ErrEmptyEnsemble
	}
	if params.NFlips <= 0 {
		return nil, fmt.Errorf("%w: got %d flips", ErrInvalidIterations, params.NFlips)
	}

	n := e.NumSubjects()
	if n < params.Mode.minSubjects() {
		return nil, fmt.Errorf("%w: %s needs at least %d subjects, got %d",
			ErrTooFewSubjects, params.Mode, params.Mode.minSubjects(), n)
	}

	// Flipping is only a meaningful null operation around zero.
	centered := e.Centered()

	obsRows, err := ISC(centered, ISCParams{Mode: params.Mode, Summary: SummaryNone, NaNs: params.NaNs})
	if err != nil {
		return nil, err
	}
	observed, err := roundStatistic(obsRows, params.Summary)
	if err != nil {
		return nil, err
	}

	prng, seeded := newEngine(params.Seed)

	// The mean of the non-left-out subjects never changes across rounds, so
	// it is computed once per subject up front.
	var restMeans [][][]float64
	if params.Mode == LeaveOneOut {
		restMeans = make([][][]float64, n)
		for s := range restMeans {
			restMeans[s] = leaveOneOutMean(centered, s, params.NaNs)
		}
	}

	var work *Ensemble
	if params.Mode == Pairwise {
		work = centered.Clone()
	}

	flips := make([]float64, n)
	buf := make([]float64, e.NumTRs())
	distribution := make([][]float64, 0, params.NFlips)

	for i := 0; i < params.NFlips; i++ {
		drawFlips(prng, flips)

		var rows [][]float64
		if params.Mode == Pairwise {
			for s := 0; s < n; s++ {
				for v := 0; v < e.NumVoxels(); v++ {
					copy(work.series[s][v], centered.series[s][v])
				}
				if flips[s] < 0 {
					work.scaleSubject(s, -1)
				}
			}
			rows = pairwiseRows(work)
		} else {
			rows = make([][]float64, n)
			for s := 0; s < n; s++ {
				row := make([]float64, e.NumVoxels())
				for v := range row {
					series := centered.Series(s, v)
					if flips[s] < 0 {
						for t, value := range series {
							buf[t] = -value
						}
						series = buf
					}
					row[v] = stat.Correlation(series, restMeans[s][v], nil)
				}
				rows[s] = row
			}
		}

		statistic, err := roundStatistic(rows, params.Summary)
		if err != nil {
			return nil, err
		}
		distribution = append(distribution, statistic)
	}

	return &NullResult{
		Observed:     observed,
		P:            PFromNull(observed, distribution, TwoSided, false),
		Distribution: distribution,
		Seeded:       seeded,
	}, nil
}

// newEngine returns the pseudo-random engine for a randomization run and
// whether it was deterministically seeded. Negative seeds draw entropy from
// the global generator instead.
func newEngine(seed int64) (*rand.Rand, bool) {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), false
	}
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)), true
}

// drawFlips fills dst with independent uniform +/-1 signs, one per subject.
func drawFlips(prng *rand.Rand, dst []float64) {
	for s := range dst {
		if prng.IntN(2) == 0 {
			dst[s] = 1
		} else {
			dst[s] = -1
		}
	}
}

// roundStatistic turns the per-round correlation rows into the statistic
// vector stored in the null distribution: the summarized per-voxel values,
// or the rows flattened row-major when no summary is requested.
func roundStatistic(rows [][]float64, summary Summary) ([]float64, error) {
	if summary != SummaryNone {
		return summarizeRows(rows, summary)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyEnsemble
	}
	flat := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return flat, nil
}
