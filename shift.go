package isctest

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// ShiftParams configures a call to TimeShiftISC or PhaseShiftISC.
type ShiftParams struct {
	Mode    Mode
	Summary Summary
	// NShifts is the number of randomized surrogates; it must be positive.
	NShifts int
	// NaNs gates leave-one-out averaging; ignored in pairwise mode.
	NaNs NaNPolicy
	// Seed makes the run reproducible when non-negative.
	Seed int64
}

// DefaultShiftParams returns the conventional configuration for the given
// mode: median summary, DefaultIterations surrogates, NaN-tolerant
// averaging, and a nondeterministic seed.
func DefaultShiftParams(mode Mode) ShiftParams {
	return ShiftParams{
		Mode:    mode,
		Summary: SummaryMedian,
		NShifts: DefaultIterations,
		NaNs:    TolerateNaNs(),
		Seed:    NoSeed,
	}
}

// seriesPerturb rewrites one subject's series into dst. A perturbation is
// drawn once per subject per round and applied identically to every voxel of
// that subject, preserving the subject's spatial structure.
type seriesPerturb func(dst, src []float64)

// TimeShiftISC runs the circular time-shift randomization test: each
// surrogate rotates subject time series by random offsets, destroying
// temporal alignment across subjects while preserving each series'
// autocorrelation. In pairwise mode all subjects are shifted before one
// pairwise ISC; in leave-one-out mode only the left-out subject is shifted
// against the unshifted mean of the rest, exactly as in TimeFlip.
func TimeShiftISC(e *Ensemble, params ShiftParams) (*NullResult, error) {
	if e == nil || e.NumSubjects() == 0 {
		return nil, ErrEmptyEnsemble
	}

	nTRs := e.NumTRs()
	draw := func(prng *rand.Rand) seriesPerturb {
		offset := prng.IntN(nTRs)
		return func(dst, src []float64) {
			circularShift(dst, src, offset)
		}
	}
	return randomizedSeriesNull(e, params, draw)
}

// PhaseShiftISC runs the phase randomization test: each surrogate replaces
// subject time series by versions with identical amplitude spectra but
// random Fourier phases, preserving autocorrelation while destroying
// intersubject alignment. One set of phase offsets is drawn per subject per
// round and applied across that subject's voxels; the DC component (and the
// Nyquist component for even-length series) is left untouched so the
// surrogate stays real with the original mean.
func PhaseShiftISC(e *Ensemble, params ShiftParams) (*NullResult, error) {
	if e == nil || e.NumSubjects() == 0 {
		return nil, ErrEmptyEnsemble
	}

	nTRs := e.NumTRs()
	fft := fourier.NewFFT(nTRs)
	// Positive frequencies that may be rotated freely: everything strictly
	// between DC and (for even lengths) Nyquist.
	nFree := (nTRs - 1) / 2

	coeff := make([]complex128, nTRs/2+1)
	seq := make([]float64, nTRs)
	scale := 1 / float64(nTRs) // gonum FFT round trips unnormalized

	draw := func(prng *rand.Rand) seriesPerturb {
		rotations := make([]complex128, nFree)
		for k := range rotations {
			theta := 2 * math.Pi * prng.Float64()
			rotations[k] = complex(math.Cos(theta), math.Sin(theta))
		}
		return func(dst, src []float64) {
			coeff = fft.Coefficients(coeff, src)
			for k, rot := range rotations {
				coeff[k+1] *= rot
			}
			seq = fft.Sequence(seq, coeff)
			for t, value := range seq {
				dst[t] = value * scale
			}
		}
	}
	return randomizedSeriesNull(e, params, draw)
}

// randomizedSeriesNull is the shared engine behind the series-perturbing
// randomization tests. Each round draws one perturbation per subject in
// ascending subject order from a single seeded engine, applies them
// according to the mode, and appends the summarized statistic to the null
// distribution, mirroring the TimeFlip loop.
func randomizedSeriesNull(e *Ensemble, params ShiftParams, draw func(*rand.Rand) seriesPerturb) (*NullResult, error) {
	if params.NShifts <= 0 {
		return nil, fmt.Errorf("%w: got %d surrogates", ErrInvalidIterations, params.NShifts)
	}

	n := e.NumSubjects()
	if n < params.Mode.minSubjects() {
		return nil, fmt.Errorf("%w: %s needs at least %d subjects, got %d",
			ErrTooFewSubjects, params.Mode, params.Mode.minSubjects(), n)
	}

	obsRows, err := ISC(e, ISCParams{Mode: params.Mode, Summary: SummaryNone, NaNs: params.NaNs})
	if err != nil {
		return nil, err
	}
	observed, err := roundStatistic(obsRows, params.Summary)
	if err != nil {
		return nil, err
	}

	prng, seeded := newEngine(params.Seed)

	var restMeans [][][]float64
	if params.Mode == LeaveOneOut {
		restMeans = make([][][]float64, n)
		for s := range restMeans {
			restMeans[s] = leaveOneOutMean(e, s, params.NaNs)
		}
	}

	var work *Ensemble
	if params.Mode == Pairwise {
		work = e.Clone()
	}

	perturbs := make([]seriesPerturb, n)
	buf := make([]float64, e.NumTRs())
	distribution := make([][]float64, 0, params.NShifts)

	for i := 0; i < params.NShifts; i++ {
		for s := range perturbs {
			perturbs[s] = draw(prng)
		}

		var rows [][]float64
		if params.Mode == Pairwise {
			for s := 0; s < n; s++ {
				for v := 0; v < e.NumVoxels(); v++ {
					perturbs[s](work.series[s][v], e.series[s][v])
				}
			}
			rows = pairwiseRows(work)
		} else {
			rows = make([][]float64, n)
			for s := 0; s < n; s++ {
				row := make([]float64, e.NumVoxels())
				for v := range row {
					perturbs[s](buf, e.Series(s, v))
					row[v] = stat.Correlation(buf, restMeans[s][v], nil)
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

// circularShift rotates src forward by offset samples into dst.
func circularShift(dst, src []float64, offset int) {
	n := len(src)
	for t, value := range src {
		dst[(t+offset)%n] = value
	}
}
