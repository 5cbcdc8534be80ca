// Package sim generates synthetic subject time series with a known,
// controllable intersubject correlation, for calibrating ISC significance
// tests against ground truth. Samples are drawn from a multivariate normal
// whose covariance has a constant off-diagonal, so every subject pair shares
// the same true correlation r; r=0 produces null data for false-positive
// rate estimation.
package sim

import (
	"errors"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	isctest "github.com/pinkhop/isctest-go"
)

var (
	ErrInvalidDimensions   = errors.New("time points, subjects, and voxels must be positive")
	ErrInvalidVariance     = errors.New("variance must be positive")
	ErrNotPositiveDefinite = errors.New("correlation produces a covariance that is not positive definite")
)

type config struct {
	mean     float64
	variance float64
	voxels   int
	seed     int64
}

// Option adjusts the simulated data.
type Option func(*config)

// WithMean sets the common mean of every subject's series (default 0).
func WithMean(mean float64) Option {
	return func(c *config) { c.mean = mean }
}

// WithVariance sets the common variance of every subject's series
// (default 1).
func WithVariance(variance float64) Option {
	return func(c *config) { c.variance = variance }
}

// WithVoxels sets the number of independently simulated voxels (default 1).
func WithVoxels(voxels int) Option {
	return func(c *config) { c.voxels = voxels }
}

// WithSeed makes the simulation reproducible. Negative seeds (the default)
// draw nondeterministic entropy.
func WithSeed(seed int64) Option {
	return func(c *config) { c.seed = seed }
}

// CorrelatedData simulates an ensemble of nSubjects time series of nTRs
// samples in which every subject pair has true correlation r. Each time
// point is one draw from an nSubjects-dimensional normal distribution with
// constant off-diagonal covariance; voxels are drawn independently of each
// other.
//
// r must keep the covariance positive definite, which bounds it to
// (-1/(nSubjects-1), 1); values outside return ErrNotPositiveDefinite.
func CorrelatedData(nTRs, nSubjects int, r float64, opts ...Option) (*isctest.Ensemble, error) {
	cfg := config{variance: 1, voxels: 1, seed: isctest.NoSeed}
	for _, opt := range opts {
		opt(&cfg)
	}

	if nTRs <= 0 || nSubjects <= 0 || cfg.voxels <= 0 {
		return nil, ErrInvalidDimensions
	}
	if cfg.variance <= 0 {
		return nil, ErrInvalidVariance
	}

	mu := make([]float64, nSubjects)
	for i := range mu {
		mu[i] = cfg.mean
	}

	sigma := mat.NewSymDense(nSubjects, nil)
	for i := 0; i < nSubjects; i++ {
		for j := i; j < nSubjects; j++ {
			if i == j {
				sigma.SetSym(i, j, cfg.variance)
			} else {
				sigma.SetSym(i, j, r*cfg.variance)
			}
		}
	}

	normal, ok := distmv.NewNormal(mu, sigma, newSource(cfg.seed))
	if !ok {
		return nil, ErrNotPositiveDefinite
	}

	subjects := make([][][]float64, nSubjects)
	for s := range subjects {
		subjects[s] = make([][]float64, nTRs)
		for t := range subjects[s] {
			subjects[s][t] = make([]float64, cfg.voxels)
		}
	}

	draw := make([]float64, nSubjects)
	for v := 0; v < cfg.voxels; v++ {
		for t := 0; t < nTRs; t++ {
			normal.Rand(draw)
			for s := 0; s < nSubjects; s++ {
				subjects[s][t][v] = draw[s]
			}
		}
	}

	return isctest.NewEnsemble(subjects)
}

// newSource seeds the simulation engine the same way the test package seeds
// its randomization engines.
func newSource(seed int64) rand.Source {
	if seed < 0 {
		return rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	s := uint64(seed)
	return rand.NewPCG(s, s^0x9e3779b97f4a7c15)
}
