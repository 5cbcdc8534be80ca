package isctest

import (
	"errors"
	"math"
)

var (
	ErrEmptyEnsemble   = errors.New("empty or nil ensemble")
	ErrMismatchedShape = errors.New("subject time series have mismatched shapes")
	ErrTooFewSubjects  = errors.New("not enough subjects for the requested approach")
)

// Ensemble holds response time series for a group of subjects. Every subject
// contributes one series of NumTRs samples per voxel, and all subjects share
// the same number of time points (TRs) and voxels. Individual samples may be
// NaN to mark missing data.
type Ensemble struct {
	nTRs    int
	nVoxels int

	// series[s][v] is subject s's time series at voxel v, length nTRs.
	// Time-contiguous storage keeps per-voxel correlations cheap.
	series [][][]float64
}

// NewEnsemble builds an Ensemble from per-subject matrices. Each subject
// matrix is indexed [timepoint][voxel], mirroring the usual TRs-by-voxels
// acquisition layout. All subjects must share both dimensions.
func NewEnsemble(subjects [][][]float64) (*Ensemble, error) {
	if len(subjects) == 0 || len(subjects[0]) == 0 || len(subjects[0][0]) == 0 {
		return nil, ErrEmptyEnsemble
	}

	nTRs := len(subjects[0])
	nVoxels := len(subjects[0][0])

	series := make([][][]float64, len(subjects))
	for s, subject := range subjects {
		if len(subject) != nTRs {
			return nil, ErrMismatchedShape
		}

		series[s] = make([][]float64, nVoxels)
		for v := range series[s] {
			series[s][v] = make([]float64, nTRs)
		}

		for t, row := range subject {
			if len(row) != nVoxels {
				return nil, ErrMismatchedShape
			}
			for v, value := range row {
				series[s][v][t] = value
			}
		}
	}

	return &Ensemble{nTRs: nTRs, nVoxels: nVoxels, series: series}, nil
}

// NewEnsembleFromSeries builds a single-voxel Ensemble from one time series
// per subject. This is the common shape for simulated calibration data.
func NewEnsembleFromSeries(subjects [][]float64) (*Ensemble, error) {
	if len(subjects) == 0 || len(subjects[0]) == 0 {
		return nil, ErrEmptyEnsemble
	}

	nTRs := len(subjects[0])

	series := make([][][]float64, len(subjects))
	for s, subject := range subjects {
		if len(subject) != nTRs {
			return nil, ErrMismatchedShape
		}
		voxel := make([]float64, nTRs)
		copy(voxel, subject)
		series[s] = [][]float64{voxel}
	}

	return &Ensemble{nTRs: nTRs, nVoxels: 1, series: series}, nil
}

// NumSubjects returns the number of subjects in the ensemble.
func (e *Ensemble) NumSubjects() int { return len(e.series) }

// NumTRs returns the number of time points per series.
func (e *Ensemble) NumTRs() int { return e.nTRs }

// NumVoxels returns the number of voxels per subject.
func (e *Ensemble) NumVoxels() int { return e.nVoxels }

// Series returns subject s's time series at voxel v. The returned slice
// aliases the ensemble's storage and must not be modified by the caller.
func (e *Ensemble) Series(s, v int) []float64 { return e.series[s][v] }

// Clone returns a deep copy of the ensemble.
func (e *Ensemble) Clone() *Ensemble {
	series := make([][][]float64, len(e.series))
	for s := range e.series {
		series[s] = make([][]float64, e.nVoxels)
		for v := range e.series[s] {
			voxel := make([]float64, e.nTRs)
			copy(voxel, e.series[s][v])
			series[s][v] = voxel
		}
	}
	return &Ensemble{nTRs: e.nTRs, nVoxels: e.nVoxels, series: series}
}

// Centered returns a copy of the ensemble with every series shifted to zero
// temporal mean. The mean is computed over the non-NaN samples of each
// (subject, voxel) series, so missing samples stay NaN without poisoning the
// rest of the series; a series that is entirely NaN is left unchanged.
func (e *Ensemble) Centered() *Ensemble {
	c := e.Clone()
	for s := range c.series {
		for v := range c.series[s] {
			center(c.series[s][v])
		}
	}
	return c
}

// center shifts one series to zero mean over its non-NaN samples, in place.
func center(series []float64) {
	var sum float64
	var count int
	for _, value := range series {
		if !math.IsNaN(value) {
			sum += value
			count++
		}
	}
	if count == 0 {
		return
	}

	mean := sum / float64(count)
	for t, value := range series {
		if !math.IsNaN(value) {
			series[t] = value - mean
		}
	}
}

// scaleSubject multiplies every sample of subject s by factor, in place.
func (e *Ensemble) scaleSubject(s int, factor float64) {
	for v := range e.series[s] {
		voxel := e.series[s][v]
		for t := range voxel {
			voxel[t] *= factor
		}
	}
}
