package grid

import (
	"errors"
	"fmt"

	isctest "github.com/pinkhop/isctest-go"
)

// TestKind enumerates the significance tests the sweep can calibrate. Every
// kind runs against the same simulated ensemble through a uniform
// run(data, params) -> p-value capability.
type TestKind int

const (
	TestTimeFlip TestKind = iota
	TestTimeShift
	TestPhaseShift
	TestBootstrap
	TestPermutation
	TestTTest
)

var ErrUnknownTestKind = errors.New("unknown test kind")

// AllTestKinds returns every calibratable test, in sweep order.
func AllTestKinds() []TestKind {
	return []TestKind{
		TestTTest,
		TestPermutation,
		TestBootstrap,
		TestPhaseShift,
		TestTimeShift,
		TestTimeFlip,
	}
}

// String implements fmt.Stringer.
func (k TestKind) String() string {
	switch k {
	case TestTimeFlip:
		return "timeflip"
	case TestTimeShift:
		return "timeshift"
	case TestPhaseShift:
		return "phaseshift"
	case TestBootstrap:
		return "bootstrap"
	case TestPermutation:
		return "permutation"
	case TestTTest:
		return "ttest"
	default:
		return fmt.Sprintf("TestKind(%d)", int(k))
	}
}

// ParseTestKind maps a configuration name to its TestKind.
func ParseTestKind(name string) (TestKind, error) {
	for _, kind := range AllTestKinds() {
		if kind.String() == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTestKind, name)
}

// cellParams carries the per-cell settings every test kind shares.
type cellParams struct {
	mode           isctest.Mode
	randomizations int
	seed           int64
}

// run executes the test against the ensemble and returns the p-value of the
// first voxel, which is the whole statistic for single-voxel simulated data.
func (k TestKind) run(e *isctest.Ensemble, params cellParams) (float64, error) {
	switch k {
	case TestTimeFlip:
		result, err := isctest.TimeFlip(e, isctest.TimeFlipParams{
			Mode:    params.mode,
			Summary: isctest.SummaryMedian,
			NFlips:  params.randomizations,
			NaNs:    isctest.TolerateNaNs(),
			Seed:    params.seed,
		})
		if err != nil {
			return 0, err
		}
		return result.P[0], nil

	case TestTimeShift, TestPhaseShift:
		shiftParams := isctest.ShiftParams{
			Mode:    params.mode,
			Summary: isctest.SummaryMedian,
			NShifts: params.randomizations,
			NaNs:    isctest.TolerateNaNs(),
			Seed:    params.seed,
		}
		var result *isctest.NullResult
		var err error
		if k == TestTimeShift {
			result, err = isctest.TimeShiftISC(e, shiftParams)
		} else {
			result, err = isctest.PhaseShiftISC(e, shiftParams)
		}
		if err != nil {
			return 0, err
		}
		return result.P[0], nil

	case TestBootstrap:
		iscs, err := observedISCs(e, params.mode)
		if err != nil {
			return 0, err
		}
		result, err := isctest.BootstrapISC(iscs, isctest.BootstrapParams{
			Summary: isctest.SummaryMedian,
			NBoots:  params.randomizations,
			Seed:    params.seed,
		})
		if err != nil {
			return 0, err
		}
		return result.P[0], nil

	case TestPermutation:
		iscs, err := observedISCs(e, params.mode)
		if err != nil {
			return 0, err
		}
		result, err := isctest.PermutationISC(iscs, isctest.PermutationParams{
			Mode:    params.mode,
			Summary: isctest.SummaryMedian,
			NPerms:  params.randomizations,
			Seed:    params.seed,
		})
		if err != nil {
			return 0, err
		}
		return result.P[0], nil

	case TestTTest:
		iscs, err := observedISCs(e, params.mode)
		if err != nil {
			return 0, err
		}
		result, err := isctest.TTest1Samp(iscs)
		if err != nil {
			return 0, err
		}
		return result.P[0], nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownTestKind, int(k))
	}
}

// observedISCs computes the unreduced ISC matrix the sample-based tests
// consume.
func observedISCs(e *isctest.Ensemble, mode isctest.Mode) ([][]float64, error) {
	return isctest.ISC(e, isctest.ISCParams{
		Mode:    mode,
		Summary: isctest.SummaryNone,
		NaNs:    isctest.TolerateNaNs(),
	})
}
