package grid

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	isctest "github.com/pinkhop/isctest-go"
)

var (
	ErrNoTests     = errors.New("config selects no tests")
	ErrNoCells     = errors.New("config selects no grid cells")
	ErrBadSubjects = errors.New("config subject counts are too small for the correlation mode")
	ErrBadDuration = errors.New("config durations must be positive")
)

// Config describes one false-positive rate sweep: which tests to calibrate,
// over which grid of subject counts and series durations, on data simulated
// with which true correlation.
type Config struct {
	// Tests lists test kind names (see TestKind.String); empty means all.
	Tests []string `yaml:"tests"`
	// Subjects and Durations span the sweep grid.
	Subjects  []int `yaml:"subjects"`
	Durations []int `yaml:"durations"`
	// R is the true intersubject correlation of the simulated data; 0 is
	// the null case used to estimate false-positive rates.
	R float64 `yaml:"r"`
	// Pairwise selects the pairwise approach; the default is leave-one-out.
	Pairwise bool `yaml:"pairwise"`
	// Randomizations is the iteration count for every randomization test.
	Randomizations int `yaml:"randomizations"`
	// Seed is the base seed from which every cell's data and test seeds are
	// derived. Negative means nondeterministic.
	Seed int64 `yaml:"seed"`
	// Parallelism bounds concurrent grid cells; 0 means GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`
}

// DefaultConfig returns the standard calibration sweep: every test over the
// usual subject-count and duration grid, null data (r=0), leave-one-out,
// 1000 randomizations.
func DefaultConfig() *Config {
	return &Config{
		Subjects:       []int{10, 20, 30, 50, 100, 200, 500, 1000},
		Durations:      []int{50, 100, 300, 500, 1000, 2000},
		R:              0,
		Randomizations: isctest.DefaultIterations,
		Seed:           isctest.NoSeed,
	}
}

// LoadConfig reads a YAML sweep configuration, applying defaults for any
// omitted field.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Mode returns the correlation mode the config selects.
func (c *Config) Mode() isctest.Mode {
	if c.Pairwise {
		return isctest.Pairwise
	}
	return isctest.LeaveOneOut
}

// Kinds resolves the configured test names, defaulting to every kind.
func (c *Config) Kinds() ([]TestKind, error) {
	if len(c.Tests) == 0 {
		return AllTestKinds(), nil
	}

	kinds := make([]TestKind, 0, len(c.Tests))
	for _, name := range c.Tests {
		kind, err := ParseTestKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	kinds, err := c.Kinds()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return ErrNoTests
	}
	if len(c.Subjects) == 0 || len(c.Durations) == 0 {
		return ErrNoCells
	}

	minSubjects := 3
	if c.Pairwise {
		minSubjects = 2
	}
	for _, n := range c.Subjects {
		if n < minSubjects {
			return fmt.Errorf("%w: %d subjects with %s", ErrBadSubjects, n, c.Mode())
		}
	}
	for _, t := range c.Durations {
		if t <= 0 {
			return fmt.Errorf("%w: got %d", ErrBadDuration, t)
		}
	}
	if c.Randomizations <= 0 {
		return fmt.Errorf("%w: got %d randomizations", isctest.ErrInvalidIterations, c.Randomizations)
	}
	return nil
}
