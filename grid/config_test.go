package grid

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	isctest "github.com/pinkhop/isctest-go"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, AllTestKinds(), kinds)
	assert.Equal(t, isctest.LeaveOneOut, cfg.Mode())
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sweep.yaml")
	raw := `
tests: [timeflip, ttest]
subjects: [5, 10]
durations: [100]
pairwise: true
seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int{5, 10}, cfg.Subjects)
	assert.Equal(t, []int{100}, cfg.Durations)
	assert.Equal(t, isctest.Pairwise, cfg.Mode())
	assert.Equal(t, int64(42), cfg.Seed)
	// Omitted fields keep their defaults.
	assert.Equal(t, isctest.DefaultIterations, cfg.Randomizations)
	assert.Equal(t, 0.0, cfg.R)

	kinds, err := cfg.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []TestKind{TestTimeFlip, TestTTest}, kinds)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Subjects:       []int{5},
			Durations:      []int{50},
			Randomizations: 100,
			Seed:           42,
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		expected error
	}{
		{
			name:     "unknown test name",
			mutate:   func(c *Config) { c.Tests = []string{"anova"} },
			expected: ErrUnknownTestKind,
		},
		{
			name:     "no subjects",
			mutate:   func(c *Config) { c.Subjects = nil },
			expected: ErrNoCells,
		},
		{
			name:     "no durations",
			mutate:   func(c *Config) { c.Durations = nil },
			expected: ErrNoCells,
		},
		{
			name:     "too few subjects for leave-one-out",
			mutate:   func(c *Config) { c.Subjects = []int{2} },
			expected: ErrBadSubjects,
		},
		{
			name:     "non-positive duration",
			mutate:   func(c *Config) { c.Durations = []int{0} },
			expected: ErrBadDuration,
		},
		{
			name:     "non-positive randomizations",
			mutate:   func(c *Config) { c.Randomizations = 0 },
			expected: isctest.ErrInvalidIterations,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.expected)
		})
	}
}

func TestConfig_PairwiseAllowsTwoSubjects(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Subjects:       []int{2},
		Durations:      []int{50},
		Pairwise:       true,
		Randomizations: 100,
		Seed:           42,
	}
	assert.NoError(t, cfg.Validate())
}
