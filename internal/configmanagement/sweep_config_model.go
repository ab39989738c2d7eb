package configmanagement

import (
	"errors"
	"fmt"
	"strings"
)

// Metric names understood by the summary files.
const (
	MetricWER = "WER"
	MetricPER = "PER"
)

// FirstAvg and LastAvg bound the checkpoint averages that every sweep covers.
// The -start-avg/-end-avg settings are recorded but do not change this range.
const (
	FirstAvg = 1
	LastAvg  = 20
)

// ErrInvalidConfig is returned (wrapped) by Validate.
var ErrInvalidConfig = errors.New("invalid sweep config")

// BeamParams are the fast_beam_search hyperparameters baked into result file names
// and into the tagged line inside each summary file.
type BeamParams struct {
	Beam        float64 `yaml:"beam" json:"beam"`
	MaxContexts int     `yaml:"max_contexts" json:"max_contexts"`
	MaxStates   int     `yaml:"max_states" json:"max_states"`
}

// FileSuffix renders the params the way they appear in result file names,
// e.g. "beam-10.0-max-contexts-8-max-states-64".
func (b BeamParams) FileSuffix() string {
	return fmt.Sprintf("beam-%.1f-max-contexts-%d-max-states-%d", b.Beam, b.MaxContexts, b.MaxStates)
}

// Tag renders the params the way they label the metric line inside a summary file,
// e.g. "beam_10.0_max_contexts_8_max_states_64".
func (b BeamParams) Tag() string {
	return fmt.Sprintf("beam_%.1f_max_contexts_%d_max_states_%d", b.Beam, b.MaxContexts, b.MaxStates)
}

// SweepConfig describes one aggregation run over a set of experiments.
type SweepConfig struct {
	StartEpoch     int        `yaml:"start_epoch" json:"start_epoch"`
	EndEpoch       int        `yaml:"end_epoch" json:"end_epoch"`
	StartAvg       int        `yaml:"start_avg" json:"start_avg"`
	EndAvg         int        `yaml:"end_avg" json:"end_avg"`
	DecodingMethod string     `yaml:"decoding_method" json:"decoding_method"`
	Metric         string     `yaml:"metrics" json:"metrics"`
	ExpNames       []string   `yaml:"exp_names" json:"exp_names"`
	Datasets       []string   `yaml:"datasets" json:"datasets"`
	Beam           BeamParams `yaml:"beam" json:"beam"`

	// ResultsRoot is the directory the experiment directories live in.
	ResultsRoot string `yaml:"results_root" json:"results_root"`
	// OutputDir receives wers_<exp>.txt and missed.txt.
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	// Rescore recomputes missing summaries from recogs-*.txt dumps when present.
	Rescore bool `yaml:"rescore" json:"rescore"`

	DBDriver string `yaml:"db_driver" json:"-"`
	DBDSN    string `yaml:"db_dsn" json:"-"`
	Upload   bool   `yaml:"upload" json:"upload"`
}

// DefaultSweepConfig returns the settings used when nothing else is provided.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		StartEpoch:     20,
		EndEpoch:       30,
		StartAvg:       -1,
		EndAvg:         99999,
		DecodingMethod: "greedy_search",
		Metric:         MetricWER,
		ExpNames:       []string{"exp"},
		Datasets:       []string{"test-clean", "test-other"},
		Beam: BeamParams{
			Beam:        10.0,
			MaxContexts: 8,
			MaxStates:   64,
		},
		ResultsRoot: ".",
		OutputDir:   ".",
	}
}

// Validate normalises the metric name and checks the config can drive a sweep.
func (c *SweepConfig) Validate() error {
	if c.StartEpoch <= 1 {
		return fmt.Errorf("%w: start epoch must be greater than 1, got %d", ErrInvalidConfig, c.StartEpoch)
	}
	if c.EndEpoch < c.StartEpoch {
		return fmt.Errorf("%w: end epoch %d is before start epoch %d", ErrInvalidConfig, c.EndEpoch, c.StartEpoch)
	}
	if c.DecodingMethod == "" {
		return fmt.Errorf("%w: decoding method is required", ErrInvalidConfig)
	}

	c.Metric = strings.ToUpper(strings.TrimSpace(c.Metric))
	if c.Metric != MetricWER && c.Metric != MetricPER {
		return fmt.Errorf("%w: metrics must be %s or %s, got %q", ErrInvalidConfig, MetricWER, MetricPER, c.Metric)
	}

	if len(c.ExpNames) == 0 {
		return fmt.Errorf("%w: at least one experiment name is required", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.ExpNames))
	for _, exp := range c.ExpNames {
		if seen[exp] {
			return fmt.Errorf("%w: experiment %q listed twice", ErrInvalidConfig, exp)
		}
		seen[exp] = true
	}

	if len(c.Datasets) != 2 {
		return fmt.Errorf("%w: exactly two datasets are required, got %d (%v)", ErrInvalidConfig, len(c.Datasets), c.Datasets)
	}
	if c.Datasets[0] == c.Datasets[1] {
		return fmt.Errorf("%w: datasets must differ, got %q twice", ErrInvalidConfig, c.Datasets[0])
	}

	if c.Beam.Beam <= 0 || c.Beam.MaxContexts <= 0 || c.Beam.MaxStates <= 0 {
		return fmt.Errorf("%w: beam params must be positive, got %+v", ErrInvalidConfig, c.Beam)
	}
	return nil
}

// Epochs returns every epoch of the sweep in ascending order, or nil when
// EndEpoch is before StartEpoch.
func (c *SweepConfig) Epochs() []int {
	if c.EndEpoch < c.StartEpoch {
		return nil
	}
	epochs := make([]int, 0, c.EndEpoch-c.StartEpoch+1)
	for e := c.StartEpoch; e <= c.EndEpoch; e++ {
		epochs = append(epochs, e)
	}
	return epochs
}

// Avgs returns the checkpoint averages every sweep covers.
func (c *SweepConfig) Avgs() []int {
	avgs := make([]int, 0, LastAvg-FirstAvg+1)
	for a := FirstAvg; a <= LastAvg; a++ {
		avgs = append(avgs, a)
	}
	return avgs
}

// SplitList splits a space separated list such as "exp_100 exp_960".
func SplitList(s string) []string {
	return strings.Fields(s)
}
