package configmanagement

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *SweepConfig)
		wantErr bool
	}{
		{"defaults", func(c *SweepConfig) {}, false},
		{"start epoch 1", func(c *SweepConfig) { c.StartEpoch = 1 }, true},
		{"start epoch 2", func(c *SweepConfig) { c.StartEpoch = 2 }, false},
		{"end before start", func(c *SweepConfig) { c.EndEpoch = 10 }, true},
		{"lowercase metric", func(c *SweepConfig) { c.Metric = "per" }, false},
		{"unknown metric", func(c *SweepConfig) { c.Metric = "CER" }, true},
		{"one dataset", func(c *SweepConfig) { c.Datasets = []string{"dev"} }, true},
		{"three datasets", func(c *SweepConfig) { c.Datasets = []string{"a", "b", "c"} }, true},
		{"same dataset twice", func(c *SweepConfig) { c.Datasets = []string{"dev", "dev"} }, true},
		{"no experiments", func(c *SweepConfig) { c.ExpNames = nil }, true},
		{"duplicate experiment", func(c *SweepConfig) { c.ExpNames = []string{"exp", "exp"} }, true},
		{"empty method", func(c *SweepConfig) { c.DecodingMethod = "" }, true},
		{"zero beam", func(c *SweepConfig) { c.Beam.Beam = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSweepConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidateNormalisesMetric(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.Metric = " per "
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Metric != MetricPER {
		t.Errorf("Metric = %q, want %q", cfg.Metric, MetricPER)
	}
}

func TestBeamParams(t *testing.T) {
	b := DefaultSweepConfig().Beam
	if got := b.FileSuffix(); got != "beam-10.0-max-contexts-8-max-states-64" {
		t.Errorf("FileSuffix() = %q", got)
	}
	if got := b.Tag(); got != "beam_10.0_max_contexts_8_max_states_64" {
		t.Errorf("Tag() = %q", got)
	}
}

func TestRanges(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.StartEpoch, cfg.EndEpoch = 28, 30
	if got := cfg.Epochs(); !reflect.DeepEqual(got, []int{28, 29, 30}) {
		t.Errorf("Epochs() = %v", got)
	}
	avgs := cfg.Avgs()
	if len(avgs) != 20 || avgs[0] != 1 || avgs[19] != 20 {
		t.Errorf("Avgs() = %v", avgs)
	}
}

func TestEpochsEmptyRange(t *testing.T) {
	cfg := DefaultSweepConfig()
	cfg.StartEpoch, cfg.EndEpoch = 30, 20
	if got := cfg.Epochs(); got != nil {
		t.Errorf("Epochs() = %v, want nil", got)
	}
	cfg.StartEpoch, cfg.EndEpoch = 30, 29
	if got := cfg.Epochs(); len(got) != 0 {
		t.Errorf("Epochs() = %v, want empty", got)
	}
}

func TestLoadSweepConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	content := `
start_epoch: 21
end_epoch: 40
decoding_method: modified_beam_search
exp_names: [exp_100, exp_960]
datasets: [dev, test]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadSweepConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StartEpoch != 21 || cfg.EndEpoch != 40 {
		t.Errorf("epochs = %d..%d", cfg.StartEpoch, cfg.EndEpoch)
	}
	if cfg.DecodingMethod != "modified_beam_search" {
		t.Errorf("DecodingMethod = %q", cfg.DecodingMethod)
	}
	if !reflect.DeepEqual(cfg.ExpNames, []string{"exp_100", "exp_960"}) {
		t.Errorf("ExpNames = %v", cfg.ExpNames)
	}
	if !reflect.DeepEqual(cfg.Datasets, []string{"dev", "test"}) {
		t.Errorf("Datasets = %v", cfg.Datasets)
	}
	// untouched keys keep defaults
	if cfg.Metric != MetricWER || cfg.Beam.MaxStates != 64 {
		t.Errorf("defaults lost: metric=%q beam=%+v", cfg.Metric, cfg.Beam)
	}
}

func TestLoadSweepConfigFileMissing(t *testing.T) {
	if _, err := LoadSweepConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	for _, key := range []string{"SHOWWERS_DECODING_METHOD", "SHOWWERS_METRICS", "SHOWWERS_RESULTS_ROOT",
		"SHOWWERS_OUTPUT_DIR", "SHOWWERS_DB_DRIVER", "SHOWWERS_DB_DSN", "SHOWWERS_UPLOAD"} {
		t.Setenv(key, "")
	}
	t.Setenv("SHOWWERS_START_EPOCH", "25")
	t.Setenv("SHOWWERS_END_EPOCH", "not-a-number")
	t.Setenv("SHOWWERS_EXP_NAMES", "exp_a exp_b")
	t.Setenv("SHOWWERS_DATASET", "dev  test")
	t.Setenv("SHOWWERS_RESCORE", "true")

	cfg := DefaultSweepConfig()
	ApplyEnv(&cfg)

	if cfg.StartEpoch != 25 {
		t.Errorf("StartEpoch = %d", cfg.StartEpoch)
	}
	if cfg.EndEpoch != 30 {
		t.Errorf("EndEpoch = %d, malformed value should be ignored", cfg.EndEpoch)
	}
	if !reflect.DeepEqual(cfg.ExpNames, []string{"exp_a", "exp_b"}) {
		t.Errorf("ExpNames = %v", cfg.ExpNames)
	}
	if !reflect.DeepEqual(cfg.Datasets, []string{"dev", "test"}) {
		t.Errorf("Datasets = %v", cfg.Datasets)
	}
	if !cfg.Rescore {
		t.Error("Rescore not applied")
	}
}

func TestPostgresDSNFromEnv(t *testing.T) {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_NAME", "DB_SSLMODE"} {
		t.Setenv(key, "")
	}
	if dsn := PostgresDSNFromEnv(); dsn != "" {
		t.Errorf("expected empty DSN, got %q", dsn)
	}

	t.Setenv("DB_HOST", "db.local")
	t.Setenv("DB_PASSWORD", "secret")
	want := "host=db.local port=5432 user=postgres password=secret dbname=showwers sslmode=disable"
	if dsn := PostgresDSNFromEnv(); dsn != want {
		t.Errorf("DSN = %q, want %q", dsn, want)
	}
}
