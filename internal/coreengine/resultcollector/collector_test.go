package resultcollector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/yfyeung/icefall-utils/internal/configmanagement"
	"github.com/yfyeung/icefall-utils/internal/coreengine/resultfile"
	"github.com/yfyeung/icefall-utils/internal/datastore"
)

type recordingSink struct {
	resets  [][]string
	results []datastore.ResultKey
	missed  []string
	failOn  string
}

func (s *recordingSink) Reset(exps []string) error {
	s.resets = append(s.resets, exps)
	return nil
}

func (s *recordingSink) AppendResult(k datastore.ResultKey, v float64) error {
	s.results = append(s.results, k)
	return nil
}

func (s *recordingSink) AppendMissed(m datastore.MissedLookup) error {
	if s.failOn == "missed" {
		return errors.New("disk full")
	}
	s.missed = append(s.missed, m.Line())
	return nil
}

func testConfig() configmanagement.SweepConfig {
	cfg := configmanagement.DefaultSweepConfig()
	cfg.StartEpoch, cfg.EndEpoch = 29, 30
	cfg.ExpNames = []string{"exp_960"}
	return cfg
}

// fullTree writes a summary for every combination of cfg, with value
// epoch/10 + avg/100 + 1 for the second dataset.
func fullTree(cfg configmanagement.SweepConfig) fstest.MapFS {
	l := resultfile.NewLocator(cfg)
	fsys := fstest.MapFS{}
	for _, exp := range cfg.ExpNames {
		for di, ds := range cfg.Datasets {
			for _, e := range cfg.Epochs() {
				for _, a := range cfg.Avgs() {
					v := float64(e)/10 + float64(a)/100 + float64(di)
					content := fmt.Sprintf("settings\tWER\n%s\t%.2f\n", cfg.Beam.Tag(), v)
					fsys[l.SummaryPath(exp, ds, e, a)] = &fstest.MapFile{Data: []byte(content)}
				}
			}
		}
	}
	return fsys
}

func TestCollectFullTree(t *testing.T) {
	cfg := testConfig()
	sink := &recordingSink{}
	run, err := New(fullTree(cfg), cfg, sink).Collect()
	if err != nil {
		t.Fatal(err)
	}

	// 2 datasets × 2 epochs × 20 avgs
	if run.Results.Len() != 80 {
		t.Errorf("collected %d results, want 80", run.Results.Len())
	}
	if len(run.Missed) != 0 {
		t.Errorf("missed = %v", run.Missed)
	}
	if len(sink.resets) != 1 || sink.resets[0][0] != "exp_960" {
		t.Errorf("resets = %v", sink.resets)
	}
	if len(sink.results) != 80 {
		t.Errorf("sink got %d results", len(sink.results))
	}
	// dataset-major order, as the accumulation file lists it
	if first, last := sink.results[0], sink.results[79]; first.Dataset != "test-clean" || last.Dataset != "test-other" {
		t.Errorf("sink order: first=%v last=%v", first, last)
	}

	r, ok := run.Results.Get(datastore.ResultKey{Experiment: "exp_960", Dataset: "test-other", Epoch: 30, Avg: 5})
	if !ok || r.Value != 4.05 || r.Source != datastore.SourceSummary {
		t.Errorf("result = %+v, %v", r, ok)
	}
}

func TestCollectRecordsEachMissOnce(t *testing.T) {
	cfg := testConfig()
	fsys := fullTree(cfg)
	l := resultfile.NewLocator(cfg)
	delete(fsys, l.SummaryPath("exp_960", "test-other", 30, 5))
	// present but without the tagged line
	fsys[l.SummaryPath("exp_960", "test-clean", 29, 7)] = &fstest.MapFile{Data: []byte("settings\tWER\n")}

	sink := &recordingSink{}
	run, err := New(fsys, cfg, sink).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Missed) != 2 {
		t.Fatalf("missed = %v", run.Missed)
	}
	want := []string{"exp_960 29 7", "exp_960 30 5"}
	if strings.Join(sink.missed, ",") != strings.Join(want, ",") {
		t.Errorf("missed lines = %v, want %v", sink.missed, want)
	}
	if run.Results.Len() != 78 {
		t.Errorf("collected %d results, want 78", run.Results.Len())
	}
}

func TestCollectRescoresFromRecogs(t *testing.T) {
	cfg := testConfig()
	cfg.Rescore = true
	fsys := fullTree(cfg)
	l := resultfile.NewLocator(cfg)
	delete(fsys, l.SummaryPath("exp_960", "test-other", 30, 5))
	fsys[l.RecogsPath("exp_960", "test-other", 30, 5)] = &fstest.MapFile{Data: []byte(
		"u1:\tref=['A', 'B', 'C', 'D']\nu1:\thyp=['A', 'B', 'X', 'D']\n")}
	delete(fsys, l.SummaryPath("exp_960", "test-other", 30, 6))

	run, err := New(fsys, cfg, nil).Collect()
	if err != nil {
		t.Fatal(err)
	}
	r, ok := run.Results.Get(datastore.ResultKey{Experiment: "exp_960", Dataset: "test-other", Epoch: 30, Avg: 5})
	if !ok || r.Value != 25 || r.Source != datastore.SourceRescored {
		t.Errorf("rescored result = %+v, %v", r, ok)
	}
	// no recogs for avg 6 either, so it stays missed
	if len(run.Missed) != 1 || run.Missed[0].Avg != 6 {
		t.Errorf("missed = %v", run.Missed)
	}
	if !strings.Contains(run.Missed[0].Reason, "rescore") {
		t.Errorf("reason = %q", run.Missed[0].Reason)
	}
}

func TestCollectSinkFailureAborts(t *testing.T) {
	cfg := testConfig()
	fsys := fullTree(cfg)
	delete(fsys, resultfile.NewLocator(cfg).SummaryPath("exp_960", "test-clean", 29, 1))

	_, err := New(fsys, cfg, &recordingSink{failOn: "missed"}).Collect()
	if err == nil {
		t.Fatal("expected sink failure to abort collection")
	}
}

func TestCollectWritesMissedFile(t *testing.T) {
	cfg := testConfig()
	cfg.ExpNames = []string{"exp_a", "exp_b"}
	fsys := fullTree(configmanagement.SweepConfig{
		StartEpoch: cfg.StartEpoch, EndEpoch: cfg.EndEpoch, DecodingMethod: cfg.DecodingMethod,
		Metric: cfg.Metric, ExpNames: []string{"exp_a"}, Datasets: cfg.Datasets, Beam: cfg.Beam,
	})

	dir := t.TempDir()
	w := datastore.NewAccumulationWriter(dir, cfg.DecodingMethod)
	defer w.Close()

	// run twice: the second run must overwrite, not append
	for i := 0; i < 2; i++ {
		if _, err := New(fsys, cfg, w).Collect(); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	missed, err := os.ReadFile(filepath.Join(dir, datastore.MissedFileName))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(missed)), "\n")
	// exp_b has nothing: 2 datasets × 2 epochs × 20 avgs
	if len(lines) != 80 {
		t.Errorf("missed.txt has %d lines, want 80", len(lines))
	}
	if lines[0] != "exp_b 29 1" {
		t.Errorf("first missed line = %q", lines[0])
	}

	rs, err := datastore.ReadAccumulationFile(dir, cfg.DecodingMethod, "exp_a")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 80 {
		t.Errorf("wers_exp_a.txt holds %d results, want 80", rs.Len())
	}
	if info, err := os.Stat(filepath.Join(dir, "wers_exp_b.txt")); err != nil || info.Size() != 0 {
		t.Errorf("wers_exp_b.txt should exist and be empty: %v", err)
	}
}

func TestCollectAbsoluteExperimentDir(t *testing.T) {
	cfg := testConfig()
	exp := filepath.ToSlash(filepath.Join(t.TempDir(), "zipformer", "exp"))
	cfg.ExpNames = []string{exp}

	for name, f := range fullTree(cfg) {
		native := filepath.FromSlash(name)
		if err := os.MkdirAll(filepath.Dir(native), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(native, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// the results root does not contain the experiment at all
	run, err := New(os.DirFS(t.TempDir()), cfg, nil).Collect()
	if err != nil {
		t.Fatal(err)
	}
	if len(run.Missed) != 0 {
		t.Fatalf("missed %d lookups, first: %+v", len(run.Missed), run.Missed[0])
	}
	if run.Results.Len() != 80 {
		t.Errorf("collected %d results, want 80", run.Results.Len())
	}
}

func TestCollectNestedExperimentWithWriter(t *testing.T) {
	cfg := testConfig()
	cfg.ExpNames = []string{"zipformer/exp", "exp_960"}
	fsys := fullTree(cfg)

	dir := t.TempDir()
	w := datastore.NewAccumulationWriter(dir, cfg.DecodingMethod)
	run, err := New(fsys, cfg, w).Collect()
	if closeErr := w.Close(); closeErr != nil {
		t.Fatal(closeErr)
	}
	if err != nil {
		t.Fatal(err)
	}
	if run.Results.Len() != 160 {
		t.Errorf("collected %d results, want 160", run.Results.Len())
	}

	rs, err := datastore.ReadAccumulationFile(dir, cfg.DecodingMethod, "zipformer/exp")
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 80 {
		t.Errorf("wers_zipformer_exp.txt holds %d results, want 80", rs.Len())
	}
}
