package jobmanagement

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yfyeung/icefall-utils/internal/configmanagement"
	"github.com/yfyeung/icefall-utils/internal/coreengine/reportbuilder"
	"github.com/yfyeung/icefall-utils/internal/coreengine/resultcollector"
	"github.com/yfyeung/icefall-utils/internal/datastore"
)

const (
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusPartial   = "PARTIAL" // at least one experiment could not be reported
	RunStatusFailed    = "FAILED"
)

// ErrSweepInProgress is returned by Run while another run is executing.
var ErrSweepInProgress = errors.New("a sweep is already running")

// ResultStore persists collected results. *datastore.SQLResultStore implements it.
type ResultStore interface {
	SaveRunResults(ctx context.Context, info datastore.SweepRunInfo, rs *datastore.ResultSet) error
}

// ReportStore keeps rendered reports. *objectstore.MinioClient implements it.
type ReportStore interface {
	UploadReport(ctx context.Context, runID, experiment string, markdown []byte) (string, error)
	GetReport(ctx context.Context, runID, experiment string) ([]byte, error)
}

// SweepRun is the outcome of one collection and reporting pass.
type SweepRun struct {
	ID          string                       `json:"id"`
	Status      string                       `json:"status"`
	Config      configmanagement.SweepConfig `json:"config"`
	StartedAt   time.Time                    `json:"started_at"`
	CompletedAt time.Time                    `json:"completed_at"`
	Missed      []datastore.MissedLookup     `json:"missed"`

	// ReportErrors holds, per experiment, why no report could be built.
	ReportErrors map[string]string `json:"report_errors,omitempty"`
	Uploaded     map[string]string `json:"uploaded,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`

	Results *datastore.ResultSet             `json:"-"`
	Reports map[string]*reportbuilder.Report `json:"-"`
}

// Markdown renders the reports of every experiment that has one, in config order.
func (r *SweepRun) Markdown() ([]byte, error) {
	var buf bytes.Buffer
	for _, exp := range r.Config.ExpNames {
		report, ok := r.Reports[exp]
		if !ok {
			continue
		}
		if err := report.WriteMarkdown(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SweepService runs sweeps and remembers the latest one.
type SweepService struct {
	Config configmanagement.SweepConfig
	// FS is rooted at Config.ResultsRoot.
	FS fs.FS
	// FromAccumulation rebuilds results from existing wers_<exp>.txt files
	// instead of reading summary files.
	FromAccumulation bool

	Results ResultStore
	Reports ReportStore

	running sync.Mutex
	mu      sync.RWMutex
	latest  *SweepRun
}

// NewSweepService returns a service for cfg reading summaries from fsys.
func NewSweepService(cfg configmanagement.SweepConfig, fsys fs.FS) *SweepService {
	return &SweepService{Config: cfg, FS: fsys}
}

// Latest returns the most recent finished run, or nil.
func (s *SweepService) Latest() *SweepRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Run collects results, builds every experiment's report and, when configured,
// persists results and uploads reports. A failed report never stops the others.
func (s *SweepService) Run(ctx context.Context) (*SweepRun, error) {
	if !s.running.TryLock() {
		return nil, ErrSweepInProgress
	}
	defer s.running.Unlock()

	cfg := s.Config
	run := &SweepRun{
		ID:           uuid.New().String(),
		Status:       RunStatusRunning,
		Config:       cfg,
		StartedAt:    time.Now(),
		Reports:      make(map[string]*reportbuilder.Report),
		ReportErrors: make(map[string]string),
		Uploaded:     make(map[string]string),
	}
	log.Printf("Sweep %s started: experiments %v, datasets %v", run.ID, cfg.ExpNames, cfg.Datasets)

	if err := s.gather(run); err != nil {
		run.Status = RunStatusFailed
		run.CompletedAt = time.Now()
		log.Printf("Sweep %s failed: %v", run.ID, err)
		return run, err
	}

	for _, exp := range cfg.ExpNames {
		if _, failed := run.ReportErrors[exp]; failed {
			continue
		}
		report, err := reportbuilder.Build(run.Results, exp, cfg)
		if err != nil {
			log.Printf("Report for %s failed: %v", exp, err)
			run.ReportErrors[exp] = err.Error()
			continue
		}
		run.Reports[exp] = report
	}

	if s.Results != nil {
		info := datastore.SweepRunInfo{RunID: run.ID, Metric: cfg.Metric, DecodingMethod: cfg.DecodingMethod}
		if err := s.Results.SaveRunResults(ctx, info, run.Results); err != nil {
			log.Printf("CRITICAL: failed to persist results of sweep %s: %v", run.ID, err)
			run.Warnings = append(run.Warnings, err.Error())
		}
	}

	if s.Reports != nil {
		for _, exp := range cfg.ExpNames {
			report, ok := run.Reports[exp]
			if !ok {
				continue
			}
			var buf bytes.Buffer
			if err := report.WriteMarkdown(&buf); err != nil {
				run.Warnings = append(run.Warnings, err.Error())
				continue
			}
			objectName, err := s.Reports.UploadReport(ctx, run.ID, exp, buf.Bytes())
			if err != nil {
				log.Printf("Failed to upload report for %s: %v", exp, err)
				run.Warnings = append(run.Warnings, err.Error())
				continue
			}
			run.Uploaded[exp] = objectName
		}
	}

	run.CompletedAt = time.Now()
	run.Status = RunStatusCompleted
	if len(run.ReportErrors) > 0 {
		run.Status = RunStatusPartial
	}
	log.Printf("Sweep %s finished with status %s: %d results, %d missed, %d reports",
		run.ID, run.Status, run.Results.Len(), len(run.Missed), len(run.Reports))

	s.mu.Lock()
	s.latest = run
	s.mu.Unlock()
	return run, nil
}

func (s *SweepService) gather(run *SweepRun) error {
	cfg := run.Config
	if s.FromAccumulation {
		run.Results = datastore.NewResultSet()
		for _, exp := range cfg.ExpNames {
			rs, err := datastore.ReadAccumulationFile(cfg.OutputDir, cfg.DecodingMethod, exp)
			if err != nil {
				log.Printf("Skipping %s: %v", exp, err)
				run.ReportErrors[exp] = err.Error()
				continue
			}
			run.Results.Merge(rs)
		}
		return nil
	}

	writer := datastore.NewAccumulationWriter(cfg.OutputDir, cfg.DecodingMethod)
	collected, err := resultcollector.New(s.FS, cfg, writer).Collect()
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}
	run.Results = collected.Results
	run.Missed = collected.Missed
	return nil
}
