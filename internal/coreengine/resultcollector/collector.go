// Package resultcollector walks a sweep's result tree and gathers one metric value
// per experiment, dataset, epoch and checkpoint average.
package resultcollector

import (
	"errors"
	"fmt"
	"io/fs"
	"log"

	"github.com/yfyeung/icefall-utils/internal/configmanagement"
	"github.com/yfyeung/icefall-utils/internal/coreengine/metricscalculator"
	"github.com/yfyeung/icefall-utils/internal/coreengine/resultfile"
	"github.com/yfyeung/icefall-utils/internal/datastore"
)

// Sink receives the side-channel output of a collection run.
// *datastore.AccumulationWriter is the production implementation.
type Sink interface {
	Reset(experiments []string) error
	AppendResult(k datastore.ResultKey, value float64) error
	AppendMissed(m datastore.MissedLookup) error
}

// RunResult is everything a collection run found.
type RunResult struct {
	Results *datastore.ResultSet
	Missed  []datastore.MissedLookup
}

// Collector reads summary files below FS for every combination in Config.
// Absolute experiment names are read from the OS instead of FS.
type Collector struct {
	FS     fs.FS
	Config configmanagement.SweepConfig
	Sink   Sink
}

// New returns a Collector. sink may be nil when no side-channel files are wanted.
func New(fsys fs.FS, cfg configmanagement.SweepConfig, sink Sink) *Collector {
	return &Collector{FS: fsys, Config: cfg, Sink: sink}
}

// Collect visits experiment × dataset × epoch × avg in that order. Missing or
// unreadable summaries are recorded as missed and do not stop the run; only
// sink write failures abort it.
func (c *Collector) Collect() (*RunResult, error) {
	cfg := c.Config
	locator := resultfile.NewLocator(cfg)
	fsys := resultfile.WithAbsolutePaths(c.FS)
	run := &RunResult{Results: datastore.NewResultSet()}

	if c.Sink != nil {
		if err := c.Sink.Reset(cfg.ExpNames); err != nil {
			return nil, fmt.Errorf("failed to reset accumulation files: %w", err)
		}
	}

	for _, exp := range cfg.ExpNames {
		log.Printf("Collecting %s results for %s/%s (epochs %d-%d)", cfg.Metric, exp, cfg.DecodingMethod, cfg.StartEpoch, cfg.EndEpoch)
		found, missed := 0, 0

		for _, dataset := range cfg.Datasets {
			for _, epoch := range cfg.Epochs() {
				for _, avg := range cfg.Avgs() {
					key := datastore.ResultKey{Experiment: exp, Dataset: dataset, Epoch: epoch, Avg: avg}

					result, err := c.lookup(fsys, locator, key)
					if err != nil {
						missed++
						m := datastore.MissedLookup{
							Experiment: exp,
							Dataset:    dataset,
							Epoch:      epoch,
							Avg:        avg,
							Reason:     err.Error(),
						}
						run.Missed = append(run.Missed, m)
						if c.Sink != nil {
							if err := c.Sink.AppendMissed(m); err != nil {
								return nil, err
							}
						}
						continue
					}

					found++
					run.Results.Put(key, result)
					if c.Sink != nil {
						if err := c.Sink.AppendResult(key, result.Value); err != nil {
							return nil, err
						}
					}
				}
			}
		}
		log.Printf("Collected %d results for %s, %d missed", found, exp, missed)
	}

	return run, nil
}

func (c *Collector) lookup(fsys fs.FS, locator resultfile.Locator, k datastore.ResultKey) (datastore.Result, error) {
	v, err := locator.ReadSummary(fsys, k.Experiment, k.Dataset, k.Epoch, k.Avg)
	if err == nil {
		return datastore.Result{Value: v, Source: datastore.SourceSummary}, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: unusable summary for %s: %v", k, err)
	}
	if !c.Config.Rescore {
		return datastore.Result{}, err
	}

	recogs := locator.RecogsPath(k.Experiment, k.Dataset, k.Epoch, k.Avg)
	rate, rerr := metricscalculator.ScoreRecogsFile(fsys, recogs)
	if rerr != nil {
		return datastore.Result{}, fmt.Errorf("%w; rescore: %v", err, rerr)
	}
	log.Printf("Rescored %s from %s: %.2f", k, recogs, rate)
	return datastore.Result{Value: rate, Source: datastore.SourceRescored}, nil
}
