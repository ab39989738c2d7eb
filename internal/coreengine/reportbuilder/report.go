// Package reportbuilder joins the two per-dataset results of every epoch/avg
// configuration and renders them as a table sorted by their sum.
package reportbuilder

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/yfyeung/icefall-utils/internal/configmanagement"
	"github.com/yfyeung/icefall-utils/internal/datastore"
)

// ErrMissingResult means a configuration in range has no result for one dataset.
var ErrMissingResult = errors.New("missing result")

// Row is one epoch/avg configuration of a report.
type Row struct {
	ValueA float64 `json:"value_a"`
	ValueB float64 `json:"value_b"`
	Sum    float64 `json:"sum"`
	Epoch  int     `json:"epoch"`
	Avg    int     `json:"avg"`
}

// Report is the sorted summary of one experiment.
type Report struct {
	Experiment string    `json:"experiment"`
	Metric     string    `json:"metric"`
	Datasets   [2]string `json:"datasets"`
	Rows       []Row     `json:"rows"`
}

// Build looks up both datasets for every epoch in range and every avg in [1, 20].
// Any absent result fails the whole report with ErrMissingResult.
func Build(rs *datastore.ResultSet, experiment string, cfg configmanagement.SweepConfig) (*Report, error) {
	if len(cfg.Datasets) != 2 {
		return nil, fmt.Errorf("report needs exactly two datasets, got %v", cfg.Datasets)
	}
	report := &Report{
		Experiment: experiment,
		Metric:     cfg.Metric,
		Datasets:   [2]string{cfg.Datasets[0], cfg.Datasets[1]},
	}

	for _, epoch := range cfg.Epochs() {
		for _, avg := range cfg.Avgs() {
			a, err := lookup(rs, experiment, report.Datasets[0], epoch, avg)
			if err != nil {
				return nil, err
			}
			b, err := lookup(rs, experiment, report.Datasets[1], epoch, avg)
			if err != nil {
				return nil, err
			}
			report.Rows = append(report.Rows, Row{
				ValueA: a,
				ValueB: b,
				Sum:    a + b,
				Epoch:  epoch,
				Avg:    avg,
			})
		}
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].Sum < report.Rows[j].Sum
	})
	return report, nil
}

func lookup(rs *datastore.ResultSet, experiment, dataset string, epoch, avg int) (float64, error) {
	k := datastore.ResultKey{Experiment: experiment, Dataset: dataset, Epoch: epoch, Avg: avg}
	r, ok := rs.Get(k)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingResult, k)
	}
	return r.Value, nil
}

// Best returns the row with the lowest sum.
func (r *Report) Best() (Row, bool) {
	if len(r.Rows) == 0 {
		return Row{}, false
	}
	return r.Rows[0], true
}

// WriteMarkdown renders the report:
//
//	### exp_960
//	| test-clean & test-other | sum | config |
//	| --- | --- | --- |
//	| 5.23 & 7.81 | 13.04 | epoch 30 avg 5 |
func (r *Report) WriteMarkdown(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s\n", r.Experiment)
	fmt.Fprintf(&sb, "| %s & %s | sum | config |\n", r.Datasets[0], r.Datasets[1])
	sb.WriteString("| --- | --- | --- |\n")
	for _, row := range r.Rows {
		sb.WriteString(row.Markdown())
		sb.WriteByte('\n')
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// Markdown renders a single table row.
func (row Row) Markdown() string {
	return fmt.Sprintf("| %s & %s | %.2f | epoch %d avg %d |",
		formatValue(row.ValueA), formatValue(row.ValueB), row.Sum, row.Epoch, row.Avg)
}

// formatValue prints the shortest representation that round-trips, always with a
// decimal point: 5.23 -> "5.23", 5 -> "5.0".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
