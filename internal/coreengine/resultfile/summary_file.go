// Package resultfile knows how decoding results are named and laid out on disk.
package resultfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yfyeung/icefall-utils/internal/configmanagement"
)

// ErrNoTaggedLine is returned when a summary file has no line for the beam params.
var ErrNoTaggedLine = errors.New("no tagged metric line")

// hostFS opens absolute names, such as results of an experiment given as
// /data/zipformer/exp, from the OS and everything else from the wrapped FS.
type hostFS struct {
	fs.FS
}

// WithAbsolutePaths returns fsys extended to open absolute result paths.
func WithAbsolutePaths(fsys fs.FS) fs.FS {
	if _, ok := fsys.(hostFS); ok {
		return fsys
	}
	return hostFS{FS: fsys}
}

func (h hostFS) Open(name string) (fs.File, error) {
	if native := filepath.FromSlash(name); filepath.IsAbs(native) {
		return os.Open(native)
	}
	return h.FS.Open(name)
}

// Locator builds result file paths for one sweep configuration.
type Locator struct {
	DecodingMethod string
	Metric         string
	Beam           configmanagement.BeamParams
}

// NewLocator returns a Locator for cfg.
func NewLocator(cfg configmanagement.SweepConfig) Locator {
	return Locator{DecodingMethod: cfg.DecodingMethod, Metric: cfg.Metric, Beam: cfg.Beam}
}

// SummaryPath returns the slash-separated path of a summary file relative to the
// results root, or absolute when experiment is, e.g.
// exp/greedy_search/wer-summary-test-clean-epoch-30-avg-5-beam-10.0-max-contexts-8-max-states-64-use-averaged-model.txt
func (l Locator) SummaryPath(experiment, dataset string, epoch, avg int) string {
	name := fmt.Sprintf("%s-summary-%s-epoch-%d-avg-%d-%s-use-averaged-model.txt",
		strings.ToLower(l.Metric), dataset, epoch, avg, l.Beam.FileSuffix())
	return path.Join(experiment, l.DecodingMethod, name)
}

// RecogsPath returns the path of the recognition dump written next to a summary.
func (l Locator) RecogsPath(experiment, dataset string, epoch, avg int) string {
	name := fmt.Sprintf("recogs-%s-epoch-%d-avg-%d-%s-use-averaged-model.txt",
		dataset, epoch, avg, l.Beam.FileSuffix())
	return path.Join(experiment, l.DecodingMethod, name)
}

// ReadSummary opens the summary file for the given coordinates and extracts its metric.
func (l Locator) ReadSummary(fsys fs.FS, experiment, dataset string, epoch, avg int) (float64, error) {
	p := l.SummaryPath(experiment, dataset, epoch, avg)
	f, err := fsys.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	v, err := ParseSummary(f, l.Beam.Tag())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p, err)
	}
	return v, nil
}

// ParseSummary returns the value of the first line containing tag. The value is
// whatever follows the tag on that line, e.g. "beam_10.0_max_contexts_8_max_states_64\t5.23".
func ParseSummary(r io.Reader, tag string) (float64, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		_, after, found := strings.Cut(scanner.Text(), tag)
		if !found {
			continue
		}
		value := strings.TrimSpace(after)
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid metric value %q after %s: %w", value, tag, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("non-finite metric value %v after %s", v, tag)
		}
		if v < 0 {
			return 0, fmt.Errorf("negative metric value %v after %s", v, tag)
		}
		return v, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read summary: %w", err)
	}
	return 0, fmt.Errorf("%w %q", ErrNoTaggedLine, tag)
}
