package datastore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// MissedFileName is the sweep-wide list of unresolved lookups.
const MissedFileName = "missed.txt"

// ErrMalformedAccumulation is returned when an accumulation file cannot be paired up.
var ErrMalformedAccumulation = errors.New("malformed accumulation file")

// AccumulationFileName returns the per-experiment accumulation file name. Path
// separators are flattened, so "zipformer/exp" gives "wers_zipformer_exp.txt".
func AccumulationFileName(experiment string) string {
	flat := strings.Trim(filepath.ToSlash(experiment), "/")
	return fmt.Sprintf("wers_%s.txt", strings.ReplaceAll(flat, "/", "_"))
}

// AccumulationWriter appends collected results to wers_<exp>.txt and misses to
// missed.txt inside Dir. Each result is written as two lines:
//
//	<method>\t<value>
//	<dataset> <epoch> <avg>
type AccumulationWriter struct {
	Dir    string
	Method string

	files map[string]*os.File
}

// NewAccumulationWriter returns a writer for dir. Call Reset before appending.
func NewAccumulationWriter(dir, method string) *AccumulationWriter {
	return &AccumulationWriter{Dir: dir, Method: method, files: make(map[string]*os.File)}
}

// Reset truncates missed.txt and the accumulation file of every experiment,
// leaving them open for appending.
func (w *AccumulationWriter) Reset(experiments []string) error {
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir %s: %w", w.Dir, err)
	}

	names := []string{MissedFileName}
	owner := make(map[string]string, len(experiments))
	for _, exp := range experiments {
		name := AccumulationFileName(exp)
		if prev, ok := owner[name]; ok {
			return fmt.Errorf("experiments %q and %q both map to %s", prev, exp, name)
		}
		owner[name] = exp
		names = append(names, name)
	}
	for _, name := range names {
		path := filepath.Join(w.Dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to truncate %s: %w", path, err)
		}
		w.files[name] = f
	}
	return nil
}

// AppendResult writes the value line and dataset tag line for k.
func (w *AccumulationWriter) AppendResult(k ResultKey, value float64) error {
	f, err := w.file(AccumulationFileName(k.Experiment))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\t%s\n%s %d %d\n",
		w.Method, strconv.FormatFloat(value, 'f', -1, 64), k.Dataset, k.Epoch, k.Avg)
	if err != nil {
		return fmt.Errorf("failed to append result for %s: %w", k, err)
	}
	return nil
}

// AppendMissed writes one missed.txt line for m.
func (w *AccumulationWriter) AppendMissed(m MissedLookup) error {
	f, err := w.file(MissedFileName)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, m.Line()); err != nil {
		return fmt.Errorf("failed to append missed lookup %q: %w", m.Line(), err)
	}
	return nil
}

// Close closes every open file.
func (w *AccumulationWriter) Close() error {
	var errs []error
	for name, f := range w.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", name, err))
		}
		delete(w.files, name)
	}
	return errors.Join(errs...)
}

func (w *AccumulationWriter) file(name string) (*os.File, error) {
	f, ok := w.files[name]
	if !ok {
		return nil, fmt.Errorf("%s is not open, call Reset first", name)
	}
	return f, nil
}

// ReadAccumulationFile parses wers_<experiment>.txt from dir.
func ReadAccumulationFile(dir, method, experiment string) (*ResultSet, error) {
	path := filepath.Join(dir, AccumulationFileName(experiment))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open accumulation file: %w", err)
	}
	defer f.Close()

	rs, err := ReadAccumulation(f, method, experiment)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// ReadAccumulation rebuilds a ResultSet from accumulation lines. Every dataset tag
// line must directly follow the value line it labels.
func ReadAccumulation(r io.Reader, method, experiment string) (*ResultSet, error) {
	rs := NewResultSet()
	scanner := bufio.NewScanner(r)

	var pending *float64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if key, ok := parseTagLine(line, experiment); ok {
			if pending == nil {
				return nil, fmt.Errorf("%w: line %d: tag %q has no preceding value", ErrMalformedAccumulation, lineNo, line)
			}
			rs.Put(key, Result{Value: *pending, Source: SourceSummary})
			pending = nil
			continue
		}

		rest, found := strings.CutPrefix(line, method)
		if !found {
			return nil, fmt.Errorf("%w: line %d: unrecognised line %q", ErrMalformedAccumulation, lineNo, line)
		}
		if pending != nil {
			return nil, fmt.Errorf("%w: line %d: value follows an untagged value", ErrMalformedAccumulation, lineNo)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedAccumulation, lineNo, err)
		}
		pending = &v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accumulation lines: %w", err)
	}
	if pending != nil {
		return nil, fmt.Errorf("%w: trailing value without a dataset tag", ErrMalformedAccumulation)
	}
	return rs, nil
}

func parseTagLine(line, experiment string) (ResultKey, bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return ResultKey{}, false
	}
	epoch, err := strconv.Atoi(fields[1])
	if err != nil {
		return ResultKey{}, false
	}
	avg, err := strconv.Atoi(fields[2])
	if err != nil {
		return ResultKey{}, false
	}
	return ResultKey{Experiment: experiment, Dataset: fields[0], Epoch: epoch, Avg: avg}, true
}
