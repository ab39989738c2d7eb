package datastore

import (
	"fmt"
	"sort"
)

// Result sources.
const (
	SourceSummary  = "summary"  // read from a *-summary-*.txt file
	SourceRescored = "rescored" // recomputed from a recogs-*.txt dump
)

// ResultKey identifies one decoding result within a sweep.
type ResultKey struct {
	Experiment string `json:"experiment"`
	Dataset    string `json:"dataset"`
	Epoch      int    `json:"epoch"`
	Avg        int    `json:"avg"`
}

func (k ResultKey) String() string {
	return fmt.Sprintf("%s/%s epoch %d avg %d", k.Experiment, k.Dataset, k.Epoch, k.Avg)
}

// Result is the metric value (WER or PER, in percent) recorded for a key.
type Result struct {
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// MissedLookup records a result that could not be found during collection.
type MissedLookup struct {
	Experiment string `json:"experiment"`
	Dataset    string `json:"dataset"`
	Epoch      int    `json:"epoch"`
	Avg        int    `json:"avg"`
	Reason     string `json:"reason"`
}

// Line renders the lookup the way missed.txt stores it: "<exp> <epoch> <avg>".
func (m MissedLookup) Line() string {
	return fmt.Sprintf("%s %d %d", m.Experiment, m.Epoch, m.Avg)
}

// ResultSet is the in-memory mapping filled by the collector and read by the reporter.
// It is not safe for concurrent writes.
type ResultSet struct {
	results map[ResultKey]Result
}

// NewResultSet returns an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{results: make(map[ResultKey]Result)}
}

// Put stores r under k, replacing any previous value.
func (rs *ResultSet) Put(k ResultKey, r Result) {
	rs.results[k] = r
}

// Get returns the result stored under k.
func (rs *ResultSet) Get(k ResultKey) (Result, bool) {
	r, ok := rs.results[k]
	return r, ok
}

// Len returns the number of stored results.
func (rs *ResultSet) Len() int {
	return len(rs.results)
}

// Merge copies every result of other into rs.
func (rs *ResultSet) Merge(other *ResultSet) {
	for k, r := range other.results {
		rs.results[k] = r
	}
}

// Keys returns all keys ordered by experiment, dataset, epoch and avg.
func (rs *ResultSet) Keys() []ResultKey {
	keys := make([]ResultKey, 0, len(rs.results))
	for k := range rs.results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Experiment != b.Experiment {
			return a.Experiment < b.Experiment
		}
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Epoch != b.Epoch {
			return a.Epoch < b.Epoch
		}
		return a.Avg < b.Avg
	})
	return keys
}

// Experiments returns the distinct experiment names in sorted order.
func (rs *ResultSet) Experiments() []string {
	seen := make(map[string]bool)
	var names []string
	for k := range rs.results {
		if !seen[k.Experiment] {
			seen[k.Experiment] = true
			names = append(names, k.Experiment)
		}
	}
	sort.Strings(names)
	return names
}
