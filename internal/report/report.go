// Package report implements the time-bucketed running report: cumulative
// values per bucket, with delta extraction and consolidation into a
// coarser bucket format.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
)

// Row is a cumulative-values record for a single bucket.
type Row map[string]decimal.Decimal

// RunningReport stores one cumulative Row per date bucket, overwriting
// within a bucket as later events in the same bucket are recorded.
type RunningReport struct {
	dateFormat string
	order      []string
	data       map[string]Row
}

// New constructs an empty RunningReport bucketing by dateFormat (a Go
// reference-time layout, e.g. "2006-01").
func New(dateFormat string) *RunningReport {
	return &RunningReport{dateFormat: dateFormat, data: make(map[string]Row)}
}

// Record overwrites the bucket containing ts with values.
func (r *RunningReport) Record(ts clock.Timestamp, values Row) {
	key := ts.Format(r.dateFormat)
	if _, seen := r.data[key]; !seen {
		r.order = append(r.order, key)
	}
	r.data[key] = values
}

// Buckets returns the bucket keys in chronological (first-seen /
// lexicographic) order.
func (r *RunningReport) Buckets() []string {
	keys := make([]string, len(r.order))
	copy(keys, r.order)
	sort.Strings(keys)
	return keys
}

// Row returns the cumulative row for a bucket.
func (r *RunningReport) Row(bucket string) Row {
	return r.data[bucket]
}

// Deltas produces, in bucket order, the per-bucket difference from the
// previous bucket's cumulative values.
func (r *RunningReport) Deltas() []struct {
	Bucket string
	Values Row
} {
	buckets := r.Buckets()
	var out []struct {
		Bucket string
		Values Row
	}
	last := Row{}
	for _, b := range buckets {
		cur := r.data[b]
		diff := make(Row, len(cur))
		for k, v := range cur {
			diff[k] = v.Sub(last[k])
		}
		out = append(out, struct {
			Bucket string
			Values Row
		}{Bucket: b, Values: diff})
		last = cur
	}
	return out
}

// Consolidate re-buckets the stored rows under a coarser dateFormat,
// feeding them into a fresh RunningReport in chronological order. The last
// row fed into any given coarser bucket wins, and stored values are
// cumulative, so the coarser report stays consistent.
func (r *RunningReport) Consolidate(dateFormat string) (*RunningReport, error) {
	out := New(dateFormat)
	for _, b := range r.Buckets() {
		t, err := time.Parse(r.dateFormat, b)
		if err != nil {
			return nil, err
		}
		out.Record(clock.New(t), r.data[b])
	}
	return out, nil
}
