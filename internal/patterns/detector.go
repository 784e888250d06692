// Package patterns clusters recent reports by coarse geohash cell and keeps
// the resulting pattern set.
package patterns

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/datatypes"

	"geosafe/internal/db"
	"geosafe/internal/geohash"
	"geosafe/internal/metrics"
	"geosafe/internal/reports"
)

// NearLimit caps a patterns-near read.
const NearLimit = 100

// Options tunes the clustering heuristics. Zero values take the defaults.
type Options struct {
	// Window is how far back reports are considered. Default 7 days.
	Window time.Duration
	// Threshold is the minimum number of reports in a cell. Default 3.
	Threshold int
	// FullConfidence is the report count at which confidence reaches 1.
	// Default 10.
	FullConfidence int
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = 7 * 24 * time.Hour
	}
	if o.Threshold <= 0 {
		o.Threshold = 3
	}
	if o.FullConfidence <= 0 {
		o.FullConfidence = 10
	}
	return o
}

type Detector struct {
	ix      *db.Index
	reports *reports.Manager
	opts    Options
}

func NewDetector(ix *db.Index, reports *reports.Manager, opts Options) *Detector {
	return &Detector{ix: ix, reports: reports, opts: opts.withDefaults()}
}

// Confidence maps a cluster size to [0, 1].
func (d *Detector) Confidence(count int) float64 {
	return math.Min(float64(count)/float64(d.opts.FullConfidence), 1)
}

// Run rebuilds the pattern set from the reports of the last window and
// swaps it in atomically. If the reports cannot be read the stored set is
// left untouched.
func (d *Detector) Run(ctx context.Context) (int, error) {
	now := d.ix.Now()
	recent, err := d.reports.Recent(ctx, now.Add(-d.opts.Window), "")
	if err != nil {
		return 0, fmt.Errorf("read recent reports: %w", err)
	}

	found := d.Cluster(recent, now)
	if _, err := d.ix.ReplaceAll(ctx, &db.Pattern{}, &found); err != nil {
		return 0, fmt.Errorf("replace patterns: %w", err)
	}
	metrics.PatternsActive.Set(float64(len(found)))
	log.Info("patterns replaced", "reports", len(recent), "patterns", len(found))
	return len(found), nil
}

// Cluster buckets reports by their query-precision geohash prefix and emits
// one pattern per bucket that reaches the threshold. Output is ordered by
// cell for stable results.
func (d *Detector) Cluster(rows []db.Report, now time.Time) []db.Pattern {
	buckets := make(map[string][]db.Report)
	for _, r := range rows {
		cell := geohash.Prefix(r.Location.Geohash, geohash.QueryPrecision)
		buckets[cell] = append(buckets[cell], r)
	}

	cells := make([]string, 0, len(buckets))
	for cell, members := range buckets {
		if len(members) >= d.opts.Threshold {
			cells = append(cells, cell)
		}
	}
	sort.Strings(cells)

	out := make([]db.Pattern, 0, len(cells))
	for _, cell := range cells {
		members := buckets[cell]
		var sumLat, sumLng float64
		ids := make([]string, 0, len(members))
		for _, r := range members {
			sumLat += r.Location.Lat
			sumLng += r.Location.Lng
			ids = append(ids, r.ID)
		}
		n := float64(len(members))
		out = append(out, db.Pattern{
			Location: db.Location{
				Lat:     sumLat / n,
				Lng:     sumLng / n,
				Geohash: cell,
			},
			ReportCount: len(members),
			Confidence:  d.Confidence(len(members)),
			ReportIDs:   datatypes.JSONSlice[string](ids),
			LastUpdate:  now,
		})
	}
	return out
}

// Near returns the patterns in the center's query-precision cell, most
// confident first.
func (d *Detector) Near(ctx context.Context, lat, lng float64) ([]db.Pattern, error) {
	cell, err := geohash.Encode(lat, lng, geohash.QueryPrecision)
	if err != nil {
		return nil, err
	}
	rows, err := db.RangeByPrefix[db.Pattern](ctx, d.ix, "location_geohash", cell, db.Query{
		OrderBy: []db.Order{{Field: "confidence", Desc: true}},
		Limit:   NearLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch patterns near %s: %w", cell, err)
	}
	return rows, nil
}
