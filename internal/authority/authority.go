// Package authority generates anonymised area briefings for local
// authorities from the active reports of a geohash area.
package authority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"geosafe/internal/classify"
	"geosafe/internal/db"
	"geosafe/internal/geohash"
	"geosafe/internal/reports"
)

const (
	DefaultDays = 7
	MaxDays     = 30
)

// Summarizer writes the briefing text. The bool reports whether a model
// wrote it.
type Summarizer interface {
	Summarize(ctx context.Context, s classify.AreaStats) (string, bool)
}

type Generator struct {
	ix         *db.Index
	reports    *reports.Manager
	summarizer Summarizer
}

func NewGenerator(ix *db.Index, reports *reports.Manager, summarizer Summarizer) *Generator {
	return &Generator{ix: ix, reports: reports, summarizer: summarizer}
}

// Generate summarises the reports of the last days in the area identified
// by prefix and stores the briefing. days <= 0 means DefaultDays.
func (g *Generator) Generate(ctx context.Context, prefix string, days int) (*db.AuthorityReport, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if !geohash.Valid(prefix) || len(prefix) > geohash.StoragePrecision {
		return nil, fmt.Errorf("%w: geohash %q", db.ErrInvalidInput, prefix)
	}
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		return nil, fmt.Errorf("%w: days must be at most %d", db.ErrInvalidInput, MaxDays)
	}

	end := g.ix.Now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	rows, err := g.reports.Recent(ctx, start, prefix)
	if err != nil {
		return nil, err
	}

	stats := classify.AreaStats{
		Geohash:    prefix,
		Days:       days,
		Total:      len(rows),
		ByRisk:     map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, r := range rows {
		stats.ByRisk[string(r.RiskLevel)]++
		stats.ByCategory[string(r.Category)]++
	}
	summary, ai := g.summarizer.Summarize(ctx, stats)

	out := &db.AuthorityReport{
		Geohash:     prefix,
		ReportCount: len(rows),
		WindowStart: start,
		WindowEnd:   end,
		Summary:     summary,
		AIGenerated: ai,
		GeneratedAt: end,
	}
	if err := g.ix.Insert(ctx, out); err != nil {
		return nil, fmt.Errorf("store authority report: %w", err)
	}
	log.Info("authority report generated", "geohash", prefix, "reports", len(rows), "ai", ai)
	return out, nil
}
