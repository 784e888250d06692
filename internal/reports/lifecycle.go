// Package reports owns report creation, proximity reads and the TTL sweep.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"geosafe/internal/db"
	"geosafe/internal/geohash"
)

const (
	// NearLimit caps a single proximity read.
	NearLimit = 500

	geohashField = "location_geohash"
)

// Manager creates reports, serves proximity reads and sweeps expired
// reports. Reads drop expired reports themselves; the sweep only reclaims
// space.
type Manager struct {
	ix  *db.Index
	ttl time.Duration
}

func NewManager(ix *db.Index, ttl time.Duration) *Manager {
	return &Manager{ix: ix, ttl: ttl}
}

// Submit validates p, stamps geohash, createdAt and expiresAt, and stores
// the report.
func (m *Manager) Submit(ctx context.Context, p db.ReportParams) (*db.Report, error) {
	r, err := db.NewReport(p, m.ix.Now(), m.ttl)
	if err != nil {
		return nil, err
	}
	if err := m.ix.Insert(ctx, r); err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	log.Debug("report stored", "id", r.ID, "geohash", r.Location.Geohash, "risk", r.RiskLevel)
	return r, nil
}

// FetchNear returns the active reports sharing the center's 4-character
// geohash cell, newest first. Points just across a cell boundary are not
// returned.
func (m *Manager) FetchNear(ctx context.Context, lat, lng float64) ([]db.Report, error) {
	prefix, err := geohash.Encode(lat, lng, geohash.QueryPrecision)
	if err != nil {
		return nil, err
	}
	now := m.ix.Now()
	rows, err := db.RangeByPrefix[db.Report](ctx, m.ix, geohashField, prefix, db.Query{
		// Pre-filter in the store so expired rows do not consume the limit.
		Ranges:  []db.Range{{Field: "expires_at", From: now}},
		OrderBy: []db.Order{{Field: "created_at", Desc: true}},
		Limit:   NearLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch reports near %s: %w", prefix, err)
	}
	return Active(rows, now), nil
}

// Get returns an active report by id. Expired reports are not found.
func (m *Manager) Get(ctx context.Context, id string) (*db.Report, error) {
	r, err := db.Get[db.Report](ctx, m.ix, id)
	if err != nil {
		return nil, err
	}
	if r.Expired(m.ix.Now()) {
		return nil, db.ErrNotFound
	}
	return r, nil
}

// Recent returns active reports created at or after since, optionally
// restricted to a geohash prefix.
func (m *Manager) Recent(ctx context.Context, since time.Time, prefix string) ([]db.Report, error) {
	now := m.ix.Now()
	q := db.Query{Ranges: []db.Range{
		{Field: "created_at", From: since},
		{Field: "expires_at", From: now},
	}}
	var (
		rows []db.Report
		err  error
	)
	if prefix != "" {
		rows, err = db.RangeByPrefix[db.Report](ctx, m.ix, geohashField, prefix, q)
	} else {
		rows, err = db.Find[db.Report](ctx, m.ix, q)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch recent reports: %w", err)
	}
	return Active(rows, now), nil
}

// SweepExpired deletes every report with expiresAt <= now together with its
// votes, in one batch. It returns the number of reports removed; a second
// call with nothing newly expired removes zero.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	now := m.ix.Now()
	expired, err := db.Find[db.Report](ctx, m.ix, db.Query{
		Ranges: []db.Range{{Field: "expires_at", To: now, ToInclusive: true}},
	})
	if err != nil {
		return 0, fmt.Errorf("find expired reports: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(expired))
	for _, r := range expired {
		ids = append(ids, r.ID)
	}

	res, err := m.ix.Commit(ctx, db.NewBatch().
		Delete(&db.Report{}, ids...).
		DeleteWhere(&db.Vote{}, "report_id", ids))
	if err != nil {
		return 0, fmt.Errorf("delete expired reports: %w", err)
	}
	return res.DeletedByOp[0], nil
}

// Active drops reports that are expired at now.
func Active(rows []db.Report, now time.Time) []db.Report {
	out := rows[:0]
	for _, r := range rows {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	return out
}
