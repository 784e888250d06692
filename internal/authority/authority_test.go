package authority

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosafe/internal/classify"
	"geosafe/internal/db"
	"geosafe/internal/db/dbtest"
	"geosafe/internal/reports"
)

type recordingSummarizer struct {
	got classify.AreaStats
}

func (r *recordingSummarizer) Summarize(_ context.Context, s classify.AreaStats) (string, bool) {
	r.got = s
	return "model briefing", true
}

func submit(t *testing.T, rm *reports.Manager, lat, lng float64, risk db.RiskLevel, cat db.Category) {
	t.Helper()
	_, err := rm.Submit(context.Background(), db.ReportParams{
		ReportType:   db.ReportCrime,
		RiskLevel:    risk,
		Category:     cat,
		OriginalText: "report",
		Lat:          lat,
		Lng:          lng,
	})
	require.NoError(t, err)
}

func TestGenerate(t *testing.T) {
	s := dbtest.New(t)
	rm := reports.NewManager(s.Index, 30*24*time.Hour)
	sum := &recordingSummarizer{}
	g := NewGenerator(s.Index, rm, sum)

	submit(t, rm, 12.9716, 77.5946, db.RiskHigh, db.CategoryAssault) // outside the window below
	s.Clock.Advance(5 * 24 * time.Hour)
	submit(t, rm, 12.9716, 77.5946, db.RiskMedium, db.CategoryTheft)
	submit(t, rm, 12.9000, 77.4000, db.RiskMedium, db.CategoryTheft)
	submit(t, rm, 40.7128, -74.0060, db.RiskLow, db.CategoryOther)

	out, err := g.Generate(context.Background(), "TDR1", 3)
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "tdr1", out.Geohash)
	assert.Equal(t, 2, out.ReportCount)
	assert.True(t, out.AIGenerated)
	assert.Equal(t, "model briefing", out.Summary)
	assert.Equal(t, s.Index.Now(), out.WindowEnd)
	assert.Equal(t, s.Index.Now().Add(-3*24*time.Hour), out.WindowStart)

	assert.Equal(t, 2, sum.got.Total)
	assert.Equal(t, map[string]int{"medium": 2}, sum.got.ByRisk)
	assert.Equal(t, map[string]int{"theft": 2}, sum.got.ByCategory)
	assert.EqualValues(t, 1, s.Count(t, &db.AuthorityReport{}))
}

func TestGenerateFallbackSummary(t *testing.T) {
	s := dbtest.New(t)
	rm := reports.NewManager(s.Index, 30*24*time.Hour)
	g := NewGenerator(s.Index, rm, classify.New(nil, classify.Options{}))
	submit(t, rm, 12.9716, 77.5946, db.RiskHigh, db.CategoryAssault)

	out, err := g.Generate(context.Background(), "tdr1v", 0)
	require.NoError(t, err)
	assert.False(t, out.AIGenerated)
	assert.Equal(t, "1 reports were filed in area tdr1v during the last 7 days. By risk level: high 1. By category: assault 1.", out.Summary)
}

func TestGenerateValidation(t *testing.T) {
	s := dbtest.New(t)
	rm := reports.NewManager(s.Index, 30*24*time.Hour)
	g := NewGenerator(s.Index, rm, &recordingSummarizer{})
	ctx := context.Background()

	_, err := g.Generate(ctx, "", 7)
	assert.ErrorIs(t, err, db.ErrInvalidInput)
	_, err = g.Generate(ctx, "tdr1a", 7) // 'a' is not in the alphabet
	assert.ErrorIs(t, err, db.ErrInvalidInput)
	_, err = g.Generate(ctx, "tdr1", MaxDays+1)
	assert.ErrorIs(t, err, db.ErrInvalidInput)

	s.FailReads(true)
	_, err = g.Generate(ctx, "tdr1", 7)
	assert.ErrorIs(t, err, db.ErrStoreUnavailable)
}
