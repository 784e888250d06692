package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosafe/internal/classify"
	"geosafe/internal/db"
	"geosafe/internal/db/dbtest"
	"geosafe/internal/geohash"
	"geosafe/internal/reports"
)

type countingClassifier struct {
	*classify.Pipeline
	calls int
}

func (c *countingClassifier) Moderate(ctx context.Context, text string) classify.Moderation {
	c.calls++
	return c.Pipeline.Moderate(ctx, text)
}

func setup(t *testing.T) (*dbtest.Store, *reports.Manager, *Service, *countingClassifier) {
	t.Helper()
	s := dbtest.New(t)
	rm := reports.NewManager(s.Index, 30*24*time.Hour)
	cl := &countingClassifier{Pipeline: classify.New(nil, classify.Options{})}
	return s, rm, NewService(cl, rm), cl
}

func TestSubmitEndToEndWithFallback(t *testing.T) {
	s, rm, svc, _ := setup(t)
	ctx := context.Background()

	r, err := svc.Submit(ctx, Submission{
		Text: "someone followed me near the station",
		Lat:  12.9716,
		Lng:  77.5946,
	})
	require.NoError(t, err)
	assert.Equal(t, db.RiskMedium, r.RiskLevel)
	assert.Equal(t, db.CategorySuspiciousActivity, r.Category)
	assert.False(t, r.AIParsed)
	assert.Equal(t, db.ReportPerception, r.ReportType)
	assert.Equal(t, "someone followed me near the station", r.Reason)

	got, err := rm.FetchNear(ctx, 12.9750, 77.6000)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, r.ID, got[0].ID)

	s.Clock.Set(r.ExpiresAt)
	got, err = rm.FetchNear(ctx, 12.9750, 77.6000)
	require.NoError(t, err)
	assert.Empty(t, got, "expired before any sweep")
}

func TestSubmitRejected(t *testing.T) {
	s, _, svc, _ := setup(t)

	_, err := svc.Submit(context.Background(), Submission{
		Text: "the guy in flat 4 is 9876543210, go get him",
		Lat:  12.97,
		Lng:  77.59,
	})
	require.ErrorIs(t, err, ErrRejected)
	var rej *RejectedError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "Content contains personal identifiable information", rej.Reason)
	assert.EqualValues(t, 0, s.Count(t, &db.Report{}))
}

func TestSubmitValidatesBeforeModeration(t *testing.T) {
	_, _, svc, cl := setup(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, Submission{Text: "  ", Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, db.ErrInvalidInput)

	_, err = svc.Submit(ctx, Submission{Text: strings.Repeat("x", 501), Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, db.ErrInvalidInput)

	_, err = svc.Submit(ctx, Submission{Text: "ok", ReportType: "rumour", Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, db.ErrInvalidInput)

	_, err = svc.Submit(ctx, Submission{Text: "ok", Lat: 95, Lng: 1})
	assert.ErrorIs(t, err, geohash.ErrInvalidCoordinate)

	assert.Equal(t, 0, cl.calls)
}

func TestSubmitStoreUnavailable(t *testing.T) {
	s, _, svc, _ := setup(t)
	s.FailWrites(true)
	_, err := svc.Submit(context.Background(), Submission{Text: "pothole on the main road", ReportType: db.ReportCrime, Lat: 12.97, Lng: 77.59})
	assert.ErrorIs(t, err, db.ErrStoreUnavailable)
}
