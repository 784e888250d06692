package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosafe/internal/db"
	"geosafe/internal/db/dbtest"
	"geosafe/internal/metrics"
	"geosafe/internal/patterns"
	"geosafe/internal/reports"
)

func TestRunNowUnknownJob(t *testing.T) {
	r := NewRunner()
	err := r.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunNowDoesNotOverlap(t *testing.T) {
	r := NewRunner()
	started := make(chan struct{})
	release := make(chan struct{})
	r.Add("slow", time.Hour, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- r.RunNow(context.Background(), "slow") }()
	<-started

	err := r.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestRunRecordsOutcome(t *testing.T) {
	r := NewRunner()
	r.Add("flaky", time.Hour, func(ctx context.Context) error { return errors.New("boom") })

	before := testutil.ToFloat64(metrics.JobRuns.WithLabelValues("flaky", "error"))
	err := r.RunNow(context.Background(), "flaky")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.JobRuns.WithLabelValues("flaky", "error")))
}

func TestStartRunsImmediatelyAndOnInterval(t *testing.T) {
	r := NewRunner()
	var runs atomic.Int32
	r.Add("tick", 10*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestNames(t *testing.T) {
	r := NewRunner()
	r.Add(SweepJob, time.Hour, func(context.Context) error { return nil })
	r.Add(PatternJob, time.Hour, func(context.Context) error { return nil })
	assert.Equal(t, []string{"patterns", "sweep"}, r.Names())
}

func TestBuiltinJobs(t *testing.T) {
	s := dbtest.New(t)
	rm := reports.NewManager(s.Index, 30*24*time.Hour)
	d := patterns.NewDetector(s.Index, rm, patterns.Options{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rm.Submit(ctx, db.ReportParams{
			ReportType:   db.ReportPerception,
			RiskLevel:    db.RiskLow,
			OriginalText: "dark lane",
			Lat:          12.9716,
			Lng:          77.5946,
		})
		require.NoError(t, err)
	}

	r := NewRunner()
	r.Add(SweepJob, time.Hour, Sweep(rm))
	r.Add(PatternJob, time.Hour, Patterns(d))

	require.NoError(t, r.RunNow(ctx, PatternJob))
	assert.EqualValues(t, 1, s.Count(t, &db.Pattern{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PatternsActive))

	swept := testutil.ToFloat64(metrics.ReportsSwept)
	s.Clock.Advance(30 * 24 * time.Hour)
	require.NoError(t, r.RunNow(ctx, SweepJob))
	assert.EqualValues(t, 0, s.Count(t, &db.Report{}))
	assert.Equal(t, swept+3, testutil.ToFloat64(metrics.ReportsSwept))

	require.NoError(t, r.RunNow(ctx, PatternJob))
	assert.EqualValues(t, 0, s.Count(t, &db.Pattern{}))

	s.FailReads(true)
	err := r.RunNow(ctx, SweepJob)
	assert.ErrorIs(t, err, db.ErrStoreUnavailable)
}
