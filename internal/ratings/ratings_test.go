package ratings

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosafe/internal/db"
	"geosafe/internal/db/dbtest"
	"geosafe/internal/geohash"
)

func TestSubmitAndAggregate(t *testing.T) {
	s := dbtest.New(t)
	svc := NewService(s.Index)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 12.9716, 77.5946, "a", db.RatingScores{Lighting: 4, FootTraffic: 2, Security: 3, Businesses: 5}, "busy market")
	require.NoError(t, err)
	s.Clock.Advance(time.Minute)
	_, err = svc.Submit(ctx, 12.9717, 77.5947, "b", db.RatingScores{Lighting: 1, Security: 2}, "")
	require.NoError(t, err)
	// Different 5-character cell.
	_, err = svc.Submit(ctx, 12.9, 77.4, "a", db.RatingScores{Lighting: 5}, "")
	require.NoError(t, err)

	sum, err := svc.ForLocation(ctx, 12.9716, 77.5946)
	require.NoError(t, err)
	agg := sum.Aggregate
	assert.Equal(t, "tdr1v", agg.Geohash)
	assert.Equal(t, 2, agg.RatingCount)
	assert.Equal(t, 2.5, agg.Lighting)
	assert.Equal(t, 2.0, agg.FootTraffic)
	assert.Equal(t, 2.5, agg.Security)
	assert.Equal(t, 5.0, agg.Businesses)
	assert.Equal(t, 3.0, agg.Overall)

	require.Len(t, sum.Recent, 2)
	assert.Equal(t, 1, sum.Recent[0].Lighting, "newest first")
	assert.Equal(t, "busy market", sum.Recent[1].Comment)
}

func TestRerateOverwrites(t *testing.T) {
	s := dbtest.New(t)
	svc := NewService(s.Index)
	ctx := context.Background()

	first, err := svc.Submit(ctx, 12.9716, 77.5946, "v", db.RatingScores{Lighting: 1}, "dark")
	require.NoError(t, err)
	s.Clock.Advance(time.Hour)
	second, err := svc.Submit(ctx, 12.9716, 77.5946, "v", db.RatingScores{Lighting: 5, Security: 4}, "new lamps")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Lighting)
	assert.Equal(t, 5, second.Overall) // round(4.5)
	assert.Equal(t, "new lamps", second.Comment)
	assert.EqualValues(t, 1, s.Count(t, &db.LocationRating{}))
}

func TestRecentIsCapped(t *testing.T) {
	s := dbtest.New(t)
	svc := NewService(s.Index)
	ctx := context.Background()
	for i := 0; i < RecentLimit+3; i++ {
		_, err := svc.Submit(ctx, 12.9716, 77.5946, fmt.Sprintf("voter-%d", i), db.RatingScores{Security: 3}, "")
		require.NoError(t, err)
		s.Clock.Advance(time.Second)
	}

	sum, err := svc.ForLocation(ctx, 12.9716, 77.5946)
	require.NoError(t, err)
	assert.Len(t, sum.Recent, RecentLimit)
	assert.Equal(t, RecentLimit+3, sum.Aggregate.RatingCount)
	assert.Equal(t, 3.0, sum.Aggregate.Overall)
}

func TestEmptyCell(t *testing.T) {
	s := dbtest.New(t)
	sum, err := NewService(s.Index).ForLocation(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Zero(t, sum.Aggregate.RatingCount)
	assert.Zero(t, sum.Aggregate.Overall)
	assert.NotNil(t, sum.Recent)
}

func TestSubmitValidation(t *testing.T) {
	s := dbtest.New(t)
	svc := NewService(s.Index)
	ctx := context.Background()

	_, err := svc.Submit(ctx, 12.97, 77.59, "", db.RatingScores{Lighting: 3}, "")
	assert.ErrorIs(t, err, db.ErrInvalidInput)
	_, err = svc.Submit(ctx, 12.97, 77.59, "v", db.RatingScores{Lighting: -1}, "")
	assert.ErrorIs(t, err, db.ErrInvalidInput)
	_, err = svc.Submit(ctx, 100, 77.59, "v", db.RatingScores{Lighting: 3}, "")
	assert.ErrorIs(t, err, geohash.ErrInvalidCoordinate)
}
