package db

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosafe/internal/geohash"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func validParams() ReportParams {
	return ReportParams{
		ReportType:   ReportCrime,
		RiskLevel:    RiskMedium,
		Category:     CategoryTheft,
		Reason:       "bike stolen",
		OriginalText: "my bike was stolen outside the mall",
		Lat:          12.9716,
		Lng:          77.5946,
	}
}

func TestNewReportStampsDerivedFields(t *testing.T) {
	r, err := NewReport(validParams(), now, 30*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "tdr1v9", r.Location.Geohash)
	assert.Equal(t, now, r.CreatedAt)
	assert.Equal(t, now.Add(30*24*time.Hour), r.ExpiresAt)
	assert.Equal(t, 0, r.ConfirmCount)
	assert.Equal(t, 0, r.DisputeCount)
	assert.Equal(t, 50, r.CredibilityScore)
	assert.Empty(t, r.ID, "ids are assigned by the store")
}

func TestNewReportValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *ReportParams)
		target error
	}{
		{"empty text", func(p *ReportParams) { p.OriginalText = "   " }, ErrInvalidInput},
		{"text too long", func(p *ReportParams) { p.OriginalText = strings.Repeat("x", MaxOriginalTextLen+1) }, ErrInvalidInput},
		{"bad report type", func(p *ReportParams) { p.ReportType = "rumour" }, ErrInvalidInput},
		{"bad risk", func(p *ReportParams) { p.RiskLevel = "extreme" }, ErrInvalidInput},
		{"bad category", func(p *ReportParams) { p.Category = "noise" }, ErrInvalidInput},
		{"reason too long", func(p *ReportParams) { p.Reason = strings.Repeat("y", MaxReasonLen+1) }, ErrInvalidInput},
		{"bad latitude", func(p *ReportParams) { p.Lat = 91 }, geohash.ErrInvalidCoordinate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			_, err := NewReport(p, now, time.Hour)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestNewReportDefaults(t *testing.T) {
	p := validParams()
	p.Category = ""
	p.Reason = ""
	p.OriginalText = strings.Repeat("é", MaxOriginalTextLen)

	r, err := NewReport(p, now, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, CategoryOther, r.Category)
	assert.Equal(t, strings.Repeat("é", MaxReasonLen), r.Reason)
}

func TestReportExpired(t *testing.T) {
	r, err := NewReport(validParams(), now, time.Hour)
	require.NoError(t, err)

	assert.False(t, r.Expired(now))
	assert.False(t, r.Expired(now.Add(time.Hour-time.Nanosecond)))
	assert.True(t, r.Expired(now.Add(time.Hour)))
}

func TestNewVoteValidation(t *testing.T) {
	_, err := NewVote("r1", "", VoteConfirm, "", now)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewVote("r1", "v1", "maybe", "", now)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewVote("r1", "v1", VoteDispute, strings.Repeat("c", MaxCommentLen+1), now)
	assert.ErrorIs(t, err, ErrInvalidInput)

	v, err := NewVote("r1", "v1", VoteDispute, "  seen it too  ", now)
	require.NoError(t, err)
	assert.Equal(t, "seen it too", v.Comment)
}

func TestNewLocationRating(t *testing.T) {
	r, err := NewLocationRating(12.9716, 77.5946, "v1", RatingScores{Lighting: 4, Security: 1}, "", now)
	require.NoError(t, err)
	assert.Equal(t, "tdr1v", r.Geohash)
	assert.Equal(t, 3, r.Overall) // round(5/2)

	_, err = NewLocationRating(12.9716, 77.5946, "v1", RatingScores{}, "", now)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewLocationRating(12.9716, 77.5946, "v1", RatingScores{Lighting: 6}, "", now)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
