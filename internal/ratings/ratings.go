// Package ratings stores per-voter safety ratings of small geohash cells and
// aggregates them on read.
package ratings

import (
	"context"
	"fmt"
	"math"

	"geosafe/internal/db"
	"geosafe/internal/geohash"
)

// RecentLimit is how many individual ratings ForLocation returns.
const RecentLimit = 10

var (
	ratingConflict = []string{"geohash", "voter_id"}
	ratingUpdate   = []string{"lat", "lng", "lighting", "foot_traffic", "security", "businesses", "overall", "comment", "timestamp"}
)

// Aggregate is the mean of every stored rating in a cell. Dimensions nobody
// rated are zero.
type Aggregate struct {
	Geohash     string  `json:"geohash"`
	Lighting    float64 `json:"lighting"`
	FootTraffic float64 `json:"footTraffic"`
	Security    float64 `json:"security"`
	Businesses  float64 `json:"businesses"`
	Overall     float64 `json:"overall"`
	RatingCount int     `json:"ratingCount"`
}

type Summary struct {
	Aggregate Aggregate           `json:"aggregate"`
	Recent    []db.LocationRating `json:"recent"`
}

type Service struct {
	ix *db.Index
}

func NewService(ix *db.Index) *Service {
	return &Service{ix: ix}
}

// Submit stores voterID's rating of the cell containing (lat, lng). Rating
// the same cell again overwrites the earlier rating.
func (s *Service) Submit(ctx context.Context, lat, lng float64, voterID string, scores db.RatingScores, comment string) (*db.LocationRating, error) {
	r, err := db.NewLocationRating(lat, lng, voterID, scores, comment, s.ix.Now())
	if err != nil {
		return nil, err
	}
	if err := s.ix.Upsert(ctx, r, ratingConflict, ratingUpdate); err != nil {
		return nil, fmt.Errorf("store rating: %w", err)
	}
	// On conflict the stored row keeps its original id.
	stored, err := db.ExactQuery[db.LocationRating](ctx, s.ix, map[string]any{"geohash": r.Geohash, "voter_id": voterID})
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, db.ErrNotFound
	}
	return &stored[0], nil
}

// ForLocation recomputes the aggregate of the cell containing (lat, lng)
// and returns it with the most recent ratings.
func (s *Service) ForLocation(ctx context.Context, lat, lng float64) (*Summary, error) {
	cell, err := geohash.Encode(lat, lng, geohash.RatingPrecision)
	if err != nil {
		return nil, err
	}
	rows, err := db.Find[db.LocationRating](ctx, s.ix, db.Query{
		Equals:  map[string]any{"geohash": cell},
		OrderBy: []db.Order{{Field: "timestamp", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch ratings for %s: %w", cell, err)
	}
	recent := rows
	if len(recent) > RecentLimit {
		recent = recent[:RecentLimit]
	}
	if recent == nil {
		recent = []db.LocationRating{}
	}
	return &Summary{Aggregate: aggregate(cell, rows), Recent: recent}, nil
}

func aggregate(cell string, rows []db.LocationRating) Aggregate {
	a := Aggregate{Geohash: cell, RatingCount: len(rows)}
	var sums, counts [4]float64
	for _, r := range rows {
		for i, v := range []int{r.Lighting, r.FootTraffic, r.Security, r.Businesses} {
			if v > 0 {
				sums[i] += float64(v)
				counts[i]++
			}
		}
	}
	var means [4]float64
	var total, rated float64
	for i := range sums {
		if counts[i] > 0 {
			means[i] = round1(sums[i] / counts[i])
			total += sums[i] / counts[i]
			rated++
		}
	}
	a.Lighting, a.FootTraffic, a.Security, a.Businesses = means[0], means[1], means[2], means[3]
	if rated > 0 {
		a.Overall = round1(total / rated)
	}
	return a
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
