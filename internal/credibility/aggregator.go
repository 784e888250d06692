// Package credibility records votes and keeps each report's confirm and
// dispute counts and credibility score in step with them.
package credibility

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"geosafe/internal/db"
	"geosafe/internal/metrics"
	"geosafe/internal/reports"
)

// DefaultCommentLimit is used when Comments is called with limit <= 0.
const DefaultCommentLimit = 20

var (
	voteConflict = []string{"report_id", "voter_id"}
	voteUpdate   = []string{"vote_type", "comment", "timestamp"}
)

// Comment is the public view of a vote that carries text. The voter is not
// exposed.
type Comment struct {
	Text      string      `json:"text"`
	VoteType  db.VoteType `json:"voteType"`
	Timestamp time.Time   `json:"timestamp"`
}

type Aggregator struct {
	ix      *db.Index
	reports *reports.Manager
}

func NewAggregator(ix *db.Index, reports *reports.Manager) *Aggregator {
	return &Aggregator{ix: ix, reports: reports}
}

// Score is the credibility of a report with the given vote counts: 50 with
// no votes, otherwise the confirm share as a rounded percentage.
func Score(confirms, disputes int) int {
	total := confirms + disputes
	if total == 0 {
		return db.NeutralCredibility
	}
	return int(math.Round(100 * float64(confirms) / float64(total)))
}

// Vote records voterID's position on the report, replacing any earlier vote
// by the same voter, and returns the report with recomputed counts. Unknown
// and expired reports yield db.ErrNotFound.
func (a *Aggregator) Vote(ctx context.Context, reportID, voterID string, voteType db.VoteType, comment string) (*db.Report, error) {
	v, err := db.NewVote(reportID, voterID, voteType, comment, a.ix.Now())
	if err != nil {
		return nil, err
	}
	if _, err := a.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	// The unique (report_id, voter_id) index makes concurrent votes by one
	// voter collapse into a single row.
	if err := a.ix.Upsert(ctx, v, voteConflict, voteUpdate); err != nil {
		return nil, fmt.Errorf("store vote: %w", err)
	}
	metrics.Votes.WithLabelValues(string(voteType)).Inc()
	return a.recount(ctx, reportID)
}

// RemoveVote deletes voterID's vote on the report, if any, and recomputes
// the report's counts.
func (a *Aggregator) RemoveVote(ctx context.Context, reportID, voterID string) (*db.Report, error) {
	if err := db.ValidateVoterID(voterID); err != nil {
		return nil, err
	}
	if _, err := a.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	n, err := a.ix.DeleteWhere(ctx, &db.Vote{}, map[string]any{"report_id": reportID, "voter_id": voterID})
	if err != nil {
		return nil, fmt.Errorf("delete vote: %w", err)
	}
	log.Debug("vote removed", "report", reportID, "removed", n)
	return a.recount(ctx, reportID)
}

// VoteOf returns voterID's current vote on the report.
func (a *Aggregator) VoteOf(ctx context.Context, reportID, voterID string) (*db.Vote, error) {
	if err := db.ValidateVoterID(voterID); err != nil {
		return nil, err
	}
	votes, err := db.ExactQuery[db.Vote](ctx, a.ix, map[string]any{"report_id": reportID, "voter_id": voterID})
	if err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, db.ErrNotFound
	}
	return &votes[0], nil
}

// Comments returns up to limit commented votes on the report, newest first.
func (a *Aggregator) Comments(ctx context.Context, reportID string, limit int) ([]Comment, error) {
	if limit <= 0 {
		limit = DefaultCommentLimit
	}
	if _, err := a.reports.Get(ctx, reportID); err != nil {
		return nil, err
	}
	votes, err := db.Find[db.Vote](ctx, a.ix, db.Query{
		Equals:  map[string]any{"report_id": reportID},
		OrderBy: []db.Order{{Field: "timestamp", Desc: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	out := make([]Comment, 0, min(limit, len(votes)))
	for _, v := range votes {
		if v.Comment == "" {
			continue
		}
		out = append(out, Comment{Text: v.Comment, VoteType: v.VoteType, Timestamp: v.Timestamp})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// recount derives the counters from every stored vote rather than adjusting
// them, so edits and removals cannot drift.
func (a *Aggregator) recount(ctx context.Context, reportID string) (*db.Report, error) {
	votes, err := db.ExactQuery[db.Vote](ctx, a.ix, map[string]any{"report_id": reportID})
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	confirms, disputes := 0, 0
	for _, v := range votes {
		switch v.VoteType {
		case db.VoteConfirm:
			confirms++
		case db.VoteDispute:
			disputes++
		}
	}
	score := Score(confirms, disputes)
	err = a.ix.UpdateFields(ctx, &db.Report{}, reportID, map[string]any{
		"confirm_count":     confirms,
		"dispute_count":     disputes,
		"credibility_score": score,
	})
	if errors.Is(err, db.ErrNotFound) {
		// Swept between the vote and the recount.
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update credibility: %w", err)
	}
	r, err := db.Get[db.Report](ctx, a.ix, reportID)
	if err != nil {
		return nil, err
	}
	return r, nil
}
