// Package ingest runs submitted text through moderation and classification
// and stores the resulting report.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"geosafe/internal/classify"
	"geosafe/internal/db"
	"geosafe/internal/metrics"
	"geosafe/internal/reports"
)

// ErrRejected is returned when moderation refuses the text. Use errors.As
// with *RejectedError to read the reason.
var ErrRejected = errors.New("report rejected by moderation")

type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return ErrRejected.Error() + ": " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// Submission is a raw report as sent by a client.
type Submission struct {
	Text       string
	ReportType db.ReportType
	Lat, Lng   float64
}

// Classifier is the part of the classification pipeline ingest needs.
type Classifier interface {
	Moderate(ctx context.Context, text string) classify.Moderation
	Classify(ctx context.Context, text string) classify.Classification
}

type Service struct {
	classifier Classifier
	reports    *reports.Manager
}

func NewService(classifier Classifier, reports *reports.Manager) *Service {
	return &Service{classifier: classifier, reports: reports}
}

// Submit moderates, classifies and stores s. Input is validated before any
// model call so oversized text never leaves the process.
func (s *Service) Submit(ctx context.Context, sub Submission) (*db.Report, error) {
	text := strings.TrimSpace(sub.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", db.ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > db.MaxOriginalTextLen {
		return nil, fmt.Errorf("%w: text exceeds %d characters", db.ErrInvalidInput, db.MaxOriginalTextLen)
	}
	reportType := sub.ReportType
	if reportType == "" {
		reportType = db.ReportPerception
	}
	if !reportType.Valid() {
		return nil, fmt.Errorf("%w: unknown reportType %q", db.ErrInvalidInput, sub.ReportType)
	}
	// Location errors surface before the model is consulted.
	if _, err := db.NewLocation(sub.Lat, sub.Lng, 1); err != nil {
		return nil, err
	}

	if m := s.classifier.Moderate(ctx, text); !m.Approved {
		log.Info("report rejected", "reason", m.Reason)
		return nil, &RejectedError{Reason: m.Reason}
	}

	c := s.classifier.Classify(ctx, text)
	r, err := s.reports.Submit(ctx, db.ReportParams{
		ReportType:   reportType,
		RiskLevel:    c.RiskLevel,
		Category:     c.Category,
		Reason:       c.Reason,
		OriginalText: text,
		AIParsed:     c.AIParsed,
		Lat:          sub.Lat,
		Lng:          sub.Lng,
	})
	if err != nil {
		return nil, err
	}
	metrics.ReportsSubmitted.WithLabelValues(string(r.ReportType), string(r.RiskLevel), strconv.FormatBool(r.AIParsed)).Inc()
	return r, nil
}
