// Package classify turns free report text into a risk level, category and
// reason, moderates text before it is stored and writes area summaries. A
// language model is used when configured; any failure falls back to
// deterministic keyword rules.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"geosafe/internal/db"
	"geosafe/internal/metrics"
)

// ErrClassificationUnavailable means the model could not produce a usable
// answer. It never leaves this package; callers get the fallback result.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// Model completes a single prompt.
type Model interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Classification struct {
	RiskLevel db.RiskLevel `json:"riskLevel"`
	Reason    string       `json:"reason"`
	Category  db.Category  `json:"category"`
	AIParsed  bool         `json:"aiParsed"`
}

type Moderation struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// AreaStats is the anonymised input of an area summary.
type AreaStats struct {
	Geohash    string
	Days       int
	Total      int
	ByRisk     map[string]int
	ByCategory map[string]int
}

type Options struct {
	// Timeout bounds one model call including the wait for the limiter.
	Timeout time.Duration
	// RPS limits model calls per second. <= 0 means unlimited.
	RPS float64
}

type Pipeline struct {
	model   Model
	limiter *rate.Limiter
	timeout time.Duration
}

// New returns a pipeline over model. A nil model makes every call use the
// fallback.
func New(model Model, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	return &Pipeline{
		model:   model,
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
	}
}

const classifySystem = "You classify community safety reports. Reply with a single JSON object and nothing else."

const classifyPrompt = `Classify this safety report.

Report: %q

riskLevel is "high" for immediate danger, assault, weapons or active threats; "medium" for harassment, suspicious activity or uncomfortable situations; "low" for minor concerns.
reason is a neutral summary of at most 150 characters.
category is one of: %s.

Reply as {"riskLevel": "...", "reason": "...", "category": "..."}`

// Classify never fails: model errors and malformed replies yield the keyword
// classification with AIParsed false.
func (p *Pipeline) Classify(ctx context.Context, text string) Classification {
	names := make([]string, 0, len(db.Categories))
	for _, c := range db.Categories {
		names = append(names, string(c))
	}
	reply, err := p.complete(ctx, classifySystem, fmt.Sprintf(classifyPrompt, text, strings.Join(names, ", ")))
	if err == nil {
		var c Classification
		if c, err = parseClassification(reply, text); err == nil {
			return c
		}
	}
	p.fellBack("classify", err)
	return FallbackClassify(text)
}

func parseClassification(reply, text string) (Classification, error) {
	var raw struct {
		RiskLevel string `json:"riskLevel"`
		Reason    string `json:"reason"`
		Category  string `json:"category"`
	}
	if err := decodeObject(reply, &raw); err != nil {
		return Classification{}, err
	}
	risk := db.RiskLevel(strings.ToLower(strings.TrimSpace(raw.RiskLevel)))
	if !risk.Valid() {
		return Classification{}, fmt.Errorf("%w: risk level %q", ErrClassificationUnavailable, raw.RiskLevel)
	}
	category := db.Category(strings.ToLower(strings.TrimSpace(raw.Category)))
	if !category.Valid() {
		category = db.CategoryOther
	}
	reason := strings.TrimSpace(raw.Reason)
	if reason == "" {
		reason = text
	}
	return Classification{
		RiskLevel: risk,
		Reason:    db.Clip(reason, db.MaxReasonLen),
		Category:  category,
		AIParsed:  true,
	}, nil
}

const moderateSystem = "You moderate posts on a community safety platform. Reply with a single JSON object and nothing else."

const moderatePrompt = `Review this post.

Post: %q

Refuse it if it contains personal identifiable information (names, addresses, phone numbers, emails), hate speech, calls for violence or vigilantism, accusations against identifiable people, or doxxing.

Reply as {"approved": true or false, "reason": "why, when refused"}`

// Moderate never fails: model errors and malformed replies yield the
// keyword moderation.
func (p *Pipeline) Moderate(ctx context.Context, text string) Moderation {
	reply, err := p.complete(ctx, moderateSystem, fmt.Sprintf(moderatePrompt, text))
	if err == nil {
		var raw struct {
			Approved *bool  `json:"approved"`
			Reason   string `json:"reason"`
		}
		if err = decodeObject(reply, &raw); err == nil {
			// Anything short of an explicit refusal is an approval.
			m := Moderation{Approved: raw.Approved == nil || *raw.Approved}
			if !m.Approved {
				m.Reason = strings.TrimSpace(raw.Reason)
				if m.Reason == "" {
					m.Reason = "Content violates the posting policy"
				}
			}
			return m
		}
	}
	p.fellBack("moderate", err)
	return FallbackModerate(text)
}

const summarySystem = "You write short neutral briefings for local authorities. Never invent details that are not in the data."

const summaryPrompt = `Write a briefing of at most five sentences about community safety reports in one area.

Area geohash: %s
Window: last %d days
Total reports: %d
By risk level: %s
By category: %s

Do not speculate about individuals. Reply with plain text only.`

// Summarize writes an area briefing. The second result is false when the
// deterministic summary was used.
func (p *Pipeline) Summarize(ctx context.Context, s AreaStats) (string, bool) {
	reply, err := p.complete(ctx, summarySystem, fmt.Sprintf(summaryPrompt,
		s.Geohash, s.Days, s.Total, joinCounts(s.ByRisk), joinCounts(s.ByCategory)))
	if err == nil {
		if text := strings.TrimSpace(reply); text != "" {
			return text, true
		}
		err = fmt.Errorf("%w: empty summary", ErrClassificationUnavailable)
	}
	p.fellBack("summarize", err)
	return FallbackSummary(s), false
}

func (p *Pipeline) complete(ctx context.Context, system, prompt string) (string, error) {
	if p.model == nil {
		return "", fmt.Errorf("%w: no model configured", ErrClassificationUnavailable)
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.limiter.Wait(cctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", ErrClassificationUnavailable, err)
	}
	reply, err := p.model.Complete(cctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	return reply, nil
}

func (p *Pipeline) fellBack(op string, err error) {
	metrics.ClassifierFallbacks.WithLabelValues(op).Inc()
	if p.model != nil {
		log.Warn("classifier fallback", "op", op, "err", err)
	}
}

// decodeObject parses the outermost {...} span of reply into v.
func decodeObject(reply string, v any) error {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in reply", ErrClassificationUnavailable)
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
	}
	return nil
}
