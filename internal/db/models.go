package db

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"geosafe/internal/geohash"
)

// Field bounds, in characters.
const (
	MaxReasonLen       = 150
	MaxOriginalTextLen = 500
	MaxCommentLen      = 200
	MaxVoterIDLen      = 128

	// NeutralCredibility is the score of a report nobody has voted on.
	NeutralCredibility = 50
)

type ReportType string

const (
	ReportPerception ReportType = "perception"
	ReportCrime      ReportType = "crime"
)

func (t ReportType) Valid() bool {
	return t == ReportPerception || t == ReportCrime
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

type Category string

const (
	CategoryHarassment           Category = "harassment"
	CategoryTheft                Category = "theft"
	CategoryAssault              Category = "assault"
	CategorySuspiciousActivity   Category = "suspicious-activity"
	CategoryUnsafeInfrastructure Category = "unsafe-infrastructure"
	CategoryOther                Category = "other"
)

// Categories lists the bounded category set in display order.
var Categories = []Category{
	CategoryHarassment,
	CategoryTheft,
	CategoryAssault,
	CategorySuspiciousActivity,
	CategoryUnsafeInfrastructure,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type VoteType string

const (
	VoteConfirm VoteType = "confirm"
	VoteDispute VoteType = "dispute"
)

func (v VoteType) Valid() bool {
	return v == VoteConfirm || v == VoteDispute
}

// Location is a point plus its derived geohash. It is embedded with the
// column prefix "location_".
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Geohash string  `gorm:"size:12;index" json:"geohash"`
}

// NewLocation validates the point and derives its geohash.
func NewLocation(lat, lng float64, precision int) (Location, error) {
	h, err := geohash.Encode(lat, lng, precision)
	if err != nil {
		return Location{}, err
	}
	return Location{Lat: lat, Lng: lng, Geohash: h}, nil
}

// Report is a user-submitted safety observation.
type Report struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Location Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`

	ReportType   ReportType `gorm:"size:16;not null" json:"reportType"`
	RiskLevel    RiskLevel  `gorm:"size:8;not null;index" json:"riskLevel"`
	Category     Category   `gorm:"size:32;not null" json:"category"`
	Reason       string     `gorm:"size:150;not null" json:"reason"`
	OriginalText string     `gorm:"size:500;not null" json:"originalText"`

	// AIParsed is false when the keyword fallback classified the text.
	AIParsed bool `gorm:"not null;default:false" json:"aiParsed"`

	CreatedAt time.Time `gorm:"index;not null" json:"createdAt"`

	// ExpiresAt is CreatedAt plus the retention window. Reads never return a
	// report once now >= ExpiresAt, whether or not the sweep has deleted it.
	ExpiresAt time.Time `gorm:"index;not null" json:"expiresAt"`

	// Derived from votes; written only by the credibility aggregator.
	ConfirmCount     int `gorm:"not null;default:0" json:"confirmCount"`
	DisputeCount     int `gorm:"not null;default:0" json:"disputeCount"`
	CredibilityScore int `gorm:"not null;default:50" json:"credibilityScore"`
}

// ReportParams carries the caller-supplied fields of a new report.
type ReportParams struct {
	ReportType   ReportType
	RiskLevel    RiskLevel
	Category     Category
	Reason       string
	OriginalText string
	AIParsed     bool
	Lat, Lng     float64
}

// NewReport validates params and stamps geohash, creation and expiry time.
func NewReport(p ReportParams, now time.Time, ttl time.Duration) (*Report, error) {
	text := strings.TrimSpace(p.OriginalText)
	if text == "" {
		return nil, invalid("originalText is required")
	}
	if utf8.RuneCountInString(text) > MaxOriginalTextLen {
		return nil, invalid("originalText exceeds %d characters", MaxOriginalTextLen)
	}
	if !p.ReportType.Valid() {
		return nil, invalid("unknown reportType %q", p.ReportType)
	}
	if !p.RiskLevel.Valid() {
		return nil, invalid("unknown riskLevel %q", p.RiskLevel)
	}
	category := p.Category
	if category == "" {
		category = CategoryOther
	}
	if !category.Valid() {
		return nil, invalid("unknown category %q", p.Category)
	}
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		reason = Clip(text, MaxReasonLen)
	}
	if utf8.RuneCountInString(reason) > MaxReasonLen {
		return nil, invalid("reason exceeds %d characters", MaxReasonLen)
	}
	if ttl <= 0 {
		return nil, invalid("retention must be positive")
	}

	loc, err := NewLocation(p.Lat, p.Lng, geohash.StoragePrecision)
	if err != nil {
		return nil, err
	}

	return &Report{
		Location:         loc,
		ReportType:       p.ReportType,
		RiskLevel:        p.RiskLevel,
		Category:         category,
		Reason:           reason,
		OriginalText:     text,
		AIParsed:         p.AIParsed,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		CredibilityScore: NeutralCredibility,
	}, nil
}

// Expired reports whether the report is past its TTL at now.
func (r *Report) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *Report) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Vote is one voter's position on one report. (ReportID, VoterID) is unique.
type Vote struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	ReportID string `gorm:"size:36;not null;uniqueIndex:idx_votes_report_voter,priority:1" json:"reportId"`
	VoterID  string `gorm:"size:128;not null;uniqueIndex:idx_votes_report_voter,priority:2" json:"-"`

	VoteType  VoteType  `gorm:"size:8;not null" json:"voteType"`
	Comment   string    `gorm:"size:200" json:"comment,omitempty"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

// NewVote validates a vote before it is written.
func NewVote(reportID, voterID string, voteType VoteType, comment string, now time.Time) (*Vote, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, invalid("reportId is required")
	}
	if err := ValidateVoterID(voterID); err != nil {
		return nil, err
	}
	if !voteType.Valid() {
		return nil, invalid("unknown voteType %q", voteType)
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLen {
		return nil, invalid("comment exceeds %d characters", MaxCommentLen)
	}
	return &Vote{
		ReportID:  reportID,
		VoterID:   voterID,
		VoteType:  voteType,
		Comment:   comment,
		Timestamp: now,
	}, nil
}

func (v *Vote) BeforeCreate(*gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// ValidateVoterID checks the opaque anonymous identity handed in by callers.
func ValidateVoterID(voterID string) error {
	if strings.TrimSpace(voterID) == "" {
		return invalid("voterId is required")
	}
	if len(voterID) > MaxVoterIDLen {
		return invalid("voterId exceeds %d bytes", MaxVoterIDLen)
	}
	return nil
}

// Pattern is a cluster summary produced by one pattern detection run. Each
// run replaces the whole set; patterns have no identity across runs.
type Pattern struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	// Location is the cluster centroid; its geohash is the bucket prefix.
	Location Location `gorm:"embedded;embeddedPrefix:location_" json:"location"`

	ReportCount int                         `gorm:"not null" json:"reportCount"`
	Confidence  float64                     `gorm:"not null;index" json:"confidence"`
	ReportIDs   datatypes.JSONSlice[string] `json:"reportIds"`
	LastUpdate  time.Time                   `gorm:"not null" json:"lastUpdate"`
}

func (p *Pattern) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// LocationRating is one voter's safety rating of a geohash cell. Each
// dimension is 0..5, 0 meaning not rated.
type LocationRating struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Geohash string  `gorm:"size:12;not null;uniqueIndex:idx_ratings_cell_voter,priority:1" json:"geohash"`
	VoterID string  `gorm:"size:128;not null;uniqueIndex:idx_ratings_cell_voter,priority:2" json:"-"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`

	Lighting    int    `gorm:"not null" json:"lighting"`
	FootTraffic int    `gorm:"not null" json:"footTraffic"`
	Security    int    `gorm:"not null" json:"security"`
	Businesses  int    `gorm:"not null" json:"businesses"`
	Overall     int    `gorm:"not null" json:"overall"`
	Comment     string `gorm:"size:200" json:"comment,omitempty"`

	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

const MaxRating = 5

// RatingScores are the four rated dimensions.
type RatingScores struct {
	Lighting    int `json:"lighting"`
	FootTraffic int `json:"footTraffic"`
	Security    int `json:"security"`
	Businesses  int `json:"businesses"`
}

func (s RatingScores) values() []int {
	return []int{s.Lighting, s.FootTraffic, s.Security, s.Businesses}
}

// NewLocationRating validates scores and derives the cell and overall score.
func NewLocationRating(lat, lng float64, voterID string, scores RatingScores, comment string, now time.Time) (*LocationRating, error) {
	if err := ValidateVoterID(voterID); err != nil {
		return nil, err
	}
	loc, err := NewLocation(lat, lng, geohash.RatingPrecision)
	if err != nil {
		return nil, err
	}
	sum, rated := 0, 0
	for _, v := range scores.values() {
		if v < 0 || v > MaxRating {
			return nil, invalid("rating values must be within 0..%d", MaxRating)
		}
		if v > 0 {
			sum += v
			rated++
		}
	}
	if rated == 0 {
		return nil, invalid("at least one rating is required")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLen {
		return nil, invalid("comment exceeds %d characters", MaxCommentLen)
	}
	return &LocationRating{
		Geohash:     loc.Geohash,
		VoterID:     voterID,
		Lat:         lat,
		Lng:         lng,
		Lighting:    scores.Lighting,
		FootTraffic: scores.FootTraffic,
		Security:    scores.Security,
		Businesses:  scores.Businesses,
		Overall:     int(math.Round(float64(sum) / float64(rated))),
		Comment:     comment,
		Timestamp:   now,
	}, nil
}

func (r *LocationRating) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// AuthorityReport is an anonymised area summary generated for local
// authorities.
type AuthorityReport struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	Geohash     string    `gorm:"size:12;not null;index" json:"geohash"`
	ReportCount int       `gorm:"not null" json:"reportCount"`
	WindowStart time.Time `gorm:"not null" json:"windowStart"`
	WindowEnd   time.Time `gorm:"not null" json:"windowEnd"`
	Summary     string    `gorm:"type:text;not null" json:"summary"`
	AIGenerated bool      `gorm:"not null;default:false" json:"aiGenerated"`
	GeneratedAt time.Time `gorm:"not null" json:"generatedAt"`
}

func (a *AuthorityReport) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Clip returns at most n characters of s.
func Clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
