package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"geosafe/internal/db"
)

type keywordRule struct {
	words    []string
	risk     db.RiskLevel
	category db.Category
}

// Rules are checked in order; the first rule with a matching word wins.
var keywordRules = []keywordRule{
	{[]string{"assault", "robbery", "attack", "weapon", "gun", "knife"}, db.RiskHigh, db.CategoryAssault},
	{[]string{"theft", "stole", "stolen"}, db.RiskMedium, db.CategoryTheft},
	{[]string{"suspicious", "uncomfortable", "harass", "follow"}, db.RiskMedium, db.CategorySuspiciousActivity},
	{[]string{"light", "broken", "road", "pothole"}, db.RiskLow, db.CategoryUnsafeInfrastructure},
}

var (
	piiPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{10}\b|\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	blacklist  = []string{"kill", "murder", "bomb", "terrorist"}
)

const (
	reasonPII        = "Content contains personal identifiable information"
	reasonProhibited = "Content contains prohibited language"
)

// FallbackClassify assigns risk and category by substring match.
func FallbackClassify(text string) Classification {
	lower := strings.ToLower(text)
	c := Classification{
		RiskLevel: db.RiskLow,
		Category:  db.CategoryOther,
		Reason:    db.Clip(text, db.MaxReasonLen),
	}
	for _, rule := range keywordRules {
		if containsAny(lower, rule.words) {
			c.RiskLevel = rule.risk
			c.Category = rule.category
			break
		}
	}
	return c
}

// FallbackModerate refuses text that looks like it carries personal data or
// uses prohibited words.
func FallbackModerate(text string) Moderation {
	if piiPattern.MatchString(text) {
		return Moderation{Approved: false, Reason: reasonPII}
	}
	if containsAny(strings.ToLower(text), blacklist) {
		return Moderation{Approved: false, Reason: reasonProhibited}
	}
	return Moderation{Approved: true}
}

// FallbackSummary renders area statistics as plain text.
func FallbackSummary(s AreaStats) string {
	if s.Total == 0 {
		return fmt.Sprintf("No active reports were filed in area %s during the last %d days.", s.Geohash, s.Days)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d reports were filed in area %s during the last %d days.", s.Total, s.Geohash, s.Days)
	if part := joinCounts(s.ByRisk); part != "" {
		fmt.Fprintf(&b, " By risk level: %s.", part)
	}
	if part := joinCounts(s.ByCategory); part != "" {
		fmt.Fprintf(&b, " By category: %s.", part)
	}
	return b.String()
}

func joinCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k, n := range m {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
