// Package risk scores a visit from its signal bundle and produces the
// contextual factors shown to operators.
package risk

// Level classifies a score into an operator-facing severity tier.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Severity tags a single contributing factor.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Factor is one human-readable contributing signal attached to a scored
// visit. Factors explain "why flagged"; the score alone says "how much".
type Factor struct {
	Signal   string   `json:"signal"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// Analysis is the scoring result for one visit.
type Analysis struct {
	Score          int      `json:"score"` // 0-100
	Level          Level    `json:"level"`
	Factors        []Factor `json:"factors"`
	Recommendation string   `json:"recommendation"`
}

// Score-to-level thresholds. Boundary-inclusive at the lower edge.
const (
	criticalThreshold = 60
	highThreshold     = 40
	mediumThreshold   = 20
)

// LevelForScore maps a 0-100 score onto a severity level.
func LevelForScore(score int) Level {
	switch {
	case score >= criticalThreshold:
		return LevelCritical
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// RecommendationForLevel returns the operator guidance shown next to a
// scored visitor.
func RecommendationForLevel(level Level) string {
	switch level {
	case LevelCritical:
		return "Likely scraper or copycat. Consider blocking this visitor."
	case LevelHigh:
		return "Monitor closely. Review visit patterns for scraping behavior."
	case LevelMedium:
		return "Keep on watchlist. Some suspicious signals present."
	default:
		return "Normal visitor behavior."
	}
}
