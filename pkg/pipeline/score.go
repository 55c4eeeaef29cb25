package pipeline

import (
	"time"

	"github.com/cadencehq/cadence/internal/models"
)

// extractionOutcome summarizes how the cascade ended for scoring.
type extractionOutcome int

const (
	outcomeNotAttempted extractionOutcome = iota
	outcomeRegexHit
	outcomeLLMHit
	outcomeLLMNegative
	outcomeFailed
)

func (o extractionOutcome) adjustment() int {
	switch o {
	case outcomeRegexHit:
		return 15
	case outcomeLLMHit:
		return 10
	case outcomeLLMNegative:
		return 5
	case outcomeFailed:
		return -25
	default:
		return 0
	}
}

// parseQuality blends the cleaning completeness score, classification
// confidence and the extraction outcome into the 0-100 parse quality.
func parseQuality(cleanScore int, confidence float64, outcome extractionOutcome) int {
	q := int(float64(cleanScore)*0.6+confidence*40) + outcome.adjustment()
	if q < 0 {
		q = 0
	}
	if q > 100 {
		q = 100
	}
	return q
}

// typePriority is the FOIA priority base per document type. Types that
// usually reference a specific chargeable incident rank highest.
var typePriority = map[models.DocumentType]int{
	models.TypeIncidentReport:     25,
	models.TypeArrestLog:          25,
	models.TypeDailyActivityLog:   20,
	models.TypeCrimemapping:       20,
	models.TypePressRelease:       15,
	models.TypeCommunityAlert:     15,
	models.TypePDFDocument:        15,
	models.TypeOpenDataRecord:     10,
	models.TypeTransparencyPortal: 10,
	models.TypeRSSItem:            10,
}

// foiaPriority scores a queue entry 0-100. Monotonic: more identifiers
// or a more recent published date never lower the score, all else equal.
func foiaPriority(identifierCount int, docType models.DocumentType, publishedAt, now time.Time) int {
	score := typePriority[docType]

	idPoints := identifierCount * 10
	if idPoints > 40 {
		idPoints = 40
	}
	score += idPoints

	age := now.Sub(publishedAt)
	switch {
	case age <= 7*24*time.Hour:
		score += 35
	case age <= 30*24*time.Hour:
		score += 25
	case age <= 90*24*time.Hour:
		score += 15
	case age <= 365*24*time.Hour:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}
