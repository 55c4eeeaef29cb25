// Package classify assigns a closed-enum document type to raw scraped
// documents using platform priors, URL path heuristics and keyword
// signals. Classification is deterministic and never fails: fully
// ambiguous input falls back to (press_release, 0.4) and the low
// confidence flows into parse quality scoring.
package classify

import (
	"regexp"
	"strings"

	"github.com/cadencehq/cadence/internal/models"
)

// Result is a document type plus the confidence of the assignment.
type Result struct {
	DocumentType models.DocumentType
	Confidence   float64
}

// legacyNormalization maps parser-emitted feed hints to enum values.
var legacyNormalization = map[string]models.DocumentType{
	"activity_feed":       models.TypeDailyActivityLog,
	"alert":               models.TypeCommunityAlert,
	"incident_log":        models.TypeIncidentReport,
	"incident_reports":    models.TypeIncidentReport,
	"open_data_api":       models.TypeOpenDataRecord,
	"pdf_library":         models.TypePDFDocument,
	"press_releases":      models.TypePressRelease,
	"rss_feed":            models.TypeRSSItem,
	"transparency_portal": models.TypeTransparencyPortal,
	"community_alerts":    models.TypeCommunityAlert,
	"crimemapping_embed":  models.TypeCrimemapping,
	"daily_activity_log":  models.TypeDailyActivityLog,
	"arrest_log":          models.TypeArrestLog,
}

// platformDefaults holds per-platform priors. Confidence >= 0.9
// short-circuits; weaker priors are refined by URL and keyword signals.
var platformDefaults = map[string]Result{
	"crimemapping": {models.TypeCrimemapping, 1.0},
	"citizenrims":  {models.TypeIncidentReport, 0.9},
	"nixle":        {models.TypeCommunityAlert, 0.9},
	"rave":         {models.TypeCommunityAlert, 0.9},
	"socrata":      {models.TypeOpenDataRecord, 0.85},
	"arcgis":       {models.TypeOpenDataRecord, 0.85},
	"transparency": {models.TypeTransparencyPortal, 0.85},
	"pdf":          {models.TypePDFDocument, 0.75},
	"civicplus":    {models.TypePressRelease, 0.7},
	"rss":          {models.TypeRSSItem, 0.7},
}

type urlPattern struct {
	re      *regexp.Regexp
	docType models.DocumentType
	boost   float64
}

var urlPatterns = []urlPattern{
	{regexp.MustCompile(`/press.?release|/news/|/media-release`), models.TypePressRelease, 0.2},
	{regexp.MustCompile(`/arrest|/booking|/jail|/inmate`), models.TypeArrestLog, 0.25},
	{regexp.MustCompile(`/activity.?log|/daily.?log|/blotter|/patrol-log`), models.TypeDailyActivityLog, 0.25},
	{regexp.MustCompile(`/alert|/warn|/emergency|/bolo`), models.TypeCommunityAlert, 0.2},
	{regexp.MustCompile(`/incident|/crime.?report`), models.TypeIncidentReport, 0.2},
	{regexp.MustCompile(`/transparency|/public-records`), models.TypeTransparencyPortal, 0.2},
}

var keywordSignals = map[models.DocumentType][]string{
	models.TypePressRelease: {
		"press release",
		"for immediate release",
		"media contact",
		"public information officer",
		"pio",
	},
	models.TypeArrestLog: {
		"arrested",
		"booking",
		"bail",
		"arraignment",
		"charges filed",
		"booked into",
		"remanded",
	},
	models.TypeDailyActivityLog: {
		"daily activity",
		"patrol log",
		"calls for service",
		"cad report",
		"shift summary",
		"service calls",
	},
	models.TypeCommunityAlert: {
		"bolo",
		"be on the lookout",
		"wanted",
		"missing person",
		"amber alert",
		"silver alert",
		"shelter in place",
		"advisory",
	},
	models.TypeIncidentReport: {
		"case number",
		"report number",
		"occurred at",
		"victim reported",
		"suspect fled",
		"investigation ongoing",
	},
}

var fallback = Result{DocumentType: models.TypePressRelease, Confidence: 0.4}

// urlSignal returns the first matching URL pattern, if any.
func urlSignal(rawURL string) (models.DocumentType, float64, bool) {
	lowered := strings.ToLower(rawURL)
	for _, p := range urlPatterns {
		if p.re.MatchString(lowered) {
			return p.docType, p.boost, true
		}
	}
	return "", 0, false
}

// keywordSignal scores keyword lists against the title plus text
// excerpt and returns the highest-scoring type. Boost is capped at 0.3
// (0.1 per matched keyword).
func keywordSignal(text string) (models.DocumentType, float64, bool) {
	lowered := strings.ToLower(text)

	var bestType models.DocumentType
	var bestBoost float64

	// Deterministic iteration: check types in a fixed order.
	ordered := []models.DocumentType{
		models.TypePressRelease,
		models.TypeArrestLog,
		models.TypeDailyActivityLog,
		models.TypeCommunityAlert,
		models.TypeIncidentReport,
	}

	for _, docType := range ordered {
		matches := 0
		for _, kw := range keywordSignals[docType] {
			if strings.Contains(lowered, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		boost := float64(matches) * 0.1
		if boost > 0.3 {
			boost = 0.3
		}
		if boost > bestBoost {
			bestBoost = boost
			bestType = docType
		}
	}

	if bestType == "" {
		return "", 0, false
	}
	return bestType, bestBoost, true
}

func contentExcerpt(doc *models.Document) string {
	text := doc.RawText
	if len(text) > 300 {
		text = text[:300]
	}
	return doc.Title + " " + text
}

func capped(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}

// combine merges URL and keyword signals on top of a base confidence.
func combine(base float64, urlType models.DocumentType, urlBoost float64, urlOK bool,
	kwType models.DocumentType, kwBoost float64, kwOK bool) (Result, bool) {

	switch {
	case urlOK && kwOK && urlType == kwType:
		// Both signals agree.
		return Result{urlType, capped(base + urlBoost + kwBoost)}, true
	case urlOK && kwOK && kwBoost >= urlBoost:
		return Result{kwType, capped(base + kwBoost)}, true
	case urlOK && kwOK:
		return Result{urlType, capped(base + urlBoost)}, true
	case urlOK:
		return Result{urlType, capped(base + urlBoost)}, true
	case kwOK:
		return Result{kwType, capped(base + kwBoost)}, true
	}
	return Result{}, false
}

// Classify assigns a document type. Priority order:
//
//  1. legacy normalization of the parser-emitted hint (weak prior)
//  2. platform priors (>= 0.9 returns immediately)
//  3. URL path heuristics
//  4. keyword signals from title + text excerpt
//  5. fallback (press_release, 0.4)
func Classify(doc *models.Document) Result {
	normalized, legacyHit := legacyNormalization[string(doc.DocumentType)]
	if !legacyHit && doc.DocumentType.Valid() {
		normalized = doc.DocumentType
		legacyHit = true
	}

	if doc.PlatformType != "" {
		if prior, ok := platformDefaults[strings.ToLower(doc.PlatformType)]; ok {
			if prior.Confidence >= 0.9 {
				return prior
			}

			urlType, urlBoost, urlOK := urlSignal(doc.SourceURL)
			kwType, kwBoost, kwOK := keywordSignal(contentExcerpt(doc))

			if refined, ok := combine(prior.Confidence, urlType, urlBoost, urlOK, kwType, kwBoost, kwOK); ok {
				return refined
			}
			return prior
		}
	}

	urlType, urlBoost, urlOK := urlSignal(doc.SourceURL)
	kwType, kwBoost, kwOK := keywordSignal(contentExcerpt(doc))

	if refined, ok := combine(0.5, urlType, urlBoost, urlOK, kwType, kwBoost, kwOK); ok {
		return refined
	}

	if legacyHit {
		return Result{DocumentType: normalized, Confidence: 0.55}
	}

	return fallback
}
