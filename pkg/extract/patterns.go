package extract

import (
	"regexp"
	"strings"
)

// Target names the identifier set a rule's matches belong to.
type Target string

const (
	TargetCAD  Target = "cad"
	TargetCase Target = "case"
)

// Rule is one entry in the pattern library: a compiled pattern scoped
// to platforms and/or agencies, classified into one identifier set,
// with a normalization applied to every match. Pattern must contain
// exactly one capturing group, the identifier itself.
type Rule struct {
	Name      string
	Target    Target
	Platforms []string // empty = any platform
	Agencies  []string // empty = any agency
	Pattern   *regexp.Regexp
	Normalize func(string) string
}

// appliesTo reports whether the rule is in scope for the document's
// platform and agency.
func (r Rule) appliesTo(platformType, agencyID string) bool {
	if len(r.Platforms) > 0 && !containsFold(r.Platforms, platformType) {
		return false
	}
	if len(r.Agencies) > 0 && !containsFold(r.Agencies, agencyID) {
		return false
	}
	return true
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

var separatorRun = regexp.MustCompile(`[ ./\\]+`)

// canonical uppercases a raw match and collapses separator runs into a
// single hyphen, so "23 1234567", "23.1234567" and "23-1234567" land on
// the same set member.
func canonical(raw string) string {
	s := strings.TrimSpace(raw)
	s = separatorRun.ReplaceAllString(s, "-")
	return strings.ToUpper(strings.Trim(s, "-"))
}

// digitsOnly strips every non-digit, for purely numeric identifiers.
func digitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func rule(name string, target Target, expr string, platforms ...string) Rule {
	return Rule{
		Name:      name,
		Target:    target,
		Platforms: platforms,
		Pattern:   regexp.MustCompile(expr),
		Normalize: canonical,
	}
}

// numeric swaps a rule's normalization for the digits-only form, used
// where the identifier is a bare sequence number.
func numeric(r Rule) Rule {
	r.Normalize = digitsOnly
	return r
}

func agencyRule(name string, target Target, expr string, agencies ...string) Rule {
	return Rule{
		Name:      name,
		Target:    target,
		Agencies:  agencies,
		Pattern:   regexp.MustCompile(expr),
		Normalize: canonical,
	}
}

// library is the ordered pattern collection. Order is priority order:
// labeled, tightly-anchored patterns first, looser format-only patterns
// last. Every rule routes its matches into exactly one target set.
var library = []Rule{
	// --- labeled case numbers -------------------------------------------
	rule("case-no-hyphen", TargetCase,
		`(?i)\bcase\s*(?:no\.?|number|num\.?|#)?\s*[:#]?\s*([0-9]{2}-[0-9]{4,8})\b`),
	rule("case-no-year", TargetCase,
		`(?i)\bcase\s*(?:no\.?|number|num\.?|#)?\s*[:#]?\s*([0-9]{4}-[0-9]{4,7})\b`),
	rule("case-no-spaced", TargetCase,
		`(?i)\bcase\s*(?:no\.?|number|#)?\s*[:#]?\s*([0-9]{2}[ .][0-9]{5,8})\b`),
	rule("report-no", TargetCase,
		`(?i)\breport\s*(?:no\.?|number|#)\s*[:#]?\s*([0-9]{2,4}-?[0-9]{4,8})\b`),
	rule("dr-no", TargetCase,
		`(?i)\bDR\s*(?:no\.?|#)?\s*[:#]?\s*([0-9]{2}-?[0-9]{4,8})\b`),
	rule("occurrence-no", TargetCase,
		`(?i)\b(?:occ|occurrence)\s*(?:no\.?|#)?\s*[:#]?\s*([0-9]{2}-?[0-9]{4,8})\b`),
	rule("arrest-no", TargetCase,
		`(?i)\barrest\s*(?:no\.?|number|#)\s*[:#]?\s*([0-9]{2}-?[0-9]{4,8})\b`),
	rule("court-docket", TargetCase,
		`\b([0-9]{2}[A-Z]{2}[0-9]{5,7})\b`),

	// --- labeled CAD / dispatch numbers ---------------------------------
	rule("cad-no", TargetCAD,
		`(?i)\bCAD\s*(?:no\.?|number|#)?\s*[:#]?\s*([0-9]{2}-?[0-9]{4,9})\b`),
	rule("cad-alpha", TargetCAD,
		`(?i)\bCAD\s*(?:no\.?|#)?\s*[:#]?\s*([A-Z][0-9]{8,11})\b`),
	rule("event-no", TargetCAD,
		`(?i)\bevent\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Z]{0,3}[0-9]{6,12})\b`),
	rule("incident-no", TargetCAD,
		`(?i)\bincident\s*(?:no\.?|number|#)\s*[:#]?\s*([0-9]{2}-?[0-9]{4,9})\b`),
	rule("incident-slash", TargetCAD,
		`(?i)\bincident\s*[:#]\s*([0-9]{2}/[0-9]{4,8})\b`),
	rule("dispatch-no", TargetCAD,
		`(?i)\bdispatch\s*(?:no\.?|number|#)?\s*[:#]?\s*([0-9]{2}-?[0-9]{5,9})\b`),

	// --- platform-scoped ------------------------------------------------
	rule("crimemapping-incident-id", TargetCAD,
		`(?i)\bincident\s*ID\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{5,14})\b`, "crimemapping"),
	rule("crimemapping-case", TargetCase,
		`(?i)\bCaseNumber\s*[:"]\s*"?([A-Z0-9-]{6,15})\b`, "crimemapping"),
	rule("citizenrims-rms", TargetCase,
		`(?i)\bRMS\s*(?:case)?\s*#?\s*([0-9]{2}-[0-9]{4,6})\b`, "citizenrims"),
	rule("citizenrims-cad-p", TargetCAD,
		`\b(P[0-9]{9})\b`, "citizenrims"),
	rule("nixle-reference", TargetCAD,
		`(?i)\b(?:reference|ref)\s*(?:no\.?|#)?\s*[:#]?\s*([0-9]{2}-[0-9]{4,8})\b`, "nixle", "rave"),
	rule("opendata-case-field", TargetCase,
		`(?i)\bcase[_ ](?:id|number)["':\s]+([A-Z0-9]{2}[A-Z0-9-]{4,12})\b`, "socrata", "arcgis"),
	rule("opendata-cad-field", TargetCAD,
		`(?i)\bcad[_ ](?:id|number|event)["':\s]+([A-Z0-9]{4,14})\b`, "socrata", "arcgis"),
	numeric(rule("pdf-cfs", TargetCAD,
		`(?i)\bCFS\s*#?\s*([0-9]{6,10})\b`, "pdf")),
	numeric(rule("pdf-booking", TargetCase,
		`(?i)\bbooking\s*(?:no\.?|number|#)?\s*[:#]?\s*([0-9]{6,10})\b`, "pdf")),
	rule("pdf-log-no", TargetCAD,
		`(?i)\blog\s*(?:no\.?|#)\s*[:#]?\s*([0-9]{4,10})\b`, "pdf"),
	rule("civicplus-news-case", TargetCase,
		`(?i)\b(?:crime\s+)?report\s+([0-9]{4}-[0-9]{4,6})\b`, "civicplus"),
	rule("rss-case-inline", TargetCase,
		`(?i)\(case\s+([0-9]{2}-?[0-9]{4,8})\)`, "rss"),
	rule("transparency-record", TargetCase,
		`(?i)\brecord\s*(?:no\.?|number|#)\s*[:#]?\s*([A-Z0-9-]{5,15})\b`, "transparency"),

	// --- agency-scoped formats ------------------------------------------
	agencyRule("lapd-dr", TargetCase,
		`(?i)\bDR\s*#?\s*([0-9]{2}-[0-9]{2}-[0-9]{5,6})\b`, "lapd"),
	agencyRule("sfso-case", TargetCase,
		`(?i)\bSFSO\s*#?\s*([0-9]{2}-[0-9]{5,7})\b`, "sf_sheriff"),
	agencyRule("fresno-cad", TargetCAD,
		`(?i)\bFPD\s*(?:CAD)?\s*#?\s*([0-9]{2}-[0-9]{5,7})\b`, "fresno_pd"),
	agencyRule("sdpd-event", TargetCAD,
		`(?i)\bE([0-9]{9,11})\b`, "san_diego_pd"),

	// --- loose formats, lowest priority ---------------------------------
	rule("bare-yy-seq", TargetCase,
		`(?i)\b(?:no\.?|#)\s*([0-9]{2}-[0-9]{5,7})\b`),
}

// Library returns the default ordered pattern library.
func Library() []Rule {
	return library
}
