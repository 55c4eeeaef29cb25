// Package extract derives CAD and case identifier sets from cleaned
// document text by applying the pattern library in priority order. The
// extractor is deterministic, makes no external calls, and runs in time
// linear in text length times pattern count.
package extract

import "github.com/cadencehq/cadence/internal/models"

// Result holds the two identifier sets produced by one extraction pass.
// Both slices are sorted and deduplicated; either may be empty.
type Result struct {
	CADNumbers  []string
	CaseNumbers []string
}

// Matched reports whether either set is non-empty.
func (r Result) Matched() bool {
	return len(r.CADNumbers) > 0 || len(r.CaseNumbers) > 0
}

// Extract applies every in-scope rule of the default library against
// the text and collects normalized matches into the rule's target set.
func Extract(text, platformType, agencyID string) Result {
	return ExtractWith(library, text, platformType, agencyID)
}

// ExtractWith runs an explicit rule set, in order, against the text.
func ExtractWith(rules []Rule, text, platformType, agencyID string) Result {
	var cad, cas []string

	for _, r := range rules {
		if !r.appliesTo(platformType, agencyID) {
			continue
		}
		for _, m := range r.Pattern.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			normalized := r.Normalize(m[1])
			if normalized == "" {
				continue
			}
			switch r.Target {
			case TargetCAD:
				cad = append(cad, normalized)
			case TargetCase:
				cas = append(cas, normalized)
			}
		}
	}

	return Result{
		CADNumbers:  models.NormalizeSet(cad),
		CaseNumbers: models.NormalizeSet(cas),
	}
}
