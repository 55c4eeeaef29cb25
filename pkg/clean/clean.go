// Package clean normalizes raw scraped HTML/text into plain text
// suitable for identifier extraction and chunking. Cleaning is
// platform-aware (each scraping platform ships its own boilerplate) and
// must never strip characters from inside a candidate identifier token:
// lines that look like they carry a CAD/case number, date, address or
// phone number are protected from boilerplate removal entirely.
package clean

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// Result carries the normalized text plus a 0-100 completeness score
// used as one input to parse quality.
type Result struct {
	Text  string
	Score int
}

type boilerplateRule struct {
	re *regexp.Regexp
	// lineAnchored rules blank the whole line on match; others replace
	// the matched span with a space.
	lineAnchored bool
}

func line(expr string) boilerplateRule {
	return boilerplateRule{re: regexp.MustCompile(expr), lineAnchored: true}
}

func span(expr string) boilerplateRule {
	return boilerplateRule{re: regexp.MustCompile(expr)}
}

var boilerplate = map[string][]boilerplateRule{
	"civicplus": {
		span(`(?i)\bShare\b.*?\bPrint\b.*?\bEmail\b`),
		span(`(?i)\b(Share|Print|Email)\s+(this\s+)?(page|article|post)\b`),
		line(`(?i)^\s*(Home|Residents|Government|Services|Departments)\s*[/|>]\s*`),
		span(`(?i)\bHome\s*[/|>]\s*(Residents|Government|Services|Departments)\b`),
		span(`(?i)sign\s+up\s+for\s+(news|alerts?|notifications?|updates?)`),
		span(`(?i)subscribe\s+to\s+(news|alerts?|notifications?|email\s+updates?)`),
		span(`(?i)(this\s+site\s+uses?\s+cookies?|we\s+use\s+cookies?)[^.]*\.`),
		span(`(?i)(accept\s+all\s+cookies?|cookie\s+policy|cookie\s+settings?)`),
		span(`(?i)powered\s+by\s+civicplus`),
		span(`(?i)civicplus\s+(cms|platform|technology)`),
	},
	"crimemapping": {
		span(`(?i)powered\s+by\s+crime\s*mapping`),
		span(`(?i)\bview\s+map\b`),
		span(`(?i)\b(download|export)\s+(report|data|csv|pdf)\b`),
		span(`(?i)\bfilter\s+(by|results?|incidents?)\b`),
		line(`(?i)^\s*(Category|Type|Status|Zone|Beat|District|Address):\s*$`),
		line(`(?i)^\s*(Show|Hide)\s+(all|filters?|map|legend)\s*$`),
	},
	"nixle": {
		span(`(?i)sent\s+via\s+(nixle|rave)`),
		span(`(?i)to\s+manage\s+your\s+notifications?`),
		span(`(?i)\bunsubscribe\b[^.]*`),
		span(`(?i)(standard\s+)?((sms|message|data)\s+rates?\s+(may\s+)?apply)`),
		span(`(?i)reply\s+stop\s+to\s+(opt.?out|unsubscribe|cancel)`),
		span(`(?i)reply\s+(stop|help|info)\b[^.]*`),
		span(`(?i)you\s+(are\s+)?receiving\s+this\s+(message|alert|notification)`),
	},
	"pdf": {
		line(`^\s*CONFIDENTIAL\s*$`),
		line(`^\s*FOR\s+OFFICIAL\s+USE\s+ONLY\s*$`),
		line(`^\s*LAW\s+ENFORCEMENT\s+SENSITIVE\s*$`),
		line(`^\s*THIS\s+PAGE\s+(INTENTIONALLY\s+)?LEFT\s+BLANK\s*$`),
		// Bare department letterhead on a standalone line
		line(`^\s*[A-Z\s]{10,}\s+(POLICE|SHERIFF|DEPARTMENT|DEPT\.?)\s*$`),
	},
	"default": {
		span(`(?i)(this\s+site\s+uses?\s+cookies?|we\s+use\s+cookies?)[^.]*\.`),
		span(`(?i)(accept\s+all\s+cookies?|cookie\s+policy)`),
		line(`(?i)^\s*(Home|About|Contact|Search|Menu|Navigation|Accessibility)\s*$`),
		span(`(?i)follow\s+us\s+on\s+(facebook|twitter|instagram|x|youtube|linkedin)`),
		span(`(?i)like\s+us\s+on\s+facebook`),
		span(`(?i)©\s*\d{4}[^.\n]*`),
		span(`(?i)copyright\s+\d{4}[^.\n]*`),
		line(`(?i)^\s*back\s+to\s+top\s*$`),
	},
}

func init() {
	// rave is an alias for nixle (same platform vendor, same boilerplate)
	boilerplate["rave"] = boilerplate["nixle"]
}

// Hyphenated line-break joiner for PDF text (word-\nword -> wordword)
var pdfHyphenRe = regexp.MustCompile(`(\w)-\n(\w)`)

// Universal "Page N of M" artifact removal
var pdfPageRe = regexp.MustCompile(`(?m)^\s*[Pp]age\s+\d+\s+of\s+\d+\s*$`)

const dedupThreshold = 0.85

// Lines matching any of these carry identifiers and are never touched
// by boilerplate removal.
var protectedPatterns = []*regexp.Regexp{
	// CAD / DR# / Case# / Report No. / Badge No. / ORI
	regexp.MustCompile(`(?i)\b(CAD|DR|case|report\s+no\.?|badge|ORI)[#:\s]+[\w-]+`),
	// Street address: number + optional directional + street name + type
	regexp.MustCompile(`(?i)\d+\s+([NSEW]\.?\s+)?[A-Za-z][\w\s]+\s+(St|Ave|Blvd|Dr|Rd|Ln|Way|Ct|Pl|Hwy|Fwy|Pkwy|Cir|Ter|Loop)\.?\b`),
	// MM/DD/YYYY
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
	// YYYY-MM-DD
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	// "Month DD, YYYY"
	regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2},\s+\d{4}\b`),
	// Weekday + month + day
	regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday),?\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2}`),
	// Phone: XXX-XXX-XXXX
	regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`),
	// Phone: (XXX) XXX-XXXX
	regexp.MustCompile(`\(\d{3}\)\s*\d{3}[-.\s]\d{4}`),
}

// Quality signal regexes
var (
	dateQualityRe = regexp.MustCompile(`(?i)\b(\d{1,2}/\d{1,2}/\d{4}|\d{4}-\d{2}-\d{2}|(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2},\s+\d{4})\b`)
	cadQualityRe  = regexp.MustCompile(`(?i)\b(CAD|DR|case|report\s+no\.?|incident)[#:\s]+[\w-]+`)
	addrQualityRe = regexp.MustCompile(`(?i)\b\d+\s+([NSEW]\.?\s+)?[A-Za-z][\w\s]+\s+(St|Ave|Blvd|Dr|Rd|Ln|Way|Ct|Pl|Hwy|Fwy|Pkwy|Cir|Ter|Loop)\.?\b`)
)

var blockTags = "p, div, li, h1, h2, h3, h4, h5, h6"

// stripHTML extracts plain text, inserting paragraph breaks around
// block-level tags so adjacent divs don't run together. Plain text
// input passes through goquery's lenient parser unchanged.
func stripHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}

	doc.Find("script, style, noscript").Remove()

	doc.Find("br").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithHtml("\n")
	})

	doc.Find(blockTags).Each(func(_ int, s *goquery.Selection) {
		s.BeforeHtml("\n\n")
		s.AfterHtml("\n\n")
	})

	return doc.Text()
}

func isProtectedLine(line string) bool {
	for _, p := range protectedPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

func removeBoilerplate(text, platformType string) string {
	pt := strings.ToLower(platformType)
	if pt == "" {
		pt = "default"
	}

	if pt == "pdf" {
		text = pdfHyphenRe.ReplaceAllString(text, "$1$2")
	}

	rules, ok := boilerplate[pt]
	if !ok {
		rules = boilerplate["default"]
	}

	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for _, ln := range lines {
		if isProtectedLine(ln) {
			result = append(result, ln)
			continue
		}

		cleaned := ln
		blanked := false
		for _, rule := range rules {
			if rule.lineAnchored {
				if rule.re.MatchString(cleaned) {
					blanked = true
					break
				}
			} else {
				cleaned = rule.re.ReplaceAllString(cleaned, " ")
			}
		}

		if blanked {
			result = append(result, "")
		} else {
			result = append(result, cleaned)
		}
	}

	return strings.Join(result, "\n")
}

// splitSegments breaks text on paragraph gaps and on sentence-ending
// punctuation followed by whitespace and an uppercase letter.
func splitSegments(text string) []string {
	var segments []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		boundary := false
		if r == '.' || r == '!' || r == '?' {
			j := i + 1
			for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t') {
				j++
			}
			if j > i+1 && j < len(runes) && unicode.IsUpper(runes[j]) {
				boundary = true
				i = j - 1
			}
		} else if r == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			boundary = true
			for i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
		}

		if boundary {
			segments = append(segments, current.String())
			current.Reset()
		}
	}

	if current.Len() > 0 {
		segments = append(segments, current.String())
	}
	return segments
}

// similarity is the ratio of shared tokens to the larger token count.
func similarity(a, b string) float64 {
	aw := strings.Fields(strings.ToLower(a))
	bw := strings.Fields(strings.ToLower(b))
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}

	counts := make(map[string]int, len(aw))
	for _, w := range aw {
		counts[w]++
	}
	common := 0
	for _, w := range bw {
		if counts[w] > 0 {
			counts[w]--
			common++
		}
	}

	longer := len(aw)
	if len(bw) > longer {
		longer = len(bw)
	}
	return float64(common) / float64(longer)
}

// deduplicateSegments drops near-duplicate sentences/paragraphs,
// keeping the first occurrence. Scraped pages frequently repeat the
// same blurb in header, body and footer.
func deduplicateSegments(text string) string {
	segments := splitSegments(text)
	var kept []string
	for _, seg := range segments {
		stripped := strings.TrimSpace(seg)
		if stripped == "" {
			continue
		}
		dup := false
		for _, prior := range kept {
			if similarity(stripped, prior) >= dedupThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, stripped)
		}
	}
	return strings.Join(kept, "\n\n")
}

// removeNonPrintable drops control and format characters, preserving
// newline and tab.
func removeNonPrintable(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.In(r, unicode.C) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var (
	intraLineWS = regexp.MustCompile(`[ \t]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(intraLineWS.ReplaceAllString(ln, " "))
	}
	joined := strings.Join(lines, "\n")
	joined = blankRuns.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

// score penalizes excessive removal and rewards identifier presence.
// Very short output caps at 30 regardless.
func score(original, cleaned string) int {
	if original == "" {
		return 0
	}

	removalPct := float64(len(original)-len(cleaned)) / float64(len(original))
	base := 100 - int(removalPct*80)
	if base < 0 {
		base = 0
	}

	bonus := 0
	if dateQualityRe.MatchString(cleaned) {
		bonus += 10
	}
	if cadQualityRe.MatchString(cleaned) {
		bonus += 10
	}
	if addrQualityRe.MatchString(cleaned) {
		bonus += 5
	}

	s := base + bonus
	if s > 100 {
		s = 100
	}

	if len(strings.TrimSpace(cleaned)) < 50 && s > 30 {
		s = 30
	}

	return s
}

// Clean normalizes raw scraped text for the given platform. Empty or
// whitespace-only input yields an empty result with score 0, which the
// quality scorer treats as a data error.
func Clean(rawText, platformType string) Result {
	if strings.TrimSpace(rawText) == "" {
		return Result{Text: "", Score: 0}
	}

	text := stripHTML(rawText)
	text = removeBoilerplate(text, platformType)
	text = deduplicateSegments(text)
	text = html.UnescapeString(text)
	text = pdfPageRe.ReplaceAllString(text, "")
	text = removeNonPrintable(text)
	text = normalizeWhitespace(text)

	return Result{Text: text, Score: score(rawText, text)}
}
