package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"
)

// DocumentType is the closed set of normalized document classifications.
type DocumentType string

const (
	TypePressRelease       DocumentType = "press_release"
	TypeArrestLog          DocumentType = "arrest_log"
	TypeDailyActivityLog   DocumentType = "daily_activity_log"
	TypeIncidentReport     DocumentType = "incident_report"
	TypeCommunityAlert     DocumentType = "community_alert"
	TypeRSSItem            DocumentType = "rss_item"
	TypeOpenDataRecord     DocumentType = "open_data_record"
	TypePDFDocument        DocumentType = "pdf_document"
	TypeCrimemapping       DocumentType = "crimemapping_incident"
	TypeTransparencyPortal DocumentType = "transparency_portal_entry"
)

var validTypes = map[DocumentType]bool{
	TypePressRelease:       true,
	TypeArrestLog:          true,
	TypeDailyActivityLog:   true,
	TypeIncidentReport:     true,
	TypeCommunityAlert:     true,
	TypeRSSItem:            true,
	TypeOpenDataRecord:     true,
	TypePDFDocument:        true,
	TypeCrimemapping:       true,
	TypeTransparencyPortal: true,
}

// Valid reports whether t is a member of the closed document type enum.
func (t DocumentType) Valid() bool {
	return validTypes[t]
}

// ExtractionMethod records which stage of the cascade produced the
// identifier sets. "none" covers both never-attempted and failed
// fallback calls; "llm" with empty sets is a confirmed negative.
type ExtractionMethod string

const (
	ExtractionNone  ExtractionMethod = "none"
	ExtractionRegex ExtractionMethod = "regex"
	ExtractionLLM   ExtractionMethod = "llm"
)

// DocumentStatus tracks a document's position in the processing state
// machine. Statuses advance strictly in order; "failed" is not terminal
// and re-runs start over from "received".
type DocumentStatus string

const (
	StatusReceived   DocumentStatus = "received"
	StatusClassified DocumentStatus = "classified"
	StatusCleaned    DocumentStatus = "cleaned"
	StatusExtracted  DocumentStatus = "extracted"
	StatusScored     DocumentStatus = "scored"
	StatusPersisted  DocumentStatus = "persisted"
	StatusChunked    DocumentStatus = "chunked"
	StatusEnqueued   DocumentStatus = "enqueued"
	StatusDone       DocumentStatus = "done"
	StatusFailed     DocumentStatus = "failed"
)

// RawDocument is the record handed over by the scraping collaborator.
// DocumentType carries the parser-emitted feed hint (legacy values
// allowed); classification replaces it with a closed-enum value.
type RawDocument struct {
	AgencyID      string     `json:"agency_id"`
	PlatformType  string     `json:"platform_type"`
	SourceURL     string     `json:"source_url"`
	DocumentType  string     `json:"document_type,omitempty"`
	Title         string     `json:"title,omitempty"`
	RawText       string     `json:"raw_text"`
	ScrapedAt     time.Time  `json:"scraped_at"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
}

// Hash returns the dedup hash for a raw document: sha256 over the
// source URL and raw text.
func (r RawDocument) Hash() string {
	h := sha256.New()
	h.Write([]byte(r.SourceURL))
	h.Write([]byte{0})
	h.Write([]byte(r.RawText))
	return hex.EncodeToString(h.Sum(nil))
}

// Document is one normalized record per scraped item, mutated in place
// by each pipeline stage.
type Document struct {
	ID           string       `json:"id"`
	AgencyID     string       `json:"agency_id"`
	SourceURL    string       `json:"source_url"`
	DocHash      string       `json:"doc_hash"`
	PlatformType string       `json:"platform_type"`
	DocumentType DocumentType `json:"document_type"`
	Title        string       `json:"title,omitempty"`

	RawText     string `json:"raw_text"`
	CleanedText string `json:"cleaned_text"`

	// PublishedAt is never zero; ingest falls back to ScrapedAt.
	PublishedAt time.Time `json:"published_at"`
	ScrapedAt   time.Time `json:"scraped_at"`

	Confidence       float64          `json:"confidence"`
	CADNumbers       []string         `json:"cad_numbers"`
	CaseNumbers      []string         `json:"case_numbers"`
	FOIAEligible     bool             `json:"foia_eligible"`
	ParseQuality     *int             `json:"parse_quality,omitempty"`
	ExtractionMethod ExtractionMethod `json:"extraction_method"`

	Status      DocumentStatus `json:"status"`
	LastError   string         `json:"last_error,omitempty"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
}

// SetIdentifiers replaces both identifier sets with sorted, deduplicated
// copies and recomputes FOIAEligible. Eligibility is a pure function of
// set non-emptiness and is never asserted independently.
func (d *Document) SetIdentifiers(cadNumbers, caseNumbers []string) {
	d.CADNumbers = NormalizeSet(cadNumbers)
	d.CaseNumbers = NormalizeSet(caseNumbers)
	d.FOIAEligible = len(d.CADNumbers) > 0 || len(d.CaseNumbers) > 0
}

// NormalizeSet deduplicates and sorts an identifier slice. Order in
// storage carries no meaning; sorting keeps reprocessing deterministic.
// The result is never nil.
func NormalizeSet(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
