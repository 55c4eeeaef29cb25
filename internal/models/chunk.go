package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace seeds deterministic chunk IDs so reprocessing a
// document yields the same IDs for the same (document, index) pairs.
var chunkNamespace = uuid.MustParse("7b9f3d52-4f0e-4f6a-9c1d-8a2e5b6c7d8e")

// ChunkMetadata is the frozen copy of parent document fields attached
// to every chunk at creation time. It never changes afterwards, even if
// the parent is re-extracted; reprocessing regenerates the chunk set.
type ChunkMetadata struct {
	AgencyID     string       `json:"agency_id"`
	PublishedAt  time.Time    `json:"published_at"`
	DocumentType DocumentType `json:"document_type"`
	CADNumbers   []string     `json:"cad_numbers"`
	CaseNumbers  []string     `json:"case_numbers"`
	FOIAEligible bool         `json:"foia_eligible"`
}

// Chunk is an ordered fragment of a document's cleaned text, the unit
// handed to the vector-index collaborator.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Index      int           `json:"index"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// NewChunk builds a chunk with a complete metadata snapshot taken from
// doc. A chunk with partial metadata must never reach persistence, so
// gaps are rejected here rather than silently defaulted.
func NewChunk(doc *Document, index int, text string, tokenCount int) (Chunk, error) {
	switch {
	case doc.ID == "":
		return Chunk{}, fmt.Errorf("chunk %d: document has no id", index)
	case doc.AgencyID == "":
		return Chunk{}, fmt.Errorf("chunk %d of %s: missing agency id", index, doc.ID)
	case doc.PublishedAt.IsZero():
		return Chunk{}, fmt.Errorf("chunk %d of %s: missing published date", index, doc.ID)
	case !doc.DocumentType.Valid():
		return Chunk{}, fmt.Errorf("chunk %d of %s: invalid document type %q", index, doc.ID, doc.DocumentType)
	case doc.CADNumbers == nil || doc.CaseNumbers == nil:
		return Chunk{}, fmt.Errorf("chunk %d of %s: identifier sets not finalized", index, doc.ID)
	case index < 0:
		return Chunk{}, fmt.Errorf("chunk of %s: negative index %d", doc.ID, index)
	case text == "":
		return Chunk{}, fmt.Errorf("chunk %d of %s: empty text", index, doc.ID)
	}

	id := uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s/%d", doc.ID, index)))

	return Chunk{
		ID:         id.String(),
		DocumentID: doc.ID,
		Index:      index,
		Text:       text,
		TokenCount: tokenCount,
		Metadata: ChunkMetadata{
			AgencyID:     doc.AgencyID,
			PublishedAt:  doc.PublishedAt,
			DocumentType: doc.DocumentType,
			CADNumbers:   append([]string(nil), doc.CADNumbers...),
			CaseNumbers:  append([]string(nil), doc.CaseNumbers...),
			FOIAEligible: doc.FOIAEligible,
		},
	}, nil
}

// ChunkEvent is one entry in the ordered chunk-ready stream consumed by
// the vector-index collaborator. EventID is a ULID so the stream sorts
// by emission time.
type ChunkEvent struct {
	EventID    string        `json:"event_id"`
	ChunkID    string        `json:"chunk_id"`
	DocumentID string        `json:"document_id"`
	Index      int           `json:"index"`
	Text       string        `json:"text"`
	TokenCount int           `json:"token_count"`
	Metadata   ChunkMetadata `json:"metadata"`
}
