package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// ContentUnit IDs are derived from content unless supplied by the caller,
// and a Memory shares the ID of the ContentUnit it was built from.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SourceType identifies where a piece of content came from.
type SourceType string

const (
	SourceNote     SourceType = "note"
	SourceEmail    SourceType = "email"
	SourceCalendar SourceType = "calendar"
)

// ParseSourceType converts a case-insensitive name into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if err := ValidateSourceType(st); err != nil {
		return "", err
	}
	return st, nil
}

// ContentUnit is one raw item submitted for ingestion.
type ContentUnit struct {
	Id         ID
	RawText    string
	SourceType SourceType
	ReceivedAt time.Time
}

// NewContentUnit builds a ContentUnit with a content-derived ID.
func NewContentUnit(text string, source SourceType, receivedAt time.Time) *ContentUnit {
	return &ContentUnit{
		Id:         IDFromContent(text),
		RawText:    text,
		SourceType: source,
		ReceivedAt: receivedAt,
	}
}

// Entity is a named thing mentioned in content.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Key returns the identity used for set semantics: type plus lowercased name.
func (e Entity) Key() string {
	return strings.ToLower(e.Type) + ":" + strings.ToLower(e.Name)
}

// DedupeEntities returns entities with duplicates (by Key) removed,
// keeping first occurrence order.
func DedupeEntities(entities []Entity) []Entity {
	if len(entities) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			continue
		}
		k := e.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Commitment is an obligation or promise detected in content.
type Commitment struct {
	Text     string     `json:"text"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	Assignee string     `json:"assignee,omitempty"`
}

// TemporalRef is a time expression found in content, resolved against the
// content's receive time.
type TemporalRef struct {
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Memory is the durable, enriched form of a ContentUnit.
type Memory struct {
	Id           ID            `json:"id"`
	Content      string        `json:"content"`
	SourceType   SourceType    `json:"source_type"`
	Embedding    []float32     `json:"embedding,omitempty"`
	Entities     []Entity      `json:"entities,omitempty"`
	Commitments  []Commitment  `json:"commitments,omitempty"`
	TemporalRefs []TemporalRef `json:"temporal_refs,omitempty"`
	Importance   float64       `json:"importance"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Version      int           `json:"version"`
}

// RateWindow is a snapshot of one governor counter.
type RateWindow struct {
	Key       string
	Count     int64
	Limit     int64
	ExpiresAt time.Time
}

// Remaining returns how much of the window is left, never negative.
func (w RateWindow) Remaining() int64 {
	if w.Count >= w.Limit {
		return 0
	}
	return w.Limit - w.Count
}

// RerankCandidate is a retrieved memory awaiting reranking.
type RerankCandidate struct {
	Id          ID
	Content     string
	VectorScore float64
	Kind        SourceType
}

// SearchResult is a ranked answer to a query.
type SearchResult struct {
	Id          ID
	Content     string
	VectorScore float64
	RerankScore float64
	Reranked    bool
	FinalScore  float64
	Kind        SourceType
}
