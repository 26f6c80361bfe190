package store

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Reserved document fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// TimeLayout is the fixed-width UTC layout used for stored and serialised
// timestamps. Fixed width keeps lexical and chronological order identical.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// Record is one stored document.
type Record struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	// Data holds every non-reserved field.
	Data map[string]any
}

// Document returns the flattened form clients see: Data plus the reserved fields.
func (r Record) Document() map[string]any {
	doc := make(map[string]any, len(r.Data)+3)
	maps.Copy(doc, r.Data)
	doc[FieldID] = r.ID
	doc[FieldCreatedAt] = FormatTime(r.CreatedAt)
	doc[FieldUpdatedAt] = FormatTime(r.UpdatedAt)
	return doc
}

// MarshalJSON encodes the flattened document.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// UnmarshalJSON decodes a flattened document, lifting out the reserved fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	rec, err := recordFromDocument(doc)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

func recordFromDocument(doc map[string]any) (Record, error) {
	var rec Record
	if id, ok := doc[FieldID].(string); ok {
		rec.ID = id
	}
	for field, dst := range map[string]*time.Time{FieldCreatedAt: &rec.CreatedAt, FieldUpdatedAt: &rec.UpdatedAt} {
		s, ok := doc[field].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Record{}, fmt.Errorf("parsing %s: %w", field, err)
		}
		*dst = t
	}
	rec.Data = stripReserved(doc)
	return rec, nil
}

// stripReserved returns a copy of doc without id, createdAt and updatedAt.
func stripReserved(doc map[string]any) map[string]any {
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		data[k] = v
	}
	return data
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ChangeKind classifies a change feed event.
type ChangeKind string

// Change kinds.
const (
	Created   ChangeKind = "created"
	Updated   ChangeKind = "updated"
	Destroyed ChangeKind = "destroyed"
)

// Change is one committed write delivered to observers.
type Change struct {
	Kind       ChangeKind
	Collection string
	// Record is the new version, or the deleted version for Destroyed.
	Record Record
	// Previous is the version before an update; zero otherwise.
	Previous Record
}

// Handle cancels an observation. Dispose is idempotent, never blocks and may
// be called from inside the observer's own callback.
type Handle interface {
	Dispose()
}
