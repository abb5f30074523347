// Package event defines the editor events captured during a writing session.
//
// An Event is an immutable fact with a client-assigned sequence number and a
// wall-clock timestamp in unix milliseconds. Its Payload is one of Snapshot,
// Paste or Submission; switch on the concrete type instead of comparing kind
// strings. Record is the wire and storage form.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindSnapshot      Kind = "snapshot"
	KindPasteInternal Kind = "paste_internal"
	KindPasteExternal Kind = "paste_external"
	KindSubmission    Kind = "submission"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindSnapshot, KindPasteInternal, KindPasteExternal, KindSubmission}

var ErrUnknownKind = errors.New("unknown event kind")

func (k Kind) Valid() bool {
	switch k {
	case KindSnapshot, KindPasteInternal, KindPasteExternal, KindSubmission:
		return true
	}
	return false
}

func (k Kind) IsPaste() bool {
	return k == KindPasteInternal || k == KindPasteExternal
}

// IsCheckpoint reports whether events of this kind carry a full document.
func (k Kind) IsCheckpoint() bool {
	return k == KindSnapshot || k == KindSubmission
}

// Document is an opaque JSON block sequence produced by the editor.
type Document = json.RawMessage

// EmptyDocument is the document shown before the first snapshot.
var EmptyDocument = Document(`[]`)

// Payload is implemented by Snapshot, Paste and Submission only.
type Payload interface {
	Kind() Kind
	sealed()
}

type Snapshot struct {
	Doc Document
}

type Paste struct {
	Content  string
	Internal bool
}

type Submission struct {
	Doc Document
}

func (Snapshot) Kind() Kind   { return KindSnapshot }
func (Submission) Kind() Kind { return KindSubmission }

func (p Paste) Kind() Kind {
	if p.Internal {
		return KindPasteInternal
	}
	return KindPasteExternal
}

func (Snapshot) sealed()   {}
func (Paste) sealed()      {}
func (Submission) sealed() {}

type Event struct {
	Timestamp int64
	Seq       int64
	Payload   Payload
}

func (e Event) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

// Document returns the document carried by a snapshot or submission.
func (e Event) Document() (Document, bool) {
	switch p := e.Payload.(type) {
	case Snapshot:
		return p.Doc, true
	case Submission:
		return p.Doc, true
	}
	return nil, false
}

// Record is the JSON shape exchanged with the persistence endpoint.
type Record struct {
	Type           Kind            `json:"type"`
	Timestamp      int64           `json:"timestamp"`
	SequenceNumber int64           `json:"sequenceNumber"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type pasteData struct {
	Content string `json:"content"`
}

func Encode(e Event) (Record, error) {
	rec := Record{Timestamp: e.Timestamp, SequenceNumber: e.Seq}
	switch p := e.Payload.(type) {
	case Snapshot:
		rec.Type = KindSnapshot
		rec.Data = normalizeDoc(p.Doc)
	case Submission:
		rec.Type = KindSubmission
		rec.Data = normalizeDoc(p.Doc)
	case Paste:
		data, err := json.Marshal(pasteData{Content: p.Content})
		if err != nil {
			return Record{}, fmt.Errorf("encode paste: %w", err)
		}
		rec.Type = p.Kind()
		rec.Data = data
	default:
		return Record{}, fmt.Errorf("%w: %T", ErrUnknownKind, e.Payload)
	}
	return rec, nil
}

func Decode(r Record) (Event, error) {
	e := Event{Timestamp: r.Timestamp, Seq: r.SequenceNumber}
	switch r.Type {
	case KindSnapshot:
		e.Payload = Snapshot{Doc: normalizeDoc(r.Data)}
	case KindSubmission:
		e.Payload = Submission{Doc: normalizeDoc(r.Data)}
	case KindPasteInternal, KindPasteExternal:
		var data pasteData
		if len(r.Data) > 0 {
			if err := json.Unmarshal(r.Data, &data); err != nil {
				return Event{}, fmt.Errorf("decode paste #%d: %w", r.SequenceNumber, err)
			}
		}
		e.Payload = Paste{Content: data.Content, Internal: r.Type == KindPasteInternal}
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, r.Type)
	}
	return e, nil
}

// DecodeAll decodes records in order, stopping at the first bad one.
func DecodeAll(records []Record) ([]Event, error) {
	events := make([]Event, 0, len(records))
	for _, r := range records {
		e, err := Decode(r)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func normalizeDoc(doc Document) Document {
	if len(doc) == 0 || string(doc) == "null" {
		return EmptyDocument
	}
	return doc
}
