// Package replay rebuilds the state of a writing session at any instant from
// its stored event log and chat history.
//
// A Timeline is built once from the fetched arrays and is read-only after
// that; every query is a pure function of its inputs and safe to call from
// several goroutines.
package replay

import (
	"sort"

	"github.com/wooogler/swag/internal/event"
)

// PasteWindow is how long a paste stays visible on the replay, in ms.
const PasteWindow int64 = 2000

// DefaultSpan is the replay length of a session without editor events, in ms.
const DefaultSpan int64 = 60_000

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// Indicator describes a paste shown on the replay.
type Indicator struct {
	Internal  bool   `json:"internal"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Seq       int64  `json:"sequenceNumber"`
}

type MarkerKind string

const (
	MarkerChat          MarkerKind = "chat"
	MarkerPasteInternal MarkerKind = "paste_internal"
	MarkerPasteExternal MarkerKind = "paste_external"
	MarkerSubmission    MarkerKind = "submission"
)

// Marker is a point of interest drawn on the scrub bar.
type Marker struct {
	Kind      MarkerKind `json:"kind"`
	Timestamp int64      `json:"timestamp"`
	Tooltip   string     `json:"tooltip"`
}

type Timeline struct {
	events      []event.Event
	snapshots   []event.Event
	pastes      []event.Event
	submissions []event.Event
	messages    []Message
}

func NewTimeline(events []event.Event, messages []Message) *Timeline {
	tl := &Timeline{
		events:   make([]event.Event, len(events)),
		messages: make([]Message, len(messages)),
	}
	copy(tl.events, events)
	copy(tl.messages, messages)

	sort.SliceStable(tl.events, func(i, j int) bool {
		a, b := tl.events[i], tl.events[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Seq < b.Seq
	})
	sort.SliceStable(tl.messages, func(i, j int) bool {
		return tl.messages[i].Timestamp < tl.messages[j].Timestamp
	})

	for _, e := range tl.events {
		switch e.Payload.(type) {
		case event.Snapshot:
			tl.snapshots = append(tl.snapshots, e)
		case event.Paste:
			tl.pastes = append(tl.pastes, e)
		case event.Submission:
			tl.submissions = append(tl.submissions, e)
		}
	}
	sort.SliceStable(tl.submissions, func(i, j int) bool {
		return tl.submissions[i].Seq < tl.submissions[j].Seq
	})
	return tl
}

func (tl *Timeline) Events() []event.Event {
	out := make([]event.Event, len(tl.events))
	copy(out, tl.events)
	return out
}

func (tl *Timeline) Messages() []Message {
	out := make([]Message, len(tl.messages))
	copy(out, tl.messages)
	return out
}

// DocumentAt returns the latest snapshot taken at or before t.
func (tl *Timeline) DocumentAt(t int64) event.Document {
	i := sort.Search(len(tl.snapshots), func(i int) bool { return tl.snapshots[i].Timestamp > t })
	if i == 0 {
		return event.EmptyDocument
	}
	doc, _ := tl.snapshots[i-1].Document()
	return doc
}

// MessagesAt returns the messages sent at or before t. An empty
// conversationID selects every conversation.
func (tl *Timeline) MessagesAt(t int64, conversationID string) []Message {
	n := sort.Search(len(tl.messages), func(i int) bool { return tl.messages[i].Timestamp > t })
	out := make([]Message, 0, n)
	for _, m := range tl.messages[:n] {
		if conversationID == "" || m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out
}

// PasteIndicatorAt returns the latest paste in (t-PasteWindow, t].
func (tl *Timeline) PasteIndicatorAt(t int64) (Indicator, bool) {
	i := sort.Search(len(tl.pastes), func(i int) bool { return tl.pastes[i].Timestamp > t })
	if i == 0 {
		return Indicator{}, false
	}
	e := tl.pastes[i-1]
	if e.Timestamp <= t-PasteWindow {
		return Indicator{}, false
	}
	p := e.Payload.(event.Paste)
	return Indicator{Internal: p.Internal, Content: p.Content, Timestamp: e.Timestamp, Seq: e.Seq}, true
}

// Submissions returns submission events in sequence order.
func (tl *Timeline) Submissions() []event.Event {
	out := make([]event.Event, len(tl.submissions))
	copy(out, tl.submissions)
	return out
}

// Bounds is the replay range. Start is the earliest editor or chat
// timestamp, or sessionStart when there are none. End is the last editor
// event, or Start+DefaultSpan without editor events.
func (tl *Timeline) Bounds(sessionStart int64) (start, end int64) {
	start = sessionStart
	found := false
	if len(tl.events) > 0 {
		start, found = tl.events[0].Timestamp, true
	}
	if len(tl.messages) > 0 && (!found || tl.messages[0].Timestamp < start) {
		start = tl.messages[0].Timestamp
	}

	if len(tl.events) == 0 {
		return start, start + DefaultSpan
	}
	end = tl.events[len(tl.events)-1].Timestamp
	if end < start {
		end = start
	}
	return start, end
}

// Timestamps returns every editor and chat timestamp, sorted. It is the
// activity signal for idle compression.
func (tl *Timeline) Timestamps() []int64 {
	out := make([]int64, 0, len(tl.events)+len(tl.messages))
	for _, e := range tl.events {
		out = append(out, e.Timestamp)
	}
	for _, m := range tl.messages {
		out = append(out, m.Timestamp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Markers lists user chat messages, pastes and submissions in time order.
func (tl *Timeline) Markers() []Marker {
	out := make([]Marker, 0, len(tl.pastes)+len(tl.submissions))
	for _, m := range tl.messages {
		if m.Role != "user" {
			continue
		}
		out = append(out, Marker{Kind: MarkerChat, Timestamp: m.Timestamp, Tooltip: "Chat: " + truncate(m.Content, 50)})
	}
	for _, e := range tl.pastes {
		if e.Payload.(event.Paste).Internal {
			out = append(out, Marker{Kind: MarkerPasteInternal, Timestamp: e.Timestamp, Tooltip: "Internal paste"})
		} else {
			out = append(out, Marker{Kind: MarkerPasteExternal, Timestamp: e.Timestamp, Tooltip: "External paste attempt"})
		}
	}
	for _, e := range tl.submissions {
		out = append(out, Marker{Kind: MarkerSubmission, Timestamp: e.Timestamp, Tooltip: "Submitted"})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

type Frame struct {
	Time     int64          `json:"time"`
	Document event.Document `json:"document"`
	Text     string         `json:"text"`
	Messages []Message      `json:"messages"`
	Paste    *Indicator     `json:"paste,omitempty"`
	// Skipped is set when the step that produced this frame jumped an idle middle.
	Skipped bool `json:"skipped,omitempty"`
}

func (tl *Timeline) FrameAt(t int64) Frame {
	doc := tl.DocumentAt(t)
	f := Frame{
		Time:     t,
		Document: doc,
		Text:     PlainText(doc),
		Messages: tl.MessagesAt(t, ""),
	}
	if ind, ok := tl.PasteIndicatorAt(t); ok {
		f.Paste = &ind
	}
	return f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
