// Package capture wires the editor and chat panel of one writing session to
// its event tracker and paste validator.
package capture

import (
	"context"
	"log"

	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/paste"
	"github.com/wooogler/swag/internal/tracker"
)

// Recorder lives for one editing session. Create it when the session starts
// and Close it when the student leaves.
type Recorder struct {
	tracker   *tracker.Tracker
	validator *paste.Validator
}

func NewRecorder(sessionID string, sink tracker.Sink, opts ...tracker.Option) *Recorder {
	return &Recorder{
		tracker:   tracker.New(sessionID, sink, opts...),
		validator: paste.NewValidator(),
	}
}

func (r *Recorder) SessionID() string { return r.tracker.SessionID() }

func (r *Recorder) Tracker() *tracker.Tracker { return r.tracker }

func (r *Recorder) Validator() *paste.Validator { return r.validator }

// OnDocumentChange is called for every editor mutation.
func (r *Recorder) OnDocumentChange() {
	r.tracker.RecordActivity()
}

// OnAssistantMessage registers assistant output so pastes of it count as internal.
func (r *Recorder) OnAssistantMessage(text string) {
	r.validator.RegisterAssistantMessage(text)
}

// OnCopy is called when text is copied inside the editor or chat panel.
func (r *Recorder) OnCopy(text string) {
	r.validator.MarkInternalCopy(text)
}

// OnPaste classifies and records a paste. The editor should reject the paste
// when internal is false. Empty pastes are not recorded.
func (r *Recorder) OnPaste(text string) (internal bool) {
	if text == "" {
		return false
	}
	v := r.validator.Validate(text)
	if err := r.tracker.RecordPaste(text, v.Internal); err != nil {
		log.Printf("[Capture] session %s: paste not recorded: %v", r.SessionID(), err)
	}
	return v.Internal
}

// Submit records the submitted document and starts a flush.
func (r *Recorder) Submit(doc event.Document) error {
	return r.tracker.RecordSubmission(doc)
}

// Close flushes what is left and stops all timers.
func (r *Recorder) Close(ctx context.Context) error {
	err := r.tracker.ForceFlush(ctx)
	r.tracker.Stop()
	return err
}
