// Package tracker buffers editor events for one writing session and flushes
// them to a Sink.
//
// Document mutations are reported through RecordActivity, which is throttled
// and turned into snapshot checkpoints by three triggers: a quiet period after
// the last activity, a count of recorded activities, and a ceiling on the time
// since the previous snapshot. Snapshots and submissions are flushed at once;
// pastes are batched by size or age. Flushes started by a Record call run on
// their own goroutine so recording never waits on the sink. A failed flush
// puts the batch back at the front of the queue and is retried on the next
// trigger.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/wooogler/swag/internal/clock"
	"github.com/wooogler/swag/internal/event"
)

var ErrStopped = errors.New("tracker stopped")

// Sink persists a batch of events for a session and reports how many were saved.
type Sink interface {
	SaveEvents(ctx context.Context, sessionID string, records []event.Record) (int, error)
}

// DocumentSource returns the editor's current document.
type DocumentSource interface {
	Document() (event.Document, error)
}

type DocumentFunc func() (event.Document, error)

func (f DocumentFunc) Document() (event.Document, error) { return f() }

type Status int

const (
	StatusReady Status = iota
	StatusSaving
	StatusSaved
)

func (s Status) String() string {
	switch s {
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	default:
		return "ready"
	}
}

type Config struct {
	ActivityThrottle      time.Duration
	InactivityDelay       time.Duration
	KeystrokesPerSnapshot int
	SnapshotCeiling       time.Duration
	FlushSize             int
	FlushDelay            time.Duration
	FlushTimeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		ActivityThrottle:      time.Second,
		InactivityDelay:       time.Second,
		KeystrokesPerSnapshot: 10,
		SnapshotCeiling:       3 * time.Second,
		FlushSize:             10,
		FlushDelay:            5 * time.Second,
		FlushTimeout:          10 * time.Second,
	}
}

type Option func(*Tracker)

func WithClock(c clock.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

func WithDocumentSource(src DocumentSource) Option {
	return func(t *Tracker) { t.docs = src }
}

// WithStatusListener registers fn to receive save status changes. It is
// called without the tracker's lock held.
func WithStatusListener(fn func(Status)) Option {
	return func(t *Tracker) { t.onStatus = fn }
}

func WithConfig(cfg Config) Option {
	return func(t *Tracker) { t.cfg = cfg }
}

type Tracker struct {
	sessionID string
	sink      Sink
	clock     clock.Clock
	docs      DocumentSource
	onStatus  func(Status)
	cfg       Config

	mu             sync.Mutex
	queue          []event.Event
	seq            int64
	lastActivity   time.Time
	lastSnapshot   time.Time
	activityCount  int
	keystrokeCount int
	inactivity     clock.Timer
	saveTimer      clock.Timer
	stopped        bool
	flushing       int
	flushDone      *sync.Cond

	// flushMu keeps one batch in flight so a requeued batch stays ahead of later events.
	flushMu sync.Mutex
}

func New(sessionID string, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		sessionID: sessionID,
		sink:      sink,
		clock:     clock.Real(),
		cfg:       DefaultConfig(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastSnapshot = t.clock.Now()
	t.flushDone = sync.NewCond(&t.mu)
	return t
}

func (t *Tracker) SessionID() string { return t.sessionID }

// RecordActivity notes a document mutation.
func (t *Tracker) RecordActivity() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if t.lastActivity.IsZero() || now.Sub(t.lastActivity) >= t.cfg.ActivityThrottle {
		t.lastActivity = now
		t.activityCount++
		t.keystrokeCount++
	}

	if t.inactivity != nil {
		t.inactivity.Stop()
	}
	t.inactivity = t.clock.AfterFunc(t.cfg.InactivityDelay, t.onInactivity)

	due := t.snapshotDueLocked(now)
	t.mu.Unlock()

	if due {
		t.takeSnapshot()
	}
}

// ShouldSnapshot reports whether the count or time trigger is due.
func (t *Tracker) ShouldSnapshot() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotDueLocked(t.clock.Now())
}

func (t *Tracker) snapshotDueLocked(now time.Time) bool {
	if t.activityCount == 0 {
		return false
	}
	return t.keystrokeCount >= t.cfg.KeystrokesPerSnapshot || now.Sub(t.lastSnapshot) > t.cfg.SnapshotCeiling
}

func (t *Tracker) onInactivity() {
	t.mu.Lock()
	t.inactivity = nil
	pending := t.activityCount > 0 && !t.stopped
	t.mu.Unlock()

	if pending {
		t.takeSnapshot()
	}
}

func (t *Tracker) takeSnapshot() {
	if t.docs == nil {
		log.Printf("[Tracker] session %s: snapshot due but no document source", t.sessionID)
		return
	}
	doc, err := t.docs.Document()
	if err != nil {
		log.Printf("[Tracker] session %s: failed to read document: %v", t.sessionID, err)
		return
	}
	if err := t.RecordSnapshot(doc); err != nil && !errors.Is(err, ErrStopped) {
		log.Printf("[Tracker] session %s: snapshot: %v", t.sessionID, err)
	}
}

// RecordSnapshot appends a full document checkpoint and flushes immediately.
func (t *Tracker) RecordSnapshot(doc event.Document) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	now := t.clock.Now()
	t.appendLocked(now, event.Snapshot{Doc: doc})
	t.activityCount = 0
	t.keystrokeCount = 0
	t.lastSnapshot = now
	t.mu.Unlock()

	t.flushNow()
	return nil
}

// RecordSubmission appends the submitted document and flushes immediately.
func (t *Tracker) RecordSubmission(doc event.Document) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	t.appendLocked(t.clock.Now(), event.Submission{Doc: doc})
	t.mu.Unlock()

	t.flushNow()
	return nil
}

// RecordPaste appends a paste with its provenance verdict. Pastes are batched.
func (t *Tracker) RecordPaste(content string, internal bool) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	t.appendLocked(t.clock.Now(), event.Paste{Content: content, Internal: internal})
	full := len(t.queue) >= t.cfg.FlushSize
	if !full && t.saveTimer == nil {
		t.saveTimer = t.clock.AfterFunc(t.cfg.FlushDelay, t.onSaveTimer)
	}
	t.mu.Unlock()

	if full {
		t.flushNow()
	}
	return nil
}

func (t *Tracker) appendLocked(now time.Time, p event.Payload) {
	t.queue = append(t.queue, event.Event{
		Timestamp: now.UnixMilli(),
		Seq:       t.seq,
		Payload:   p,
	})
	t.seq++
}

// onSaveTimer already runs off the recording goroutine, so it flushes inline.
func (t *Tracker) onSaveTimer() {
	t.mu.Lock()
	t.saveTimer = nil
	t.mu.Unlock()
	// Errors are logged by Flush and the batch stays queued.
	_ = t.Flush(context.Background())
}

// flushNow starts a flush in the background. flushMu keeps batches in order.
func (t *Tracker) flushNow() {
	t.mu.Lock()
	t.flushing++
	t.mu.Unlock()

	go func() {
		_ = t.Flush(context.Background())

		t.mu.Lock()
		t.flushing--
		if t.flushing == 0 {
			t.flushDone.Broadcast()
		}
		t.mu.Unlock()
	}()
}

// Wait blocks until every background flush started so far has returned.
func (t *Tracker) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.flushing > 0 {
		t.flushDone.Wait()
	}
}

// Flush sends every queued event as one batch. On failure the batch is put
// back at the front of the queue and the delay timer is re-armed.
func (t *Tracker) Flush(ctx context.Context) error {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if len(t.queue) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.queue
	t.queue = nil
	if t.saveTimer != nil {
		t.saveTimer.Stop()
		t.saveTimer = nil
	}
	t.mu.Unlock()

	t.emit(StatusSaving)

	records := make([]event.Record, 0, len(batch))
	for _, e := range batch {
		rec, err := event.Encode(e)
		if err != nil {
			log.Printf("[Tracker] session %s: dropping event #%d: %v", t.sessionID, e.Seq, err)
			continue
		}
		records = append(records, rec)
	}

	if t.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.FlushTimeout)
		defer cancel()
	}

	saved, err := t.sink.SaveEvents(ctx, t.sessionID, records)
	if err != nil {
		t.mu.Lock()
		t.queue = append(batch, t.queue...)
		if !t.stopped && t.saveTimer == nil {
			t.saveTimer = t.clock.AfterFunc(t.cfg.FlushDelay, t.onSaveTimer)
		}
		t.mu.Unlock()
		log.Printf("[Tracker] session %s: failed to save %d events: %v", t.sessionID, len(batch), err)
		return fmt.Errorf("save events: %w", err)
	}

	log.Printf("[Tracker] session %s: saved %d events", t.sessionID, saved)
	t.emit(StatusSaved)
	return nil
}

// ForceFlush is the best-effort flush used on shutdown or page unload. It
// waits for background flushes, then sends what is still queued, giving up
// when ctx is done.
func (t *Tracker) ForceFlush(ctx context.Context) error {
	t.Wait()
	return t.Flush(ctx)
}

// Stop cancels all timers and rejects further events. Queued events remain
// and can still be flushed.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.inactivity != nil {
		t.inactivity.Stop()
		t.inactivity = nil
	}
	if t.saveTimer != nil {
		t.saveTimer.Stop()
		t.saveTimer = nil
	}
}

// Pending returns a copy of the unflushed events.
func (t *Tracker) Pending() []event.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]event.Event, len(t.queue))
	copy(out, t.queue)
	return out
}

// NextSeq is the sequence number the next event will receive.
func (t *Tracker) NextSeq() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

func (t *Tracker) emit(s Status) {
	if t.onStatus != nil {
		t.onStatus(s)
	}
}
