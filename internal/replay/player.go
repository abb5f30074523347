package replay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/wooogler/swag/internal/idle"
)

// Speeds are the playback rates a Player accepts.
var Speeds = []float64{0.5, 1, 2, 5, 10}

const DefaultSpeed = 5.0

var ErrInvalidSpeed = errors.New("unsupported playback speed")

// Player drives a playhead across a Timeline. Idle middles are skipped
// through the Mapper.
type Player struct {
	tl     *Timeline
	mapper *idle.Mapper
	start  int64
	end    int64

	mu       sync.Mutex
	pos      int64
	speed    float64
	playing  bool
	running  bool
	stopChan chan struct{}
}

func NewPlayer(tl *Timeline, mapper *idle.Mapper, start, end int64) *Player {
	if end < start {
		end = start
	}
	return &Player{
		tl:     tl,
		mapper: mapper,
		start:  start,
		end:    end,
		pos:    start,
		speed:  DefaultSpeed,
	}
}

// Play starts playback, rewinding first when the playhead is at the end.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= p.end {
		p.pos = p.start
	}
	p.playing = true
}

func (p *Player) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Seek moves the playhead, clamped to the replay range.
func (p *Player) Seek(t int64) Frame {
	p.mu.Lock()
	p.pos = max(p.start, min(t, p.end))
	pos := p.pos
	p.mu.Unlock()
	return p.tl.FrameAt(pos)
}

func (p *Player) SetSpeed(s float64) error {
	for _, allowed := range Speeds {
		if s == allowed {
			p.mu.Lock()
			p.speed = s
			p.mu.Unlock()
			return nil
		}
	}
	return ErrInvalidSpeed
}

func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Frame reconstructs the state at the playhead.
func (p *Player) Frame() Frame {
	return p.tl.FrameAt(p.Position())
}

// Tick advances a playing playhead by elapsed wall time times the speed.
// Reaching the end clamps the playhead and pauses.
func (p *Player) Tick(elapsed time.Duration) Frame {
	p.mu.Lock()
	skipped := false
	if p.playing {
		next, jumped := p.mapper.Advance(p.pos, elapsed, p.speed)
		if next >= p.end {
			next = p.end
			p.playing = false
		}
		p.pos = next
		skipped = jumped
	}
	pos := p.pos
	p.mu.Unlock()

	f := p.tl.FrameAt(pos)
	f.Skipped = skipped
	return f
}

// Run plays from the current position, calling onFrame about once per
// interval, until the end is reached, ctx is cancelled or Stop is called.
// The playhead moves by the wall time actually elapsed between frames.
func (p *Player) Run(ctx context.Context, interval time.Duration, onFrame func(Frame)) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("player already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.Play()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-stop:
			log.Println("[Replay] Stop signal received")
			return nil
		case now := <-ticker.C:
			// Ticks are dropped while onFrame is slow, so advance by measured time.
			f := p.Tick(now.Sub(last))
			last = now
			if onFrame != nil {
				onFrame(f)
			}
			if !p.Playing() {
				return nil
			}
		}
	}
}

// Stop ends a running Run loop and pauses playback.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	if p.running && p.stopChan != nil {
		close(p.stopChan)
		p.stopChan = nil
	}
}
