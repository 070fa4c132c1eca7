package rtspcore

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/kinoglaz/kgd/pkg/headers"
)

func now() time.Time { return time.Now() }

func randUint32NonZero() uint32 {
	for {
		var b [4]byte
		_, _ = rand.Read(b[:])
		v := binary.BigEndian.Uint32(b[:])
		if v != 0 {
			return v
		}
	}
}

// Segment is one interval of constant speed, per spec §4.3.
type Segment struct {
	started bool
	start   time.Time
	stop    time.Time
	stopped bool
	speed   float64
}

func newSegment(t time.Time, speed float64) Segment {
	return Segment{started: true, start: t, speed: speed}
}

// Elapsed returns (min(stop, t) - start) * speed, or 0 if never started.
func (s Segment) Elapsed(t time.Time) float64 {
	if !s.started {
		return 0
	}
	end := t
	if s.stopped && s.stop.Before(t) {
		end = s.stop
	}
	return end.Sub(s.start).Seconds() * s.speed
}

// MultiSegment sequences Segments end to end (spec §4.3).
type MultiSegment struct {
	mu       sync.Mutex
	past     float64
	current  Segment
	running  bool
	hasSpeed bool
	speed    float64
}

// Start begins the first segment. Starting twice is an invariant
// violation.
func (m *MultiSegment) Start(t time.Time, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		panic(&ErrInvalidState{Detail: "MultiSegment started twice"})
	}
	m.current = newSegment(t, speed)
	m.running = true
	m.hasSpeed = true
	m.speed = speed
}

// Next stops the current segment (if running) and begins a new one.
func (m *MultiSegment) Next(t time.Time, speed float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.current.stopped = true
		m.current.stop = t
		m.past += m.current.Elapsed(t)
	}
	m.current = newSegment(t, speed)
	m.running = true
	m.hasSpeed = true
	m.speed = speed
}

// Stop ends the current segment.
func (m *MultiSegment) Stop(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.current.stopped = true
	m.current.stop = t
	m.past += m.current.Elapsed(t)
	m.running = false
}

// Elapsed returns the sum of every past segment plus the current one.
func (m *MultiSegment) Elapsed(t time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.past
	if m.running {
		total += m.current.Elapsed(t)
	}
	return total
}

// CurrentSpeed returns the most recently set speed.
func (m *MultiSegment) CurrentSpeed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasSpeed {
		return 1
	}
	return m.speed
}

// Running reports whether a segment is currently open.
func (m *MultiSegment) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// seekState is the (absolute, relative, left, right) offset spec §3
// names; relative is the only quantity presentation_time actually needs,
// the others are retained for diagnostics/parity with the source model.
type seekState struct {
	mu       sync.Mutex
	absolute float64
	relative float64
	left     float64
	right    float64
}

func (s *seekState) adjust(delta float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relative += delta
	s.absolute += delta
}

func (s *seekState) get() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relative
}

// Timeline combines life/play/pause segment accumulators and a seek
// counter for one RTP session (spec §3, §4.3).
type Timeline struct {
	life  MultiSegment
	play  MultiSegment
	pause MultiSegment
	seek  seekState

	mu      sync.Mutex
	rtpBase uint32
	rate    uint32

	// vlc selects the VLC-compatible rtp_time formula.
	vlc bool
}

// NewTimeline builds a Timeline for clockRate ticks/second, selecting the
// VLC-compatible rtp_time variant when ua is any VLC/LibVLC family member
// (spec §4.3's polymorphic-per-user-agent construction).
func NewTimeline(clockRate uint32, ua headers.UserAgent) *Timeline {
	tl := &Timeline{rate: clockRate, vlc: ua.IsVLCFamily()}
	tl.RestartRTPTime()
	return tl
}

// RestartRTPTime picks a new non-zero random RTP base.
func (tl *Timeline) RestartRTPTime() {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	tl.rtpBase = randUint32NonZero()
}

// RTPBase returns the current random RTP base.
func (tl *Timeline) RTPBase() uint32 {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.rtpBase
}

func secToTicks(sec float64, rate uint32) uint32 {
	return uint32(int64(math.Round(sec * float64(rate))))
}

// Start begins the life and play segments (idle -> playing, spec §4.3).
func (tl *Timeline) Start(t time.Time, speed float64) {
	tl.life.Start(t, speed)
	tl.play.Start(t, speed)
}

// Pause stops play and begins a pause segment (playing -> paused).
func (tl *Timeline) Pause(t time.Time) {
	tl.play.Stop(t)
	tl.pause.Next(t, 1)
}

// Unpause stops the pause segment and resumes play (paused -> playing).
func (tl *Timeline) Unpause(t time.Time, speed float64) {
	tl.pause.Stop(t)
	tl.play.Next(t, speed)
}

// Seek adjusts the seek offset by (pt - PresentationTime(t)), stops any
// open pause segment (or ensures life has started), and begins a new play
// segment at speed.
func (tl *Timeline) Seek(t time.Time, pt float64, speed float64) {
	delta := pt - tl.PresentationTime(t)
	tl.seek.adjust(delta)

	if tl.pause.Running() {
		tl.pause.Stop(t)
	} else if !tl.life.Running() {
		tl.life.Start(t, speed)
	}

	tl.play.Next(t, speed)
}

// Stop ends play, pause, and life (any -> stopped).
func (tl *Timeline) Stop(t time.Time) {
	tl.play.Stop(t)
	tl.pause.Stop(t)
	tl.life.Stop(t)
}

// PresentationTime returns play.Elapsed(t) + seek.relative.
func (tl *Timeline) PresentationTime(t time.Time) float64 {
	return tl.play.Elapsed(t) + tl.seek.get()
}

// PlayTime returns life.Elapsed(t) - pause.Elapsed(t): time actually spent
// playing, continuous across play.Next (speed changes, seeks).
func (tl *Timeline) PlayTime(t time.Time) float64 {
	return tl.life.Elapsed(t) - tl.pause.Elapsed(t)
}

// CurrentSpeed returns the play segment's current speed.
func (tl *Timeline) CurrentSpeed() float64 {
	return tl.play.CurrentSpeed()
}

// RTPTime computes the RTP timestamp for presentation time pt observed at
// wall-clock t. Generic variant:
// rtp_base + ticks(play_time(t) + (pt - presentation_time(t))/speed).
// VLC variant: rtp_base + ticks(pt).
func (tl *Timeline) RTPTime(pt float64, t time.Time) uint32 {
	tl.mu.Lock()
	base, rate := tl.rtpBase, tl.rate
	vlc := tl.vlc
	tl.mu.Unlock()

	if vlc {
		return base + secToTicks(pt, rate)
	}

	speed := tl.CurrentSpeed()
	if speed == 0 {
		speed = 1
	}
	offset := tl.PlayTime(t) + (pt-tl.PresentationTime(t))/speed
	return base + secToTicks(offset, rate)
}
