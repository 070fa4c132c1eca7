package rtspcore

import "sync"

// FrameBuffer is a bounded lookahead window over one Medium, handing
// frames to exactly one reader (the RTP send loop) while a background
// loader keeps extending the underlying Medium (spec §4.4).
//
// Seeking snaps to a payload-family-appropriate boundary: video seeks
// land on the nearest key frame at or before the target so a decoder can
// always resync; audio (and anything else) seeks land on the first frame
// at or after the target, since audio frames carry no key/delta
// distinction to snap to.
type FrameBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	medium  *Medium
	iter    *Iterator
	isVideo bool
	stopped bool
	lastPT  float64
}

// NewFrameBuffer wraps m for windowed, seekable playback. isVideo selects
// the key-frame-snapping seek policy.
func NewFrameBuffer(m *Medium, isVideo bool) *FrameBuffer {
	fb := &FrameBuffer{medium: m, isVideo: isVideo, iter: NewIterator(m)}
	fb.cond = sync.NewCond(&fb.mu)
	return fb
}

// DrySeek computes the frame position a seek to presentation time pt at
// the given speed would land on, without moving the buffer's read cursor.
// Negative speed (rewind) is treated the same as positive for position
// resolution; only playback direction differs, handled by the RTP send
// loop, not here.
func (fb *FrameBuffer) DrySeek(pt float64, speed float64) int {
	_ = speed
	pos := fb.medium.GetFramePos(pt)

	if !fb.isVideo {
		return pos
	}

	// snap backward to the nearest key frame
	for i := pos; i >= 0; i-- {
		f, err := fb.medium.GetFrame(i)
		if err != nil {
			continue
		}
		if f.IsKey {
			return i
		}
	}
	return 0
}

// DrySeekTime is DrySeek, reported as the landed-on frame's presentation
// time rather than its index (spec §4.7's `eval` clamps the requested
// `from` this way, without moving the read cursor).
func (fb *FrameBuffer) DrySeekTime(pt float64, speed float64) float64 {
	pos := fb.DrySeek(pt, speed)
	f, err := fb.medium.GetFrame(pos)
	if err != nil {
		return pt
	}
	return f.PresentationTime
}

// Seek moves the read cursor to the position DrySeek would report, and
// returns the landed-on frame's presentation time.
func (fb *FrameBuffer) Seek(pt float64, speed float64) float64 {
	pos := fb.DrySeek(pt, speed)

	fb.mu.Lock()
	fb.iter.Seek(pos)
	fb.mu.Unlock()

	f, err := fb.medium.GetFrame(pos)
	if err != nil {
		return pt
	}
	return f.PresentationTime
}

// Next blocks until a frame is available, the buffer is stopped (ErrEof),
// or the underlying medium reports ErrOutOfBounds while not yet finalized
// (meaning the background loader simply hasn't caught up, so it waits and
// retries rather than treating that as end of stream).
func (fb *FrameBuffer) Next() (Frame, error) {
	for {
		fb.mu.Lock()
		if fb.stopped {
			fb.mu.Unlock()
			return Frame{}, ErrEof
		}
		f, err := fb.iter.Next()
		if err == nil {
			fb.lastPT = f.PresentationTime
			fb.mu.Unlock()
			return f, nil
		}
		if err == ErrEof {
			fb.mu.Unlock()
			return Frame{}, ErrEof
		}
		// ErrOutOfBounds: loader hasn't produced this frame yet.
		fb.cond.Wait()
		fb.mu.Unlock()
	}
}

// InsertMedium notifies waiting readers that the underlying medium has
// grown (called by the container's background loader after each Append).
func (fb *FrameBuffer) InsertMedium() {
	fb.mu.Lock()
	fb.cond.Broadcast()
	fb.mu.Unlock()
}

// InsertTime is identical to InsertMedium: the buffer has no independent
// notion of wall-clock progress, only "more frames may exist now".
func (fb *FrameBuffer) InsertTime() {
	fb.InsertMedium()
}

// Stop makes any blocked or future Next() call return ErrEof immediately
// (teardown, spec §4.4).
func (fb *FrameBuffer) Stop() {
	fb.mu.Lock()
	fb.stopped = true
	fb.cond.Broadcast()
	fb.mu.Unlock()
}

// LastPresentationTime returns the presentation time of the most recently
// delivered frame.
func (fb *FrameBuffer) LastPresentationTime() float64 {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastPT
}
