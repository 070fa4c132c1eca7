package rtspcore

import (
	"sort"
	"sync"
)

// Frame is one presentation unit of one Medium (spec §3). PresentationTime
// is monotonically non-decreasing across successive frames of the same
// medium (spec §3's monotonic invariant).
type Frame struct {
	PresentationTime float64
	PayloadType      uint8
	IsKey            bool
	MediumIndex      int
	Data             []byte
}

// Medium is one elementary stream's append-only frame list, plus the set
// of live Iterators reading from it (spec §3, §4.5).
type Medium struct {
	mu sync.Mutex

	index       int
	payloadType uint8
	clockRate   uint32

	frames     []Frame
	finished   bool
	finalizeCh chan struct{}

	// refCount tracks live iterators, consulted only when the owning
	// Container is a live cast (spec §9's resolved Open Question: frame
	// release is refcounted against live iterators, but only matters for
	// live casts — on-disk containers keep every frame for the whole
	// container lifetime regardless of iterator count).
	refCount map[int]int
	isLive   bool
}

// NewMedium creates an empty Medium for a track at the given index.
func NewMedium(index int, payloadType uint8, clockRate uint32, isLive bool) *Medium {
	return &Medium{
		index:       index,
		payloadType: payloadType,
		clockRate:   clockRate,
		isLive:      isLive,
		refCount:    map[int]int{},
		finalizeCh:  make(chan struct{}),
	}
}

// Index returns this medium's position in its container's medium list.
func (m *Medium) Index() int { return m.index }

// PayloadType returns the RTP payload type this medium's frames carry.
func (m *Medium) PayloadType() uint8 { return m.payloadType }

// ClockRate returns the RTP clock rate for this medium's payload type.
func (m *Medium) ClockRate() uint32 { return m.clockRate }

// Append adds one frame to the end of the medium. Used by a container's
// background loader (spec §4.6) as frames are decoded in order; panics on
// monotonic-invariant violation, since that is always a demuxer defect.
func (m *Medium) Append(f Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.frames); n > 0 && f.PresentationTime < m.frames[n-1].PresentationTime {
		panic(&ErrInvalidState{Detail: "frame presentation time moved backward"})
	}
	f.MediumIndex = m.index
	m.frames = append(m.frames, f)
}

// Insert adds a frame to a live-cast medium's tail, dropping the oldest
// frame if doing so is safe (no live iterator still references it). Used
// by the live re-encode pipeline (spec §4.6), where the frame list is
// continuously extended rather than loaded once up front.
func (m *Medium) Insert(f Frame) {
	m.Append(f)
	if !m.isLive {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) > 1 && m.refCount[0] == 0 {
		m.frames = m.frames[1:]
		next := map[int]int{}
		for k, v := range m.refCount {
			if k > 0 {
				next[k-1] = v
			}
		}
		m.refCount = next
	}
}

// Finalize marks the medium's frame count as fixed: no further frames
// will arrive. Called when a container's background loader finishes, or
// a live cast's source ends (spec §4.6's finalize_frame_count).
func (m *Medium) Finalize() {
	m.mu.Lock()
	already := m.finished
	m.finished = true
	m.mu.Unlock()
	if !already {
		close(m.finalizeCh)
	}
}

// Finished reports whether Finalize has been called.
func (m *Medium) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// WaitFinalized blocks until Finalize has been called.
func (m *Medium) WaitFinalized() {
	<-m.finalizeCh
}

// AllFrames returns a copy of every frame currently held. Intended for
// use after WaitFinalized, when the frame list is no longer growing.
func (m *Medium) AllFrames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, len(m.frames))
	copy(out, m.frames)
	return out
}

// Duration returns the presentation time of the last frame, or 0 if
// empty.
func (m *Medium) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.frames) == 0 {
		return 0
	}
	return m.frames[len(m.frames)-1].PresentationTime
}

// Size returns the current frame count.
func (m *Medium) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// GetFrame returns the frame at position i.
func (m *Medium) GetFrame(i int) (Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.frames) {
		return Frame{}, ErrOutOfBounds
	}
	return m.frames[i], nil
}

// GetFramePos returns the index of the first frame whose presentation
// time is >= t (spec §4.4's seek target resolution).
func (m *Medium) GetFramePos(t float64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sort.Search(len(m.frames), func(i int) bool {
		return m.frames[i].PresentationTime >= t
	})
}

// acquireIterator marks frame index i as referenced by iterator id.
func (m *Medium) acquireIterator(id, i int) {
	if !m.isLive {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCount[i]++
}

// releaseIterator drops iterator id's reference on frame index i.
func (m *Medium) releaseIterator(id, i int) {
	if !m.isLive {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refCount[i] > 0 {
		m.refCount[i]--
	}
}

// IteratorKind selects an Iterator's wrap-around behavior.
type IteratorKind int

const (
	// IteratorDefault runs once through the medium and then reports ErrEof.
	IteratorDefault IteratorKind = iota
	// IteratorLoop wraps back to the start after n repetitions (0 = forever).
	IteratorLoop
	// IteratorSlice is bounded to [start, end) and does not wrap.
	IteratorSlice
)

// Iterator walks one Medium's frames, optionally looping or bounded to a
// slice (spec §3's Iterator, backing playlist looping and frame-buffer
// lookahead).
type Iterator struct {
	id     int
	medium *Medium
	kind   IteratorKind

	sliceStart int
	sliceEnd   int // exclusive; only meaningful for IteratorSlice

	loopLimit int // 0 = unbounded, only meaningful for IteratorLoop
	loopCount int

	pos int // absolute position before loop/slice normalization
}

var iteratorIDCounter int
var iteratorIDMu sync.Mutex

func nextIteratorID() int {
	iteratorIDMu.Lock()
	defer iteratorIDMu.Unlock()
	iteratorIDCounter++
	return iteratorIDCounter
}

// NewIterator creates a default (run-once) iterator over m starting at
// frame 0.
func NewIterator(m *Medium) *Iterator {
	return &Iterator{id: nextIteratorID(), medium: m, kind: IteratorDefault}
}

// NewLoopIterator creates an iterator that wraps back to the start of m
// after reaching the end, up to n times (0 = unbounded).
func NewLoopIterator(m *Medium, n int) *Iterator {
	return &Iterator{id: nextIteratorID(), medium: m, kind: IteratorLoop, loopLimit: n}
}

// NewSliceIterator creates an iterator bounded to frames [start, end).
func NewSliceIterator(m *Medium, start, end int) *Iterator {
	return &Iterator{id: nextIteratorID(), medium: m, kind: IteratorSlice, sliceStart: start, sliceEnd: end}
}

// Seek repositions the iterator to absolute frame index i.
func (it *Iterator) Seek(i int) {
	it.pos = i
}

// Next returns the next frame and advances the iterator, applying the
// loop/slice wrap rule for the iterator's kind. Returns ErrEof once a
// default or slice iterator is exhausted.
func (it *Iterator) Next() (Frame, error) {
	switch it.kind {
	case IteratorSlice:
		size := it.sliceEnd - it.sliceStart
		if size <= 0 || it.pos >= size {
			return Frame{}, ErrEof
		}
		idx := it.sliceStart + it.pos
		f, err := it.medium.GetFrame(idx)
		if err != nil {
			return Frame{}, err
		}
		it.pos++
		return f, nil

	case IteratorLoop:
		size := it.medium.Size()
		if size == 0 {
			return Frame{}, ErrEof
		}
		curIter := it.pos / size
		innerPos := it.pos % size
		if it.loopLimit > 0 && curIter >= it.loopLimit {
			return Frame{}, ErrEof
		}
		f, err := it.medium.GetFrame(innerPos)
		if err != nil {
			return Frame{}, err
		}
		it.pos++
		return f, nil

	default: // IteratorDefault
		f, err := it.medium.GetFrame(it.pos)
		if err != nil {
			if it.medium.Finished() {
				return Frame{}, ErrEof
			}
			return Frame{}, err
		}
		it.pos++
		return f, nil
	}
}

// Release drops this iterator's hold on any frame it still references
// (live-cast refcounting only; a no-op for on-disk containers).
func (it *Iterator) Release() {
	it.medium.releaseIterator(it.id, it.pos)
}
