package rtspcore

import (
	"math"
	"sync"

	"github.com/kinoglaz/kgd/pkg/base"
)

// Track binds one RTP session to the transport it was SETUP with: the
// channel pair (owned UDP or shared interleave) plus, for a shared pair,
// the interleave base id so TEARDOWN can release it back to the pool.
type Track struct {
	Index       int
	RTP         *RTPSession
	Delivery    base.StreamDelivery
	Protocol    base.StreamProtocol
	Interleaved bool
	InterleaveBase int
	ClientPort  *[2]int
	ServerPort  *[2]int
}

// Session is one RTSP session: a client's aggregate handle onto a
// container, and the set of per-track RTP sessions SETUP has created for
// it (spec §3, §4.10's "resolves or creates an RTSP session").
type Session struct {
	mu sync.Mutex

	ID        uint32
	Container *Container

	tracks    map[int]*Track
	hasPlayed bool
}

// NewSession creates an empty session bound to container, identified by
// id (random non-zero, or the id a client named in its Session header).
func NewSession(id uint32, container *Container) *Session {
	return &Session{
		ID:        id,
		Container: container,
		tracks:    map[int]*Track{},
	}
}

// AddTrack registers tr under the session, keyed by its medium index.
func (s *Session) AddTrack(tr *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[tr.Index] = tr
}

// Track returns the track registered for index, or nil.
func (s *Session) Track(index int) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracks[index]
}

// Tracks returns every registered track, in no particular order.
func (s *Session) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, 0, len(s.tracks))
	for _, tr := range s.tracks {
		out = append(out, tr)
	}
	return out
}

// HasPlayed reports whether this session has ever completed a successful
// PLAY (spec §4.10: "has_played latches true on first successful play").
func (s *Session) HasPlayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasPlayed
}

// resolveTargets returns the tracks an aggregate (trackIndex < 0) or
// per-track request should act on.
func (s *Session) resolveTargets(trackIndex int) ([]*Track, error) {
	if trackIndex < 0 {
		return s.Tracks(), nil
	}
	tr := s.Track(trackIndex)
	if tr == nil {
		return nil, ErrTrackNotFound(trackIndex)
	}
	return []*Track{tr}, nil
}

// PlayResult carries per-track RTP-Info material back to the PLAY
// handler after Play has run.
type PlayResult struct {
	TrackIndex int
	StartSeq   uint16
	RTPTime    uint32
}

// Play runs spec §4.10/§4.7's PLAY sequence over trackIndex (<0 for
// aggregate): eval every targeted track's request, clamp a shared `From`
// across tracks to the minimum they agree on (so a multi-track play
// starts every track at the same point), then play each.
func (s *Session) Play(trackIndex int, rq PlayRequest) ([]PlayResult, error) {
	targets, err := s.resolveTargets(trackIndex)
	if err != nil {
		return nil, err
	}

	evaluated := make([]PlayRequest, len(targets))
	from := math.Inf(1)
	for i, tr := range targets {
		evaluated[i] = tr.RTP.Eval(rq)
		if evaluated[i].From < from {
			from = evaluated[i].From
		}
	}

	results := make([]PlayResult, 0, len(targets))
	for i, tr := range targets {
		evaluated[i].From = from
		tr.RTP.Play(evaluated[i])
		results = append(results, PlayResult{
			TrackIndex: tr.Index,
			StartSeq:   tr.RTP.StartSequence(),
			RTPTime:    tr.RTP.RTPTimeAt(from),
		})
	}

	s.mu.Lock()
	s.hasPlayed = true
	s.mu.Unlock()

	return results, nil
}

// Pause runs PAUSE over trackIndex (<0 for aggregate).
func (s *Session) Pause(trackIndex int) error {
	targets, err := s.resolveTargets(trackIndex)
	if err != nil {
		return err
	}
	for _, tr := range targets {
		tr.RTP.Pause()
	}
	return nil
}

// Unpause resumes every targeted track at speed, without a seek.
func (s *Session) Unpause(trackIndex int, speed float64) error {
	targets, err := s.resolveTargets(trackIndex)
	if err != nil {
		return err
	}
	for _, tr := range targets {
		tr.RTP.Unpause(speed)
	}
	return nil
}

// Teardown tears down trackIndex (<0 for aggregate, tearing down every
// track this session owns and releasing any interleave ports). It
// returns the interleave base ids that should be released by the caller
// (which owns the connection's Multiplexer).
func (s *Session) Teardown(trackIndex int, mux *Multiplexer) []int {
	s.mu.Lock()
	var targets []*Track
	if trackIndex < 0 {
		for _, tr := range s.tracks {
			targets = append(targets, tr)
		}
		s.tracks = map[int]*Track{}
	} else if tr, ok := s.tracks[trackIndex]; ok {
		targets = []*Track{tr}
		delete(s.tracks, trackIndex)
	}
	s.mu.Unlock()

	var released []int
	for _, tr := range targets {
		tr.RTP.Teardown()
		if tr.Interleaved && mux != nil {
			mux.Release(tr.InterleaveBase)
			released = append(released, tr.InterleaveBase)
		}
	}
	return released
}

