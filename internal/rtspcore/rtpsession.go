package rtspcore

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pion/rtcp"

	"github.com/kinoglaz/kgd/internal/rtcpreceiver"
	"github.com/kinoglaz/kgd/internal/rtcpsender"
	"github.com/kinoglaz/kgd/internal/rtpcodec"
	"github.com/kinoglaz/kgd/pkg/headers"
)

func randUint16() uint16 {
	return uint16(randUint32NonZero())
}

// PlayRequest is the inbound parameters a PLAY request resolves to, after
// Eval has filled in defaults (spec §4.7's `eval(rq)`).
type PlayRequest struct {
	From     float64 // seek target, seconds
	Speed    float64 // Scale; 0 has already been rejected by the caller
	HasRange bool
	HasScale bool
}

// RTPSessionState is the per-track status-bit set spec §3 names.
type RTPSessionState struct {
	Stopped bool
	Paused  bool
	Seeked  bool
}

// RTPSession runs one track's send loop: fetch, packetize, write,
// alongside its paired RTCP sender/receiver (spec §3, §4.7, §4.8). Frames
// are sent as soon as the frame buffer yields them: the loop does not pace
// delivery against the timeline, and tickFrameRate only records the
// average gap between frames.
type RTPSession struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state RTPSessionState

	frameBuffer *FrameBuffer
	timeline    *Timeline
	packetizer  rtpcodec.Packetizer

	rtpChannel  Channel
	rtcpChannel Channel

	ssrc      uint32
	seqCur    uint16
	timeEnd   float64
	hasPlayed bool

	rtcpSender   *rtcpsender.RTCPSender
	rtcpReceiver *rtcpreceiver.Receiver
	barrier      *rtcpsender.StartBarrier

	done chan struct{}

	// lastFrameWall/avgInterval back the frame-rate estimator spec §4.7
	// step 4 calls for: an exponentially smoothed inter-frame gap, seeded
	// by the first observed pair.
	lastFrameWall time.Time
	avgInterval   time.Duration
}

// NewRTPSession builds a session over frameBuffer, bound to rtp/rtcp
// channels, with the user-agent-selected timeline variant. ssrc is the
// session's RTP/RTCP synchronization source, either randomly chosen or
// taken from a client's Transport ssrc= hint.
func NewRTPSession(fb *FrameBuffer, packetizer rtpcodec.Packetizer, rtpCh, rtcpCh Channel, ua headers.UserAgent, ssrc uint32, cname string) *RTPSession {
	s := &RTPSession{
		frameBuffer: fb,
		packetizer:  packetizer,
		rtpChannel:  rtpCh,
		rtcpChannel: rtcpCh,
		timeline:    NewTimeline(packetizer.ClockRate(), ua),
		timeEnd:     math.Inf(1),
		ssrc:        ssrc,
	}
	s.cond = sync.NewCond(&s.mu)
	s.packetizer.Init()

	s.rtcpSender = &rtcpsender.RTCPSender{
		ClockRate:     int(packetizer.ClockRate()),
		Period:        5 * time.Second,
		CNAME:         cname,
		WriteCompound: s.writeRTCPCompound,
	}
	s.rtcpReceiver = &rtcpreceiver.Receiver{
		Reader:   rtcpReaderAdapter{ch: rtcpCh},
		Handlers: rtcpreceiver.Handlers{},
	}
	return s
}

// Start begins the paired RTCP sender/receiver; the send loop itself is
// only spun on the first Play.
func (s *RTPSession) Start() {
	s.rtcpSender.Initialize()
	s.rtcpReceiver.Initialize()
}

// SSRC returns this session's synchronization source.
func (s *RTPSession) SSRC() uint32 { return s.ssrc }

// StartSequence returns the random starting sequence number chosen on
// the most recent Play (spec §6's RTP-Info worked example).
func (s *RTPSession) StartSequence() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqCur + 1
}

// RTPTimeAt returns the RTP timestamp the timeline computes for
// presentation time pt, for the RTP-Info header (spec §4.10's PLAY
// response).
func (s *RTPSession) RTPTimeAt(pt float64) uint32 {
	return s.timeline.RTPTime(pt, now())
}

// Eval fills in request defaults and clamps the seek target, per spec
// §4.7's `eval(rq) -> rq`.
func (s *RTPSession) Eval(rq PlayRequest) PlayRequest {
	out := rq
	if !out.HasScale {
		out.Speed = s.timeline.CurrentSpeed()
	}
	if !out.HasRange {
		if s.hasPlayed {
			out.From = s.timeline.PresentationTime(now())
		} else {
			out.From = 0
		}
	}
	out.From = s.frameBuffer.DrySeekTime(out.From, out.Speed)
	return out
}

// Play starts or resumes playback at rq.From/rq.Speed (spec §4.7's "On
// first play" / "otherwise" branches).
func (s *RTPSession) Play(rq PlayRequest) {
	s.mu.Lock()
	first := !s.hasPlayed
	s.hasPlayed = true
	s.seqCur = randUint16() - 1

	if first {
		s.timeline.RestartRTPTime()
		s.timeline.Start(now(), rq.Speed)
	} else {
		s.timeline.Seek(now(), rq.From, rq.Speed)
	}

	s.state.Paused = false
	s.state.Seeked = !first
	s.mu.Unlock()

	s.frameBuffer.Seek(rq.From, rq.Speed)

	s.barrier = rtcpsender.NewStartBarrier()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = s.barrier.Arrive(ctx)
	cancel()

	if first {
		s.done = make(chan struct{})
		go s.sendLoop()
	} else {
		s.cond.Broadcast()
	}
}

// Unpause clears the paused flag and wakes the send loop.
func (s *RTPSession) Unpause(speed float64) {
	s.mu.Lock()
	s.state.Paused = false
	s.timeline.Unpause(now(), speed)
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Pause sets the paused flag and returns without waiting for the send
// loop: the loop parks on the pause condition when it next checks the
// flag, so a frame it has already fetched is still sent.
func (s *RTPSession) Pause() {
	s.mu.Lock()
	s.state.Paused = true
	s.timeline.Pause(now())
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Teardown stops the send loop, the frame buffer, and both RTCP roles,
// and joins the send loop goroutine.
func (s *RTPSession) Teardown() {
	s.mu.Lock()
	alreadyStopped := s.state.Stopped
	s.state.Stopped = true
	hasStarted := s.hasPlayed
	s.mu.Unlock()
	s.cond.Broadcast()

	s.frameBuffer.Stop()

	if hasStarted && !alreadyStopped {
		<-s.done
	}

	s.rtcpReceiver.Close()
	s.rtcpSender.Close()
}

// writeRTCPCompound marshals a compound RTCP packet set and writes it to
// the session's RTCP channel. A WouldBlock failure drops the packet
// without logging it; any other error closes the channel, which the next
// send attempt will observe.
func (s *RTPSession) writeRTCPCompound(pkts []rtcp.Packet) {
	raw, err := rtcp.Marshal(pkts)
	if err != nil {
		return
	}
	if _, err := s.rtcpChannel.WriteLast(raw); err != nil && !IsWouldBlock(err) {
		s.rtcpChannel.Close() //nolint:errcheck
	}
}

type rtcpReaderAdapter struct {
	ch Channel
}

func (a rtcpReaderAdapter) ReadRTCP(ctx context.Context, timeout time.Duration) ([]byte, error) {
	a.ch.SetReadTimeout(timeout)
	buf := make([]byte, 2048)
	n, err := a.ch.ReadSome(buf)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return buf[:n], nil
}

func (s *RTPSession) sendLoop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for s.state.Paused && !s.state.Stopped {
			s.cond.Wait()
		}
		if s.state.Stopped {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		f, err := s.frameBuffer.Next()
		if err != nil {
			s.mu.Lock()
			s.state.Stopped = true
			s.mu.Unlock()
			return
		}

		s.tickFrameRate()

		pt := time.Duration(f.PresentationTime * float64(time.Second))
		packets, err := s.packetizer.Packetize([][]byte{f.Data}, pt)
		if err != nil {
			continue
		}

		rtpTime := s.timeline.RTPTime(f.PresentationTime, now())
		for i, pkt := range packets {
			s.mu.Lock()
			s.seqCur++
			seq := s.seqCur
			s.mu.Unlock()

			pkt.SequenceNumber = seq
			pkt.Timestamp = rtpTime
			pkt.SSRC = s.ssrc

			raw, err := pkt.Marshal()
			if err != nil {
				continue
			}

			if i == len(packets)-1 {
				s.rtpChannel.WriteLast(raw) //nolint:errcheck
			} else {
				s.rtpChannel.WriteSome(raw) //nolint:errcheck
			}

			s.rtcpSender.ProcessPacketRTP(pkt, now(), i == 0)
		}

		if f.PresentationTime > s.timeEnd {
			s.mu.Lock()
			s.state.Stopped = true
			s.mu.Unlock()
			return
		}
	}
}

func (s *RTPSession) tickFrameRate() {
	t := now()
	if !s.lastFrameWall.IsZero() {
		gap := t.Sub(s.lastFrameWall)
		if s.avgInterval == 0 {
			s.avgInterval = gap
		} else {
			s.avgInterval = (s.avgInterval*7 + gap) / 8
		}
	}
	s.lastFrameWall = t
}
