// Package rtcpsender generates the compound RTCP packets (Sender Report +
// Source Description, Goodbye on close) spec §4.8 requires the server send
// on its periodic RTCP interval, and the two-party start barrier that keeps
// the RTP send loop and RTCP receive loop from racing at session start.
package rtcpsender

import (
	"context"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"

	"github.com/kinoglaz/kgd/pkg/ntp"
)

// RTCPSender generates periodic compound RTCP reports (Sender Report plus
// Source Description) for one outgoing RTP stream, and a final Goodbye on
// Close.
type RTCPSender struct {
	ClockRate int
	Period    time.Duration
	CNAME     string
	TimeNow   func() time.Time

	// WriteCompound is called with one compound RTCP packet set (SR+SDES
	// on each tick, BYE alone on Close). Callers marshal with
	// rtcp.Marshal and send it as a single RTCP packet per RFC 3550 §6.1.
	WriteCompound func([]rtcp.Packet)

	mutex sync.RWMutex

	// data from RTP packets
	firstRTPPacketSent bool
	lastTimeRTP        uint32
	lastTimeNTP        time.Time
	lastTimeSystem     time.Time
	localSSRC          uint32
	lastSequenceNumber uint16
	packetCount        uint32
	octetCount         uint32

	terminate chan struct{}
	done      chan struct{}
}

// Initialize initializes a RTCPSender.
func (rs *RTCPSender) Initialize() {
	if rs.TimeNow == nil {
		rs.TimeNow = time.Now
	}

	rs.terminate = make(chan struct{})
	rs.done = make(chan struct{})

	go rs.run()
}

// Close sends a final Goodbye and stops the periodic report loop.
func (rs *RTCPSender) Close() {
	close(rs.terminate)
	<-rs.done

	rs.mutex.RLock()
	sent := rs.firstRTPPacketSent
	ssrc := rs.localSSRC
	rs.mutex.RUnlock()

	if sent && rs.WriteCompound != nil {
		rs.WriteCompound([]rtcp.Packet{&rtcp.Goodbye{Sources: []uint32{ssrc}}})
	}
}

func (rs *RTCPSender) run() {
	defer close(rs.done)

	t := time.NewTicker(rs.Period)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			compound := rs.report()
			if compound != nil && rs.WriteCompound != nil {
				rs.WriteCompound(compound)
			}

		case <-rs.terminate:
			return
		}
	}
}

func (rs *RTCPSender) report() []rtcp.Packet {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if !rs.firstRTPPacketSent {
		return nil
	}

	systemTimeDiff := rs.TimeNow().Sub(rs.lastTimeSystem)
	ntpTime := rs.lastTimeNTP.Add(systemTimeDiff)
	rtpTime := rs.lastTimeRTP + uint32(systemTimeDiff.Seconds()*float64(rs.ClockRate))

	sr := &rtcp.SenderReport{
		SSRC:        rs.localSSRC,
		NTPTime:     ntp.Encode(ntpTime),
		RTPTime:     rtpTime,
		PacketCount: rs.packetCount,
		OctetCount:  rs.octetCount,
	}

	sdes := &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{
			{
				Source: rs.localSSRC,
				Items: []rtcp.SourceDescriptionItem{
					{Type: rtcp.SDESCNAME, Text: rs.CNAME},
				},
			},
		},
	}

	return []rtcp.Packet{sr, sdes}
}

// ProcessPacketRTP extracts data from RTP packets.
func (rs *RTCPSender) ProcessPacketRTP(pkt *rtp.Packet, ntp time.Time, ptsEqualsDTS bool) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if ptsEqualsDTS {
		rs.firstRTPPacketSent = true
		rs.lastTimeRTP = pkt.Timestamp
		rs.lastTimeNTP = ntp
		rs.lastTimeSystem = rs.TimeNow()
		rs.localSSRC = pkt.SSRC
	}

	rs.lastSequenceNumber = pkt.SequenceNumber

	rs.packetCount++
	rs.octetCount += uint32(len(pkt.Payload))
}

// Stats are statistics.
type Stats struct {
	LocalSSRC          uint32
	LastSequenceNumber uint16
	LastRTP            uint32
	LastNTP            time.Time
}

// Stats returns statistics.
func (rs *RTCPSender) Stats() *Stats {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	if !rs.firstRTPPacketSent {
		return nil
	}

	return &Stats{
		LocalSSRC:          rs.localSSRC,
		LastSequenceNumber: rs.lastSequenceNumber,
		LastRTP:            rs.lastTimeRTP,
		LastNTP:            rs.lastTimeNTP,
	}
}

// StartBarrier holds exactly two goroutines (the RTP send loop and the RTCP
// receive loop of one session) at Arrive until both have called it, so
// neither starts moving packets before the other is ready to match (spec
// §4.7).
type StartBarrier struct {
	mu      sync.Mutex
	arrived int
	ready   chan struct{}
}

// NewStartBarrier creates a two-party StartBarrier.
func NewStartBarrier() *StartBarrier {
	return &StartBarrier{ready: make(chan struct{})}
}

// Arrive blocks until the second party also calls Arrive, or ctx is done.
func (b *StartBarrier) Arrive(ctx context.Context) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived >= 2 {
		close(b.ready)
	}
	b.mu.Unlock()

	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
