// Package rtpcodec provides the per-codec RTP packetization delegate spec
// §4.7 step 5 hands access units to, keyed by payload type. Packetization
// itself is out of scope for the core send loop: it is a black box this
// package wraps behind one small interface, the way the teacher keeps
// pkg/rtph264 a self-contained, stateless-except-sequence-number encoder.
package rtpcodec

import (
	"fmt"
	"time"

	"github.com/pion/rtp"
)

// Packetizer turns one access unit (one or more NAL units for H.264, one
// frame for MPEG audio) into the RTP packets that carry it, tracking its own
// sequence number and SSRC across calls.
type Packetizer interface {
	// Init assigns defaults (random SSRC/sequence number/timestamp unless
	// already set) and must be called once before Packetize.
	Init()

	// PayloadType returns the RTP payload type this packetizer stamps on
	// every packet it emits.
	PayloadType() uint8

	// ClockRate returns the RTP timestamp clock rate this codec uses,
	// fixed per spec §8 regardless of the media's actual sample rate.
	ClockRate() uint32

	// Packetize encodes units (NALUs for H.264, one elementary frame per
	// slice for MPEG audio) presented at pts into RTP packets.
	Packetize(units [][]byte, pts time.Duration) ([]*rtp.Packet, error)
}

// Kind names a supported codec family.
type Kind int

// Supported codec kinds, matching spec §8's worked example: dynamic
// payload type 96 for H.264 video, static payload type 14 for MPEG audio.
const (
	KindH264 Kind = iota
	KindMPEGAudio
)

// New constructs a Packetizer for kind, stamping payloadType on every
// packet it emits. maxPayloadSize bounds each packet's RTP payload
// (spec §9's configurable MTU, minus IP/UDP/RTP headers); 0 picks each
// delegate's own default.
func New(kind Kind, payloadType uint8, maxPayloadSize int) (Packetizer, error) {
	switch kind {
	case KindH264:
		return newH264Packetizer(payloadType, maxPayloadSize), nil
	case KindMPEGAudio:
		return newMPAPacketizer(payloadType, maxPayloadSize), nil
	default:
		return nil, fmt.Errorf("rtpcodec: unsupported kind %d", kind)
	}
}
