package rtpcodec

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pion/rtp"
)

const (
	mpaDefaultMaxPayloadSize = 1460
	mpaHeaderSize            = 4 // RFC 2250 §3: 16-bit MBZ + 16-bit fragment offset
)

// mpaPacketizer packetizes MPEG-1/2 audio frames per RFC 2250 §3: a fixed
// 4-byte header (MBZ, fragment offset) in front of the audio-frame bytes,
// fragmented across packets when a frame exceeds the payload size. No
// corpus example implements RFC 2250; this is hand-written directly
// against the RFC, in the same Init()/sequence-number-tracking shape as
// pkg/rtph264.Encoder for consistency with the other delegate.
type mpaPacketizer struct {
	payloadType    uint8
	payloadMaxSize int

	ssrc             uint32
	sequenceNumber   uint16
	initialTimestamp uint32
}

func newMPAPacketizer(payloadType uint8, maxPayloadSize int) *mpaPacketizer {
	if maxPayloadSize <= 0 {
		maxPayloadSize = mpaDefaultMaxPayloadSize
	}
	return &mpaPacketizer{payloadType: payloadType, payloadMaxSize: maxPayloadSize}
}

func (p *mpaPacketizer) Init() {
	p.ssrc = randUint32()
	p.sequenceNumber = uint16(randUint32())
	p.initialTimestamp = randUint32()
}

func (p *mpaPacketizer) PayloadType() uint8 {
	return p.payloadType
}

// ClockRate is fixed at 90kHz for MPEG audio per RFC 2250 §2, regardless of
// the stream's actual sampling frequency.
func (p *mpaPacketizer) ClockRate() uint32 {
	return 90000
}

func (p *mpaPacketizer) encodeTimestamp(pts time.Duration) uint32 {
	return p.initialTimestamp + uint32(pts.Seconds()*float64(p.ClockRate()))
}

// Packetize encodes frames (one complete MPEG audio frame per entry) into
// RTP packets, fragmenting any frame too large for one packet. The marker
// bit is set on the last packet of each frame, per RFC 2250 §3.
func (p *mpaPacketizer) Packetize(frames [][]byte, pts time.Duration) ([]*rtp.Packet, error) {
	maxFragment := p.payloadMaxSize - mpaHeaderSize
	if maxFragment <= 0 {
		return nil, fmt.Errorf("rtpcodec: payload size too small for MPEG audio header")
	}

	ts := p.encodeTimestamp(pts)
	var pkts []*rtp.Packet

	for _, frame := range frames {
		offset := 0
		for offset < len(frame) || len(frame) == 0 {
			end := offset + maxFragment
			last := end >= len(frame)
			if last {
				end = len(frame)
			}

			payload := make([]byte, mpaHeaderSize+end-offset)
			binary.BigEndian.PutUint16(payload[0:2], 0) // MBZ
			binary.BigEndian.PutUint16(payload[2:4], uint16(offset))
			copy(payload[mpaHeaderSize:], frame[offset:end])

			pkts = append(pkts, &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         last,
					PayloadType:    p.payloadType,
					SequenceNumber: p.sequenceNumber,
					Timestamp:      ts,
					SSRC:           p.ssrc,
				},
				Payload: payload,
			})
			p.sequenceNumber++

			if len(frame) == 0 {
				break
			}
			offset = end
		}
	}

	return pkts, nil
}

func randUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
