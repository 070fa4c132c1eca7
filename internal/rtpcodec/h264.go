package rtpcodec

import (
	"time"

	"github.com/pion/rtp"

	"github.com/kinoglaz/kgd/pkg/rtph264"
)

// h264Packetizer adapts pkg/rtph264.Encoder to the Packetizer interface.
type h264Packetizer struct {
	enc         rtph264.Encoder
	payloadType uint8
}

func newH264Packetizer(payloadType uint8, maxPayloadSize int) *h264Packetizer {
	p := &h264Packetizer{payloadType: payloadType}
	p.enc.PayloadType = payloadType
	if maxPayloadSize > 0 {
		p.enc.PayloadMaxSize = maxPayloadSize
	}
	return p
}

func (p *h264Packetizer) Init() {
	p.enc.Init()
}

func (p *h264Packetizer) PayloadType() uint8 {
	return p.payloadType
}

// ClockRate is fixed at 90kHz: H.264 RTP timestamps always use this rate
// regardless of frame rate (RFC 6184 §5.1).
func (p *h264Packetizer) ClockRate() uint32 {
	return 90000
}

func (p *h264Packetizer) Packetize(units [][]byte, pts time.Duration) ([]*rtp.Packet, error) {
	return p.enc.Encode(units, pts)
}
