package demux

import (
	"io"
	"time"

	"github.com/kinoglaz/kgd/internal/rtpcodec"
)

// rawH264 demuxes a raw Annex-B .h264 elementary stream with no container
// timing, assigning frame-rate-derived presentation timestamps (spec
// §4.6: live-cast and bare elementary-stream sources carry no PTS of
// their own).
type rawH264 struct {
	aus [][][]byte
	pts []time.Duration
	pos int
}

// NewRawH264 reads all of r as a raw Annex-B H.264 elementary stream and
// assigns each access unit a timestamp spaced 1/frameRate apart.
func NewRawH264(r io.Reader, frameRate float64) (Demuxer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	aus := groupIntoAccessUnits(splitAnnexB(data))
	interval := time.Duration(float64(time.Second) / frameRate)

	d := &rawH264{}
	for i, au := range aus {
		d.aus = append(d.aus, au)
		d.pts = append(d.pts, time.Duration(i)*interval)
	}

	return d, nil
}

func (d *rawH264) Tracks() []Track {
	return []Track{{Index: 0, Kind: rtpcodec.KindH264}}
}

func (d *rawH264) Next() (Packet, error) {
	if d.pos >= len(d.aus) {
		return Packet{}, io.EOF
	}

	pkt := Packet{TrackIndex: 0, Units: d.aus[d.pos], PTS: d.pts[d.pos]}
	d.pos++
	return pkt, nil
}

func (d *rawH264) Close() error {
	return nil
}

// groupIntoAccessUnits folds a flat NAL unit stream into access units:
// parameter sets (SPS/PPS, types 7/8) prepend onto the following slice
// instead of starting their own unit, and a VCL slice (types 1/5) closes
// the access unit it belongs to. This is the common case for typical
// encoders; it does not implement the full first_mb_in_slice-based rule
// from the H.264 spec.
func groupIntoAccessUnits(nalus [][]byte) [][][]byte {
	var aus [][][]byte
	var cur [][]byte

	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		cur = append(cur, nalu)

		switch nalu[0] & 0x1f {
		case 1, 5: // non-IDR / IDR slice
			aus = append(aus, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		aus = append(aus, cur)
	}

	return aus
}

// rawMPEGAudio demuxes a raw MPEG-1 Layer I/II elementary audio stream by
// scanning for frame sync words and slicing out complete frames.
type rawMPEGAudio struct {
	frames [][]byte
	pts    []time.Duration
	pos    int
}

// NewRawMPEGAudio reads all of r as a raw MPEG audio elementary stream.
func NewRawMPEGAudio(r io.Reader) (Demuxer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	d := &rawMPEGAudio{}
	offset := 0
	frameIndex := 0

	for offset < len(data) {
		hdr, ok := parseMPAFrameHeader(data, offset)
		if !ok {
			offset++
			continue
		}
		if offset+hdr.frameLen > len(data) {
			break
		}

		d.frames = append(d.frames, data[offset:offset+hdr.frameLen])
		d.pts = append(d.pts, time.Duration(frameIndex)*hdr.duration())
		frameIndex++
		offset += hdr.frameLen
	}

	return d, nil
}

func (d *rawMPEGAudio) Tracks() []Track {
	return []Track{{Index: 0, Kind: rtpcodec.KindMPEGAudio}}
}

func (d *rawMPEGAudio) Next() (Packet, error) {
	if d.pos >= len(d.frames) {
		return Packet{}, io.EOF
	}

	pkt := Packet{TrackIndex: 0, Units: [][]byte{d.frames[d.pos]}, PTS: d.pts[d.pos]}
	d.pos++
	return pkt, nil
}

func (d *rawMPEGAudio) Close() error {
	return nil
}

type mpaFrameHeader struct {
	layer      int
	bitRate    int
	sampleRate int
	padding    int
	frameLen   int
	samples    int
}

func (h mpaFrameHeader) duration() time.Duration {
	return time.Duration(h.samples) * time.Second / time.Duration(h.sampleRate)
}

// MPEG-1 bitrate table (kbps), indexed [layer][bitrate index], layer 0 =
// Layer I, 1 = Layer II, 2 = Layer III.
var mpegBitrates = [3][16]int{
	{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0},
	{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0},
	{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0},
}

var mpegSampleRates = [3]int{44100, 48000, 32000}

// parseMPAFrameHeader parses the 4-byte MPEG-1 audio frame header at
// offset, per ISO/IEC 11172-3 §2.4.1.3. Only MPEG-1 (not MPEG-2 LSF) is
// handled, matching spec §8's worked example.
func parseMPAFrameHeader(data []byte, offset int) (mpaFrameHeader, bool) {
	if offset+4 > len(data) {
		return mpaFrameHeader{}, false
	}

	b0, b1, b2, b3 := data[offset], data[offset+1], data[offset+2], data[offset+3]

	if b0 != 0xff || b1&0xe0 != 0xe0 {
		return mpaFrameHeader{}, false
	}
	if b1&0x18 != 0x18 { // MPEG Audio version ID: 11 = MPEG-1
		return mpaFrameHeader{}, false
	}

	layerBits := (b1 >> 1) & 0x3
	var layer int
	switch layerBits {
	case 0x3:
		layer = 0 // Layer I
	case 0x2:
		layer = 1 // Layer II
	case 0x1:
		layer = 2 // Layer III
	default:
		return mpaFrameHeader{}, false
	}

	bitrateIdx := (b2 >> 4) & 0xf
	sampleRateIdx := (b2 >> 2) & 0x3
	padding := int((b2 >> 1) & 0x1)

	if bitrateIdx == 0 || bitrateIdx == 0xf || sampleRateIdx == 0x3 {
		return mpaFrameHeader{}, false
	}
	_ = b3

	bitRate := mpegBitrates[layer][bitrateIdx] * 1000
	sampleRate := mpegSampleRates[sampleRateIdx]

	var frameLen, samples int
	if layer == 0 {
		frameLen = (12*bitRate/sampleRate + padding) * 4
		samples = 384
	} else {
		frameLen = 144*bitRate/sampleRate + padding
		samples = 1152
	}
	if frameLen <= 0 {
		return mpaFrameHeader{}, false
	}

	return mpaFrameHeader{
		layer:      layer,
		bitRate:    bitRate,
		sampleRate: sampleRate,
		padding:    padding,
		frameLen:   frameLen,
		samples:    samples,
	}, true
}
