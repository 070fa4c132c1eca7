package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astits"

	"github.com/kinoglaz/kgd/internal/rtpcodec"
)

const mpegtsClockRate = 90000

// mpegTS demuxes a MPEG-TS source (file or capture device) via
// go-astits, grounded on examples/server-h264-from-disk/main.go's
// read-PES-then-encode loop, with mediacommon's mpegts.Reader wrapper
// (which this repo does not depend on) replaced by direct use of astits'
// own PMT/PES data.
type mpegTS struct {
	cancel context.CancelFunc
	dmx    *astits.Demuxer

	tracks     []Track
	pidToTrack map[uint16]int
}

// NewMPEGTS opens r as a MPEG-TS source and discovers its elementary
// streams by reading up to the first PMT.
func NewMPEGTS(r io.Reader) (Demuxer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &mpegTS{
		cancel:     cancel,
		dmx:        astits.NewDemuxer(ctx, r),
		pidToTrack: map[uint16]int{},
	}

	if err := d.discoverTracks(); err != nil {
		cancel()
		return nil, err
	}

	return d, nil
}

func (d *mpegTS) discoverTracks() error {
	for {
		data, err := d.dmx.NextData()
		if err != nil {
			return fmt.Errorf("demux: reading PMT: %w", err)
		}
		if data.PMT == nil {
			continue
		}

		for _, es := range data.PMT.ElementaryStreams {
			kind, ok := streamKind(es.StreamType)
			if !ok {
				continue
			}

			idx := len(d.tracks)
			d.tracks = append(d.tracks, Track{Index: idx, Kind: kind})
			d.pidToTrack[es.ElementaryPID] = idx
		}

		return nil
	}
}

// MPEG-TS stream_type values (ISO/IEC 13818-1 Table 2-34), named locally
// rather than guessed off astits' own constant names since the H.264 and
// MPEG-audio ones used here are the only two this server packetizes.
const (
	streamTypeMPEG1Audio = 0x03
	streamTypeMPEG2Audio = 0x04
	streamTypeH264       = 0x1b
)

func streamKind(st astits.StreamType) (rtpcodec.Kind, bool) {
	switch uint8(st) {
	case streamTypeH264:
		return rtpcodec.KindH264, true
	case streamTypeMPEG1Audio, streamTypeMPEG2Audio:
		return rtpcodec.KindMPEGAudio, true
	default:
		return 0, false
	}
}

func (d *mpegTS) Tracks() []Track {
	return d.tracks
}

func (d *mpegTS) Next() (Packet, error) {
	for {
		data, err := d.dmx.NextData()
		if err != nil {
			if errors.Is(err, astits.ErrNoMorePackets) {
				return Packet{}, io.EOF
			}
			return Packet{}, err
		}
		if data.PES == nil {
			continue
		}

		idx, ok := d.pidToTrack[uint16(data.PID)]
		if !ok {
			continue
		}

		track := d.tracks[idx]
		var units [][]byte
		if track.Kind == rtpcodec.KindH264 {
			units = splitAnnexB(data.PES.Data)
		} else {
			units = [][]byte{data.PES.Data}
		}
		if len(units) == 0 {
			continue
		}

		return Packet{
			TrackIndex: idx,
			Units:      units,
			PTS:        pesTimestamp(data.PES),
		}, nil
	}
}

func (d *mpegTS) Close() error {
	d.cancel()
	return nil
}

func pesTimestamp(pes *astits.PESData) time.Duration {
	if pes.Header == nil || pes.Header.OptionalHeader == nil || pes.Header.OptionalHeader.PTS == nil {
		return 0
	}
	return time.Duration(pes.Header.OptionalHeader.PTS.Base) * time.Second / mpegtsClockRate
}

// splitAnnexB splits a PES payload containing one or more Annex-B encoded
// NAL units (each prefixed by a 0x000001 or 0x00000001 start code) into
// individual NAL units, start codes stripped.
func splitAnnexB(data []byte) [][]byte {
	var units [][]byte
	start := -1

	for i := 0; i < len(data); {
		if n, ok := startCodeAt(data, i); ok {
			if start >= 0 {
				units = append(units, data[start:i])
			}
			i += n
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(data) {
		units = append(units, data[start:])
	}

	return units
}

func startCodeAt(data []byte, i int) (int, bool) {
	if i+4 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 0 && data[i+3] == 1 {
		return 4, true
	}
	if i+3 <= len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
		return 3, true
	}
	return 0, false
}
