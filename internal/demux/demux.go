// Package demux implements the demuxer abstraction a Container delegates
// to for turning a backing source into timestamped access units (spec
// §4.6): MPEG-TS files and devices via github.com/asticode/go-astits, and
// raw elementary streams (.h264, .mp2) for sources that carry no container.
package demux

import (
	"time"

	"github.com/kinoglaz/kgd/internal/rtpcodec"
)

// Track describes one elementary stream a Demuxer found.
type Track struct {
	Index int
	Kind  rtpcodec.Kind
}

// Packet is one demuxed access unit: one or more NAL units for H.264, one
// elementary frame for MPEG audio.
type Packet struct {
	TrackIndex int
	Units      [][]byte
	PTS        time.Duration
}

// Demuxer is the black box spec §4.6 hands a backing source to. Next
// returns packets across all tracks in the order they occur in the
// source; callers distinguish tracks via Packet.TrackIndex.
type Demuxer interface {
	Tracks() []Track

	// Next returns the next Packet, or io.EOF once the source is
	// exhausted.
	Next() (Packet, error)

	Close() error
}
