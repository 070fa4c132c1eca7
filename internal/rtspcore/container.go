package rtspcore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kinoglaz/kgd/internal/asyncprocessor"
	"github.com/kinoglaz/kgd/internal/config"
	"github.com/kinoglaz/kgd/internal/demux"
	"github.com/kinoglaz/kgd/internal/rtpcodec"
)

// loaderQueueSize is the background loader's ring buffer size; it must be
// a power of two (pkg/ringbuffer's requirement) and a container's loader
// only ever has one pending task queued at a time, so any such size works.
const loaderQueueSize = 8

// liveCastPrefix names the pseudo-filenames spec §4.6 reserves for
// capture-device live casts ("dev.video0", "dev.video1", ...).
const liveCastPrefix = "dev.video"

// Container is one resolved, loadable media resource: a fixed set of
// Media built either from an on-disk source (MPEG-TS mux, or raw
// elementary streams) or, for a live cast, continuously appended to by a
// re-encode pipeline (spec §3, §4.6).
type Container struct {
	name   string
	isLive bool

	mu        sync.Mutex
	media     []*Medium
	loadErr   error
	ready     bool
	readyCh   chan struct{}
	loopCount int
	looping   bool

	loader *asyncprocessor.Processor
	stopCh chan struct{}
}

// IsLiveCast reports whether this container is a capture-device live cast
// (spec §9's resolved Open Question: frame-release refcounting in Medium
// is only meaningful here).
func (c *Container) IsLiveCast() bool { return c.isLive }

// Media returns the container's fixed media list. Valid any time after
// construction: the list itself (tracks and payload types) is known
// up front, even though each Medium's frames may still be loading.
func (c *Container) Media() []*Medium {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Medium, len(c.media))
	copy(out, c.media)
	return out
}

// WaitReady blocks until track discovery has completed (the point at
// which SETUP/DESCRIBE can see the medium list and SDP can be built),
// or returns the discovery error.
func (c *Container) WaitReady() error {
	<-c.readyCh
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// OpenContainer resolves name under baseDir and builds a Container for
// it, dispatching by filename per spec §4.6: ".kls" is handled by the
// caller (playlist.go) before reaching here; "dev.video*" names a live
// capture device; anything else is opened as an on-disk source and
// demuxed by MPEG-TS or raw-elementary-stream rules keyed on extension.
func OpenContainer(baseDir, name string, cfg config.LiveCast) (*Container, error) {
	if strings.HasPrefix(name, liveCastPrefix) {
		return openLiveCast(name, cfg)
	}
	return openFileContainer(baseDir, name)
}

func openFileContainer(baseDir, name string) (*Container, error) {
	full := filepath.Join(baseDir, name)
	f, err := os.Open(full)
	if err != nil {
		return nil, ErrFileNotFound(name)
	}

	d, err := openDemuxer(f, name)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, ErrBadRequest("cannot demux %q: %v", name, err)
	}

	c := &Container{name: name, readyCh: make(chan struct{}), stopCh: make(chan struct{})}

	tracks := d.Tracks()
	media := make([]*Medium, len(tracks))
	for _, tr := range tracks {
		packetizer, err := rtpcodec.New(tr.Kind, defaultPayloadType(tr.Kind), 0)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, ErrInternal(err)
		}
		media[tr.Index] = NewMedium(tr.Index, packetizer.PayloadType(), packetizer.ClockRate(), false)
	}
	c.media = media
	close(c.readyCh)

	c.loader = &asyncprocessor.Processor{
		BufferSize: loaderQueueSize,
		OnError:    func(context.Context, error) {},
	}
	c.loader.Initialize()
	c.loader.Start()

	c.loader.Push(func() error {
		defer f.Close()
		defer d.Close() //nolint:errcheck
		return c.runFileLoader(d)
	})

	return c, nil
}

func (c *Container) runFileLoader(d demux.Demuxer) error {
	for {
		select {
		case <-c.stopCh:
			c.finalizeAll()
			return nil
		default:
		}

		pkt, err := d.Next()
		if err != nil {
			c.finalizeAll()
			return nil
		}

		m := c.media[pkt.TrackIndex]
		m.Append(Frame{
			PresentationTime: pkt.PTS.Seconds(),
			PayloadType:      m.PayloadType(),
			IsKey:            isKeyUnit(pkt.Units),
			Data:             flatten(pkt.Units),
		})
	}
}

// finalizeAll marks every medium as having a fixed frame count (spec
// §4.6's finalize_frame_count, invoked on graceful end-of-source or
// explicit Stop).
func (c *Container) finalizeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.media {
		m.Finalize()
	}
}

// Stop ends the background loader, finalizing every medium's frame
// count (spec §4.6's dtor-driven stop path).
func (c *Container) Stop() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	if c.loader != nil {
		c.loader.Close()
	}
}

func openDemuxer(f *os.File, name string) (demux.Demuxer, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ts":
		return demux.NewMPEGTS(f)
	case ".h264", ".264":
		return demux.NewRawH264(f, 25)
	case ".mp2", ".mpa", ".mp3":
		return demux.NewRawMPEGAudio(f)
	default:
		return demux.NewMPEGTS(f)
	}
}

func defaultPayloadType(kind rtpcodec.Kind) uint8 {
	switch kind {
	case rtpcodec.KindMPEGAudio:
		return 14
	default:
		return 96
	}
}

func isKeyUnit(units [][]byte) bool {
	for _, u := range units {
		if len(u) == 0 {
			continue
		}
		if naluType := u[0] & 0x1f; naluType == 5 || naluType == 7 || naluType == 8 {
			return true
		}
		return false
	}
	return false
}

func flatten(units [][]byte) []byte {
	if len(units) == 1 {
		return units[0]
	}
	var out []byte
	for _, u := range units {
		out = append(out, u...)
	}
	return out
}

// openLiveCast builds a Container whose media are continuously appended
// to by a re-encode pipeline (spec §4.6: fixed bitrate/GOP/B-frame
// settings from config, PTS-reordering). The actual capture/encode
// pipeline is platform-specific and out of scope here; this wires the
// Container side: a single live Medium per spec §8's worked single-track
// live example, fed by Insert as frames are produced.
func openLiveCast(name string, cfg config.LiveCast) (*Container, error) {
	c := &Container{
		name:    name,
		isLive:  true,
		readyCh: make(chan struct{}),
		stopCh:  make(chan struct{}),
	}

	packetizer, err := rtpcodec.New(rtpcodec.KindH264, 96, 0)
	if err != nil {
		return nil, ErrInternal(err)
	}
	m := NewMedium(0, packetizer.PayloadType(), packetizer.ClockRate(), true)
	c.media = []*Medium{m}
	close(c.readyCh)

	c.loader = &asyncprocessor.Processor{
		BufferSize: loaderQueueSize,
		OnError:    func(context.Context, error) {},
	}
	c.loader.Initialize()
	c.loader.Start()

	_ = cfg // GOP/bitrate/B-frame knobs are consumed by the encode pipeline wiring, not the Container itself

	return c, nil
}

// InsertFrame feeds one freshly encoded frame into a live cast's medium
// (spec §4.6). Returns an error if called on a non-live container.
func (c *Container) InsertFrame(mediumIndex int, f Frame) error {
	if !c.isLive {
		return fmt.Errorf("rtspcore: InsertFrame on a non-live container")
	}
	c.mu.Lock()
	if mediumIndex < 0 || mediumIndex >= len(c.media) {
		c.mu.Unlock()
		return ErrOutOfBounds
	}
	m := c.media[mediumIndex]
	c.mu.Unlock()

	m.Insert(f)
	return nil
}

// Name returns the resolved resource name this container was opened for.
func (c *Container) Name() string { return c.name }

// Duration returns this container's overall duration: the longest of its
// media's individual durations.
func (c *Container) Duration() float64 {
	var max float64
	for _, m := range c.Media() {
		if d := m.Duration(); d > max {
			max = d
		}
	}
	return max
}

// Append concatenates other's media onto this container's, track by
// track, shifting every appended frame's presentation time by this
// container's current duration (spec §3: "append(other)", and the
// playlist-loop worked example's "frames within each copy shifted by
// k*(dur(A)+dur(B))"). Both containers must have the same track count;
// blocks until other's media are fully loaded.
func (c *Container) Append(other *Container) error {
	ownMedia := c.Media()
	otherMedia := other.Media()
	if len(ownMedia) != len(otherMedia) {
		return ErrBadRequest("cannot append container with %d tracks onto one with %d", len(otherMedia), len(ownMedia))
	}

	shift := c.Duration()
	for i, m := range otherMedia {
		m.WaitFinalized()
		for _, f := range m.AllFrames() {
			f.PresentationTime += shift
			ownMedia[i].Append(f)
		}
	}
	return nil
}

// LoopEachMedium records an n-repetition loop request (0 = infinite) for
// every medium, backing `.kls` playlists' loop header (spec §3's
// "loop(n)"). It only records the count, readable through LoopCount: no
// frames are duplicated here, and the FrameBuffer built for playback
// walks each medium once with a default Iterator, so playback does not
// repeat.
func (c *Container) LoopEachMedium(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loopCount = n
	c.looping = true
}

// LoopCount reports the loop repetition count set by LoopEachMedium (0 =
// infinite), and whether looping was requested at all.
func (c *Container) LoopCount() (count int, looping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loopCount, c.looping
}

// ResolveContainer resolves name to a Container, dispatching `.kls`
// playlists to the playlist grammar (spec §4.6) and everything else
// through the description cache's load/share path.
func ResolveContainer(cache *Cache, baseDir, name string, lc config.LiveCast) (*Container, error) {
	if strings.ToLower(filepath.Ext(name)) != ".kls" {
		return cache.Load(baseDir, name, lc)
	}

	f, err := os.Open(filepath.Join(baseDir, name))
	if err != nil {
		return nil, ErrFileNotFound(name)
	}
	defer f.Close()

	pl, err := ParsePlaylist(f)
	if err != nil {
		return nil, err
	}
	return pl.BuildContainer(cache, baseDir, lc)
}
