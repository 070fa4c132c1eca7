package rtspcore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kinoglaz/kgd/internal/rtpcodec"
	"github.com/kinoglaz/kgd/pkg/base"
	"github.com/kinoglaz/kgd/pkg/headers"
)

// publicMethods is the OPTIONS response's Public: header value (spec §6:
// "Methods advertised: OPTIONS,DESCRIBE,SETUP,PLAY,PAUSE,TEARDOWN").
const publicMethods = "OPTIONS,DESCRIBE,SETUP,PLAY,PAUSE,TEARDOWN"

// splitResourceURL separates a request URL's file identifier from an
// optional trailing `/tk=<n>` track-control component (spec §4.9, the
// counterpart to BuildSDP's `a=control:tk=<index>`).
func splitResourceURL(u *base.URL) (file string, track int, hasTrack bool) {
	p := strings.TrimPrefix(u.Path, "/")
	if idx := strings.LastIndex(p, "/tk="); idx >= 0 {
		if n, err := strconv.Atoi(p[idx+len("/tk="):]); err == nil {
			return p[:idx], n, true
		}
	}
	return p, 0, false
}

func checkAccept(req *base.Request) error {
	v, ok := req.Header["Accept"]
	if !ok {
		return nil
	}
	for _, val := range v {
		for _, mime := range strings.Split(val, ",") {
			if strings.TrimSpace(mime) == "application/sdp" {
				return nil
			}
		}
	}
	return ErrNotImplemented("Accept does not include application/sdp")
}

func kindForPayloadType(pt uint8) rtpcodec.Kind {
	if pt == 14 {
		return rtpcodec.KindMPEGAudio
	}
	return rtpcodec.KindH264
}

func codecNameFor(kind rtpcodec.Kind) string {
	if kind == rtpcodec.KindMPEGAudio {
		return "MPA"
	}
	return "H264"
}

// clampBlocksize restricts a client-requested Blocksize to [256, serverMTU]
// (SPEC_FULL §4.9's supplement), leaving the configured MTU as the ceiling
// no per-session override can exceed.
func clampBlocksize(requested, serverMTU int) int {
	if requested < 256 {
		return 256
	}
	if requested > serverMTU {
		return serverMTU
	}
	return requested
}

// handleOptions replies the fixed method list and records the
// connection's user-agent for later timeline construction.
func (c *Conn) handleOptions(req *base.Request) (*base.Response, error) {
	if ua, ok := req.Header["User-Agent"]; ok && len(ua) > 0 {
		c.mu.Lock()
		c.userAgent = headers.ParseUserAgent(ua[0])
		c.mu.Unlock()
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Public":         base.HeaderValue{publicMethods},
			"Accept-Charset": base.HeaderValue{"ISO-8859-1;q=1"},
		},
	}, nil
}

// handleDescribe loads the resource's container and renders its SDP
// document (spec §4.10, §6).
func (c *Conn) handleDescribe(req *base.Request) (*base.Response, error) {
	if err := checkAccept(req); err != nil {
		return nil, err
	}

	file, _, _ := splitResourceURL(req.URL)
	if file == "" {
		return nil, ErrBadRequest("empty resource path")
	}

	cfg := c.cfg.Load()
	container, err := ResolveContainer(c.cache, cfg.BaseDir, file, cfg.LiveCast)
	if err != nil {
		return nil, err
	}
	if err := container.WaitReady(); err != nil {
		c.cache.Release(cfg.BaseDir, file, container)
		return nil, ErrInternal(err)
	}

	media := container.Media()
	descriptors := make([]MediumDescriptor, len(media))
	for i, m := range media {
		kind := kindForPayloadType(m.PayloadType())
		descriptors[i] = MediumDescriptor{
			Kind:        kind,
			PayloadType: m.PayloadType(),
			ClockRate:   m.ClockRate(),
			CodecName:   codecNameFor(kind),
			TrackIndex:  m.Index(),
		}
	}

	body, err := BuildSDP(
		req.URL.Hostname(),
		file,
		formatSessionID(randSessionID()),
		container.Duration(),
		container.IsLiveCast(),
		cfg.AggregateControl,
		DaemonName,
		descriptors,
	)
	if err != nil {
		c.cache.Release(cfg.BaseDir, file, container)
		return nil, ErrInternal(err)
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Content-Type": base.HeaderValue{"application/sdp"},
			"Content-Base": base.HeaderValue{req.URL.String()},
		},
		Body: body,
	}, nil
}

// handleSetup resolves or creates an RTSP session, then creates an RTP
// session bound to the requested transport for the named track (spec
// §4.10).
func (c *Conn) handleSetup(req *base.Request) (*base.Response, error) {
	file, track, hasTrack := splitResourceURL(req.URL)
	if !hasTrack {
		return nil, ErrBadRequest("SETUP requires a track control component")
	}

	transp, ok := headers.ReadFirstAcceptable(req.Header["Transport"])
	if !ok {
		return nil, ErrUnsupportedTransport()
	}

	sess, err := c.resolveSession(req)
	if err != nil {
		return nil, err
	}

	cfg := c.cfg.Load()
	created := false
	if sess == nil {
		container, err := ResolveContainer(c.cache, cfg.BaseDir, file, cfg.LiveCast)
		if err != nil {
			return nil, err
		}
		if err := container.WaitReady(); err != nil {
			c.cache.Release(cfg.BaseDir, file, container)
			return nil, ErrInternal(err)
		}
		sess = NewSession(randSessionID(), container)
		created = true
	}

	if sess.Track(track) != nil {
		return nil, ErrBadRequest("track %d already set up", track)
	}

	media := sess.Container.Media()
	var medium *Medium
	for _, m := range media {
		if m.Index() == track {
			medium = m
			break
		}
	}
	if medium == nil {
		if created {
			c.cache.Release(cfg.BaseDir, file, sess.Container)
		}
		return nil, ErrTrackNotFound(track)
	}

	mtu := cfg.MTU
	if v, ok := req.Header["Blocksize"]; ok {
		var bs headers.Blocksize
		if err := bs.Read(v); err != nil {
			return nil, ErrBadRequest("malformed Blocksize: %v", err)
		}
		mtu = clampBlocksize(bs.Value, cfg.MTU)
	}

	kind := kindForPayloadType(medium.PayloadType())
	packetizer, err := rtpcodec.New(kind, medium.PayloadType(), mtu)
	if err != nil {
		return nil, ErrInternal(err)
	}

	ssrc := randUint32NonZero()
	if transp.SSRC != nil {
		ssrc = *transp.SSRC
	}

	c.mu.Lock()
	ua := c.userAgent
	c.mu.Unlock()

	fb := NewFrameBuffer(medium, kind != rtpcodec.KindMPEGAudio)

	replyTransport := headers.Transport{Delivery: transp.Delivery, SSRC: &ssrc}

	var rtpCh, rtcpCh Channel
	var interleaveBase int
	interleaved := transp.Delivery == headers.TransportDeliveryShared

	if interleaved {
		rc, cc, err := c.mux.Allocate()
		if err != nil {
			return nil, ErrInternal(err)
		}
		rtpCh, rtcpCh = rc, cc
		interleaveBase = transp.Interleaved[0]
		replyTransport.Interleaved = transp.Interleaved
	} else {
		rtpConn, rtcpConn, serverPorts, err := dialUDPPair(req.URL.Hostname(), *transp.ClientPort)
		if err != nil {
			return nil, ErrInternal(err)
		}
		rtpCh = NewUDPChannel(rtpConn, serverPorts[0], transp.ClientPort[0])
		rtcpCh = NewUDPChannel(rtcpConn, serverPorts[1], transp.ClientPort[1])
		replyTransport.ClientPort = transp.ClientPort
		replyTransport.ServerPort = &serverPorts
	}

	rtp := NewRTPSession(fb, packetizer, rtpCh, rtcpCh, ua, ssrc, req.URL.Hostname())
	rtp.Start()

	sess.AddTrack(&Track{
		Index:          track,
		RTP:            rtp,
		Delivery:       base.StreamDeliveryUnicast,
		Interleaved:    interleaved,
		InterleaveBase: interleaveBase,
		ClientPort:     transp.ClientPort,
		ServerPort:     replyTransport.ServerPort,
	})

	if created {
		c.addSession(sess)
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Session":   base.HeaderValue{formatSessionID(sess.ID)},
			"Transport": base.HeaderValue(replyTransport.Write()),
		},
	}, nil
}

// parsePlayRequest reads the Range/Scale headers a PLAY request may
// carry, per spec §4.9. rangeTo is the parsed Range's upper bound, used
// only to check for an inverted range relative to the Scale sign.
func parsePlayRequest(req *base.Request) (rq PlayRequest, rangeTo *float64, err error) {
	if v, ok := req.Header["Range"]; ok {
		var r headers.Range
		if err := r.Read(v); err != nil {
			return rq, nil, ErrBadRequest("malformed Range: %v", err)
		}
		rq.From = r.From
		rq.HasRange = true
		rangeTo = r.To
	}

	if v, ok := req.Header["Scale"]; ok {
		var sc headers.Scale
		if err := sc.Read(v); err != nil {
			return rq, nil, ErrBadRequest("malformed Scale: %v", err)
		}
		rq.Speed = sc.Value
		rq.HasScale = true
	} else {
		rq.Speed = 1.0
	}

	return rq, rangeTo, nil
}

// handlePlay validates the request per spec §4.10's rules, then runs the
// aggregate or per-track play sequence and renders the merged Range/
// Scale/RTP-Info reply.
func (c *Conn) handlePlay(req *base.Request) (*base.Response, error) {
	sess, err := c.resolveSession(req)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrBadRequest("Session header required")
	}

	rq, rangeTo, err := parsePlayRequest(req)
	if err != nil {
		return nil, err
	}

	isLive := sess.Container.IsLiveCast()

	if !isLive {
		if rq.HasScale && rq.Speed == 0.0 {
			return nil, ErrBadRequest("Scale 0.0 is not a valid playback speed")
		}
		if rq.HasRange && rangeTo != nil {
			forward := rq.Speed >= 0
			inverted := forward && *rangeTo < rq.From || !forward && *rangeTo > rq.From
			if inverted {
				return nil, ErrBadRequest("Range is inverted relative to Scale")
			}
		}
	}

	if isLive && sess.HasPlayed() {
		// spec §4.10: a live cast that has already played suppresses
		// further seek/scale, acting as a plain unpause.
		_, track, hasTrack := splitResourceURL(req.URL)
		idx := -1
		if hasTrack {
			idx = track
		}
		if err := sess.Unpause(idx, 1.0); err != nil {
			return nil, err
		}
		return &base.Response{StatusCode: base.StatusOK, Header: base.Header{
			"Session": base.HeaderValue{formatSessionID(sess.ID)},
		}}, nil
	}

	_, track, hasTrack := splitResourceURL(req.URL)
	idx := -1
	if hasTrack {
		idx = track
	}

	results, err := sess.Play(idx, rq)
	if err != nil {
		return nil, err
	}

	info := make(headers.RTPInfo, 0, len(results))
	for _, r := range results {
		info = append(info, headers.RTPInfoEntry{
			URL:     fmt.Sprintf("%s/tk=%d", req.URL.String(), r.TrackIndex),
			Seq:     r.StartSeq,
			RTPTime: r.RTPTime,
		})
	}

	rng := headers.Range{From: rq.From}
	scale := headers.Scale{Value: rq.Speed}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header: base.Header{
			"Session":  base.HeaderValue{formatSessionID(sess.ID)},
			"Range":    base.HeaderValue(rng.Write()),
			"Scale":    base.HeaderValue(scale.Write()),
			"RTP-Info": base.HeaderValue(info.Write()),
		},
	}, nil
}

// handlePause pauses the aggregate or a single named track.
func (c *Conn) handlePause(req *base.Request) (*base.Response, error) {
	sess, err := c.resolveSession(req)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrBadRequest("Session header required")
	}

	_, track, hasTrack := splitResourceURL(req.URL)
	idx := -1
	if hasTrack {
		idx = track
	}

	if err := sess.Pause(idx); err != nil {
		return nil, err
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header:     base.Header{"Session": base.HeaderValue{formatSessionID(sess.ID)}},
	}, nil
}

// handleTeardown tears down the aggregate session (removing it from the
// connection) or a single track, releasing any interleave ports.
func (c *Conn) handleTeardown(req *base.Request) (*base.Response, error) {
	sess, err := c.resolveSession(req)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrBadRequest("Session header required")
	}

	_, track, hasTrack := splitResourceURL(req.URL)
	idx := -1
	if hasTrack {
		idx = track
	}

	sess.Teardown(idx, c.mux)

	if idx < 0 {
		c.removeSession(sess.ID)
		cfg := c.cfg.Load()
		c.cache.Release(cfg.BaseDir, sess.Container.Name(), sess.Container)
	}

	return &base.Response{
		StatusCode: base.StatusOK,
		Header:     base.Header{"Session": base.HeaderValue{formatSessionID(sess.ID)}},
	}, nil
}
