package rtspcore

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kinoglaz/kgd/internal/config"
	"github.com/kinoglaz/kgd/pkg/base"
	"github.com/kinoglaz/kgd/pkg/bytecounter"
	"github.com/kinoglaz/kgd/pkg/headers"
)

// countingConn wraps a net.Conn's Read/Write through a ByteCounter while
// delegating every other net.Conn method (Close, deadlines, addresses)
// straight through, so the connection's byte stats cover both the
// buffered request reader and the interleaving multiplexer's writer
// without disturbing either one's notion of the underlying socket.
type countingConn struct {
	net.Conn
	bc *bytecounter.ByteCounter
}

func (c *countingConn) Read(p []byte) (int, error)  { return c.bc.Read(p) }
func (c *countingConn) Write(p []byte) (int, error) { return c.bc.Write(p) }

// formatSessionID renders a session id the way it was handed out, so
// parseSessionID can invert it.
func formatSessionID(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

func parseSessionID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// maxInterleavedPayload is the largest payload an interleaved `$` record
// can carry: the framing's length field is a u16be (spec §6).
const maxInterleavedPayload = 65535

// DaemonName is the Server: header value and SDP a=tool: value every
// response and session description carries.
const DaemonName = "kgd/1"

// Conn is one RTSP/TCP connection: its listen loop, the interleaving
// multiplexer writes ultimately go through, and the set of RTSP sessions
// it owns (spec §4.10, §9: "a connection owns its RTSP sessions").
type Conn struct {
	id     string
	logger zerolog.Logger
	cfg    *config.Holder
	cache  *Cache

	tcpConn *net.TCPConn
	bc      *bytecounter.ByteCounter
	mux     *Multiplexer
	br      *bufio.Reader

	mu        sync.Mutex
	userAgent headers.UserAgent
	sessions  map[uint32]*Session
}

// NewConn wraps an accepted TCP connection for the RTSP listen loop,
// applying the keepalive policy spec §4.1 requires. Its id is a random
// UUID used purely as a diagnostic label in structured log lines, not a
// protocol value.
func NewConn(tcpConn *net.TCPConn, cfg *config.Holder, cache *Cache, logger zerolog.Logger) *Conn {
	applyTCPKeepalive(tcpConn)

	id := uuid.NewString()
	bc := bytecounter.New(tcpConn, nil, nil, nil, nil)
	cc := &countingConn{Conn: tcpConn, bc: bc}
	c := &Conn{
		id:       id,
		logger:   logger.With().Str("conn", id).Logger(),
		cfg:      cfg,
		cache:    cache,
		tcpConn:  tcpConn,
		bc:       bc,
		mux:      NewMultiplexer(cc),
		sessions: map[uint32]*Session{},
	}
	c.br = bufio.NewReader(cc)
	return c
}

// Serve runs the connection's listen loop until the peer disconnects or a
// fatal transport error occurs (spec §4.10): each iteration reads either
// a whole RTSP request or one interleaved `$` record and dispatches it.
// It always tears down every RTSP session it owns before returning.
func (c *Conn) Serve() {
	defer c.closeAll()

	var frame base.InterleavedFrame
	var req base.Request

	for {
		obj, err := base.ReadInterleavedFrameOrRequest(&frame, maxInterleavedPayload, &req, c.br)
		if err != nil {
			return
		}

		switch v := obj.(type) {
		case *base.InterleavedFrame:
			fr := *v
			c.mux.Dispatch(&fr)
		case *base.Request:
			r := *v
			c.handleRequest(&r)
		}
	}
}

func (c *Conn) handleRequest(req *base.Request) {
	res, err := c.dispatch(req)
	if err != nil {
		res = errorResponse(err)
	}
	if res.Header == nil {
		res.Header = base.Header{}
	}
	if cseq, ok := req.Header["CSeq"]; ok {
		res.Header["CSeq"] = cseq
	}
	res.Header["Server"] = base.HeaderValue{DaemonName}

	var buf bufferedWriter
	bw := bufio.NewWriter(&buf)
	if err := res.Write(bw); err != nil {
		c.logger.Warn().Err(err).Msg("failed to serialize response")
		return
	}
	if err := c.mux.WriteRaw(buf.data); err != nil {
		c.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// dispatch recovers from any panic raised while handling req (spec §7:
// "any exception thrown during method handling is caught by the
// connection's reply path and translated to an error reply") and routes
// it to the method-keyed handler.
func (c *Conn) dispatch(req *base.Request) (res *base.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = ErrInternal(nil)
		}
	}()

	if _, ok := req.Header["Require"]; ok {
		return nil, ErrOptionNotSupported()
	}

	switch req.Method {
	case base.Options:
		return c.handleOptions(req)
	case base.Describe:
		return c.handleDescribe(req)
	case base.Setup:
		return c.handleSetup(req)
	case base.Play:
		return c.handlePlay(req)
	case base.Pause:
		return c.handlePause(req)
	case base.Teardown:
		return c.handleTeardown(req)
	default:
		return nil, ErrNotImplemented("method %s not supported", req.Method)
	}
}

func errorResponse(err error) *base.Response {
	if me, ok := err.(*ManagedError); ok {
		return &base.Response{StatusCode: me.Code, StatusMessage: me.Message}
	}
	return &base.Response{StatusCode: base.StatusInternalServerError}
}

// closeAll tears down every RTSP session this connection owns and closes
// the multiplexer, releasing their containers and interleave ports.
func (c *Conn) closeAll() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = map[uint32]*Session{}
	c.mu.Unlock()

	for _, s := range sessions {
		s.Teardown(-1, c.mux)
		c.cache.Release(c.cfg.Load().BaseDir, s.Container.Name(), s.Container)
	}

	c.mux.Close() //nolint:errcheck

	c.logger.Debug().
		Uint64("bytes_received", c.bc.BytesReceived()).
		Uint64("bytes_sent", c.bc.BytesSent()).
		Msg("connection closed")
}

// resolveSession returns the session named by a Session header, or nil
// with no error when the request carries no Session header (the caller
// decides whether to create one).
func (c *Conn) resolveSession(req *base.Request) (*Session, error) {
	v, ok := req.Header["Session"]
	if !ok {
		return nil, nil
	}
	var sh headers.Session
	if err := sh.Read(v); err != nil {
		return nil, ErrBadRequest("malformed Session header: %v", err)
	}
	id, err := parseSessionID(sh.ID)
	if err != nil {
		return nil, ErrBadRequest("malformed session id")
	}

	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound(id)
	}
	return s, nil
}

func (c *Conn) addSession(s *Session) {
	c.mu.Lock()
	c.sessions[s.ID] = s
	c.mu.Unlock()
}

func (c *Conn) removeSession(id uint32) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

// randSessionID returns a random, non-zero session id (spec §4.10).
func randSessionID() uint32 {
	for {
		if v := randUint32NonZero(); v != 0 {
			return v
		}
	}
}

// bufferedWriter is an io.Writer growing a byte slice, used to serialize
// a Response before handing it to the multiplexer's own mutex-guarded
// write path.
type bufferedWriter struct {
	data []byte
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}
