package rtspcore

import (
	"bufio"
	"errors"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/kinoglaz/kgd/internal/config"
	"github.com/kinoglaz/kgd/pkg/base"
)

func TestFormatAndParseSessionIDRoundTrip(t *testing.T) {
	id := randSessionID()
	parsed, err := parseSessionID(formatSessionID(id))
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestParseSessionIDRejectsGarbage(t *testing.T) {
	_, err := parseSessionID("not-hex")
	require.Error(t, err)
}

func TestRandSessionIDNeverReturnsZero(t *testing.T) {
	for i := 0; i < 1000; i++ {
		require.NotZero(t, randSessionID())
	}
}

func TestDispatchRejectsRequireHeader(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{
		Method: base.Options,
		Header: base.Header{"Require": base.HeaderValue{"func"}},
	}
	_, err := c.dispatch(req)
	var me *ManagedError
	require.ErrorAs(t, err, &me)
	require.Equal(t, base.StatusOptionNotSupported, me.Code)
}

func TestDispatchRoutesKnownMethods(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{Method: base.Options, Header: base.Header{}}
	res, err := c.dispatch(req)
	require.NoError(t, err)
	require.Equal(t, base.StatusOK, res.StatusCode)
}

func TestDispatchUnknownMethodReturnsNotImplemented(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{Method: base.Record, Header: base.Header{}}
	_, err := c.dispatch(req)
	var me *ManagedError
	require.ErrorAs(t, err, &me)
}

func TestDispatchRecoversFromHandlerPanic(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{Method: base.Describe, URL: nil, Header: base.Header{}}

	res, err := c.dispatch(req)
	require.Nil(t, res)
	var me *ManagedError
	require.ErrorAs(t, err, &me)
	require.Equal(t, base.StatusInternalServerError, me.Code)
}

func TestErrorResponseTranslatesManagedError(t *testing.T) {
	res := errorResponse(ErrTrackNotFound(3))
	require.Equal(t, base.StatusNotFound, res.StatusCode)
}

func TestErrorResponseFallsBackToInternalServerErrorForGenericError(t *testing.T) {
	res := errorResponse(errors.New("boom"))
	require.Equal(t, base.StatusInternalServerError, res.StatusCode)
}

func TestResolveSessionWithoutHeaderReturnsNilNoError(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{Header: base.Header{}}
	sess, err := c.resolveSession(req)
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestResolveSessionUnknownIDReturnsSessionNotFound(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	req := &base.Request{Header: base.Header{"Session": base.HeaderValue{"cafef00d"}}}
	_, err := c.resolveSession(req)
	var me *ManagedError
	require.ErrorAs(t, err, &me)
	require.Equal(t, base.StatusSessionNotFound, me.Code)
}

func TestResolveSessionFindsRegisteredSession(t *testing.T) {
	c := newTestConn(t, t.TempDir())
	sess := NewSession(42, nil)
	c.addSession(sess)

	req := &base.Request{Header: base.Header{"Session": base.HeaderValue{formatSessionID(42)}}}
	got, err := c.resolveSession(req)
	require.NoError(t, err)
	require.Same(t, sess, got)

	c.removeSession(42)
	_, err = c.resolveSession(req)
	require.Error(t, err)
}

func TestCloseAllTearsDownEveryOwnedSession(t *testing.T) {
	dir := t.TempDir()
	writeRawH264(t, dir, "a.h264", 3)
	c := newTestConn(t, dir)

	sess, _ := setupOneTrackSession(t, c, dir)
	require.NotEmpty(t, sess.Tracks())

	c.closeAll()

	c.mu.Lock()
	n := len(c.sessions)
	c.mu.Unlock()
	require.Zero(t, n)
	require.Empty(t, sess.Tracks())
}

func TestNewConnAppliesKeepaliveAndServesRequestsOverRealTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	cfg := config.NewHolder(config.Default())
	cache := NewCache(true)

	go func() {
		tcpConn, err := ln.Accept()
		if err != nil {
			return
		}
		c := NewConn(tcpConn.(*net.TCPConn), cfg, cache, zerolog.Nop())
		c.Serve()
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	req := base.Request{
		Method: base.Options,
		URL:    mustURL(t, "rtsp://127.0.0.1/a.h264"),
		Header: base.Header{"CSeq": base.HeaderValue{"1"}},
	}
	bw := bufio.NewWriter(conn)
	require.NoError(t, req.Write(bw))

	br := bufio.NewReader(conn)
	var res base.Response
	require.NoError(t, res.Read(br))
	require.Equal(t, base.StatusOK, res.StatusCode)
}
