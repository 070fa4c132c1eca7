package rtspcore

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinoglaz/kgd/pkg/base"
)

func newTestTrack(t *testing.T, index int, frameCount int) *Track {
	t.Helper()
	s, _ := newTestRTPSession(t, finalizedMedium(frameCount))
	s.Start()
	return &Track{Index: index, RTP: s, Delivery: base.StreamDeliveryUnicast, Protocol: base.StreamProtocolUDP}
}

func newPipeConn(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestSessionTrackLookupAndRegistration(t *testing.T) {
	sess := NewSession(1, nil)
	tr := newTestTrack(t, 0, 3)
	sess.AddTrack(tr)

	require.Same(t, tr, sess.Track(0))
	require.Nil(t, sess.Track(1))
	require.Len(t, sess.Tracks(), 1)
}

func TestSessionPlayOnUnknownTrackReturnsTrackNotFound(t *testing.T) {
	sess := NewSession(1, nil)
	_, err := sess.Play(5, PlayRequest{})
	var me *ManagedError
	require.ErrorAs(t, err, &me)
	require.Equal(t, base.StatusNotFound, me.Code)
}

func TestSessionPlayPerTrackOnlyAffectsThatTrack(t *testing.T) {
	sess := NewSession(1, nil)
	tr0 := newTestTrack(t, 0, 5)
	tr1 := newTestTrack(t, 1, 5)
	sess.AddTrack(tr0)
	sess.AddTrack(tr1)
	defer tr0.RTP.Teardown()
	defer tr1.RTP.Teardown()

	results, err := sess.Play(0, PlayRequest{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 0, results[0].TrackIndex)
	require.True(t, sess.HasPlayed())
}

func TestSessionPlayAggregateClampsEveryTrackToSharedMinimumFrom(t *testing.T) {
	sess := NewSession(1, nil)
	tr0 := newTestTrack(t, 0, 10)
	tr1 := newTestTrack(t, 1, 10)
	sess.AddTrack(tr0)
	sess.AddTrack(tr1)
	defer tr0.RTP.Teardown()
	defer tr1.RTP.Teardown()

	// seed track 1 as already played further ahead; the aggregate request
	// below names From 0 explicitly, so Eval resolves both tracks to 0.
	tr1.RTP.Play(tr1.RTP.Eval(PlayRequest{HasRange: true, From: 0.2}))

	results, err := sess.Play(-1, PlayRequest{HasRange: true, From: 0})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSessionTeardownAggregateClearsAllTracksAndReleasesInterleaveBase(t *testing.T) {
	sess := NewSession(1, nil)
	tr0 := newTestTrack(t, 0, 2)
	tr0.Interleaved = true
	tr0.InterleaveBase = 4
	sess.AddTrack(tr0)

	server, _ := newPipeConn(t)
	mux := NewMultiplexer(server)
	mux.chans[4] = newInterleaveChannel(mux, 4)
	mux.chans[5] = newInterleaveChannel(mux, 5)

	released := sess.Teardown(-1, mux)
	require.Contains(t, released, 4)
	require.Nil(t, sess.Track(0))
	require.Empty(t, sess.Tracks())
}

func TestSessionPauseUnpauseDispatchToTargetedTrack(t *testing.T) {
	sess := NewSession(1, nil)
	tr0 := newTestTrack(t, 0, 5)
	sess.AddTrack(tr0)
	defer tr0.RTP.Teardown()

	_, err := sess.Play(0, PlayRequest{})
	require.NoError(t, err)

	require.NoError(t, sess.Pause(0))
	tr0.RTP.mu.Lock()
	paused := tr0.RTP.state.Paused
	tr0.RTP.mu.Unlock()
	require.True(t, paused)

	require.NoError(t, sess.Unpause(0, 1.0))
	tr0.RTP.mu.Lock()
	paused = tr0.RTP.state.Paused
	tr0.RTP.mu.Unlock()
	require.False(t, paused)
}
