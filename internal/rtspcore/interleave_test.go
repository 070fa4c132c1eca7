package rtspcore

import (
	"bufio"
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kinoglaz/kgd/pkg/base"
)

func TestInterleavedFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := base.InterleavedFrame{Channel: 4, Payload: []byte("hello rtp")}
	f.Write(&buf)

	var decoded base.InterleavedFrame
	br := bufio.NewReader(&buf)
	require.NoError(t, decoded.Read(65535, br))

	require.Equal(t, f.Channel, decoded.Channel)
	require.Equal(t, f.Payload, decoded.Payload)
}

func newMultiplexerPipe(t *testing.T) (*Multiplexer, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return NewMultiplexer(server), client
}

func TestMultiplexerAllocateHandsOutEvenOddPair(t *testing.T) {
	mux, _ := newMultiplexerPipe(t)
	rtp, rtcp, err := mux.Allocate()
	require.NoError(t, err)

	rtpDesc := rtp.Description()
	rtcpDesc := rtcp.Description()
	require.Equal(t, rtpDesc.Local+1, rtcpDesc.Local)
	require.Equal(t, 0, rtpDesc.Local%2)
}

func TestMultiplexerReleaseReturnsPairToPool(t *testing.T) {
	mux, _ := newMultiplexerPipe(t)

	var firstBase int
	for i := 0; i < interleaveChannelCount/2; i++ {
		rtp, _, err := mux.Allocate()
		require.NoError(t, err)
		if i == 0 {
			firstBase = rtp.Description().Local
		}
	}

	_, _, err := mux.Allocate()
	require.Error(t, err)

	mux.Release(firstBase)
	rtp, _, err := mux.Allocate()
	require.NoError(t, err)
	require.Equal(t, firstBase, rtp.Description().Local)
}

func TestMultiplexerDispatchDeliversToAllocatedChannel(t *testing.T) {
	mux, _ := newMultiplexerPipe(t)
	rtp, _, err := mux.Allocate()
	require.NoError(t, err)

	channel := rtp.Description().Local
	mux.Dispatch(&base.InterleavedFrame{Channel: channel, Payload: []byte("payload")})

	buf := make([]byte, 32)
	n, err := rtp.ReadSome(buf)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf[:n]))
}

func TestMultiplexerWriteRawDeliversRawBytesToThePeer(t *testing.T) {
	mux, client := newMultiplexerPipe(t)

	done := make(chan error, 1)
	go func() {
		done <- mux.WriteRaw([]byte("RTSP/1.0 200 OK\r\n\r\n"))
	}()

	br := bufio.NewReader(client)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Contains(t, line, "200 OK")

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WriteRaw did not complete")
	}
}
