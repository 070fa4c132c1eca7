package rtpcodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestH264PacketizerStampsPayloadType(t *testing.T) {
	p, err := New(KindH264, 96, 0)
	require.NoError(t, err)
	p.Init()

	require.Equal(t, uint8(96), p.PayloadType())
	require.Equal(t, uint32(90000), p.ClockRate())

	pkts, err := p.Packetize([][]byte{{0x67, 0x01, 0x02}}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, pkts)
	for _, pkt := range pkts {
		require.Equal(t, uint8(96), pkt.PayloadType)
	}
}

func TestMPEGAudioPacketizerFragmentsOversizedFrame(t *testing.T) {
	p, err := New(KindMPEGAudio, 14, 4+10)
	require.NoError(t, err)
	p.Init()

	frame := make([]byte, 25)
	for i := range frame {
		frame[i] = byte(i)
	}

	pkts, err := p.Packetize([][]byte{frame}, time.Second)
	require.NoError(t, err)
	require.Len(t, pkts, 3)

	require.False(t, pkts[0].Marker)
	require.False(t, pkts[1].Marker)
	require.True(t, pkts[2].Marker)

	for i, pkt := range pkts {
		require.Equal(t, uint8(14), pkt.PayloadType)
		if i > 0 {
			require.Equal(t, pkts[0].SequenceNumber+uint16(i), pkt.SequenceNumber)
			require.Equal(t, pkts[0].Timestamp, pkt.Timestamp)
		}
	}

	// fragment offsets reassemble the original frame.
	var reassembled []byte
	for _, pkt := range pkts {
		reassembled = append(reassembled, pkt.Payload[4:]...)
	}
	require.Equal(t, frame, reassembled)
}

func TestMPEGAudioPacketizerRejectsTinyPayloadSize(t *testing.T) {
	p, err := New(KindMPEGAudio, 14, 2)
	require.NoError(t, err)
	p.Init()

	_, err = p.Packetize([][]byte{{0x01}}, 0)
	require.Error(t, err)
}

func TestUnsupportedKind(t *testing.T) {
	_, err := New(Kind(99), 0, 0)
	require.Error(t, err)
}
