package rtspcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func videoMediumWithKeyframes() *Medium {
	m := NewMedium(0, 96, 90000, false)
	// frames at 0 (key), 1, 2 (key), 3, 4
	m.Append(Frame{PresentationTime: 0, IsKey: true})
	m.Append(Frame{PresentationTime: 1})
	m.Append(Frame{PresentationTime: 2, IsKey: true})
	m.Append(Frame{PresentationTime: 3})
	m.Append(Frame{PresentationTime: 4})
	m.Finalize()
	return m
}

func TestFrameBufferDrySeekSnapsVideoToPriorKeyframe(t *testing.T) {
	m := videoMediumWithKeyframes()
	fb := NewFrameBuffer(m, true)

	require.Equal(t, 2, fb.DrySeek(3.0, 1))
	require.Equal(t, 0, fb.DrySeek(1.0, 1))
}

func TestFrameBufferDrySeekAudioLandsOnOrAfterTarget(t *testing.T) {
	m := NewMedium(0, 14, 90000, false)
	m.Append(Frame{PresentationTime: 0})
	m.Append(Frame{PresentationTime: 1})
	m.Append(Frame{PresentationTime: 2})
	m.Finalize()

	fb := NewFrameBuffer(m, false)
	require.Equal(t, 1, fb.DrySeek(0.5, 1))
}

func TestFrameBufferSeekMovesCursorWithoutMutatingDrySeek(t *testing.T) {
	m := videoMediumWithKeyframes()
	fb := NewFrameBuffer(m, true)

	pt := fb.Seek(3.0, 1)
	require.Equal(t, 2.0, pt)

	f, err := fb.Next()
	require.NoError(t, err)
	require.Equal(t, 2.0, f.PresentationTime)
}

func TestFrameBufferNextBlocksUntilInsertMediumThenDelivers(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	fb := NewFrameBuffer(m, true)

	delivered := make(chan Frame, 1)
	go func() {
		f, err := fb.Next()
		require.NoError(t, err)
		delivered <- f
	}()

	time.Sleep(20 * time.Millisecond)
	m.Append(Frame{PresentationTime: 0, IsKey: true})
	fb.InsertMedium()

	select {
	case f := <-delivered:
		require.Equal(t, 0.0, f.PresentationTime)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestFrameBufferStopUnblocksNextWithEof(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	fb := NewFrameBuffer(m, true)

	done := make(chan error, 1)
	go func() {
		_, err := fb.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	fb.Stop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrEof)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stop to unblock Next")
	}
}

func TestFrameBufferLastPresentationTimeTracksDelivered(t *testing.T) {
	m := videoMediumWithKeyframes()
	fb := NewFrameBuffer(m, true)

	require.Equal(t, 0.0, fb.LastPresentationTime())
	_, err := fb.Next()
	require.NoError(t, err)
	require.Equal(t, 0.0, fb.LastPresentationTime())
}
