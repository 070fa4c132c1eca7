package rtspcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediumAppendRejectsBackwardPresentationTime(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	m.Append(Frame{PresentationTime: 1.0})
	require.Panics(t, func() {
		m.Append(Frame{PresentationTime: 0.5})
	})
}

func TestMediumAppendStampsMediumIndex(t *testing.T) {
	m := NewMedium(3, 96, 90000, false)
	m.Append(Frame{PresentationTime: 0})
	f, err := m.GetFrame(0)
	require.NoError(t, err)
	require.Equal(t, 3, f.MediumIndex)
}

func TestMediumGetFramePosFindsFirstFrameAtOrAfterTarget(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	for _, pt := range []float64{0, 1, 2, 3, 4} {
		m.Append(Frame{PresentationTime: pt})
	}

	require.Equal(t, 2, m.GetFramePos(2.0))
	require.Equal(t, 3, m.GetFramePos(2.5))
	require.Equal(t, 5, m.GetFramePos(10))
}

func TestMediumFinalizeUnblocksWaitFinalized(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	done := make(chan struct{})
	go func() {
		m.WaitFinalized()
		close(done)
	}()

	require.False(t, m.Finished())
	m.Finalize()
	<-done
	require.True(t, m.Finished())
}

func TestMediumInsertDropsOldestFrameOnceUnreferenced(t *testing.T) {
	m := NewMedium(0, 96, 90000, true)
	m.Insert(Frame{PresentationTime: 0})
	m.acquireIterator(1, 0)
	m.Insert(Frame{PresentationTime: 1})
	require.Equal(t, 2, m.Size())

	m.releaseIterator(1, 0)
	m.Insert(Frame{PresentationTime: 2})
	require.Equal(t, 2, m.Size())
}

func TestIteratorDefaultReportsEofAfterFinalize(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	m.Append(Frame{PresentationTime: 0})
	m.Finalize()

	it := NewIterator(m)
	_, err := it.Next()
	require.NoError(t, err)

	_, err = it.Next()
	require.ErrorIs(t, err, ErrEof)
}

func TestIteratorLoopWrapsAndRespectsLimit(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	m.Append(Frame{PresentationTime: 0})
	m.Append(Frame{PresentationTime: 1})
	m.Finalize()

	it := NewLoopIterator(m, 2)
	var seen []float64
	for {
		f, err := it.Next()
		if err != nil {
			require.ErrorIs(t, err, ErrEof)
			break
		}
		seen = append(seen, f.PresentationTime)
	}

	require.Equal(t, []float64{0, 1, 0, 1}, seen)
}

func TestIteratorSliceBoundsToRange(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	for _, pt := range []float64{0, 1, 2, 3} {
		m.Append(Frame{PresentationTime: pt})
	}
	m.Finalize()

	it := NewSliceIterator(m, 1, 3)
	f1, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, 1.0, f1.PresentationTime)

	f2, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, 2.0, f2.PresentationTime)

	_, err = it.Next()
	require.ErrorIs(t, err, ErrEof)
}

func TestIteratorSeekRepositions(t *testing.T) {
	m := NewMedium(0, 96, 90000, false)
	for _, pt := range []float64{0, 1, 2, 3} {
		m.Append(Frame{PresentationTime: pt})
	}
	m.Finalize()

	it := NewIterator(m)
	it.Seek(2)
	f, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, 2.0, f.PresentationTime)
}
