package rtspcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kinoglaz/kgd/pkg/headers"
)

func TestMultiSegmentElapsedAccumulatesAcrossSegments(t *testing.T) {
	var ms MultiSegment
	t0 := time.Unix(1000, 0)

	ms.Start(t0, 1)
	require.Equal(t, 5.0, ms.Elapsed(t0.Add(5*time.Second)))

	ms.Next(t0.Add(5*time.Second), 2)
	require.Equal(t, 5+2*3.0, ms.Elapsed(t0.Add(8*time.Second)))
}

func TestMultiSegmentStartTwicePanics(t *testing.T) {
	var ms MultiSegment
	t0 := time.Unix(1000, 0)
	ms.Start(t0, 1)
	require.Panics(t, func() { ms.Start(t0, 1) })
}

func TestMultiSegmentStopFreezesElapsed(t *testing.T) {
	var ms MultiSegment
	t0 := time.Unix(1000, 0)
	ms.Start(t0, 1)
	ms.Stop(t0.Add(3 * time.Second))

	require.Equal(t, 3.0, ms.Elapsed(t0.Add(10*time.Second)))
}

func TestTimelinePresentationTimeTracksPlaySegment(t *testing.T) {
	tl := NewTimeline(90000, headers.UserAgentGeneric)
	t0 := time.Unix(2000, 0)

	tl.Start(t0, 1)
	require.Equal(t, 2.0, tl.PresentationTime(t0.Add(2*time.Second)))
}

func TestTimelinePauseFreezesPresentationTime(t *testing.T) {
	tl := NewTimeline(90000, headers.UserAgentGeneric)
	t0 := time.Unix(2000, 0)

	tl.Start(t0, 1)
	tl.Pause(t0.Add(2 * time.Second))

	require.Equal(t, 2.0, tl.PresentationTime(t0.Add(10*time.Second)))

	tl.Unpause(t0.Add(10*time.Second), 1)
	require.Equal(t, 3.0, tl.PresentationTime(t0.Add(11*time.Second)))
}

func TestTimelineSeekAdjustsPresentationTimeToTarget(t *testing.T) {
	tl := NewTimeline(90000, headers.UserAgentGeneric)
	t0 := time.Unix(2000, 0)

	tl.Start(t0, 1)
	tl.Seek(t0.Add(2*time.Second), 50.0, 1)

	require.InDelta(t, 50.0, tl.PresentationTime(t0.Add(2*time.Second)), 1e-9)
	require.InDelta(t, 51.0, tl.PresentationTime(t0.Add(3*time.Second)), 1e-9)
}

func TestTimelineRTPTimeIsMonotonicAcrossFrames(t *testing.T) {
	tl := NewTimeline(90000, headers.UserAgentGeneric)
	t0 := time.Unix(2000, 0)
	tl.Start(t0, 1)

	prev := tl.RTPTime(0, t0)
	for i := 1; i <= 10; i++ {
		pt := float64(i) * 0.04
		cur := tl.RTPTime(pt, t0)
		require.Greater(t, cur, prev)
		prev = cur
	}
}

func TestTimelineRTPTimeVLCVariantIgnoresPlayTime(t *testing.T) {
	tl := NewTimeline(90000, headers.UserAgentLibVLC1_1_4)
	t0 := time.Unix(2000, 0)

	base := tl.RTPBase()
	require.Equal(t, base+secToTicks(1.5, 90000), tl.RTPTime(1.5, t0.Add(time.Hour)))
}

func TestSecToTicksRounds(t *testing.T) {
	require.Equal(t, uint32(45000), secToTicks(0.5, 90000))
}
