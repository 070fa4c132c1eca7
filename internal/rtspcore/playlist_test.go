package rtspcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kinoglaz/kgd/internal/config"
)

func TestParsePlaylistWithoutLoopHeaderDefaultsToPlayOnce(t *testing.T) {
	pl, err := ParsePlaylist(strings.NewReader("a.h264\nb.h264\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"a.h264", "b.h264"}, pl.Files)
	require.False(t, pl.Looping)
	require.Equal(t, 1, pl.LoopCount)
}

func TestParsePlaylistBareLoopMeansInfinite(t *testing.T) {
	pl, err := ParsePlaylist(strings.NewReader("loop\na.h264\n"))
	require.NoError(t, err)
	require.True(t, pl.Looping)
	require.Equal(t, 0, pl.LoopCount)
}

func TestParsePlaylistLoopWithCount(t *testing.T) {
	pl, err := ParsePlaylist(strings.NewReader("loop 2\na.h264\nb.h264\n"))
	require.NoError(t, err)
	require.True(t, pl.Looping)
	require.Equal(t, 2, pl.LoopCount)
	require.Equal(t, []string{"a.h264", "b.h264"}, pl.Files)
}

func TestParsePlaylistRejectsOutOfRangeLoopCount(t *testing.T) {
	_, err := ParsePlaylist(strings.NewReader("loop 1000\na.h264\n"))
	require.Error(t, err)
}

func TestParsePlaylistRejectsEmptyFileList(t *testing.T) {
	_, err := ParsePlaylist(strings.NewReader("loop 2\n"))
	require.Error(t, err)
}

func TestBuildContainerConcatenatesFilesInOrderAndAppliesLoop(t *testing.T) {
	dir := t.TempDir()
	writeRawH264(t, dir, "a.h264", 2)
	writeRawH264(t, dir, "b.h264", 2)

	pl, err := ParsePlaylist(strings.NewReader("loop 2\na.h264\nb.h264\n"))
	require.NoError(t, err)

	cache := NewCache(false)
	c, err := pl.BuildContainer(cache, dir, config.LiveCast{})
	require.NoError(t, err)
	t.Cleanup(c.Stop)
	require.NoError(t, c.WaitReady())

	count, looping := c.LoopCount()
	require.True(t, looping)
	require.Equal(t, 2, count)
}
