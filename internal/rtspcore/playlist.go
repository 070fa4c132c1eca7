package rtspcore

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/kinoglaz/kgd/internal/config"
)

const (
	playlistLoopMin = 1
	playlistLoopMax = 999
)

// Playlist is a parsed `.kls` file (spec §6): an ordered list of media
// filenames plus a loop count (0 means infinite).
type Playlist struct {
	Files     []string
	LoopCount int // 0 = infinite
	Looping   bool
}

// ParsePlaylist reads a `.kls` file's line-oriented grammar: a `loop` or
// `loop <N>` header line (optional, N in [1, 999]), and one media
// filename per remaining non-blank line.
func ParsePlaylist(r io.Reader) (*Playlist, error) {
	pl := &Playlist{LoopCount: 1}

	scanner := bufio.NewScanner(r)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if first {
			first = false
			if consumed, err := parseLoopHeader(line, pl); err != nil {
				return nil, err
			} else if consumed {
				continue
			}
		}

		pl.Files = append(pl.Files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(pl.Files) == 0 {
		return nil, ErrBadRequest("playlist has no media entries")
	}

	return pl, nil
}

func parseLoopHeader(line string, pl *Playlist) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.ToLower(fields[0]) != "loop" {
		return false, nil
	}

	if len(fields) == 1 {
		pl.Looping = true
		pl.LoopCount = 0
		return true, nil
	}

	n, err := strconv.Atoi(fields[1])
	if err != nil || n < playlistLoopMin || n > playlistLoopMax {
		return false, ErrPlaylistLoopCount(fields[1], playlistLoopMin, playlistLoopMax)
	}
	pl.Looping = true
	pl.LoopCount = n
	return true, nil
}

// BuildContainer resolves a playlist to one Container per spec §3:
// "assign(first); append(rest...); loop(k)". The first file's Container
// is opened and adopted as the base; the rest are opened and their media
// appended in order; a loop header is then recorded on the base through
// LoopEachMedium, which does not make playback repeat.
func (pl *Playlist) BuildContainer(cache *Cache, baseDir string, lc config.LiveCast) (*Container, error) {
	base, err := cache.Load(baseDir, pl.Files[0], lc)
	if err != nil {
		return nil, err
	}

	for _, name := range pl.Files[1:] {
		next, err := cache.Load(baseDir, name, lc)
		if err != nil {
			cache.Release(baseDir, pl.Files[0], base)
			return nil, err
		}
		if err := base.Append(next); err != nil {
			cache.Release(baseDir, name, next)
			cache.Release(baseDir, pl.Files[0], base)
			return nil, err
		}
	}

	if pl.Looping {
		base.LoopEachMedium(pl.LoopCount)
	}

	return base, nil
}
