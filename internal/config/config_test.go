package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kgd.ini")

	contents := `
[general]
basedir = /var/media
mtu = 1200
sr_interval = 2.5
read_timeout = 15
aggregate_control = false

[livecast]
bitrate = 800000
gop_size = 20

[log]
level = debug
format = json
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, "/var/media", cfg.BaseDir)
	require.Equal(t, 1200, cfg.MTU)
	require.Equal(t, 2500*time.Millisecond, cfg.SRInterval)
	require.Equal(t, 15*time.Second, cfg.ReadTimeout)
	require.False(t, cfg.AggregateControl)
	require.True(t, cfg.ShareDescriptors) // untouched, keeps default

	require.Equal(t, 800000, cfg.LiveCast.BitRate)
	require.Equal(t, 20, cfg.LiveCast.GOPSize)
	require.Equal(t, 1, cfg.LiveCast.MaxBFrames) // untouched, keeps default

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadFileRejectsBadValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kgd.ini")

	require.NoError(t, os.WriteFile(path, []byte("[general]\nmtu = not-a-number\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestHolderReload(t *testing.T) {
	h := NewHolder(Default())
	require.Equal(t, 1440, h.Load().MTU)

	updated := Default()
	updated.MTU = 9000
	h.Store(updated)

	require.Equal(t, 9000, h.Load().MTU)
}
