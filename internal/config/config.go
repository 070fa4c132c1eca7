// Package config loads kgd's INI configuration file and holds the
// server-wide tunables spec.md §9 calls out as the process's one piece of
// global mutable state besides the description cache: read/write timeouts,
// write buffer size, MTU, SR/poll intervals, base directory, the
// aggregate-control and description-sharing flags, plus the live-cast
// re-encode knobs spec.md §4.6 otherwise hard-codes.
package config

import (
	"fmt"
	"sync/atomic"
	"time"
)

// LiveCast holds the re-encode parameters used when a Container is backed
// by a capture device (spec.md §4.6).
type LiveCast struct {
	BitRate    int
	GOPSize    int
	MaxBFrames int
}

// Config is the server-wide, mostly-read-only tunable set.
type Config struct {
	BaseDir string

	MTU int

	SRInterval   time.Duration
	PollInterval time.Duration

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	WriteBufferSize int

	AggregateControl bool
	ShareDescriptors bool

	LiveCast LiveCast

	LogLevel  string
	LogFormat string
}

// Default returns the built-in defaults, used when no INI file overrides a
// field and as the base a freshly parsed file is merged onto.
func Default() Config {
	return Config{
		BaseDir:          "./",
		MTU:              1440,
		SRInterval:       5 * time.Second,
		PollInterval:     5 * time.Second,
		ReadTimeout:      10 * time.Second,
		WriteTimeout:     10 * time.Second,
		WriteBufferSize:  65536,
		AggregateControl: true,
		ShareDescriptors: true,
		LiveCast: LiveCast{
			BitRate:    400_000,
			GOPSize:    10,
			MaxBFrames: 1,
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Holder is a reload-safe pointer to the current Config, swapped atomically
// on SIGHUP per spec.md §6. Readers call Load(); the daemon's reload path
// calls Store() with a freshly parsed Config.
type Holder struct {
	v atomic.Pointer[Config]
}

// NewHolder creates a Holder initialized to cfg.
func NewHolder(cfg Config) *Holder {
	h := &Holder{}
	h.Store(cfg)
	return h
}

// Load returns the current Config snapshot.
func (h *Holder) Load() Config {
	return *h.v.Load()
}

// Store atomically replaces the current Config snapshot.
func (h *Holder) Store(cfg Config) {
	h.v.Store(&cfg)
}

// LoadFile parses path and merges it onto Default().
func LoadFile(path string) (Config, error) {
	raw, err := parseINI(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Default()
	if err := apply(&cfg, raw); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}
