package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Scale is a RTSP Scale header: a signed playback speed multiplier.
type Scale struct {
	Value float64
}

// Read parses a Scale header.
func (h *Scale) Read(v []string) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}
	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	s := strings.TrimSpace(v[0])
	if s == "" {
		return fmt.Errorf("empty scale")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid scale (%v)", v[0])
	}

	h.Value = f
	return nil
}

// Write encodes a Scale header.
func (h Scale) Write() []string {
	return []string{strconv.FormatFloat(h.Value, 'f', 3, 64)}
}
