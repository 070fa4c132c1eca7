package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Blocksize is a RTSP Blocksize header: a client-requested per-session MTU
// override for SETUP, independent of the server-wide configured MTU.
type Blocksize struct {
	Value int
}

// Read parses a Blocksize header.
func (h *Blocksize) Read(v []string) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}
	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	s := strings.TrimSpace(v[0])
	if s == "" {
		return fmt.Errorf("empty blocksize")
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid blocksize (%v)", v[0])
	}

	h.Value = n
	return nil
}

// Write encodes a Blocksize header.
func (h Blocksize) Write() []string {
	return []string{strconv.Itoa(h.Value)}
}
