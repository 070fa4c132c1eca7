package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// Session is a RTSP Session header.
type Session struct {
	// session id.
	ID string

	// session timeout (optional).
	Timeout *uint
}

// Read parses a Session header.
func (h *Session) Read(v []string) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	if len(v) > 1 {
		return fmt.Errorf("value provided multiple times (%v)", v)
	}

	parts := strings.SplitN(v[0], ";", 2)
	h.ID = parts[0]
	if h.ID == "" {
		return fmt.Errorf("empty session id")
	}

	if len(parts) == 2 {
		kv := strings.SplitN(strings.TrimSpace(parts[1]), "=", 2)
		if len(kv) != 2 || !strings.EqualFold(strings.TrimSpace(kv[0]), "timeout") {
			return nil
		}

		tmp, err := strconv.ParseUint(strings.TrimSpace(kv[1]), 10, 31)
		if err != nil {
			return fmt.Errorf("invalid timeout (%v)", kv[1])
		}
		t := uint(tmp)
		h.Timeout = &t
	}

	return nil
}

// Write encodes a Session header.
func (h Session) Write() []string {
	ret := h.ID

	if h.Timeout != nil {
		ret += ";timeout=" + strconv.FormatUint(uint64(*h.Timeout), 10)
	}

	return []string{ret}
}
