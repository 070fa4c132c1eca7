package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// RTPInfoEntry describes one track's starting sequence/timestamp, per
// spec.md §4.11 PLAY response ("an RTP-Info: line per playing track").
type RTPInfoEntry struct {
	URL     string
	Seq     uint16
	RTPTime uint32
}

// RTPInfo is a RTSP RTP-Info header: one entry per playing track.
type RTPInfo []RTPInfoEntry

// Write encodes an RTP-Info header.
func (h RTPInfo) Write() []string {
	parts := make([]string, len(h))
	for i, e := range h {
		parts[i] = fmt.Sprintf("url=%s;seq=%d;rtptime=%d", e.URL, e.Seq, e.RTPTime)
	}
	return []string{strings.Join(parts, ",")}
}

// Read parses an RTP-Info header.
func (h *RTPInfo) Read(v []string) error {
	if len(v) == 0 {
		return fmt.Errorf("value not provided")
	}

	var entries RTPInfo
	for _, chunk := range strings.Split(v[0], ",") {
		var e RTPInfoEntry
		for _, kv := range strings.Split(chunk, ";") {
			kv = strings.TrimSpace(kv)
			parts := strings.SplitN(kv, "=", 2)
			if len(parts) != 2 {
				continue
			}
			switch strings.ToLower(parts[0]) {
			case "url":
				e.URL = parts[1]
			case "seq":
				n, err := strconv.ParseUint(parts[1], 10, 16)
				if err != nil {
					return fmt.Errorf("invalid seq (%v)", parts[1])
				}
				e.Seq = uint16(n)
			case "rtptime":
				n, err := strconv.ParseUint(parts[1], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid rtptime (%v)", parts[1])
				}
				e.RTPTime = uint32(n)
			}
		}
		entries = append(entries, e)
	}

	*h = entries
	return nil
}
