package headers

// UserAgent is a recognized User-Agent, used to select a Timeline variant
// (spec.md §4.3: "The timeline is constructed polymorphically per
// recognized user-agent string").
type UserAgent int

// Recognized user agents. Exact-match only; anything else maps to Generic.
const (
	UserAgentGeneric UserAgent = iota
	UserAgentVLC1_0_2
	UserAgentVLC1_0_6
	UserAgentVLC1_1_4
	UserAgentLibVLC1_1_4
)

var userAgentStrings = map[string]UserAgent{
	"VLC/1.0.2 LibVLC/1.0.2": UserAgentVLC1_0_2,
	"VLC/1.0.6 LibVLC/1.0.6": UserAgentVLC1_0_6,
	"VLC/1.1.4 LibVLC/1.1.4": UserAgentVLC1_1_4,
	"LibVLC/1.1.4":           UserAgentLibVLC1_1_4,
}

// ParseUserAgent maps a raw User-Agent header value to the enum, exact-match
// on known strings, Generic otherwise.
func ParseUserAgent(raw string) UserAgent {
	if ua, ok := userAgentStrings[raw]; ok {
		return ua
	}
	return UserAgentGeneric
}

// IsVLCFamily reports whether ua is any of the VLC/LibVLC variants that use
// the VLC-compatible rtp_time formula (spec.md §4.3).
func (ua UserAgent) IsVLCFamily() bool {
	return ua != UserAgentGeneric
}
