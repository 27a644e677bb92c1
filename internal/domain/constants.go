package domain

import "time"

// Normative limits for the relay. Compiled defaults; the history cap and
// listener port are overridable via configuration.
const (
	// Send rate limiting (two layers, keyed by LimiterToken)
	SendCooldown    = 650 * time.Millisecond // minimum spacing between sends
	RateWindow      = 10 * time.Second       // rolling window for burst detection
	RateWindowLimit = 4                      // sends allowed inside the window

	// Rate-limit ban schedule anchors (see BanDurationForStrike)
	BanShort      = 15 * time.Second
	BanMedium     = 60 * time.Second
	BanLong       = 300 * time.Second
	BanDoubleBase = 10 * time.Minute

	// Profanity mute schedule anchors (see MuteDurationForStrike)
	MuteShort       = 15 * time.Second
	MuteMedium      = 60 * time.Second
	MaxMuteDuration = 48 * time.Hour

	// FirstMuteStrike is the profanity strike at which the first mute lands.
	// Earlier strikes are warnings only.
	FirstMuteStrike = 3

	// Client-supplied moderation hints are untrusted; values outside these
	// bounds are discarded before the max-merge with server state.
	MaxStrikeHint = 1000

	// Input limits
	MaxIDLength       = 128
	MaxNicknameLength = 100
	MaxTextLength     = 1000
	MaxHTMLLength     = 5000
	MaxCaptionLength  = 500
	MaxInboundBytes   = 64 * 1024 // hard cap on one wire frame

	// History
	DefaultHistoryLimit = 600

	// Connection liveness
	HeartbeatInterval = 30 * time.Second
	PongWait          = 60 * time.Second
	WriteWait         = 10 * time.Second

	// Outbound buffering: a connection that cannot drain this many frames
	// is a slow consumer and gets dropped.
	OutboundBufferSize = 256

	// Transport-level inbound flood guard, distinct from the send-policy
	// limiter. Generous on purpose: typing and presence frames are not
	// policy-limited and must pass freely.
	InboundFloodRate  = 100 // frames per second
	InboundFloodBurst = 200

	// Stale limiter/moderation entries idle longer than this are reaped.
	// Active bans and mutes are never shortened by the sweep.
	StateRetention      = 24 * time.Hour
	StateSweepInterval  = 30 * time.Minute
	banDoubleShiftLimit = 20 // clamp exponent so durations cannot overflow

	// Graceful shutdown
	ShutdownDrainDelay  = 500 * time.Millisecond
	ShutdownHTTPTimeout = 10 * time.Second
	ShutdownOTELTimeout = 5 * time.Second
)

// BanDurationForStrike returns the rate-limit ban duration after the Nth
// window violation. Strikes 1-3 get the short ban, strike 4 one minute,
// strike 5 five minutes, and from strike 6 the base of ten minutes doubles
// with every further strike. Strikes never decay at runtime.
func BanDurationForStrike(n int) time.Duration {
	switch {
	case n <= 3:
		return BanShort
	case n == 4:
		return BanMedium
	case n == 5:
		return BanLong
	default:
		shift := n - 6
		if shift > banDoubleShiftLimit {
			shift = banDoubleShiftLimit
		}
		return BanDoubleBase * (1 << uint(shift))
	}
}

// MuteDurationForStrike returns the profanity mute duration after the Nth
// strike. Strikes below FirstMuteStrike are warnings, strikes 3-5 mute for
// 15s, strike 6 for 60s, and beyond that the previous duration doubles,
// capped at MaxMuteDuration.
func MuteDurationForStrike(n int) time.Duration {
	switch {
	case n < FirstMuteStrike:
		return 0
	case n <= 5:
		return MuteShort
	case n == 6:
		return MuteMedium
	default:
		shift := n - 6
		if shift > banDoubleShiftLimit {
			shift = banDoubleShiftLimit
		}
		d := MuteMedium * (1 << uint(shift))
		if d > MaxMuteDuration || d <= 0 {
			return MaxMuteDuration
		}
		return d
	}
}
