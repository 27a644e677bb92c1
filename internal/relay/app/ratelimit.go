package app

import (
	"sync"
	"time"

	"github.com/aelexs/chat-relay/internal/domain"
)

// SendDecision classifies the outcome of a rate-limit check.
type SendDecision int

const (
	SendAllowed SendDecision = iota
	SendCooldown
	SendBanned
)

// SendVerdict is the result of one rate-limit check. Fields beyond Decision
// are populated only for the matching rejection kind.
type SendVerdict struct {
	Decision    SendDecision
	RemainingMs int64 // cooldown: milliseconds until the next send is allowed
	BanUntil    int64 // ban: expiry as epoch millis
	BanSeconds  int   // ban: duration in whole seconds
	Strikes     int   // ban: strike count after this check
}

// rateState tracks one limiter token. recent holds accepted send times only;
// rejected sends never enter the window.
type rateState struct {
	recent     []int64
	lastSendAt int64
	strikes    int
	banUntil   int64
	lastSeen   int64
}

// RateLimiter enforces the two-layer send policy per limiter token: a
// minimum-spacing cooldown and a sliding-window burst limit with escalating
// bans. State is created lazily and survives reconnects for as long as the
// client presents the same token.
type RateLimiter struct {
	mu     sync.Mutex
	states map[domain.LimiterToken]*rateState
	clock  domain.Clock
}

// NewRateLimiter creates a RateLimiter using the given clock.
func NewRateLimiter(clock domain.Clock) *RateLimiter {
	return &RateLimiter{
		states: make(map[domain.LimiterToken]*rateState),
		clock:  clock,
	}
}

// CheckSend applies the gate sequence for one send attempt:
//
//  1. an active ban rejects with no state mutation and no new strike
//  2. a send inside the cooldown spacing rejects without a strike
//  3. a full sliding window is a violation: strike, escalated ban
//  4. otherwise the send is recorded and allowed
//
// Cooldown rejections are a server-side net behind the client-side guard and
// deliberately never escalate.
func (l *RateLimiter) CheckSend(token domain.LimiterToken) SendVerdict {
	now := domain.NowUTCMillis(l.clock)

	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[token]
	if !ok {
		st = &rateState{}
		l.states[token] = st
	}
	st.lastSeen = now

	if st.banUntil > now {
		return SendVerdict{
			Decision:   SendBanned,
			BanUntil:   st.banUntil,
			BanSeconds: int((st.banUntil - now + 999) / 1000),
			Strikes:    st.strikes,
		}
	}

	if st.lastSendAt > 0 {
		if elapsed := now - st.lastSendAt; elapsed < domain.SendCooldown.Milliseconds() {
			return SendVerdict{
				Decision:    SendCooldown,
				RemainingMs: domain.SendCooldown.Milliseconds() - elapsed,
			}
		}
	}

	windowStart := now - domain.RateWindow.Milliseconds()
	kept := st.recent[:0]
	for _, ts := range st.recent {
		if ts > windowStart {
			kept = append(kept, ts)
		}
	}
	st.recent = kept

	if len(st.recent) >= domain.RateWindowLimit {
		st.strikes++
		banFor := domain.BanDurationForStrike(st.strikes)
		st.banUntil = now + banFor.Milliseconds()
		return SendVerdict{
			Decision:   SendBanned,
			BanUntil:   st.banUntil,
			BanSeconds: int(banFor / time.Second),
			Strikes:    st.strikes,
		}
	}

	st.recent = append(st.recent, now)
	st.lastSendAt = now
	return SendVerdict{Decision: SendAllowed}
}

// Snapshot returns the current strike count and ban expiry for a token
// without mutating state. Used when greeting a reconnecting client.
func (l *RateLimiter) Snapshot(token domain.LimiterToken) (strikes int, banUntil int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[token]
	if !ok {
		return 0, 0
	}
	return st.strikes, st.banUntil
}

// Reap evicts entries idle longer than the retention window. Entries with an
// active ban are never evicted regardless of idle time. Returns the number
// of entries removed.
func (l *RateLimiter) Reap(retention time.Duration) int {
	now := domain.NowUTCMillis(l.clock)
	cutoff := now - retention.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for token, st := range l.states {
		if st.lastSeen < cutoff && st.banUntil <= now {
			delete(l.states, token)
			removed++
		}
	}
	return removed
}
