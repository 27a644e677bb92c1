package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aelexs/chat-relay/internal/domain"
)

// AdminBan is a staff-issued ban against a stable id. Persisted so it
// survives a process restart; expired entries are lazily evicted on read.
type AdminBan struct {
	StableID    string
	Until       int64 // epoch millis
	By          string
	Reason      string
	ByModerator bool
}

// StateStore persists moderation state that must survive restarts: the
// admin ban set and the global chat lock.
type StateStore interface {
	LoadBans(ctx context.Context) ([]AdminBan, error)
	SaveBan(ctx context.Context, ban AdminBan) error
	DeleteBan(ctx context.Context, stableID string) error
	LoadChatLock(ctx context.Context) (bool, error)
	SaveChatLock(ctx context.Context, locked bool) error
}

// StrikeResult reports the outcome of one profanity strike.
type StrikeResult struct {
	Strikes   int
	Muted     bool
	MuteUntil int64
	Seconds   int
}

// modState tracks one stable id's profanity record.
type modState struct {
	strikes   int
	muteUntil int64
	lastSeen  int64
}

// Moderation tracks profanity strikes and mutes per stable id, plus the
// staff-issued ban layer and the global chat lock. Strike state is in-memory
// only; bans and the lock round-trip through the StateStore.
type Moderation struct {
	mu     sync.Mutex
	states map[domain.StableID]*modState
	bans   map[domain.StableID]AdminBan
	locked bool

	store  StateStore
	clock  domain.Clock
	logger *slog.Logger
}

// ModerationConfig holds the dependencies for Moderation.
type ModerationConfig struct {
	Store  StateStore
	Clock  domain.Clock
	Logger *slog.Logger
}

// NewModeration creates the moderation tracker and loads persisted bans and
// the chat lock from the state store.
func NewModeration(ctx context.Context, cfg ModerationConfig) (*Moderation, error) {
	m := &Moderation{
		states: make(map[domain.StableID]*modState),
		bans:   make(map[domain.StableID]AdminBan),
		store:  cfg.Store,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}

	bans, err := cfg.Store.LoadBans(ctx)
	if err != nil {
		return nil, fmt.Errorf("load admin bans: %w", err)
	}
	now := domain.NowUTCMillis(cfg.Clock)
	for _, ban := range bans {
		if ban.Until <= now {
			continue
		}
		sid, err := domain.NewStableID(ban.StableID)
		if err != nil {
			continue
		}
		m.bans[sid] = ban
	}

	locked, err := cfg.Store.LoadChatLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chat lock: %w", err)
	}
	m.locked = locked

	return m, nil
}

// SeedHints merges client-remembered strike state into the server record.
// Hints are untrusted: values are clamped and combined with the existing
// record by maximum, so a client can never roll an escalation back.
func (m *Moderation) SeedHints(sid domain.StableID, strikesHint int, muteUntilHint int64) {
	now := domain.NowUTCMillis(m.clock)

	if strikesHint < 0 {
		strikesHint = 0
	}
	if strikesHint > domain.MaxStrikeHint {
		strikesHint = domain.MaxStrikeHint
	}
	if muteUntilHint <= now {
		muteUntilHint = 0
	}
	if ceiling := now + domain.MaxMuteDuration.Milliseconds(); muteUntilHint > ceiling {
		muteUntilHint = ceiling
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(sid, now)
	if strikesHint > st.strikes {
		st.strikes = strikesHint
	}
	if muteUntilHint > st.muteUntil {
		st.muteUntil = muteUntilHint
	}
}

// Snapshot returns the current strike count and mute expiry for a stable id.
func (m *Moderation) Snapshot(sid domain.StableID) (strikes int, muteUntil int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sid]
	if !ok {
		return 0, 0
	}
	return st.strikes, st.muteUntil
}

// CheckMuted reports whether a stable id is currently profanity-muted.
func (m *Moderation) CheckMuted(sid domain.StableID) (muted bool, strikes int, muteUntil int64) {
	now := domain.NowUTCMillis(m.clock)

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[sid]
	if !ok {
		return false, 0, 0
	}
	return st.muteUntil > now, st.strikes, st.muteUntil
}

// RecordStrike applies one profanity strike and computes the resulting mute,
// if any. An escalation never shortens an active mute: the new expiry is the
// maximum of the existing one and now plus the scheduled duration.
func (m *Moderation) RecordStrike(sid domain.StableID) StrikeResult {
	now := domain.NowUTCMillis(m.clock)

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.stateLocked(sid, now)
	st.strikes++

	d := domain.MuteDurationForStrike(st.strikes)
	if d > 0 {
		if until := now + d.Milliseconds(); until > st.muteUntil {
			st.muteUntil = until
		}
	}

	res := StrikeResult{
		Strikes:   st.strikes,
		Muted:     st.muteUntil > now,
		MuteUntil: st.muteUntil,
		Seconds:   int(d / time.Second),
	}
	return res
}

// stateLocked returns the modState for sid, creating it lazily.
// Caller must hold m.mu.
func (m *Moderation) stateLocked(sid domain.StableID, now int64) *modState {
	st, ok := m.states[sid]
	if !ok {
		st = &modState{}
		m.states[sid] = st
	}
	st.lastSeen = now
	return st
}

// Ban applies a staff-issued ban to a stable id and persists it. A duration
// of zero or less lifts an existing ban instead.
func (m *Moderation) Ban(ctx context.Context, target domain.StableID, by, reason string, duration time.Duration, byModerator bool) (AdminBan, error) {
	now := domain.NowUTCMillis(m.clock)

	if duration <= 0 {
		m.mu.Lock()
		delete(m.bans, target)
		m.mu.Unlock()
		if err := m.store.DeleteBan(ctx, target.String()); err != nil {
			return AdminBan{}, fmt.Errorf("delete admin ban: %w", err)
		}
		return AdminBan{StableID: target.String()}, nil
	}

	ban := AdminBan{
		StableID:    target.String(),
		Until:       now + duration.Milliseconds(),
		By:          by,
		Reason:      reason,
		ByModerator: byModerator,
	}

	m.mu.Lock()
	m.bans[target] = ban
	m.mu.Unlock()

	if err := m.store.SaveBan(ctx, ban); err != nil {
		return ban, fmt.Errorf("persist admin ban: %w", err)
	}
	return ban, nil
}

// CheckAdminBan returns the active ban for a stable id, if any. Expired
// entries are evicted here and removed from the store best-effort.
func (m *Moderation) CheckAdminBan(sid domain.StableID) (AdminBan, bool) {
	now := domain.NowUTCMillis(m.clock)

	m.mu.Lock()
	ban, ok := m.bans[sid]
	if ok && ban.Until <= now {
		delete(m.bans, sid)
		m.mu.Unlock()
		if err := m.store.DeleteBan(context.Background(), sid.String()); err != nil {
			m.logger.Warn("evict expired admin ban", "error", err)
		}
		return AdminBan{}, false
	}
	m.mu.Unlock()
	return ban, ok
}

// SetLocked toggles the global chat lock and persists the new value.
func (m *Moderation) SetLocked(ctx context.Context, locked bool) error {
	m.mu.Lock()
	m.locked = locked
	m.mu.Unlock()

	if err := m.store.SaveChatLock(ctx, locked); err != nil {
		return fmt.Errorf("persist chat lock: %w", err)
	}
	return nil
}

// Locked reports the global chat lock.
func (m *Moderation) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Reap evicts strike records idle longer than the retention window. A record
// with an active mute is kept regardless of idle time. Returns the number of
// records removed.
func (m *Moderation) Reap(retention time.Duration) int {
	now := domain.NowUTCMillis(m.clock)
	cutoff := now - retention.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for sid, st := range m.states {
		if st.lastSeen < cutoff && st.muteUntil <= now {
			delete(m.states, sid)
			removed++
		}
	}
	return removed
}
