package app_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/domain/domaintest"
	"github.com/aelexs/chat-relay/internal/relay/app"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testInstanceID = "instance-test-001"

// stubMessageStore implements app.MessageStore with function fields over an
// in-memory default.
type stubMessageStore struct {
	mu    sync.Mutex
	saved []domain.ChatMessage

	saveFn    func(ctx context.Context, msg domain.ChatMessage) error
	recentFn  func(ctx context.Context, limit int) ([]domain.ChatMessage, error)
	getByIDFn func(ctx context.Context, id domain.MessageID) (*domain.ChatMessage, error)
	deleteFn  func(ctx context.Context, id domain.MessageID) error
	pruneFn   func(ctx context.Context, limit int) error
	wipeFn    func(ctx context.Context) (int64, error)
}

func (s *stubMessageStore) Save(ctx context.Context, msg domain.ChatMessage) error {
	if s.saveFn != nil {
		return s.saveFn(ctx, msg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, msg)
	return nil
}

func (s *stubMessageStore) Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	if s.recentFn != nil {
		return s.recentFn(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.saved
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]domain.ChatMessage, len(items))
	copy(out, items)
	return out, nil
}

func (s *stubMessageStore) GetByID(ctx context.Context, id domain.MessageID) (*domain.ChatMessage, error) {
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.saved {
		if s.saved[i].ID == id.String() {
			msg := s.saved[i]
			return &msg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubMessageStore) DeleteByID(ctx context.Context, id domain.MessageID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.saved {
		if s.saved[i].ID == id.String() {
			s.saved = append(s.saved[:i], s.saved[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *stubMessageStore) PruneToLimit(ctx context.Context, limit int) error {
	if s.pruneFn != nil {
		return s.pruneFn(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) > limit {
		s.saved = s.saved[len(s.saved)-limit:]
	}
	return nil
}

func (s *stubMessageStore) WipeAll(ctx context.Context) (int64, error) {
	if s.wipeFn != nil {
		return s.wipeFn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.saved))
	s.saved = nil
	return n, nil
}

func (s *stubMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// stubStateStore implements app.StateStore with function fields over
// in-memory defaults.
type stubStateStore struct {
	mu     sync.Mutex
	bans   map[string]app.AdminBan
	locked bool

	saveBanFn   func(ctx context.Context, ban app.AdminBan) error
	deleteBanFn func(ctx context.Context, stableID string) error
	saveLockFn  func(ctx context.Context, locked bool) error
}

func newStubStateStore() *stubStateStore {
	return &stubStateStore{bans: make(map[string]app.AdminBan)}
}

func (s *stubStateStore) LoadBans(_ context.Context) ([]app.AdminBan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []app.AdminBan
	for _, ban := range s.bans {
		out = append(out, ban)
	}
	return out, nil
}

func (s *stubStateStore) SaveBan(ctx context.Context, ban app.AdminBan) error {
	if s.saveBanFn != nil {
		return s.saveBanFn(ctx, ban)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans[ban.StableID] = ban
	return nil
}

func (s *stubStateStore) DeleteBan(ctx context.Context, stableID string) error {
	if s.deleteBanFn != nil {
		return s.deleteBanFn(ctx, stableID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bans, stableID)
	return nil
}

func (s *stubStateStore) LoadChatLock(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked, nil
}

func (s *stubStateStore) SaveChatLock(ctx context.Context, locked bool) error {
	if s.saveLockFn != nil {
		return s.saveLockFn(ctx, locked)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = locked
	return nil
}

// recordingBroadcaster implements app.Broadcaster and records every frame.
type recordingBroadcaster struct {
	mu         sync.Mutex
	broadcasts []any
	direct     map[string][]any
	toStable   map[string][]any

	stableRoleFn func(sid domain.StableID) (domain.Role, bool)
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{
		direct:   make(map[string][]any),
		toStable: make(map[string][]any),
	}
}

func (b *recordingBroadcaster) Broadcast(frame any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, frame)
}

func (b *recordingBroadcaster) BroadcastExcept(_ domain.ConnectionID, frame any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broadcasts = append(b.broadcasts, frame)
}

func (b *recordingBroadcaster) SendTo(conn domain.ConnectionID, frame any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.direct[conn.String()] = append(b.direct[conn.String()], frame)
	return true
}

func (b *recordingBroadcaster) SendToStable(sid domain.StableID, frame any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toStable[sid.String()] = append(b.toStable[sid.String()], frame)
	return 1
}

func (b *recordingBroadcaster) StableRole(sid domain.StableID) (domain.Role, bool) {
	if b.stableRoleFn != nil {
		return b.stableRoleFn(sid)
	}
	return "", false
}

func (b *recordingBroadcaster) framesTo(conn domain.ConnectionID) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.direct[conn.String()]))
	copy(out, b.direct[conn.String()])
	return out
}

func (b *recordingBroadcaster) lastFrameTo(conn domain.ConnectionID) any {
	frames := b.framesTo(conn)
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func (b *recordingBroadcaster) broadcastFrames() []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.broadcasts))
	copy(out, b.broadcasts)
	return out
}

func (b *recordingBroadcaster) broadcastMessages() []domain.ChatMessage {
	var out []domain.ChatMessage
	for _, f := range b.broadcastFrames() {
		if msg, ok := f.(domain.ChatMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

// testHarness holds all stubs and the constructed Service for a test.
type testHarness struct {
	svc        *app.Service
	clock      *domaintest.FakeClock
	messages   *stubMessageStore
	state      *stubStateStore
	bcast      *recordingBroadcaster
	moderation *app.Moderation
	limiter    *app.RateLimiter
	filter     *app.ContentFilter
	presence   *app.Presence
}

func newTestHarness(t *testing.T, words ...string) *testHarness {
	t.Helper()

	clock := domaintest.NewFakeClock(testStart)
	state := newStubStateStore()

	moderation, err := app.NewModeration(context.Background(), app.ModerationConfig{
		Store:  state,
		Clock:  clock,
		Logger: slog.Default(),
	})
	require.NoError(t, err)

	filter := app.NewContentFilter()
	filter.SetWords(words)

	h := &testHarness{
		clock:      clock,
		messages:   &stubMessageStore{},
		state:      state,
		bcast:      newRecordingBroadcaster(),
		moderation: moderation,
		limiter:    app.NewRateLimiter(clock),
		filter:     filter,
		presence:   app.NewPresence(),
	}

	h.svc = app.NewService(app.ServiceConfig{
		Messages:     h.messages,
		Moderation:   h.moderation,
		Limiter:      h.limiter,
		Filter:       h.filter,
		Presence:     h.presence,
		Broadcaster:  h.bcast,
		Clock:        clock,
		Logger:       slog.Default(),
		HistoryLimit: domain.DefaultHistoryLimit,
		InstanceID:   testInstanceID,
	})

	return h
}

// guestSession builds a plain client session with deterministic ids.
func guestSession(suffix string) *app.Session {
	return &app.Session{
		Conn:     domain.MustConnectionID("conn-" + suffix),
		Stable:   domain.MustStableID("sid-" + suffix),
		Limiter:  domain.MustLimiterToken("tok-" + suffix),
		Role:     domain.RoleGuest,
		Nickname: "guest-" + suffix,
	}
}

func staffSession(suffix string, role domain.Role) *app.Session {
	s := guestSession(suffix)
	s.Role = role
	s.Username = "staff-" + suffix
	return s
}

// textFrame builds an inbound text send.
func textFrame(id, text string) protocol.Inbound {
	return protocol.Inbound{Type: string(domain.KindText), ID: id, Text: text}
}
