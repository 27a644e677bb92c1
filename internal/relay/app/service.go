// Package app implements the relay use-cases: connection registration, the
// send pipeline with its policy gates, deletes, presence, and the staff
// operations. Transport and persistence are collaborators behind interfaces.
package app

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

var tracer = otel.Tracer("relay/app")

var (
	messagesAcceptedTotal metric.Int64Counter
	sendsRejectedTotal    metric.Int64Counter
	strikesTotal          metric.Int64Counter
	bansTotal             metric.Int64Counter
	broadcastsTotal       metric.Int64Counter
	connectionsTotal      metric.Int64Counter
)

func init() {
	m := otel.Meter("relay/app")

	messagesAcceptedTotal, _ = m.Int64Counter("relay_messages_accepted_total",
		metric.WithDescription("Total messages persisted and broadcast"))
	sendsRejectedTotal, _ = m.Int64Counter("relay_sends_rejected_total",
		metric.WithDescription("Total sends rejected by a policy gate"))
	strikesTotal, _ = m.Int64Counter("relay_profanity_strikes_total",
		metric.WithDescription("Total profanity strikes applied"))
	bansTotal, _ = m.Int64Counter("relay_rate_bans_total",
		metric.WithDescription("Total rate-limit bans issued"))
	broadcastsTotal, _ = m.Int64Counter("relay_broadcasts_total",
		metric.WithDescription("Total frames fanned out to all connections"))
	connectionsTotal, _ = m.Int64Counter("relay_connections_total",
		metric.WithDescription("Total connections registered"))
}

// MessageStore persists chat messages durably. Save must complete before any
// broadcast of the message.
type MessageStore interface {
	Save(ctx context.Context, msg domain.ChatMessage) error
	Recent(ctx context.Context, limit int) ([]domain.ChatMessage, error)
	GetByID(ctx context.Context, id domain.MessageID) (*domain.ChatMessage, error)
	DeleteByID(ctx context.Context, id domain.MessageID) error
	PruneToLimit(ctx context.Context, limit int) error
	WipeAll(ctx context.Context) (int64, error)
}

// Broadcaster fans frames out to live connections. Implemented by the
// connection registry in the transport layer.
type Broadcaster interface {
	Broadcast(frame any)
	BroadcastExcept(exclude domain.ConnectionID, frame any)
	SendTo(conn domain.ConnectionID, frame any) bool
	SendToStable(sid domain.StableID, frame any) int
	StableRole(sid domain.StableID) (domain.Role, bool)
}

// Session is the resolved identity of one live connection. It is owned by
// that connection's reader goroutine; Nickname is refreshed in place as
// frames arrive.
type Session struct {
	Conn      domain.ConnectionID
	Stable    domain.StableID
	Limiter   domain.LimiterToken
	AccountID string
	Username  string
	Role      domain.Role
	Nickname  string
}

// IsStaff reports whether the session's role carries moderation rights.
func (s *Session) IsStaff() bool { return s.Role.IsStaff() }

// ServiceConfig holds the dependencies for Service.
type ServiceConfig struct {
	Messages     MessageStore
	Moderation   *Moderation
	Limiter      *RateLimiter
	Filter       *ContentFilter
	Presence     *Presence
	Broadcaster  Broadcaster
	Clock        domain.Clock
	Logger       *slog.Logger
	HistoryLimit int
	InstanceID   string
}

// Service orchestrates the relay use-cases.
type Service struct {
	messages     MessageStore
	moderation   *Moderation
	limiter      *RateLimiter
	filter       *ContentFilter
	presence     *Presence
	broadcaster  Broadcaster
	clock        domain.Clock
	logger       *slog.Logger
	historyLimit int
	instanceID   string
}

// NewService creates a new Service with the given dependencies.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		messages:     cfg.Messages,
		moderation:   cfg.Moderation,
		limiter:      cfg.Limiter,
		filter:       cfg.Filter,
		presence:     cfg.Presence,
		broadcaster:  cfg.Broadcaster,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		historyLimit: cfg.HistoryLimit,
		instanceID:   cfg.InstanceID,
	}
}

// InstanceID returns the id stamped on welcome and ack frames.
func (s *Service) InstanceID() string { return s.instanceID }

// SeedModeration merges the client-remembered strike hints for a session's
// stable id into server state before the welcome snapshot is taken.
func (s *Service) SeedModeration(sess *Session, strikesHint int, muteUntilHint int64) {
	s.moderation.SeedHints(sess.Stable, strikesHint, muteUntilHint)
}

// Register greets a newly resolved connection: welcome frame with the
// identity handles and moderation snapshot, an admin_mute notice when a
// staff ban is active, then the history replay. Presence starts offline
// until the client announces itself.
func (s *Service) Register(ctx context.Context, sess *Session) error {
	ctx, span := tracer.Start(ctx, "Service.Register")
	defer span.End()

	connectionsTotal.Add(ctx, 1)

	strikes, muteUntil := s.moderation.Snapshot(sess.Stable)
	now := domain.NowUTCMillis(s.clock)

	s.broadcaster.SendTo(sess.Conn, protocol.Welcome{
		Type:             protocol.TypeWelcome,
		ClientID:         sess.Conn.String(),
		Token:            sess.Limiter.String(),
		SID:              sess.Stable.String(),
		ProfanityStrikes: strikes,
		ProfanityMuted:   muteUntil > now,
		MuteUntil:        muteUntil,
		InstanceID:       s.instanceID,
	})

	if ban, ok := s.moderation.CheckAdminBan(sess.Stable); ok {
		s.broadcaster.SendTo(sess.Conn, protocol.AdminMute{
			Type:    protocol.TypeAdminMute,
			Until:   ban.Until,
			Seconds: int((ban.Until - now + 999) / 1000),
			By:      ban.By,
			Reason:  ban.Reason,
		})
	}

	items, err := s.messages.Recent(ctx, s.historyLimit)
	if err != nil {
		return err
	}
	s.broadcaster.SendTo(sess.Conn, protocol.History{
		Type:  protocol.TypeHistory,
		Items: items,
	})

	s.presence.Set(sess.Conn, sess.Conn.String(), sess.Nickname, sess.Role, false)
	return nil
}

// Unregister removes a connection's presence record and rebroadcasts the
// online count.
func (s *Service) Unregister(sess *Session) {
	s.presence.Remove(sess.Conn)
	s.broadcaster.Broadcast(s.presence.Snapshot())
}

// HandlePresence updates the connection's online flag and fans out the
// recomputed count. Never rate-limited.
func (s *Service) HandlePresence(sess *Session, in protocol.Inbound) {
	if in.Nickname != "" {
		sess.Nickname = in.Nickname
	}
	online := in.Online != nil && *in.Online
	s.presence.Set(sess.Conn, sess.Conn.String(), sess.Nickname, sess.Role, online)
	s.broadcaster.Broadcast(s.presence.Snapshot())
}

// HandleTyping relays a typing indicator to everyone but the sender.
// Ephemeral and unthrottled.
func (s *Service) HandleTyping(sess *Session, in protocol.Inbound) {
	if in.Nickname != "" {
		sess.Nickname = in.Nickname
	}
	s.broadcaster.BroadcastExcept(sess.Conn, protocol.Typing{
		Type:     protocol.TypeTyping,
		SenderID: sess.Conn.String(),
		Nickname: sess.Nickname,
		IsTyping: in.IsTyping,
		TS:       domain.NowUTCMillis(s.clock),
	})
}

// HandlePing answers immediately with an ack carrying the server clock and
// instance id. Never rate-limited.
func (s *Service) HandlePing(sess *Session, in protocol.Inbound) {
	s.broadcaster.SendTo(sess.Conn, protocol.Ack{
		Type:       protocol.TypeAck,
		ID:         in.EffectiveID(),
		MessageID:  in.EffectiveID(),
		ServerTime: s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		InstanceID: s.instanceID,
	})
}

// Sweep evicts stale limiter and moderation entries. Run periodically by
// the lifecycle runner; active bans and mutes are never shortened.
func (s *Service) Sweep() {
	rates := s.limiter.Reap(domain.StateRetention)
	mods := s.moderation.Reap(domain.StateRetention)
	if rates > 0 || mods > 0 {
		s.logger.Debug("state sweep", "rate_entries", rates, "moderation_entries", mods)
	}
}

// attrReason builds the rejection-reason metric attribute.
func attrReason(reason string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("reason", reason))
}
