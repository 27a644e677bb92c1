package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

// HandleAdminBan applies a staff-issued ban to a stable id. Rules: the actor
// must be staff, may not target itself, and a moderator may not target
// another staff member. The banned client (all of its live connections) is
// notified and a system notice is broadcast.
func (s *Service) HandleAdminBan(ctx context.Context, sess *Session, in protocol.Inbound) error {
	ctx, span := tracer.Start(ctx, "Service.HandleAdminBan")
	defer span.End()

	if !sess.IsStaff() {
		return domain.ErrForbidden
	}

	target, err := domain.NewStableID(in.Target)
	if err != nil {
		return err
	}
	if target == sess.Stable {
		return fmt.Errorf("self-target ban: %w", domain.ErrForbidden)
	}
	if role, ok := s.broadcaster.StableRole(target); ok && role.IsStaff() && !sess.Role.IsAdmin() {
		return fmt.Errorf("moderator targeting staff: %w", domain.ErrForbidden)
	}

	actor := sess.Username
	if actor == "" {
		actor = sess.Nickname
	}

	duration := time.Duration(in.DurationMs) * time.Millisecond
	ban, err := s.moderation.Ban(ctx, target, actor, in.Reason, duration, sess.Role == domain.RoleModerator)
	if err != nil {
		return err
	}

	now := domain.NowUTCMillis(s.clock)
	if duration > 0 {
		s.broadcaster.SendToStable(target, protocol.AdminMute{
			Type:    protocol.TypeAdminMute,
			Until:   ban.Until,
			Seconds: int((ban.Until - now + 999) / 1000),
			By:      ban.By,
			Reason:  ban.Reason,
		})
		s.broadcaster.Broadcast(protocol.System{
			Type:      protocol.TypeSystem,
			Text:      fmt.Sprintf("A user was muted by %s.", actor),
			Timestamp: now,
		})
	} else {
		s.broadcaster.Broadcast(protocol.System{
			Type:      protocol.TypeSystem,
			Text:      fmt.Sprintf("A user was unmuted by %s.", actor),
			Timestamp: now,
		})
	}
	return nil
}

// HandleChatLock toggles the global chat lock. Admin only.
func (s *Service) HandleChatLock(ctx context.Context, sess *Session, in protocol.Inbound) error {
	ctx, span := tracer.Start(ctx, "Service.HandleChatLock")
	defer span.End()

	if !sess.Role.IsAdmin() {
		return domain.ErrForbidden
	}
	if in.Locked == nil {
		return fmt.Errorf("chat_lock without locked flag: %w", domain.ErrInvalidInput)
	}

	if err := s.moderation.SetLocked(ctx, *in.Locked); err != nil {
		return err
	}

	actor := sess.Username
	if actor == "" {
		actor = sess.Nickname
	}
	s.broadcaster.Broadcast(protocol.ChatLock{
		Type:   protocol.TypeChatLock,
		Locked: *in.Locked,
		By:     actor,
	})
	return nil
}

// HandleWipe clears the whole history. Admin only; clients are told via a
// system notice so their views reset together.
func (s *Service) HandleWipe(ctx context.Context, sess *Session) error {
	ctx, span := tracer.Start(ctx, "Service.HandleWipe")
	defer span.End()

	if !sess.Role.IsAdmin() {
		return domain.ErrForbidden
	}

	count, err := s.messages.WipeAll(ctx)
	if err != nil {
		return fmt.Errorf("wipe history: %w", err)
	}
	s.logger.Info("history wiped", "messages_removed", count, "by", sess.Conn.String())

	s.broadcaster.Broadcast(protocol.System{
		Type:      protocol.TypeSystem,
		Text:      "Chat history was cleared by an administrator.",
		Timestamp: domain.NowUTCMillis(s.clock),
	})
	return nil
}
