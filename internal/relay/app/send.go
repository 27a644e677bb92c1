package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

// HandleSend runs the full send pipeline for one inbound chat message:
// validate and normalize, apply the policy gates in order, persist, ack,
// broadcast. The returned error is for caller-side debug logging only;
// every client-visible outcome has already been delivered as a reply frame
// (or deliberately withheld, for validation failures).
func (s *Service) HandleSend(ctx context.Context, sess *Session, in protocol.Inbound) error {
	ctx, span := tracer.Start(ctx, "Service.HandleSend")
	defer span.End()
	span.SetAttributes(attribute.String("message.kind", in.Type))

	msg, err := s.buildMessage(sess, in)
	if err != nil {
		// Validation failures are silently dropped: no reply frame, so a
		// probing client learns nothing about the input checks.
		sendsRejectedTotal.Add(ctx, 1, attrReason("invalid"))
		return err
	}

	strike, err := s.applyGates(ctx, sess, &msg)
	if err != nil {
		sendsRejectedTotal.Add(ctx, 1, attrReason(gateReason(err)))
		return err
	}

	if err := s.messages.Save(ctx, msg); err != nil {
		// Fatal for this message only: explicit error to the sender, no
		// broadcast, connection stays up.
		s.logger.Error("message save failed", "message_id", msg.ID, "error", err)
		s.broadcaster.SendTo(sess.Conn, protocol.SendError{
			Type:   protocol.TypeSendError,
			ID:     msg.ID,
			Reason: "save_failed",
		})
		sendsRejectedTotal.Add(ctx, 1, attrReason("save_failed"))
		return fmt.Errorf("save message: %w", err)
	}

	if err := s.messages.PruneToLimit(ctx, s.historyLimit); err != nil {
		s.logger.Warn("history prune failed", "error", err)
	}

	s.broadcaster.SendTo(sess.Conn, protocol.Ack{
		Type:       protocol.TypeAck,
		ID:         msg.ID,
		MessageID:  msg.ID,
		ServerTime: s.clock.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		InstanceID: s.instanceID,
	})

	s.broadcaster.Broadcast(msg)
	messagesAcceptedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(msg.Kind))))
	broadcastsTotal.Add(ctx, 1)

	// The strike notice trails the ack so the sender sees its message land
	// before the warning.
	if strike != nil {
		s.broadcaster.SendTo(sess.Conn, *strike)
	}
	return nil
}

// buildMessage assembles and validates the ChatMessage for one send frame.
func (s *Service) buildMessage(sess *Session, in protocol.Inbound) (domain.ChatMessage, error) {
	if in.Nickname != "" {
		sess.Nickname = in.Nickname
	}

	id := in.EffectiveID()
	if id == "" {
		id = domain.GenerateMessageID().String()
	} else if _, err := domain.NewMessageID(id); err != nil {
		return domain.ChatMessage{}, err
	}

	ts := in.Timestamp
	if ts <= 0 {
		ts = domain.NowUTCMillis(s.clock)
	}

	msg := domain.ChatMessage{
		Kind:      domain.MessageKind(in.Type),
		ID:        id,
		SenderID:  sess.Conn.String(),
		SenderSID: sess.Stable.String(),
		Nickname:  sess.Nickname,
		Timestamp: ts,
		Text:      in.Text,
		HTML:      in.HTML,
		URL:       in.URL,
		Filename:  in.Filename,
		Mime:      in.Mime,
		Size:      in.Size,
		Caption:   in.Caption,
	}
	if sess.IsStaff() {
		msg.IsAdmin = true
		msg.AdminMeta = in.AdminMeta
	}

	msg.Normalize()
	if err := msg.Validate(); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// applyGates runs the policy gate sequence. Order matters: lock, staff ban,
// profanity mute, rate limit, display name, content filter. While chat is
// locked only an admin may send; moderators pass the remaining gates like
// other staff. Each rejection replies with its frame and stops the pipeline.
// A non-nil strike notice means the message was redacted but still flows; the
// caller delivers it after the ack.
func (s *Service) applyGates(ctx context.Context, sess *Session, msg *domain.ChatMessage) (*protocol.ProfanityStrike, error) {
	if s.moderation.Locked() && !sess.Role.IsAdmin() {
		s.broadcaster.SendTo(sess.Conn, protocol.SendBlocked{
			Type:   protocol.TypeSendBlocked,
			Reason: "chat_locked",
		})
		return nil, domain.ErrChatLocked
	}

	if sess.IsStaff() {
		return nil, nil
	}

	now := domain.NowUTCMillis(s.clock)

	if ban, ok := s.moderation.CheckAdminBan(sess.Stable); ok {
		s.broadcaster.SendTo(sess.Conn, protocol.AdminMute{
			Type:    protocol.TypeAdminMute,
			Until:   ban.Until,
			Seconds: int((ban.Until - now + 999) / 1000),
			By:      ban.By,
			Reason:  ban.Reason,
		})
		return nil, domain.ErrAdminBanned
	}

	if muted, strikes, muteUntil := s.moderation.CheckMuted(sess.Stable); muted {
		s.broadcaster.SendTo(sess.Conn, protocol.ProfanityMuted{
			Type:      protocol.TypeProfanityMuted,
			Strikes:   strikes,
			MuteUntil: muteUntil,
			Seconds:   int((muteUntil - now + 999) / 1000),
			Reason:    "muted_attempt",
			Message:   "You are muted for inappropriate language.",
		})
		return nil, domain.ErrMuted
	}

	switch verdict := s.limiter.CheckSend(sess.Limiter); verdict.Decision {
	case SendCooldown:
		s.broadcaster.SendTo(sess.Conn, protocol.Cooldown{
			Type:        protocol.TypeCooldown,
			RemainingMs: verdict.RemainingMs,
		})
		return nil, domain.ErrCooldown
	case SendBanned:
		s.broadcaster.SendTo(sess.Conn, protocol.Banned{
			Type:    protocol.TypeBanned,
			Until:   verdict.BanUntil,
			Seconds: verdict.BanSeconds,
			Strikes: verdict.Strikes,
			Reason:  "rate_limit",
		})
		bansTotal.Add(ctx, 1)
		return nil, domain.ErrRateBanned
	}

	if s.filter.Matches(msg.Nickname) {
		s.broadcaster.SendTo(sess.Conn, protocol.SendBlocked{
			Type:   protocol.TypeSendBlocked,
			Reason: "nickname_blocked",
		})
		return nil, domain.ErrNicknameBlocked
	}

	return s.filterContent(ctx, sess, msg), nil
}

// filterContent masks banned words in the message body and applies a strike
// when anything was found. The redacted message still flows: the sender is
// told via the returned notice while everyone else sees the masked text.
func (s *Service) filterContent(ctx context.Context, sess *Session, msg *domain.ChatMessage) *protocol.ProfanityStrike {
	maskedText, foundText := s.filter.Scan(msg.Text)
	maskedCaption, foundCaption := s.filter.Scan(msg.Caption)
	if len(foundText) == 0 && len(foundCaption) == 0 {
		return nil
	}

	msg.Text = maskedText
	msg.Caption = maskedCaption
	// Markup cannot be masked reliably, so a flagged message loses it.
	msg.HTML = ""

	found := append(foundText, foundCaption...)
	res := s.moderation.RecordStrike(sess.Stable)
	strikesTotal.Add(ctx, 1)

	return &protocol.ProfanityStrike{
		Type:       protocol.TypeProfanityStrike,
		Strikes:    res.Strikes,
		Muted:      res.Muted,
		MuteUntil:  res.MuteUntil,
		Seconds:    res.Seconds,
		FoundWords: found,
		Message:    "Watch your language. Your message was redacted.",
	}
}

// gateReason maps a gate error to its metric label.
func gateReason(err error) string {
	switch err {
	case domain.ErrChatLocked:
		return "chat_locked"
	case domain.ErrAdminBanned:
		return "admin_banned"
	case domain.ErrMuted:
		return "muted"
	case domain.ErrCooldown:
		return "cooldown"
	case domain.ErrRateBanned:
		return "rate_banned"
	case domain.ErrNicknameBlocked:
		return "nickname_blocked"
	default:
		return "other"
	}
}
