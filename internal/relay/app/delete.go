package app

import (
	"context"
	"fmt"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

// HandleDelete removes a message on behalf of its owner or a staff member.
// Unauthorized and unknown-id requests are silent no-ops: history is
// unchanged and nothing is broadcast. Deletes are never rate-limited.
func (s *Service) HandleDelete(ctx context.Context, sess *Session, in protocol.Inbound) error {
	ctx, span := tracer.Start(ctx, "Service.HandleDelete")
	defer span.End()

	id, err := domain.NewMessageID(in.EffectiveID())
	if err != nil {
		return err
	}

	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("load message for delete: %w", err)
	}

	if !s.mayDelete(sess, msg) {
		return nil
	}

	if err := s.messages.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.broadcaster.Broadcast(protocol.Delete{
		Type: protocol.TypeDelete,
		ID:   id.String(),
	})
	return nil
}

// mayDelete encodes the delete ownership rules. Owners delete their own
// messages by ephemeral id match; admins delete anything; moderators delete
// anything except staff-authored messages.
func (s *Service) mayDelete(sess *Session, msg *domain.ChatMessage) bool {
	if msg.SenderID == sess.Conn.String() {
		return true
	}
	if sess.Role.IsAdmin() {
		return true
	}
	if sess.Role == domain.RoleModerator {
		return !msg.IsAdmin
	}
	return false
}
