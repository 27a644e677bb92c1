// Package errmap translates domain errors to transport representations.
package errmap

import (
	"errors"

	"github.com/aelexs/chat-relay/internal/domain"
)

// WebSocket close codes per RFC 6455.
// Standard codes: https://datatracker.ietf.org/doc/html/rfc6455#section-7.4
// Application-specific codes use the 4000-4999 range.
const (
	// Standard codes (RFC 6455)
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
	CloseServiceRestart  = 1012
	CloseTryAgainLater   = 1013

	// Application-specific codes (4000-4999)
	CloseInvalidMessage  = 4000
	CloseUnauthorized    = 4001
	CloseForbidden       = 4003
	CloseNotFound        = 4004
	CloseSuperseded      = 4009
	CloseMessageTooLarge = 4013
	CloseRateLimited     = 4029
)

// WebSocketClose represents a close code and reason for WebSocket termination.
type WebSocketClose struct {
	Code   int
	Reason string
}

// ToWebSocketClose converts a domain error to a WebSocket close code and
// reason. Policy rejections never reach this mapping: they are answered with
// reply frames and the connection stays open.
func ToWebSocketClose(err error) WebSocketClose {
	if err == nil {
		return WebSocketClose{Code: CloseNormalClosure, Reason: "normal_closure"}
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return WebSocketClose{Code: CloseUnauthorized, Reason: "unauthorized"}

	case errors.Is(err, domain.ErrForbidden):
		return WebSocketClose{Code: CloseForbidden, Reason: "forbidden"}

	case errors.Is(err, domain.ErrNotFound):
		return WebSocketClose{Code: CloseNotFound, Reason: "not_found"}

	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyID),
		errors.Is(err, domain.ErrInvalidID):
		return WebSocketClose{Code: CloseInvalidMessage, Reason: "invalid_message"}

	case errors.Is(err, domain.ErrMessageTooLarge):
		return WebSocketClose{Code: CloseMessageTooLarge, Reason: "message_too_large"}

	case errors.Is(err, domain.ErrSlowConsumer):
		return WebSocketClose{Code: CloseRateLimited, Reason: "slow_consumer"}

	case errors.Is(err, domain.ErrUnavailable):
		return WebSocketClose{Code: CloseTryAgainLater, Reason: "service_unavailable"}

	default:
		return WebSocketClose{Code: CloseInternalError, Reason: "internal_error"}
	}
}

// ToReplyReason converts a policy rejection to the machine-readable reason
// string carried in send_blocked and send_error frames.
func ToReplyReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrChatLocked):
		return "chat_locked"
	case errors.Is(err, domain.ErrAdminBanned):
		return "admin_banned"
	case errors.Is(err, domain.ErrMuted):
		return "profanity_muted"
	case errors.Is(err, domain.ErrRateBanned):
		return "rate_banned"
	case errors.Is(err, domain.ErrCooldown):
		return "cooldown"
	case errors.Is(err, domain.ErrNicknameBlocked):
		return "nickname_blocked"
	case errors.Is(err, domain.ErrUnavailable):
		return "save_failed"
	default:
		return "rejected"
	}
}

// Common close reasons for special cases not directly mapped to domain errors.
var (
	CloseTokenExpired      = WebSocketClose{Code: CloseUnauthorized, Reason: "token_expired"}
	CloseServerShutdown    = WebSocketClose{Code: CloseGoingAway, Reason: "server_shutdown"}
	CloseProtocolViolation = WebSocketClose{Code: CloseProtocolError, Reason: "protocol_error"}
	CloseDuplicateSession  = WebSocketClose{Code: CloseSuperseded, Reason: "superseded_by_new_connection"}
)
