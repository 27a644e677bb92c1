package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// ID validation errors
	ErrEmptyID   = errors.New("ID cannot be empty")
	ErrInvalidID = errors.New("invalid ID format")

	// Resource errors
	ErrNotFound = errors.New("resource not found")

	// Authorization errors
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("permission denied")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyText       = errors.New("message text is empty")
	ErrInvalidKind     = errors.New("unsupported message kind")
	ErrMessageTooLarge = errors.New("message exceeds size limit")

	// Policy gate rejections. These are expected outcomes reported to the
	// sender as reply frames, never logged as failures.
	ErrChatLocked      = errors.New("chat is locked")
	ErrAdminBanned     = errors.New("banned by a moderator")
	ErrMuted           = errors.New("muted for profanity")
	ErrRateBanned      = errors.New("rate limit ban active")
	ErrCooldown        = errors.New("send cooldown active")
	ErrNicknameBlocked = errors.New("display name contains a banned word")

	// Operational errors
	ErrUnavailable  = errors.New("service temporarily unavailable")
	ErrSlowConsumer = errors.New("client not consuming messages fast enough")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// policyErrors enumerates the gate rejections of the send pipeline.
var policyErrors = []error{
	ErrChatLocked,
	ErrAdminBanned,
	ErrMuted,
	ErrRateBanned,
	ErrCooldown,
	ErrNicknameBlocked,
}

// IsPolicyRejection returns true if the error is a transient policy gate
// rejection: reported to the sender with a machine-readable reason, retried
// freely once the condition clears, and never treated as a server failure.
func IsPolicyRejection(err error) bool {
	for _, target := range policyErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsValidationFailure returns true if the error is a client input problem.
// Per the error taxonomy these are silently dropped (no reply) so probing
// clients do not get a verbose oracle.
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrMessageTooLarge) ||
		errors.Is(err, ErrEmptyID) ||
		errors.Is(err, ErrInvalidID)
}

// IsPermissionDenied returns true if the error represents a permission issue.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized)
}

// IsNotFound returns true if the error represents a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
