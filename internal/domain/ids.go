// Package domain contains pure business logic and types.
// No external dependencies allowed - this is the innermost ring of Clean Architecture.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ConnectionID identifies one live connection. Clients may supply their own
// value to preserve message ownership across a reload; otherwise one is
// generated per connect.
type ConnectionID struct {
	value string
}

// NewConnectionID creates a ConnectionID from a raw string.
// Client-supplied values are accepted in any format up to MaxIDLength.
func NewConnectionID(raw string) (ConnectionID, error) {
	if raw == "" {
		return ConnectionID{}, ErrEmptyID
	}
	if len(raw) > MaxIDLength {
		return ConnectionID{}, fmt.Errorf("connection ID exceeds max length %d: %w", MaxIDLength, ErrInvalidID)
	}
	return ConnectionID{value: raw}, nil
}

// MustConnectionID creates a ConnectionID, panicking on invalid input. Use only in tests.
func MustConnectionID(raw string) ConnectionID {
	id, err := NewConnectionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateConnectionID creates a new random ConnectionID.
func GenerateConnectionID() ConnectionID {
	return ConnectionID{value: uuid.NewString()}
}

func (id ConnectionID) String() string { return id.value }
func (id ConnectionID) IsZero() bool   { return id.value == "" }

// StableID identifies a browser across reconnects. It is the key for
// moderation state and admin ban targeting; the transport remembers it in a
// cookie so strikes survive a reload.
type StableID struct {
	value string
}

// NewStableID creates a StableID from a raw string.
func NewStableID(raw string) (StableID, error) {
	if raw == "" {
		return StableID{}, ErrEmptyID
	}
	if len(raw) > MaxIDLength {
		return StableID{}, fmt.Errorf("stable ID exceeds max length %d: %w", MaxIDLength, ErrInvalidID)
	}
	return StableID{value: raw}, nil
}

// MustStableID creates a StableID, panicking on invalid input. Use only in tests.
func MustStableID(raw string) StableID {
	id, err := NewStableID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateStableID creates a new random StableID.
func GenerateStableID() StableID {
	return StableID{value: uuid.NewString()}
}

func (id StableID) String() string { return id.value }
func (id StableID) IsZero() bool   { return id.value == "" }

// LimiterToken keys rate-limit state. It persists across reconnects when the
// client remembers and resupplies it.
type LimiterToken struct {
	value string
}

// NewLimiterToken creates a LimiterToken from a raw string.
func NewLimiterToken(raw string) (LimiterToken, error) {
	if raw == "" {
		return LimiterToken{}, ErrEmptyID
	}
	if len(raw) > MaxIDLength {
		return LimiterToken{}, fmt.Errorf("limiter token exceeds max length %d: %w", MaxIDLength, ErrInvalidID)
	}
	return LimiterToken{value: raw}, nil
}

// MustLimiterToken creates a LimiterToken, panicking on invalid input. Use only in tests.
func MustLimiterToken(raw string) LimiterToken {
	t, err := NewLimiterToken(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// GenerateLimiterToken creates a new random LimiterToken.
func GenerateLimiterToken() LimiterToken {
	return LimiterToken{value: uuid.NewString()}
}

func (t LimiterToken) String() string { return t.value }
func (t LimiterToken) IsZero() bool   { return t.value == "" }

// MessageID identifies a chat message. Usually client-provided (so the client
// can correlate the ack); the server generates one when absent.
type MessageID struct {
	value string
}

// NewMessageID creates a MessageID from a raw string.
func NewMessageID(raw string) (MessageID, error) {
	if raw == "" {
		return MessageID{}, ErrEmptyID
	}
	if len(raw) > MaxIDLength {
		return MessageID{}, fmt.Errorf("message ID exceeds max length %d: %w", MaxIDLength, ErrInvalidID)
	}
	return MessageID{value: raw}, nil
}

// MustMessageID creates a MessageID, panicking on invalid input. Use only in tests.
func MustMessageID(raw string) MessageID {
	id, err := NewMessageID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateMessageID creates a new random MessageID.
func GenerateMessageID() MessageID {
	return MessageID{value: uuid.NewString()}
}

func (id MessageID) String() string { return id.value }
func (id MessageID) IsZero() bool   { return id.value == "" }
