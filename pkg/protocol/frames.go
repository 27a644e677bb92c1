// Package protocol defines the relay wire format: newline-delimited JSON
// objects, each a flat map with a `type` discriminator. Inbound frames share
// one envelope struct; outbound frames are one struct per type so a handler
// can never send a half-filled reply.
package protocol

import (
	"encoding/json"

	"github.com/aelexs/chat-relay/internal/domain"
)

// Inbound wire types beyond the send kinds (text/image/audio/video/file).
const (
	TypePresence = "presence"
	TypeTyping   = "typing"
	TypePing     = "ping"
	TypeDelete   = "delete"
	TypeAdminBan = "admin_ban"
	TypeChatLock = "chat_lock"
	TypeWipe     = "wipe"
)

// Outbound wire types.
const (
	TypeWelcome         = "welcome"
	TypeHistory         = "history"
	TypeAck             = "ack"
	TypeBanned          = "banned"
	TypeCooldown        = "cooldown"
	TypeAdminMute       = "admin_mute"
	TypeProfanityStrike = "profanity_strike"
	TypeProfanityMuted  = "profanity_muted"
	TypeOnline          = "online"
	TypeSystem          = "system"
	TypeSendBlocked     = "send_blocked"
	TypeSendError       = "send_error"
)

// Inbound is the envelope for every client frame. Fields are a union across
// frame types; the handler reads only the ones its type defines. Accepts
// both `messageId` and `id` for send kinds (older clients sent `messageId`).
type Inbound struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// Send payload fields
	Text      string          `json:"text,omitempty"`
	HTML      string          `json:"html,omitempty"`
	URL       string          `json:"url,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	Mime      string          `json:"mime,omitempty"`
	Size      int64           `json:"size,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	AdminMeta json.RawMessage `json:"adminStyleMeta,omitempty"`

	// Presence / typing
	Online   *bool `json:"online,omitempty"`
	IsTyping bool  `json:"isTyping,omitempty"`
	TS       int64 `json:"ts,omitempty"`

	// Staff operations
	Target     string `json:"target,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Locked     *bool  `json:"locked,omitempty"`
}

// EffectiveID returns the message id, preferring the `messageId` spelling.
func (in Inbound) EffectiveID() string {
	if in.MessageID != "" {
		return in.MessageID
	}
	return in.ID
}

// Welcome is the first frame on every connection. It echoes the identity
// handles so the client can persist them, plus the moderation snapshot.
type Welcome struct {
	Type             string `json:"type"`
	ClientID         string `json:"clientId"`
	Token            string `json:"token"`
	SID              string `json:"sid"`
	ProfanityStrikes int    `json:"profanityStrikes"`
	ProfanityMuted   bool   `json:"profanityMuted"`
	MuteUntil        int64  `json:"muteUntil,omitempty"`
	InstanceID       string `json:"instanceId"`
}

// History replays the persisted messages, oldest first.
type History struct {
	Type  string               `json:"type"`
	Items []domain.ChatMessage `json:"items"`
}

// Ack confirms a send (or answers a ping) with the server clock and instance
// id, used by clients for liveness and clock sync.
type Ack struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	MessageID  string `json:"messageId"`
	ServerTime string `json:"serverTime"`
	InstanceID string `json:"instanceId"`
}

// Banned reports an active rate-limit ban.
type Banned struct {
	Type    string `json:"type"`
	Until   int64  `json:"until"`
	Seconds int    `json:"seconds"`
	Strikes int    `json:"strikes"`
	Reason  string `json:"reason"`
}

// Cooldown reports a minimum-spacing rejection. No strike is attached; the
// client-side guard should normally prevent this frame from ever occurring.
type Cooldown struct {
	Type        string `json:"type"`
	RemainingMs int64  `json:"remainingMs"`
}

// AdminMute informs a client that a staff-issued ban applies to it.
type AdminMute struct {
	Type    string `json:"type"`
	Until   int64  `json:"until"`
	Seconds int    `json:"seconds"`
	By      string `json:"by,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// ProfanityStrike notifies the sender that its message was redacted and a
// strike applied. Sent alongside the (filtered) broadcast.
type ProfanityStrike struct {
	Type       string   `json:"type"`
	Strikes    int      `json:"strikes"`
	Muted      bool     `json:"muted"`
	MuteUntil  int64    `json:"muteUntil,omitempty"`
	Seconds    int      `json:"seconds"`
	FoundWords []string `json:"foundWords"`
	Message    string   `json:"message"`
}

// ProfanityMuted rejects a send attempted during an active profanity mute.
type ProfanityMuted struct {
	Type      string `json:"type"`
	Strikes   int    `json:"strikes"`
	MuteUntil int64  `json:"muteUntil"`
	Seconds   int    `json:"seconds"`
	Reason    string `json:"reason"`
	Message   string `json:"message"`
}

// Delete tells clients to drop a message from their view. Also the inbound
// request shape (only `id` is read).
type Delete struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// RosterEntry annotates one online connection in the Online frame.
type RosterEntry struct {
	ClientID string `json:"clientId"`
	Nickname string `json:"nickname,omitempty"`
	Role     string `json:"role"`
}

// Online carries the recomputed presence count after any change.
type Online struct {
	Type   string        `json:"type"`
	Count  int           `json:"count"`
	Roster []RosterEntry `json:"roster,omitempty"`
}

// System is a human-readable server notice shown inline in the chat.
type System struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SendBlocked rejects a send for a non-rate policy reason (chat lock).
type SendBlocked struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SendError reports a persistence failure for one message. The message was
// not saved and will not be broadcast; the connection stays open.
type SendError struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Typing is relayed to all connections except the sender, unthrottled.
type Typing struct {
	Type     string `json:"type"`
	SenderID string `json:"senderId"`
	Nickname string `json:"nickname"`
	IsTyping bool   `json:"isTyping"`
	TS       int64  `json:"ts"`
}

// ChatLock announces a change of the global chat lock.
type ChatLock struct {
	Type   string `json:"type"`
	Locked bool   `json:"locked"`
	By     string `json:"by,omitempty"`
}
