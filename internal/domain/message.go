package domain

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// MessageKind discriminates the send-type payloads. It doubles as the wire
// `type` field of a broadcast chat message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindAudio MessageKind = "audio"
	KindVideo MessageKind = "video"
	KindFile  MessageKind = "file"
)

// IsSendKind checks whether a wire type names a gated, persisted chat
// message (as opposed to presence, typing, ping and control frames).
func IsSendKind(k MessageKind) bool {
	switch k {
	case KindText, KindImage, KindAudio, KindVideo, KindFile:
		return true
	}
	return false
}

// ChatMessage is one relayed chat event. Immutable once broadcast; persisted
// before any client sees it. JSON field names are the wire format, so a
// stored message broadcasts verbatim.
type ChatMessage struct {
	Kind      MessageKind     `json:"type"`
	ID        string          `json:"id"`
	SenderID  string          `json:"senderId"`
	SenderSID string          `json:"senderSid,omitempty"`
	Nickname  string          `json:"nickname,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Text      string          `json:"text,omitempty"`
	HTML      string          `json:"html,omitempty"`
	URL       string          `json:"url,omitempty"`
	Filename  string          `json:"filename,omitempty"`
	Mime      string          `json:"mime,omitempty"`
	Size      int64           `json:"size,omitempty"`
	Caption   string          `json:"caption,omitempty"`
	IsAdmin   bool            `json:"isAdmin,omitempty"`
	AdminMeta json.RawMessage `json:"adminStyleMeta,omitempty"`
}

// Normalize clamps free-form fields to their limits and defaults the
// nickname. Call before Validate.
func (m *ChatMessage) Normalize() {
	if strings.TrimSpace(m.Nickname) == "" {
		m.Nickname = "Anonymous"
	}
	m.Nickname = truncate(m.Nickname, MaxNicknameLength)
	m.Text = truncate(m.Text, MaxTextLength)
	m.HTML = truncate(m.HTML, MaxHTMLLength)
	m.Caption = truncate(m.Caption, MaxCaptionLength)
}

// Validate checks the kind-specific required fields.
func (m ChatMessage) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	if !IsSendKind(m.Kind) {
		return fmt.Errorf("kind %q: %w", m.Kind, ErrInvalidKind)
	}
	switch m.Kind {
	case KindText:
		if strings.TrimSpace(m.Text) == "" {
			return ErrEmptyText
		}
	default:
		if strings.TrimSpace(m.URL) == "" {
			return fmt.Errorf("%s message without url: %w", m.Kind, ErrInvalidInput)
		}
	}
	return nil
}

// AttachmentName derives the stored upload filename from the message URL.
// Empty for messages without an attachment.
func (m ChatMessage) AttachmentName() string {
	if m.URL == "" {
		return ""
	}
	raw := m.URL
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	name := path.Base(raw)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune,
// so a clamped field stays valid UTF-8 on the wire.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
