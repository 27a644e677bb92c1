package port

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aelexs/chat-relay/internal/auth"
	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/relay/app"
)

// ModerationHints are the client-remembered strike values presented on
// connect. Untrusted; the moderation engine clamps and max-merges them.
type ModerationHints struct {
	Strikes   int
	MuteUntil int64
}

// IdentityResolver derives a Session from the connect request: ephemeral
// connection id, persistent limiter token and stable id, and the role from
// an optional verified auth token.
type IdentityResolver struct {
	verifier *auth.Verifier
	logger   *slog.Logger
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(verifier *auth.Verifier, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{verifier: verifier, logger: logger}
}

// Resolve builds the session for one connect request.
//
// Sources, in order of preference:
//   - stable id: `sid` cookie, then `sid` query param, else generated
//   - connection id: `conn_id` query param, else generated
//   - limiter token: `token` query param, else generated; a client-supplied
//     token is honored so rate state persists across reconnects
//   - role: `auth` query param through the verifier; any failure means guest
//
// Hints (`strikes`, `mute_until` cookies) ride along for the moderation
// engine to merge.
func (r *IdentityResolver) Resolve(req *http.Request) (*app.Session, ModerationHints) {
	query := req.URL.Query()

	stable := r.resolveStable(req)

	connID := domain.GenerateConnectionID()
	if raw := query.Get("conn_id"); raw != "" {
		if id, err := domain.NewConnectionID(raw); err == nil {
			connID = id
		}
	}

	limiter := domain.GenerateLimiterToken()
	if raw := query.Get("token"); raw != "" {
		if tok, err := domain.NewLimiterToken(raw); err == nil {
			limiter = tok
		}
	}

	identity := auth.GuestIdentity
	if raw := query.Get("auth"); raw != "" {
		resolved, err := r.verifier.Verify(raw)
		if err != nil {
			r.logger.Debug("auth token rejected, continuing as guest", "error", err)
		} else {
			identity = resolved
		}
	}

	sess := &app.Session{
		Conn:      connID,
		Stable:    stable,
		Limiter:   limiter,
		AccountID: identity.ID,
		Username:  identity.Username,
		Role:      identity.Role,
		Nickname:  identity.Username,
	}
	return sess, readHints(req)
}

func (r *IdentityResolver) resolveStable(req *http.Request) domain.StableID {
	if cookie, err := req.Cookie("sid"); err == nil && cookie.Value != "" {
		if sid, err := domain.NewStableID(cookie.Value); err == nil {
			return sid
		}
	}
	if raw := req.URL.Query().Get("sid"); raw != "" {
		if sid, err := domain.NewStableID(raw); err == nil {
			return sid
		}
	}
	return domain.GenerateStableID()
}

// readHints parses the remembered moderation cookies. Garbage parses to
// zero, which the max-merge treats as "no hint".
func readHints(req *http.Request) ModerationHints {
	var hints ModerationHints
	if cookie, err := req.Cookie("strikes"); err == nil {
		if n, err := strconv.Atoi(cookie.Value); err == nil {
			hints.Strikes = n
		}
	}
	if cookie, err := req.Cookie("mute_until"); err == nil {
		if ms, err := strconv.ParseInt(cookie.Value, 10, 64); err == nil {
			hints.MuteUntil = ms
		}
	}
	return hints
}

// SetStableCookie persists the stable id on the response so the browser
// presents it on the next connect.
func SetStableCookie(w http.ResponseWriter, sid domain.StableID) {
	http.SetCookie(w, &http.Cookie{
		Name:     "sid",
		Value:    sid.String(),
		Path:     "/",
		MaxAge:   365 * 24 * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
