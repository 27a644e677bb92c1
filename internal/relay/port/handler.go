package port

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/internal/errmap"
	"github.com/aelexs/chat-relay/internal/relay/app"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

// Handler upgrades HTTP requests to WebSocket connections and dispatches
// inbound frames to the relay service.
type Handler struct {
	service  *app.Service
	registry *Registry
	resolver *IdentityResolver
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// HandlerConfig holds the dependencies for Handler.
type HandlerConfig struct {
	Service  *app.Service
	Registry *Registry
	Resolver *IdentityResolver
	Logger   *slog.Logger
}

// NewHandler creates the WebSocket handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		service:  cfg.Service,
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The relay is same-origin in production deployments and the
			// moderation state is cookie-scoped anyway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles one connection for its whole lifetime.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	sess, hints := h.resolver.Resolve(req)
	SetStableCookie(w, sess.Stable)

	ws, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}

	conn := NewConn(ws, sess, h.logger)
	h.registry.Add(conn)
	go conn.writePump()

	ctx := req.Context()
	h.service.SeedModeration(sess, hints.Strikes, hints.MuteUntil)
	if err := h.service.Register(ctx, sess); err != nil {
		h.logger.Error("connection registration failed",
			"conn_id", sess.Conn.String(), "error", err)
	}

	h.logger.Info("connection open",
		"conn_id", sess.Conn.String(),
		"role", string(sess.Role),
	)

	conn.readLoop(func(data []byte) {
		h.dispatch(ctx, sess, data)
	})

	// Release the writer goroutine; the read side is already gone.
	conn.CloseWith(errmap.WebSocketClose{Code: websocket.CloseNormalClosure})
	h.registry.Remove(conn)
	h.service.Unregister(sess)
	h.logger.Info("connection closed", "conn_id", sess.Conn.String())
}

// dispatch parses one frame and routes it by type. Malformed JSON and
// unknown types are dropped without a reply.
func (h *Handler) dispatch(ctx context.Context, sess *app.Session, data []byte) {
	var in protocol.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		h.logger.Debug("dropping malformed frame", "conn_id", sess.Conn.String())
		return
	}

	switch {
	case domain.IsSendKind(domain.MessageKind(in.Type)):
		if err := h.service.HandleSend(ctx, sess, in); err != nil {
			h.logger.Debug("send rejected",
				"conn_id", sess.Conn.String(),
				"kind", in.Type,
				"error", err,
			)
		}
		return
	}

	switch in.Type {
	case protocol.TypePresence:
		h.service.HandlePresence(sess, in)
	case protocol.TypeTyping:
		h.service.HandleTyping(sess, in)
	case protocol.TypePing:
		h.service.HandlePing(sess, in)
	case protocol.TypeDelete:
		if err := h.service.HandleDelete(ctx, sess, in); err != nil {
			h.logger.Debug("delete dropped", "conn_id", sess.Conn.String(), "error", err)
		}
	case protocol.TypeAdminBan:
		if err := h.service.HandleAdminBan(ctx, sess, in); err != nil {
			h.logger.Debug("admin_ban dropped", "conn_id", sess.Conn.String(), "error", err)
		}
	case protocol.TypeChatLock:
		if err := h.service.HandleChatLock(ctx, sess, in); err != nil {
			h.logger.Debug("chat_lock dropped", "conn_id", sess.Conn.String(), "error", err)
		}
	case protocol.TypeWipe:
		if err := h.service.HandleWipe(ctx, sess); err != nil {
			h.logger.Debug("wipe dropped", "conn_id", sess.Conn.String(), "error", err)
		}
	default:
		// Unknown types are ignored.
	}
}
