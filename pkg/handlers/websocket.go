package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectionController attaches upgraded sockets to the coordination
// core. Both methods block until the socket closes.
type ConnectionController interface {
	AttachClient(ctx context.Context, ws hub.Socket, ip string)
	AttachAdmin(ctx context.Context, ws hub.Socket, token, ip string)
}

type WebSocketHandler struct {
	control  ConnectionController
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(control ConnectionController, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		control: control,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and hands the socket to the
// control service. Role defaults to client; admin requires a token.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	token := r.URL.Query().Get("token")
	ip := clientIP(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	h.logger.Info("WebSocket connection",
		zap.String("role", role),
		zap.String("ip", ip))

	if role == string(models.RoleAdmin) {
		h.control.AttachAdmin(r.Context(), conn, token, ip)
		return
	}
	h.control.AttachClient(r.Context(), conn, ip)
}

// clientIP prefers the proxy-forwarded address, best-effort.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
