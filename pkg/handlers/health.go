package handlers

import (
	"fmt"
	"net/http"

	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"go.uber.org/zap"
)

type HealthCheckHandler struct {
	hub    *hub.Hub
	logger *zap.Logger
}

func NewHealthCheckHandler(h *hub.Hub, logger *zap.Logger) *HealthCheckHandler {
	return &HealthCheckHandler{
		hub:    h,
		logger: logger,
	}
}

func (h *HealthCheckHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	clients := h.hub.ClientCount()
	admins := h.hub.AdminCount()
	h.logger.Debug("Health check", zap.Int("clients", clients), zap.Int("admins", admins))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","client_count":%d,"admin_count":%d}`, clients, admins)
}
