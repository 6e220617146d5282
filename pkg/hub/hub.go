package hub

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/metrics"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"go.uber.org/zap"
)

// Hub is the connection registry and broadcast engine. It owns the
// authoritative metadata for every live socket; consumers only ever
// see read-only snapshots. All mutation happens under the registry
// lock, so connect, disconnect and battery updates are serialized.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Conn]struct{}
	admins  map[*Conn]struct{}
	nextID  uint64 // display id counter, never reused

	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*Conn]struct{}),
		admins:  make(map[*Conn]struct{}),
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// AddClient registers a mobile client socket and assigns it the next
// display id of the form D####.
func (h *Hub) AddClient(ws Socket, ip string) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	c := newConn(ws, models.RoleClient, fmt.Sprintf("D%04d", h.nextID), ip, h.now())
	h.clients[c] = struct{}{}

	if h.metrics != nil {
		h.metrics.WebSocket.ActiveClients.Set(float64(len(h.clients)))
		h.metrics.WebSocket.ConnectionsTotal.Inc()
	}

	return c
}

// AddAdmin registers an admin console socket. The welcome frames are
// queued while the registry lock is held, so they are guaranteed to
// precede any live broadcast to this admin.
func (h *Hub) AddAdmin(ws Socket, ip string, welcome ...interface{}) *Conn {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := newConn(ws, models.RoleAdmin, "", ip, h.now())
	h.admins[c] = struct{}{}

	for _, v := range welcome {
		data, err := json.Marshal(v)
		if err != nil {
			h.logger.Error("Failed to marshal welcome frame", zap.Error(err))
			continue
		}
		c.enqueue(data)
	}

	if h.metrics != nil {
		h.metrics.WebSocket.ActiveAdmins.Set(float64(len(h.admins)))
		h.metrics.WebSocket.ConnectionsTotal.Inc()
	}

	return c
}

// Remove unregisters a socket and closes it. Removing a socket that is
// already gone is a no-op, so the disconnect-command path and the close
// handler cannot double-count the same departure.
func (h *Hub) Remove(c *Conn) bool {
	h.mu.Lock()
	var removed bool
	switch c.role {
	case models.RoleClient:
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			removed = true
		}
		if h.metrics != nil {
			h.metrics.WebSocket.ActiveClients.Set(float64(len(h.clients)))
		}
	case models.RoleAdmin:
		if _, ok := h.admins[c]; ok {
			delete(h.admins, c)
			removed = true
		}
		if h.metrics != nil {
			h.metrics.WebSocket.ActiveAdmins.Set(float64(len(h.admins)))
		}
	}
	h.mu.Unlock()

	if removed {
		c.close()
	}
	return removed
}

// DisconnectByID force-closes the client with the given display id.
// The registry entry is removed before the socket close, so the close
// handler sees an already-unregistered socket and stays silent.
func (h *Hub) DisconnectByID(id string) bool {
	h.mu.Lock()
	var target *Conn
	for c := range h.clients {
		if c.id == id {
			target = c
			break
		}
	}
	if target != nil {
		delete(h.clients, target)
		if h.metrics != nil {
			h.metrics.WebSocket.ActiveClients.Set(float64(len(h.clients)))
		}
	}
	h.mu.Unlock()

	if target == nil {
		return false
	}
	target.close()
	return true
}

// UpdateBattery records a battery report. Unknown sockets are ignored;
// a report can race with its own close event.
func (h *Hub) UpdateBattery(c *Conn, level int) bool {
	if level < 0 || level > 100 {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	c.battery = &level
	return true
}

// Devices returns a snapshot of all client metadata for device_list
// pushes. Order is unspecified.
func (h *Hub) Devices() []models.Device {
	h.mu.RLock()
	defer h.mu.RUnlock()

	devices := make([]models.Device, 0, len(h.clients))
	for c := range h.clients {
		var battery *int
		if c.battery != nil {
			b := *c.battery
			battery = &b
		}
		devices = append(devices, models.Device{
			ID:          c.id,
			Battery:     battery,
			ConnectedAt: c.connectedAt.UnixMilli(),
			IP:          c.ip,
		})
	}
	return devices
}

// Snapshot derives the rollup pushed to admin consoles. Clients that
// have never reported battery are excluded from the average, not
// counted as zero. Stability is a fixed placeholder signal.
func (h *Hub) Snapshot() models.Metrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total, reported := 0, 0
	for c := range h.clients {
		if c.battery != nil {
			total += *c.battery
			reported++
		}
	}

	avgBattery := 0
	if reported > 0 {
		avgBattery = int(math.Round(float64(total) / float64(reported)))
	}

	stability := 0.0
	if len(h.clients) > 0 {
		stability = 99.8
	}

	return models.Metrics{
		Type:        models.EvtMetrics,
		ActiveUsers: len(h.clients),
		AvgBattery:  avgBattery,
		Stability:   stability,
		Timestamp:   h.now().UnixMilli(),
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) AdminCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.admins)
}

// BroadcastToClients serializes v once and delivers it best-effort to
// every registered client socket.
func (h *Hub) BroadcastToClients(v interface{}) {
	h.broadcast(v, models.RoleClient)
}

// BroadcastToAdmins serializes v once and delivers it best-effort to
// every registered admin socket.
func (h *Hub) BroadcastToAdmins(v interface{}) {
	h.broadcast(v, models.RoleAdmin)
}

func (h *Hub) broadcast(v interface{}, role models.Role) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	group := h.clients
	if role == models.RoleAdmin {
		group = h.admins
	}

	for c := range group {
		if c.enqueue(data) && h.metrics != nil {
			h.metrics.WebSocket.BytesSent.Add(float64(len(data)))
		}
	}
}

// Send delivers v to a single socket, best-effort. Sockets that have
// already been removed are skipped.
func (h *Hub) Send(c *Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch c.role {
	case models.RoleClient:
		if _, ok := h.clients[c]; !ok {
			return
		}
	case models.RoleAdmin:
		if _, ok := h.admins[c]; !ok {
			return
		}
	}

	if c.enqueue(data) && h.metrics != nil {
		h.metrics.WebSocket.BytesSent.Add(float64(len(data)))
	}
}

// Close tears down every connection, for server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.clients)+len(h.admins))
	for c := range h.clients {
		conns = append(conns, c)
	}
	for c := range h.admins {
		conns = append(conns, c)
	}
	h.clients = make(map[*Conn]struct{})
	h.admins = make(map[*Conn]struct{})
	if h.metrics != nil {
		h.metrics.WebSocket.ActiveClients.Set(0)
		h.metrics.WebSocket.ActiveAdmins.Set(0)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}
