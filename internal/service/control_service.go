package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/auth"
	"github.com/crowdflash/crowdflash-server/pkg/eventlog"
	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"github.com/crowdflash/crowdflash-server/pkg/metrics"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// metricsPushInterval is the self-heal tick: admin consoles get a
// fresh rollup even if an event-driven push was missed.
const metricsPushInterval = 3 * time.Second

// historyReplayDepth is how many log entries a newly attached admin
// receives.
const historyReplayDepth = 30

type adminHandler func(msg *models.Inbound)
type clientHandler func(c *hub.Conn, msg *models.Inbound)

// ControlService routes inbound socket messages by role, drives the
// registry and broadcast engine, and keeps admin consoles fed with
// metrics, device list and log pushes.
type ControlService struct {
	hub     *hub.Hub
	log     *eventlog.Log
	auth    *auth.Service
	logger  *zap.Logger
	metrics *metrics.Metrics

	adminHandlers  map[models.MessageType]adminHandler
	clientHandlers map[models.MessageType]clientHandler

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewControlService(h *hub.Hub, log *eventlog.Log, authService *auth.Service, logger *zap.Logger) *ControlService {
	s := &ControlService{
		hub:            h,
		log:            log,
		auth:           authService,
		logger:         logger,
		adminHandlers:  make(map[models.MessageType]adminHandler),
		clientHandlers: make(map[models.MessageType]clientHandler),
	}

	s.registerAdminHandlers()
	s.registerClientHandlers()

	// Live log entries stream to every attached admin console.
	log.AddSink(func(entry models.LogEntry) {
		s.hub.BroadcastToAdmins(models.LogEntryEvent{Type: models.EvtLogEntry, Entry: entry})
		if s.metrics != nil {
			s.metrics.Fleet.LogEntries.WithLabelValues(string(entry.Type)).Inc()
		}
	})

	return s
}

func (s *ControlService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start launches the periodic metrics push.
func (s *ControlService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("control service is already running")
	}
	s.isRunning = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.pushLoop(ctx)

	return nil
}

func (s *ControlService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("Stopping control service")
	s.cancel()
	s.wg.Wait()
}

func (s *ControlService) pushLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(metricsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushMetrics()
		}
	}
}

// AttachClient registers a freshly upgraded mobile client socket and
// services it until the socket closes. Blocks the caller's goroutine
// for the lifetime of the connection.
func (s *ControlService) AttachClient(ctx context.Context, ws hub.Socket, ip string) {
	c := s.hub.AddClient(ws, ip)
	go c.WritePump()

	s.log.Append(models.LogNET,
		fmt.Sprintf("+1 new connection (%s) – Total: %d", c.ID(), s.hub.ClientCount()))
	s.pushMetrics()
	s.pushDeviceList()

	s.hub.Send(c, models.Connected(c.ID()))
	s.hub.BroadcastToClients(models.ClientCount(s.hub.ClientCount()))

	c.ReadPump(func(raw []byte) {
		s.handleClientFrame(c, raw)
	})
	s.detachClient(c)
}

// AttachAdmin verifies the session token and, if valid, registers the
// admin console and services it until the socket closes. On a bad
// token the socket gets one Unauthorized notice and is closed without
// ever entering the registry.
func (s *ControlService) AttachAdmin(ctx context.Context, ws hub.Socket, token, ip string) {
	if !s.auth.VerifyToken(ctx, token) {
		if s.metrics != nil {
			s.metrics.WebSocket.AuthErrors.Inc()
		}
		s.logger.Warn("Rejected admin handshake", zap.String("ip", ip))

		if data, err := json.Marshal(models.Error("Unauthorized")); err == nil {
			ws.WriteMessage(websocket.TextMessage, data)
		}
		ws.Close()
		return
	}

	// History is queued while the registry lock is held, so the new
	// console sees history strictly before any live entry.
	history := models.LogHistoryEvent{
		Type:    models.EvtLogHistory,
		Entries: s.log.Snapshot(historyReplayDepth),
	}
	c := s.hub.AddAdmin(ws, ip, s.hub.Snapshot(), history)
	go c.WritePump()

	s.pushDeviceList()
	s.log.Append(models.LogSYS, "Admin console connected")

	c.ReadPump(func(raw []byte) {
		s.handleAdminFrame(raw)
	})
	s.detachAdmin(c)
}

func (s *ControlService) detachClient(c *hub.Conn) {
	if !s.hub.Remove(c) {
		// Already removed by an admin disconnect command.
		return
	}

	s.log.Append(models.LogNET,
		fmt.Sprintf("Device %s disconnected – Total: %d", c.ID(), s.hub.ClientCount()))
	s.pushMetrics()
	s.pushDeviceList()
	s.hub.BroadcastToClients(models.ClientCount(s.hub.ClientCount()))
}

func (s *ControlService) detachAdmin(c *hub.Conn) {
	if !s.hub.Remove(c) {
		return
	}
	s.log.Append(models.LogSYS, "Admin console disconnected")
}

func (s *ControlService) handleAdminFrame(raw []byte) {
	var msg models.Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Malformed frames are dropped, the socket stays up.
		return
	}

	if s.metrics != nil {
		s.metrics.WebSocket.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	}

	handler, ok := s.adminHandlers[msg.Type]
	if !ok {
		// Unknown types are ignored for forward compatibility.
		return
	}
	handler(&msg)
}

func (s *ControlService) handleClientFrame(c *hub.Conn, raw []byte) {
	var msg models.Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	if s.metrics != nil {
		s.metrics.WebSocket.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
	}

	handler, ok := s.clientHandlers[msg.Type]
	if !ok {
		return
	}
	handler(c, &msg)
}

func (s *ControlService) registerAdminHandlers() {
	s.adminHandlers[models.CmdFlashOn] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdFlashOn})
		s.log.Append(models.LogCMD, "Master trigger: FLASH ON")
	}

	s.adminHandlers[models.CmdFlashOff] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdFlashOff})
		s.log.Append(models.LogCMD, "Master trigger: FLASH OFF")
	}

	s.adminHandlers[models.CmdFlashPattern] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdFlashPattern, Pattern: msg.Pattern})
		s.log.Append(models.LogCMD, fmt.Sprintf("Triggered pattern: %s", msg.Pattern))
	}

	// flash_pulse arrives at BPM or beat-detection frequency; logging
	// it would flood the event log.
	s.adminHandlers[models.CmdFlashPulse] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdFlashPulse, Duration: msg.Duration})
	}

	s.adminHandlers[models.CmdSetBPM] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdSetBPM, BPM: msg.BPM})
		s.log.Append(models.LogSYS, fmt.Sprintf("BPM updated to %d", msg.BPM))
	}

	s.adminHandlers[models.CmdSetStrobe] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdSetStrobe, Hz: msg.Hz})
		s.log.Append(models.LogSYS, fmt.Sprintf("Strobe rate set to %g Hz", msg.Hz))
	}

	s.adminHandlers[models.CmdCountdownStart] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdCountdownStart, Seconds: msg.Seconds})
		s.log.Append(models.LogCMD, fmt.Sprintf("Countdown started: %ds", msg.Seconds))
	}

	s.adminHandlers[models.CmdStartRecording] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdStartRecording})
		s.log.Append(models.LogCMD, "Recording started on all devices")
	}

	s.adminHandlers[models.CmdStopRecording] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdStopRecording})
		s.log.Append(models.LogCMD, "Recording stopped on all devices")
	}

	s.adminHandlers[models.CmdDisconnectClient] = func(msg *models.Inbound) {
		if !s.hub.DisconnectByID(msg.ID) {
			return
		}
		if s.metrics != nil {
			s.metrics.Commands.ForcedDisconnects.Inc()
		}
		s.log.Append(models.LogCMD, fmt.Sprintf("Admin disconnected device %s", msg.ID))
		s.pushMetrics()
		s.pushDeviceList()
		s.hub.BroadcastToClients(models.ClientCount(s.hub.ClientCount()))
	}

	// Emergency stop must go out whatever else is going on; it has no
	// preconditions and no failure path.
	s.adminHandlers[models.CmdEmergencyStop] = func(msg *models.Inbound) {
		s.broadcastCommand(models.FlashEvent{Type: models.CmdEmergencyStop})
		if s.metrics != nil {
			s.metrics.Commands.EmergencyStops.Inc()
		}
		s.log.Append(models.LogERR, "EMERGENCY STOP triggered – all devices reset")
	}
}

func (s *ControlService) registerClientHandlers() {
	s.clientHandlers[models.MsgBattery] = func(c *hub.Conn, msg *models.Inbound) {
		if !s.hub.UpdateBattery(c, msg.Level) {
			return
		}
		// Metrics only; device list re-pushes are kept off the battery
		// path to bound update frequency.
		s.pushMetrics()
	}

	s.clientHandlers[models.MsgHeartbeat] = func(c *hub.Conn, msg *models.Inbound) {
		s.hub.Send(c, models.HeartbeatAck())
	}
}

func (s *ControlService) broadcastCommand(event models.FlashEvent) {
	s.hub.BroadcastToClients(event)
	if s.metrics != nil {
		s.metrics.Commands.CommandsBroadcast.WithLabelValues(string(event.Type)).Inc()
	}
}

func (s *ControlService) pushMetrics() {
	snapshot := s.hub.Snapshot()
	s.hub.BroadcastToAdmins(snapshot)
	if s.metrics != nil {
		s.metrics.Fleet.AvgBattery.Set(float64(snapshot.AvgBattery))
	}
}

func (s *ControlService) pushDeviceList() {
	s.hub.BroadcastToAdmins(models.DeviceListEvent{
		Type:    models.EvtDeviceList,
		Devices: s.hub.Devices(),
	})
}
