package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crowdflash/crowdflash-server/pkg/auth"
	"github.com/crowdflash/crowdflash-server/pkg/config"
	"github.com/crowdflash/crowdflash-server/pkg/eventlog"
	"github.com/crowdflash/crowdflash-server/pkg/hub"
	"github.com/crowdflash/crowdflash-server/pkg/models"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type fakeSocket struct {
	mu        sync.Mutex
	frames    chan []byte
	written   [][]byte
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

func (f *fakeSocket) push(data []byte) {
	f.frames <- data
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.frames:
		return websocket.TextMessage, data, nil
	case <-f.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.done:
		return errors.New("use of closed connection")
	default:
	}
	if messageType == websocket.TextMessage {
		f.mu.Lock()
		f.written = append(f.written, append([]byte(nil), data...))
		f.mu.Unlock()
	}
	return nil
}

func (f *fakeSocket) SetReadLimit(int64)                {}
func (f *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// written frames decoded to their type discriminator.
func (f *fakeSocket) frameTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.written))
	for _, raw := range f.written {
		var head struct {
			Type string `json:"type"`
		}
		json.Unmarshal(raw, &head)
		types = append(types, head.Type)
	}
	return types
}

func (f *fakeSocket) lastFrame(t *testing.T) map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		t.Fatal("no frames written")
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(f.written[len(f.written)-1], &msg); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeSocket) waitForType(t *testing.T, msgType models.MessageType) {
	t.Helper()
	waitFor(t, func() bool {
		for _, ft := range f.frameTypes() {
			if ft == string(msgType) {
				return true
			}
		}
		return false
	}, string(msgType))
}

func (f *fakeSocket) countType(msgType models.MessageType) int {
	n := 0
	for _, ft := range f.frameTypes() {
		if ft == string(msgType) {
			n++
		}
	}
	return n
}

type fixture struct {
	hub     *hub.Hub
	log     *eventlog.Log
	auth    *auth.Service
	control *ControlService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	h := hub.New(logger)
	log := eventlog.New(eventlog.DefaultCapacity)
	cfg := &config.AuthConfig{
		AdminEmail:         "ops@crowdflash.local",
		AdminPassword:      "swordfish",
		TokenTTL:           time.Hour,
		LoginRatePerSecond: 100,
		LoginBurst:         100,
	}
	authService := auth.NewService(cfg, auth.NewMemoryStore(cfg.TokenTTL), logger)
	return &fixture{
		hub:     h,
		log:     log,
		auth:    authService,
		control: NewControlService(h, log, authService, logger),
	}
}

// addClient registers a client whose write pump drains into the fake.
func (fx *fixture) addClient(ws *fakeSocket) *hub.Conn {
	c := fx.hub.AddClient(ws, "10.0.0.1")
	go c.WritePump()
	return c
}

func (fx *fixture) addAdmin(ws *fakeSocket) *hub.Conn {
	c := fx.hub.AddAdmin(ws, "10.0.0.2")
	go c.WritePump()
	return c
}

func frame(s string) []byte { return []byte(s) }

func TestFlashOnBroadcastsAndLogs(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()
	fx.addClient(ws)

	fx.control.handleAdminFrame(frame(`{"type":"flash_on"}`))

	ws.waitForType(t, models.CmdFlashOn)

	entries := fx.log.Snapshot(10)
	if len(entries) != 1 || entries[0].Type != models.LogCMD || entries[0].Message != "Master trigger: FLASH ON" {
		t.Fatalf("unexpected log: %+v", entries)
	}
}

func TestFlashPulseIsNotLogged(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()
	fx.addClient(ws)

	fx.control.handleAdminFrame(frame(`{"type":"flash_pulse","duration":100}`))

	ws.waitForType(t, models.CmdFlashPulse)
	msg := ws.lastFrame(t)
	if msg["duration"] != float64(100) {
		t.Fatalf("duration not relayed: %v", msg)
	}
	if fx.log.Len() != 0 {
		t.Fatalf("flash_pulse must not be logged, have %d entries", fx.log.Len())
	}
}

func TestEmergencyStopReachesEveryoneOnce(t *testing.T) {
	fx := newFixture(t)
	a := newFakeSocket()
	b := newFakeSocket()
	fx.addClient(a)
	fx.addClient(b)

	fx.control.handleAdminFrame(frame(`{"type":"emergency_stop"}`))

	a.waitForType(t, models.CmdEmergencyStop)
	b.waitForType(t, models.CmdEmergencyStop)

	errEntries := 0
	for _, e := range fx.log.Snapshot(100) {
		if e.Type == models.LogERR {
			errEntries++
		}
	}
	if errEntries != 1 {
		t.Fatalf("expected exactly one ERR entry, got %d", errEntries)
	}
}

func TestUnknownAndMalformedFramesAreDropped(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()
	c := fx.addClient(ws)

	fx.control.handleAdminFrame(frame(`{"type":"open_pod_bay_doors"}`))
	fx.control.handleAdminFrame(frame(`not json at all`))
	fx.control.handleClientFrame(c, frame(`{"type":"battic","level":"x"}`))
	fx.control.handleClientFrame(c, frame(`{"type":"battery","level":"x"}`))

	if fx.log.Len() != 0 {
		t.Fatalf("nothing should be logged, have %d entries", fx.log.Len())
	}
	if snap := fx.hub.Snapshot(); snap.AvgBattery != 0 {
		t.Fatalf("battery must be untouched, avg %d", snap.AvgBattery)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(ws.frameTypes()); got != 0 {
		t.Fatalf("no frames expected, got %d", got)
	}
}

func TestBatteryReportPushesMetricsOnly(t *testing.T) {
	fx := newFixture(t)
	clientWS := newFakeSocket()
	adminWS := newFakeSocket()
	c := fx.addClient(clientWS)
	fx.addAdmin(adminWS)

	fx.control.handleClientFrame(c, frame(`{"type":"battery","level":42}`))

	adminWS.waitForType(t, models.EvtMetrics)
	msg := adminWS.lastFrame(t)
	if msg["avgBattery"] != float64(42) {
		t.Fatalf("expected avgBattery 42, got %v", msg["avgBattery"])
	}
	// Battery reports must not trigger a device list re-push.
	if adminWS.countType(models.EvtDeviceList) != 0 {
		t.Fatal("device_list must not be pushed on battery updates")
	}
}

func TestHeartbeatAck(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()
	c := fx.addClient(ws)

	fx.control.handleClientFrame(c, frame(`{"type":"heartbeat"}`))

	ws.waitForType(t, models.EvtHeartbeatAck)
	if fx.log.Len() != 0 {
		t.Fatal("heartbeat has no side effects beyond the ack")
	}
}

func TestDisconnectClientCommand(t *testing.T) {
	fx := newFixture(t)
	clientWS := newFakeSocket()
	adminWS := newFakeSocket()
	c := fx.addClient(clientWS)
	fx.addAdmin(adminWS)

	// Unknown id: no log entry, no pushes.
	fx.control.handleAdminFrame(frame(`{"type":"disconnect_client","id":"D0007"}`))
	if fx.log.Len() != 0 {
		t.Fatal("not-found disconnect must not log")
	}
	time.Sleep(20 * time.Millisecond)
	if adminWS.countType(models.EvtDeviceList) != 0 {
		t.Fatal("not-found disconnect must not push")
	}

	fx.control.handleAdminFrame(frame(`{"type":"disconnect_client","id":"` + c.ID() + `"}`))

	waitFor(t, clientWS.isClosed, "client socket close")
	if fx.hub.ClientCount() != 0 {
		t.Fatal("client should be unregistered")
	}
	adminWS.waitForType(t, models.EvtDeviceList)
	adminWS.waitForType(t, models.EvtMetrics)

	entries := fx.log.Snapshot(10)
	if len(entries) != 1 || entries[0].Message != "Admin disconnected device "+c.ID() {
		t.Fatalf("unexpected log: %+v", entries)
	}
}

func TestSetBPMAndStrobe(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()
	fx.addClient(ws)

	fx.control.handleAdminFrame(frame(`{"type":"set_bpm","bpm":128}`))
	ws.waitForType(t, models.CmdSetBPM)
	if msg := ws.lastFrame(t); msg["bpm"] != float64(128) {
		t.Fatalf("bpm not relayed: %v", msg)
	}

	fx.control.handleAdminFrame(frame(`{"type":"set_strobe","hz":12.5}`))
	ws.waitForType(t, models.CmdSetStrobe)
	if msg := ws.lastFrame(t); msg["hz"] != float64(12.5) {
		t.Fatalf("hz not relayed: %v", msg)
	}

	var sysEntries []string
	for _, e := range fx.log.Snapshot(10) {
		if e.Type == models.LogSYS {
			sysEntries = append(sysEntries, e.Message)
		}
	}
	if len(sysEntries) != 2 {
		t.Fatalf("expected 2 SYS entries, got %v", sysEntries)
	}
	if sysEntries[0] != "Strobe rate set to 12.5 Hz" || sysEntries[1] != "BPM updated to 128" {
		t.Fatalf("unexpected SYS entries: %v", sysEntries)
	}
}

func TestAttachClientLifecycle(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()

	done := make(chan struct{})
	go func() {
		fx.control.AttachClient(context.Background(), ws, "198.51.100.7")
		close(done)
	}()

	ws.waitForType(t, models.EvtConnected)
	ws.waitForType(t, models.EvtClientCount)
	waitFor(t, func() bool { return fx.hub.ClientCount() == 1 }, "registration")

	entries := fx.log.Snapshot(10)
	if len(entries) != 1 || entries[0].Type != models.LogNET {
		t.Fatalf("expected one NET entry, got %+v", entries)
	}

	ws.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("attach did not return after socket close")
	}

	if fx.hub.ClientCount() != 0 {
		t.Fatal("client should be removed on close")
	}
	head := fx.log.Snapshot(1)[0]
	if head.Type != models.LogNET || head.Message != "Device D0001 disconnected – Total: 0" {
		t.Fatalf("unexpected close entry: %+v", head)
	}
}

func TestAttachAdminUnauthorized(t *testing.T) {
	fx := newFixture(t)
	ws := newFakeSocket()

	fx.control.AttachAdmin(context.Background(), ws, "bogus", "198.51.100.9")

	if !ws.isClosed() {
		t.Fatal("socket must be closed after a bad token")
	}
	types := ws.frameTypes()
	if len(types) != 1 || types[0] != string(models.EvtError) {
		t.Fatalf("expected exactly one error frame, got %v", types)
	}
	if fx.hub.AdminCount() != 0 {
		t.Fatal("unauthorized admin must never enter the registry")
	}
	if fx.log.Len() != 0 {
		t.Fatal("unauthorized handshake is not a logged event")
	}
}

func TestAttachAdminReplaysHistoryThenLive(t *testing.T) {
	fx := newFixture(t)
	fx.log.Append(models.LogSYS, "before anyone connected")

	token, err := fx.auth.Login(context.Background(), "ops@crowdflash.local", "swordfish")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	ws := newFakeSocket()
	done := make(chan struct{})
	go func() {
		fx.control.AttachAdmin(context.Background(), ws, token, "198.51.100.9")
		close(done)
	}()

	ws.waitForType(t, models.EvtLogEntry)

	types := ws.frameTypes()
	want := []string{
		string(models.EvtMetrics),
		string(models.EvtLogHistory),
		string(models.EvtDeviceList),
		string(models.EvtLogEntry),
	}
	if len(types) < len(want) {
		t.Fatalf("missing frames: %v", types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frame order %v, want prefix %v", types, want)
		}
	}
	// History goes out exactly once.
	if ws.countType(models.EvtLogHistory) != 1 {
		t.Fatalf("log_history must be sent exactly once, got %d", ws.countType(models.EvtLogHistory))
	}

	ws.Close()
	<-done
	head := fx.log.Snapshot(1)[0]
	if head.Message != "Admin console disconnected" {
		t.Fatalf("unexpected close entry: %+v", head)
	}
}

func TestPeriodicMetricsPush(t *testing.T) {
	fx := newFixture(t)
	adminWS := newFakeSocket()
	fx.addAdmin(adminWS)

	if err := fx.control.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer fx.control.Stop()

	if err := fx.control.Start(); err == nil {
		t.Fatal("second start must fail")
	}

	// The 3s self-heal tick is the only push source here.
	deadline := time.Now().Add(5 * time.Second)
	for adminWS.countType(models.EvtMetrics) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the periodic metrics push")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
