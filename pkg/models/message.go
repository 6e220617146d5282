package models

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

type MessageType string

// Admin console -> server commands.
const (
	CmdFlashOn          MessageType = "flash_on"
	CmdFlashOff         MessageType = "flash_off"
	CmdFlashPattern     MessageType = "flash_pattern"
	CmdFlashPulse       MessageType = "flash_pulse"
	CmdSetBPM           MessageType = "set_bpm"
	CmdSetStrobe        MessageType = "set_strobe"
	CmdCountdownStart   MessageType = "countdown_start"
	CmdStartRecording   MessageType = "start_recording"
	CmdStopRecording    MessageType = "stop_recording"
	CmdDisconnectClient MessageType = "disconnect_client"
	CmdEmergencyStop    MessageType = "emergency_stop"
)

// Mobile client -> server messages.
const (
	MsgBattery   MessageType = "battery"
	MsgHeartbeat MessageType = "heartbeat"
)

// Server -> socket events.
const (
	EvtConnected    MessageType = "connected"
	EvtClientCount  MessageType = "client_count"
	EvtHeartbeatAck MessageType = "heartbeat_ack"
	EvtMetrics      MessageType = "metrics"
	EvtLogEntry     MessageType = "log_entry"
	EvtLogHistory   MessageType = "log_history"
	EvtDeviceList   MessageType = "device_list"
	EvtError        MessageType = "error"
)

// Inbound is the envelope every raw socket frame is decoded into.
// Fields beyond Type are populated only for the message types that
// carry them; a frame that does not decode into this shape is dropped
// by the router.
type Inbound struct {
	Type     MessageType `json:"type"`
	Pattern  string      `json:"pattern,omitempty"`
	BPM      int         `json:"bpm,omitempty"`
	Hz       float64     `json:"hz,omitempty"`
	Seconds  int         `json:"seconds,omitempty"`
	Duration int         `json:"duration,omitempty"`
	ID       string      `json:"id,omitempty"`
	Level    int         `json:"level,omitempty"`
}
