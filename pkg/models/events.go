package models

// Outbound event payloads, one struct per wire shape. Every event
// carries its discriminator in Type so a marshaled struct is a complete
// frame.

type ConnectedEvent struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

func Connected(id string) ConnectedEvent {
	return ConnectedEvent{Type: EvtConnected, ID: id}
}

type ClientCountEvent struct {
	Type  MessageType `json:"type"`
	Count int         `json:"count"`
}

func ClientCount(count int) ClientCountEvent {
	return ClientCountEvent{Type: EvtClientCount, Count: count}
}

type HeartbeatAckEvent struct {
	Type MessageType `json:"type"`
}

func HeartbeatAck() HeartbeatAckEvent {
	return HeartbeatAckEvent{Type: EvtHeartbeatAck}
}

type ErrorEvent struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func Error(message string) ErrorEvent {
	return ErrorEvent{Type: EvtError, Message: message}
}

// FlashEvent covers the lighting commands relayed verbatim to clients.
// Optional fields marshal only for the command types that set them.
type FlashEvent struct {
	Type     MessageType `json:"type"`
	Pattern  string      `json:"pattern,omitempty"`
	BPM      int         `json:"bpm,omitempty"`
	Hz       float64     `json:"hz,omitempty"`
	Seconds  int         `json:"seconds,omitempty"`
	Duration int         `json:"duration,omitempty"`
}

type LogEntryEvent struct {
	Type  MessageType `json:"type"`
	Entry LogEntry    `json:"entry"`
}

type LogHistoryEvent struct {
	Type    MessageType `json:"type"`
	Entries []LogEntry  `json:"entries"`
}

type DeviceListEvent struct {
	Type    MessageType `json:"type"`
	Devices []Device    `json:"devices"`
}
