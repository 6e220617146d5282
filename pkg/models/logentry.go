package models

import "time"

type LogType string

const (
	LogSYS LogType = "SYS"
	LogNET LogType = "NET"
	LogCMD LogType = "CMD"
	LogERR LogType = "ERR"
)

// LogEntry is one operational event. Time is the wall-clock display
// string, Timestamp the epoch in milliseconds.
type LogEntry struct {
	Time      string  `json:"time"`
	Type      LogType `json:"type"`
	Message   string  `json:"message"`
	Timestamp int64   `json:"timestamp"`
}

func NewLogEntry(logType LogType, message string, now time.Time) LogEntry {
	return LogEntry{
		Time:      now.Format("15:04:05"),
		Type:      logType,
		Message:   message,
		Timestamp: now.UnixMilli(),
	}
}
