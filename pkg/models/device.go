package models

// Device is the read-only snapshot of one connected mobile client, as
// pushed to admin consoles in device_list events. Battery is nil until
// the device sends its first battery report.
type Device struct {
	ID          string `json:"id"`
	Battery     *int   `json:"battery"`
	ConnectedAt int64  `json:"connectedAt"`
	IP          string `json:"ip"`
}

// Metrics is the rollup pushed to admin consoles. Stability is a
// synthetic constant, not a measured quantity.
type Metrics struct {
	Type        MessageType `json:"type"`
	ActiveUsers int         `json:"activeUsers"`
	AvgBattery  int         `json:"avgBattery"`
	Stability   float64     `json:"stability"`
	Timestamp   int64       `json:"timestamp"`
}
