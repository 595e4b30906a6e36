package ws

import "phyto/internal/activity"

// StatusMessage pushes the dashboard status line: stable reading plus the
// latest environment sample. Nil temperature/humidity serialize as null
// until the first sensor report arrives.
type StatusMessage struct {
	Type        string   `json:"type"` // "status"
	Plant       string   `json:"plant"`
	Confidence  float64  `json:"confidence"`
	ColorClass  string   `json:"color_class"`
	Moisture    float64  `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Motor       string   `json:"motor"` // "ON" or "OFF"
	Time        string   `json:"time"`  // HH:MM:SS
}

// LogMessage pushes one activity log entry.
type LogMessage struct {
	Type  string         `json:"type"` // "log"
	Entry activity.Entry `json:"entry"`
}
