package control

import "time"

// Severity is the closed vocabulary produced by the classifier sidecar.
type Severity string

const (
	SeverityHealthy Severity = "healthy"
	SeverityLow     Severity = "low"
	SeverityMedium  Severity = "medium"
	SeverityHigh    Severity = "high"
	// SeverityNoPlant is the sentinel for "nothing to classify in frame".
	SeverityNoPlant Severity = "no_plant"
)

// severityRank orders labels mildest first. Used for the deterministic
// majority tie-break in the stabilizer: a tie resolves to the mildest label.
var severityRank = []Severity{SeverityHealthy, SeverityLow, SeverityMedium, SeverityHigh}

// Ranked returns the severity vocabulary in mildest-first order, excluding
// the sentinel.
func Ranked() []Severity {
	out := make([]Severity, len(severityRank))
	copy(out, severityRank)
	return out
}

// ParseSeverity maps an arbitrary label to the closed vocabulary; anything
// unknown collapses to the sentinel.
func ParseSeverity(label string) Severity {
	switch Severity(label) {
	case SeverityHealthy, SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(label)
	default:
		return SeverityNoPlant
	}
}

// sprayDurations maps disease severity to how long the pump runs.
var sprayDurations = map[Severity]time.Duration{
	SeverityLow:    2 * time.Second,
	SeverityMedium: 3 * time.Second,
	SeverityHigh:   5 * time.Second,
}

// ManualDuration is the fixed run length of a force-triggered spray.
const ManualDuration = 3 * time.Second

// DurationFor returns the spray duration for a severity. The second result
// is false for labels that never trigger a spray (healthy, no_plant).
func DurationFor(s Severity) (time.Duration, bool) {
	d, ok := sprayDurations[s]
	return d, ok
}

// StableReading is the debounced output of the temporal stabilizer: the
// majority label over recent history plus the smoothed confidence.
type StableReading struct {
	Label      Severity  `json:"label"`
	Confidence float64   `json:"confidence"`
	ColorClass string    `json:"color_class"` // "green" while a plant is visible, "red" otherwise
	UpdatedAt  time.Time `json:"updated_at"`
}

// EnvironmentSample holds the latest ambient readings. Temperature and
// humidity are nil until the reporter's first push; a nil field fails the
// gate closed.
type EnvironmentSample struct {
	Moisture    float64  `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}
