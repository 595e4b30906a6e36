package control

// Limits holds the environmental thresholds for automatic spraying. All
// comparisons are strict less-than: a reading at or above a limit denies.
type Limits struct {
	Moisture    float64 // soil moisture %, spray only when drier than this
	Humidity    float64 // air humidity %
	Temperature float64 // °C
}

// DefaultLimits are the field-calibrated thresholds.
func DefaultLimits() Limits {
	return Limits{Moisture: 40.0, Humidity: 70.0, Temperature: 30.0}
}

// Gate decides whether ambient conditions and the detected severity jointly
// authorize an automatic spray. Both the local auto-trigger path and the
// remote poll handler evaluate this same predicate; there is no second copy
// of the policy anywhere.
type Gate struct {
	Limits Limits
}

// NewGate returns a gate with the given limits.
func NewGate(limits Limits) Gate {
	return Gate{Limits: limits}
}

// Allow reports whether an automatic spray is authorized. Missing humidity
// or temperature fails closed. An active sprayer always denies: overlapping
// sessions are forbidden.
func (g Gate) Allow(label Severity, env EnvironmentSample, sprayerActive bool) bool {
	if sprayerActive {
		return false
	}
	if _, sprayable := DurationFor(label); !sprayable {
		return false
	}
	if env.Moisture >= g.Limits.Moisture {
		return false
	}
	if env.Humidity == nil || *env.Humidity >= g.Limits.Humidity {
		return false
	}
	if env.Temperature == nil || *env.Temperature >= g.Limits.Temperature {
		return false
	}
	return true
}
