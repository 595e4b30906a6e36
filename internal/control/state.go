package control

import "sync"

// State owns the cross-task shared mutables: the stable reading (written by
// the processing loop), the environment sample (written by the reporter and
// poll handlers) and the manual force flag. Everything else reads them
// through Snapshot, which returns one consistent copy so a decision is never
// torn across concurrent writers.
type State struct {
	mu      sync.Mutex
	reading StableReading
	env     EnvironmentSample
	force   bool
}

// Snapshot is a consistent copy of the shared state at one instant.
type Snapshot struct {
	Reading      StableReading
	Env          EnvironmentSample
	ForcePending bool
}

// NewState returns state seeded with the sentinel reading.
func NewState() *State {
	return &State{
		reading: StableReading{Label: SeverityNoPlant, ColorClass: "red"},
	}
}

// Snapshot returns a consistent copy of all shared fields. The force flag is
// reported, not consumed.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Reading: s.reading, Env: s.env, ForcePending: s.force}
}

// SetReading replaces the stable reading. Single writer: the processing loop.
func (s *State) SetReading(r StableReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = r
}

// SetMoisture records the latest soil moisture. Last write wins.
func (s *State) SetMoisture(m float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.Moisture = m
}

// SetClimate records the latest temperature and humidity push. Nil fields
// are stored as-is; the gate treats them as "sensor missing".
func (s *State) SetClimate(temperature, humidity *float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env.Temperature = temperature
	s.env.Humidity = humidity
}

// RequestForce sets the manual override flag. Idempotent: requesting while
// already pending is a no-op.
func (s *State) RequestForce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.force = true
}

// ConsumeForce clears the force flag if it is set and reserve succeeds, and
// reports whether it was consumed. The reserve callback (typically the
// sprayer's idle-to-running transition) runs under the state lock so that
// check, reservation and clear are one indivisible step: the flag cannot be
// consumed twice, and a failed reservation leaves it pending for the next
// evaluation.
func (s *State) ConsumeForce(reserve func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.force {
		return false
	}
	if reserve != nil && !reserve() {
		return false
	}
	s.force = false
	return true
}
