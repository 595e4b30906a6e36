package pipeline

import (
	"time"

	"phyto/internal/control"
)

// Stabilizer defaults, calibrated against the greenhouse test rig.
const (
	DefaultHistorySize   = 20
	DefaultMinConfidence = 35.0
	DefaultHysteresis    = 5
	DefaultAlpha         = 0.1
)

// Stabilizer debounces raw per-frame verdicts into a stable reading. One
// noisy frame must not flip the display or trigger the sprayer, so the label
// is a majority vote over recent history and the confidence an exponentially
// weighted moving average. Not safe for concurrent use; the processing loop
// is its only caller.
type Stabilizer struct {
	historySize   int
	minConfidence float64
	hysteresis    int
	alpha         float64

	history []control.Severity

	ewma     float64
	ewmaInit bool

	visible bool
	misses  int
}

// NewStabilizer returns a stabilizer with the default tuning.
func NewStabilizer() *Stabilizer {
	return &Stabilizer{
		historySize:   DefaultHistorySize,
		minConfidence: DefaultMinConfidence,
		hysteresis:    DefaultHysteresis,
		alpha:         DefaultAlpha,
	}
}

// Observe folds one raw verdict into the history and returns the current
// stable reading. A verdict below the confidence floor counts as "no plant"
// regardless of its label.
func (st *Stabilizer) Observe(label control.Severity, confidence float64) control.StableReading {
	hit := label != control.SeverityNoPlant && confidence >= st.minConfidence

	if hit {
		st.misses = 0
		st.visible = true
		st.push(label)
		if st.ewmaInit {
			st.ewma = st.alpha*confidence + (1-st.alpha)*st.ewma
		} else {
			st.ewma = confidence
			st.ewmaInit = true
		}
	} else {
		st.push(control.SeverityNoPlant)
		if st.visible {
			st.misses++
			// Hysteresis: a visible plant survives a few missed frames.
			if st.misses >= st.hysteresis {
				st.reset()
			}
		}
	}

	if !st.visible {
		return control.StableReading{
			Label:      control.SeverityNoPlant,
			Confidence: 0.0,
			ColorClass: "red",
			UpdatedAt:  time.Now(),
		}
	}

	return control.StableReading{
		Label:      st.majority(),
		Confidence: st.ewma,
		ColorClass: "green",
		UpdatedAt:  time.Now(),
	}
}

func (st *Stabilizer) push(label control.Severity) {
	if len(st.history) >= st.historySize {
		copy(st.history, st.history[1:])
		st.history = st.history[:len(st.history)-1]
	}
	st.history = append(st.history, label)
}

// reset clears all smoothing state after the plant leaves the frame, so a
// reappearing plant is judged fresh instead of against stale history.
func (st *Stabilizer) reset() {
	st.visible = false
	st.misses = 0
	st.history = st.history[:0]
	st.ewma = 0
	st.ewmaInit = false
}

// majority returns the most frequent non-sentinel label in history. A tie
// resolves to the mildest label so flapping votes never escalate severity.
func (st *Stabilizer) majority() control.Severity {
	counts := make(map[control.Severity]int, 4)
	for _, l := range st.history {
		if l != control.SeverityNoPlant {
			counts[l]++
		}
	}

	best := control.SeverityNoPlant
	bestCount := 0
	for _, label := range control.Ranked() {
		if counts[label] > bestCount {
			best = label
			bestCount = counts[label]
		}
	}
	return best
}
