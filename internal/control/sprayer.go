package control

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"phyto/internal/activity"
)

// TriggerKind records what started a spray session.
type TriggerKind string

const (
	TriggerAuto   TriggerKind = "auto"
	TriggerManual TriggerKind = "manual"
)

// Session is one bounded-duration actuation run. At most one session is
// active at any time; that is the central invariant of the controller.
type Session struct {
	ID        string        `json:"id"`
	Kind      TriggerKind   `json:"kind"`
	Severity  Severity      `json:"severity"`
	Duration  time.Duration `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	// Remote sessions are executed by the polled actuator node; the local
	// driver is not touched, only the session window is reserved so local
	// and remote runs cannot overlap.
	Remote bool `json:"remote"`
}

// Sprayer owns the actuation state machine (Idle -> Running -> Idle). A
// single Run goroutine consumes accepted triggers from a queue; admission is
// an atomic idle-to-running swap, so "check idle, then mark running" cannot
// race between the auto path and the poll handler.
type Sprayer struct {
	driver   Driver
	logbook  *activity.Log
	requests chan Session

	active   atomic.Bool
	sessions atomic.Uint64

	mu      sync.RWMutex
	current *Session
}

// NewSprayer creates a controller around driver. Events are appended to
// logbook.
func NewSprayer(driver Driver, logbook *activity.Log) *Sprayer {
	if driver == nil {
		driver = NopDriver{}
	}
	return &Sprayer{
		driver:   driver,
		logbook:  logbook,
		requests: make(chan Session, 1),
	}
}

// Active reports whether a session is currently running.
func (sp *Sprayer) Active() bool {
	return sp.active.Load()
}

// Current returns the running session, if any.
func (sp *Sprayer) Current() (Session, bool) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	if sp.current == nil {
		return Session{}, false
	}
	return *sp.current, true
}

// SessionsTotal returns the number of sessions started since boot.
func (sp *Sprayer) SessionsTotal() uint64 {
	return sp.sessions.Load()
}

// TryTrigger admits a locally-executed session: the pump driver is switched
// on for the computed duration. It returns the planned duration and whether
// the trigger was accepted; a trigger arriving while a session is active is
// rejected.
func (sp *Sprayer) TryTrigger(kind TriggerKind, severity Severity) (time.Duration, bool) {
	return sp.tryBegin(kind, severity, false)
}

// TryReserve admits a remotely-executed session: the remote node runs its
// own pump for the returned duration, the controller only holds the session
// window so nothing else can overlap it.
func (sp *Sprayer) TryReserve(kind TriggerKind, severity Severity) (time.Duration, bool) {
	return sp.tryBegin(kind, severity, true)
}

func (sp *Sprayer) tryBegin(kind TriggerKind, severity Severity, remote bool) (time.Duration, bool) {
	var duration time.Duration
	if kind == TriggerManual {
		duration = ManualDuration
	} else {
		d, sprayable := DurationFor(severity)
		if !sprayable {
			return 0, false
		}
		duration = d
	}

	// Idle -> Running must be one indivisible step.
	if !sp.active.CompareAndSwap(false, true) {
		return 0, false
	}

	sess := Session{
		ID:        uuid.New().String(),
		Kind:      kind,
		Severity:  severity,
		Duration:  duration,
		StartedAt: time.Now(),
		Remote:    remote,
	}

	sp.mu.Lock()
	sp.current = &sess
	sp.mu.Unlock()

	// Cannot block: the CAS above guarantees at most one in-flight session.
	sp.requests <- sess
	return duration, true
}

// Run is the actuation task. It serializes all sessions; triggers are never
// raced in independent timer goroutines.
func (sp *Sprayer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sess := <-sp.requests:
			sp.runSession(ctx, sess)
		}
	}
}

func (sp *Sprayer) runSession(ctx context.Context, sess Session) {
	defer func() {
		sp.mu.Lock()
		sp.current = nil
		sp.mu.Unlock()
		sp.active.Store(false)
	}()

	secs := int(sess.Duration.Seconds())

	if !sess.Remote {
		if err := sp.driver.On(ctx); err != nil {
			// One attempt per trigger; roll back to idle so the
			// controller never looks stuck on.
			log.Printf("[Sprayer] pump on failed: %v", err)
			sp.logbook.Add(activity.LevelError, "Sprayer fault - pump unreachable: %v", err)
			return
		}
	}

	sp.sessions.Add(1)

	switch {
	case sess.Remote && sess.Kind == TriggerManual:
		sp.logbook.Add(activity.LevelWarning, "Manual override - Force spray for %ds", secs)
	case sess.Remote:
		sp.logbook.Add(activity.LevelSuccess, "Remote spray: %s severity, %ds", sess.Severity, secs)
	case sess.Kind == TriggerManual:
		sp.logbook.Add(activity.LevelWarning, "Manual override - Sprayer ON for %ds", secs)
	default:
		sp.logbook.Add(activity.LevelSuccess, "Sprayer ON for %ds - %s severity", secs, strings.ToUpper(string(sess.Severity)))
	}

	// The session always runs out its planned duration; there is no
	// external cancellation of an in-progress spray.
	timer := time.NewTimer(sess.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	if !sess.Remote {
		// Background context: the pump must switch off even during
		// process shutdown.
		if err := sp.driver.Off(context.Background()); err != nil {
			log.Printf("[Sprayer] pump off failed: %v", err)
			sp.logbook.Add(activity.LevelError, "Sprayer fault - pump off failed: %v", err)
			return
		}
		sp.logbook.Add(activity.LevelInfo, "Sprayer OFF - finished %ds spray", secs)
	} else {
		sp.logbook.Add(activity.LevelInfo, "Remote spray window elapsed (%ds)", secs)
	}
}
