package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"phyto/internal/activity"
)

// fakeDriver records relay transitions and can fail on demand.
type fakeDriver struct {
	mu    sync.Mutex
	ons   int
	offs  int
	onErr error
}

func (d *fakeDriver) On(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.onErr != nil {
		return d.onErr
	}
	d.ons++
	return nil
}

func (d *fakeDriver) Off(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offs++
	return nil
}

func (d *fakeDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ons, d.offs
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSprayerSingleActiveSession(t *testing.T) {
	sp := NewSprayer(&fakeDriver{}, activity.New(0))

	d, ok := sp.TryTrigger(TriggerAuto, SeverityHigh)
	if !ok {
		t.Fatal("first trigger rejected on an idle sprayer")
	}
	if d != 5*time.Second {
		t.Fatalf("high severity duration = %v, want 5s", d)
	}
	if !sp.Active() {
		t.Fatal("sprayer not active after accepted trigger")
	}

	if _, ok := sp.TryTrigger(TriggerAuto, SeverityLow); ok {
		t.Fatal("second trigger accepted while a session is active")
	}
	if _, ok := sp.TryReserve(TriggerAuto, SeverityLow); ok {
		t.Fatal("remote reservation accepted while a local session is active")
	}

	sess, ok := sp.Current()
	if !ok {
		t.Fatal("no current session reported while active")
	}
	if sess.Severity != SeverityHigh || sess.Kind != TriggerAuto || sess.Remote {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSprayerUnsprayableSeverityRejected(t *testing.T) {
	sp := NewSprayer(&fakeDriver{}, activity.New(0))

	if _, ok := sp.TryTrigger(TriggerAuto, SeverityHealthy); ok {
		t.Fatal("healthy severity admitted an auto session")
	}
	if _, ok := sp.TryTrigger(TriggerAuto, SeverityNoPlant); ok {
		t.Fatal("no-plant severity admitted an auto session")
	}
	if sp.Active() {
		t.Fatal("rejected triggers left the sprayer active")
	}

	// Manual triggers ignore severity and use the fixed override duration.
	d, ok := sp.TryTrigger(TriggerManual, SeverityNoPlant)
	if !ok || d != ManualDuration {
		t.Fatalf("manual trigger = (%v, %v), want (%v, true)", d, ok, ManualDuration)
	}
}

func TestSprayerDriverFailureRollsBack(t *testing.T) {
	driver := &fakeDriver{onErr: errors.New("relay unreachable")}
	logbook := activity.New(0)
	sp := NewSprayer(driver, logbook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sp.Run(ctx)

	if _, ok := sp.TryTrigger(TriggerAuto, SeverityMedium); !ok {
		t.Fatal("trigger rejected on an idle sprayer")
	}

	waitFor(t, func() bool { return !sp.Active() }, "sprayer never returned to idle after driver failure")

	if sp.SessionsTotal() != 0 {
		t.Fatalf("failed session counted, sessions = %d", sp.SessionsTotal())
	}
	if _, on := sp.Current(); on {
		t.Fatal("failed session still reported as current")
	}

	var faulted bool
	for _, e := range logbook.Entries() {
		if e.Level == activity.LevelError && strings.Contains(e.Message, "pump unreachable") {
			faulted = true
		}
	}
	if !faulted {
		t.Fatal("driver failure not recorded in the activity log")
	}

	// The rollback must allow the next trigger through.
	driver.mu.Lock()
	driver.onErr = nil
	driver.mu.Unlock()
	if _, ok := sp.TryTrigger(TriggerAuto, SeverityMedium); !ok {
		t.Fatal("sprayer stuck after rolled-back session")
	}
}

func TestSprayerShutdownSwitchesPumpOff(t *testing.T) {
	driver := &fakeDriver{}
	sp := NewSprayer(driver, activity.New(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sp.Run(ctx)
		close(done)
	}()

	if _, ok := sp.TryTrigger(TriggerAuto, SeverityHigh); !ok {
		t.Fatal("trigger rejected on an idle sprayer")
	}
	waitFor(t, func() bool {
		ons, _ := driver.counts()
		return ons == 1
	}, "pump never switched on")

	// Cancel mid-session: the pump must still be switched off.
	cancel()
	<-done
	ons, offs := driver.counts()
	if ons != 1 || offs != 1 {
		t.Fatalf("relay transitions = (%d on, %d off), want (1, 1)", ons, offs)
	}
}

func TestSprayerRemoteReservationTouchesNoDriver(t *testing.T) {
	driver := &fakeDriver{}
	logbook := activity.New(0)
	sp := NewSprayer(driver, logbook)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sp.Run(ctx)
		close(done)
	}()

	d, ok := sp.TryReserve(TriggerAuto, SeverityLow)
	if !ok || d != 2*time.Second {
		t.Fatalf("remote reservation = (%v, %v), want (2s, true)", d, ok)
	}
	if _, ok := sp.TryTrigger(TriggerManual, SeverityLow); ok {
		t.Fatal("local trigger accepted while a remote window is reserved")
	}

	waitFor(t, func() bool { return sp.SessionsTotal() == 1 }, "remote session never started")

	cancel()
	<-done
	ons, offs := driver.counts()
	if ons != 0 || offs != 0 {
		t.Fatalf("remote session drove the local relay: (%d on, %d off)", ons, offs)
	}
}
