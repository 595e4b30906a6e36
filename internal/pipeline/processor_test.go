package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"phyto/internal/activity"
	"phyto/internal/classifier"
	"phyto/internal/control"
	"phyto/internal/latest"
	"phyto/internal/metrics"
)

func activityLog() *activity.Log { return activity.New(0) }

type fakeClassifier struct {
	result *classifier.Result
	err    error
	calls  int
	lastIn []byte
}

func (f *fakeClassifier) Classify(ctx context.Context, jpegData []byte) (*classifier.Result, error) {
	f.calls++
	f.lastIn = jpegData
	return f.result, f.err
}

func (f *fakeClassifier) IsHealthy() bool { return f.err == nil }

func testFrame(t *testing.T, w, h int) *FrameData {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), 120, uint8(y % 256), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test frame: %v", err)
	}
	return &FrameData{Data: buf.Bytes(), Seq: 1, Width: w, Height: h}
}

func newTestProcessor(fc *fakeClassifier, st *control.State, sp *control.Sprayer, rendered *latest.Slot[*FrameData]) *Processor {
	return NewProcessor(ProcessorConfig{
		Raw:        latest.NewSlot[*FrameData](),
		Rendered:   rendered,
		Classifier: fc,
		State:      st,
		Gate:       control.NewGate(control.DefaultLimits()),
		Sprayer:    sp,
		Stats:      metrics.New(nil),
		Actuate:    true,
	})
}

func TestProcessorUpdatesReadingAndRendersFrame(t *testing.T) {
	fc := &fakeClassifier{result: &classifier.Result{Label: "medium", Confidence: 88}}
	st := control.NewState()
	rendered := latest.NewSlot[*FrameData]()
	p := newTestProcessor(fc, st, control.NewSprayer(nil, activityLog()), rendered)

	frame := testFrame(t, 640, 480)
	p.process(context.Background(), frame)

	if fc.calls != 1 {
		t.Fatalf("classifier called %d times, want 1", fc.calls)
	}
	// The sidecar must see the scaled crop, not the raw frame.
	cropped, _, err := image.Decode(bytes.NewReader(fc.lastIn))
	if err != nil {
		t.Fatalf("decode crop sent to classifier: %v", err)
	}
	if b := cropped.Bounds(); b.Dx() != DefaultInputSize || b.Dy() != DefaultInputSize {
		t.Fatalf("crop size = %dx%d, want %dx%d", b.Dx(), b.Dy(), DefaultInputSize, DefaultInputSize)
	}

	snap := st.Snapshot()
	if snap.Reading.Label != control.SeverityMedium {
		t.Fatalf("reading label = %s, want medium", snap.Reading.Label)
	}

	out, ok := rendered.Peek()
	if !ok {
		t.Fatal("no rendered frame published")
	}
	if out.Seq != frame.Seq {
		t.Fatalf("rendered frame seq = %d, want %d", out.Seq, frame.Seq)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Fatalf("rendered frame is not a valid JPEG: %v", err)
	}
}

func TestProcessorClassifierFailureDegradesToNoPlant(t *testing.T) {
	fc := &fakeClassifier{err: errors.New("sidecar down")}
	st := control.NewState()
	p := newTestProcessor(fc, st, control.NewSprayer(nil, activityLog()), latest.NewSlot[*FrameData]())

	// Establish a visible plant first, then fail the sidecar repeatedly.
	fc.err = nil
	fc.result = &classifier.Result{Label: "low", Confidence: 70}
	for i := 0; i < 10; i++ {
		p.process(context.Background(), testFrame(t, 320, 240))
	}
	fc.err = errors.New("sidecar down")
	for i := 0; i < DefaultHysteresis; i++ {
		p.process(context.Background(), testFrame(t, 320, 240))
	}

	if got := st.Snapshot().Reading.Label; got != control.SeverityNoPlant {
		t.Fatalf("sustained classifier failure left reading %s, want no_plant", got)
	}
}

func TestProcessorAutoTriggerThroughGate(t *testing.T) {
	fc := &fakeClassifier{result: &classifier.Result{Label: "high", Confidence: 92}}
	st := control.NewState()
	st.SetMoisture(30)
	temp, hum := 25.0, 55.0
	st.SetClimate(&temp, &hum)
	sp := control.NewSprayer(nil, activityLog())
	p := newTestProcessor(fc, st, sp, latest.NewSlot[*FrameData]())

	for i := 0; i < 5 && !sp.Active(); i++ {
		p.process(context.Background(), testFrame(t, 320, 240))
	}
	if !sp.Active() {
		t.Fatal("favorable conditions never triggered the sprayer")
	}
	sess, _ := sp.Current()
	if sess.Kind != control.TriggerAuto || sess.Severity != control.SeverityHigh {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestProcessorForceOverridesGate(t *testing.T) {
	fc := &fakeClassifier{result: &classifier.Result{Label: "healthy", Confidence: 95}}
	st := control.NewState()
	// Wet soil: the gate would never allow this.
	st.SetMoisture(80)
	sp := control.NewSprayer(nil, activityLog())
	p := newTestProcessor(fc, st, sp, latest.NewSlot[*FrameData]())

	st.RequestForce()
	p.process(context.Background(), testFrame(t, 320, 240))

	if !sp.Active() {
		t.Fatal("manual override did not start a session")
	}
	sess, _ := sp.Current()
	if sess.Kind != control.TriggerManual {
		t.Fatalf("session kind = %s, want manual", sess.Kind)
	}
	if st.Snapshot().ForcePending {
		t.Fatal("force flag still pending after trigger")
	}
}
