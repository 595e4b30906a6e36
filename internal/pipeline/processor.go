package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"time"

	xdraw "golang.org/x/image/draw"

	"phyto/internal/classifier"
	"phyto/internal/control"
	"phyto/internal/latest"
	"phyto/internal/metrics"
)

// Region geometry: the classifier sees a square crop from the frame center,
// scaled to the model's input size.
const (
	DefaultRegionSize = 300
	DefaultInputSize  = 224
)

// Processor is the classification loop: it drains the latest raw frame,
// classifies the center region, folds the verdict through the stabilizer,
// publishes the rendered frame and drives the local actuation path.
type Processor struct {
	raw      *latest.Slot[*FrameData]
	rendered *latest.Slot[*FrameData]

	classifier classifier.Classifier
	stabilizer *Stabilizer
	state      *control.State
	gate       control.Gate
	sprayer    *control.Sprayer
	stats      *metrics.Metrics

	regionSize int
	inputSize  int

	// actuate enables the local trigger path. Off when the pump hangs off a
	// polled remote node instead of a local relay.
	actuate bool

	// onReading, when set, receives every stable reading (websocket push).
	onReading func(control.StableReading)
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Raw        *latest.Slot[*FrameData]
	Rendered   *latest.Slot[*FrameData]
	Classifier classifier.Classifier
	State      *control.State
	Gate       control.Gate
	Sprayer    *control.Sprayer
	Stats      *metrics.Metrics
	Actuate    bool
	OnReading  func(control.StableReading)
}

// NewProcessor creates the processing loop.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		raw:        cfg.Raw,
		rendered:   cfg.Rendered,
		classifier: cfg.Classifier,
		stabilizer: NewStabilizer(),
		state:      cfg.State,
		gate:       cfg.Gate,
		sprayer:    cfg.Sprayer,
		stats:      cfg.Stats,
		regionSize: DefaultRegionSize,
		inputSize:  DefaultInputSize,
		actuate:    cfg.Actuate,
		onReading:  cfg.OnReading,
	}
}

// Run processes frames until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	log.Printf("[Processor] Processing loop started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, ok := p.raw.TryTake()
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		p.process(ctx, frame)
	}
}

func (p *Processor) process(ctx context.Context, frame *FrameData) {
	label, confidence := p.classifyRegion(ctx, frame.Data)

	reading := p.stabilizer.Observe(label, confidence)
	p.state.SetReading(reading)

	if p.actuate {
		p.evaluateActuation(reading)
	}

	if p.rendered != nil {
		p.rendered.Put(&FrameData{
			Data:      RenderOverlay(frame.Data, reading, p.regionSize),
			Seq:       frame.Seq,
			Timestamp: frame.Timestamp,
			Width:     frame.Width,
			Height:    frame.Height,
		})
	}

	p.stats.FramesProcessed.Add(1)

	if p.onReading != nil {
		p.onReading(reading)
	}
}

// classifyRegion crops, scales and classifies one frame. Any failure along
// the way degrades to a "no plant" observation; a broken sidecar must look
// like an empty bench, not crash the loop.
func (p *Processor) classifyRegion(ctx context.Context, jpegData []byte) (control.Severity, float64) {
	crop, err := p.prepareCrop(jpegData)
	if err != nil {
		log.Printf("[Processor] Frame preprocessing failed: %v", err)
		return control.SeverityNoPlant, 0
	}

	start := time.Now()
	result, err := p.classifier.Classify(ctx, crop)
	p.stats.ObserveInference(time.Since(start))
	if err != nil {
		p.stats.ClassifierErrors.Add(1)
		log.Printf("[Processor] Classification failed: %v", err)
		return control.SeverityNoPlant, 0
	}

	return control.ParseSeverity(result.Label), result.Confidence
}

// prepareCrop extracts the center region and scales it to the model input
// size.
func (p *Processor) prepareCrop(jpegData []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	region := CenterRegion(img.Bounds(), p.regionSize)
	dst := image.NewRGBA(image.Rect(0, 0, p.inputSize, p.inputSize))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, region, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// evaluateActuation runs the local trigger path: a pending manual override
// wins, otherwise the environmental gate decides.
func (p *Processor) evaluateActuation(reading control.StableReading) {
	consumed := p.state.ConsumeForce(func() bool {
		_, ok := p.sprayer.TryTrigger(control.TriggerManual, reading.Label)
		return ok
	})
	if consumed {
		return
	}

	snap := p.state.Snapshot()
	if p.gate.Allow(reading.Label, snap.Env, p.sprayer.Active()) {
		p.sprayer.TryTrigger(control.TriggerAuto, reading.Label)
	}
}
