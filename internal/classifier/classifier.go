// Package classifier talks to the disease classification sidecar. The model
// itself (a fine-tuned vision transformer) runs out of process; this package
// only handles transport, health probing and result mapping.
package classifier

import "context"

// Result is the sidecar's verdict on a single region crop.
type Result struct {
	Label           string  `json:"label"`
	Confidence      float64 `json:"confidence"`
	PlantProb       float64 `json:"plant_prob"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
	Device          string  `json:"device"`
}

// Classifier produces a severity verdict for a JPEG-encoded region crop.
type Classifier interface {
	Classify(ctx context.Context, jpegData []byte) (*Result, error)
	IsHealthy() bool
}
