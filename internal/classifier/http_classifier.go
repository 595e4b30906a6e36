package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// HTTPClassifier calls the classification sidecar over HTTP. Frames are sent
// as multipart uploads; the sidecar answers with a severity label and
// confidence.
type HTTPClassifier struct {
	endpoint    string
	client      *http.Client
	enabled     bool
	healthCheck time.Time
	mu          sync.RWMutex
}

// healthResponse mirrors the sidecar's /health payload.
type healthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPClassifier creates a classifier talking to the sidecar at endpoint.
func NewHTTPClassifier(endpoint string) *HTTPClassifier {
	return &HTTPClassifier{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 15 * time.Second, // inference can be slow on CPU-only boxes
		},
		enabled: true,
	}
}

var _ Classifier = (*HTTPClassifier)(nil)

// IsHealthy checks whether the sidecar is reachable and has its model loaded.
// Positive results are cached for 30 seconds so the hot path does not probe
// per frame.
func (c *HTTPClassifier) IsHealthy() bool {
	c.mu.RLock()
	if !c.enabled {
		c.mu.RUnlock()
		return false
	}
	if time.Since(c.healthCheck) < 30*time.Second {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	resp, err := c.client.Get(c.endpoint + "/health")
	if err != nil {
		c.mu.Lock()
		c.enabled = false
		c.mu.Unlock()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var health healthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.ModelLoaded {
			c.mu.Lock()
			c.healthCheck = time.Now()
			c.mu.Unlock()
			return true
		}
	}

	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	return false
}

// SetEnabled re-arms a classifier that marked itself unavailable.
func (c *HTTPClassifier) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	c.healthCheck = time.Time{}
}

// Endpoint returns the sidecar base URL.
func (c *HTTPClassifier) Endpoint() string {
	return c.endpoint
}

// Classify sends a JPEG region crop and returns the sidecar's verdict.
func (c *HTTPClassifier) Classify(ctx context.Context, jpegData []byte) (*Result, error) {
	if !c.IsHealthy() {
		return nil, fmt.Errorf("classification service unavailable")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	fw.Write(jpegData)
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/classify", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.mu.Lock()
		c.enabled = false
		c.mu.Unlock()
		return nil, fmt.Errorf("classification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classification failed: %s", string(body))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode classification response: %w", err)
	}
	return &result, nil
}
