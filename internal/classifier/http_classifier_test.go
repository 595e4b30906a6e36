package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newSidecar(t *testing.T, result Result) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", Device: "cpu", ModelLoaded: true})
	})
	mux.HandleFunc("/classify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file part", http.StatusBadRequest)
			return
		}
		file.Close()
		if header.Filename != "frame.jpg" {
			http.Error(w, "unexpected filename", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(result)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClassifyRoundTrip(t *testing.T) {
	want := Result{Label: "medium", Confidence: 87.5, PlantProb: 0.96, InferenceTimeMs: 42.1, Device: "cpu"}
	srv := newSidecar(t, want)

	c := NewHTTPClassifier(srv.URL)
	got, err := c.Classify(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if *got != want {
		t.Fatalf("result = %+v, want %+v", *got, want)
	}
}

func TestUnhealthySidecarDisablesClassifier(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "loading", ModelLoaded: false})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	if c.IsHealthy() {
		t.Fatal("classifier healthy although model is not loaded")
	}
	if _, err := c.Classify(context.Background(), []byte{0xFF, 0xD8}); err == nil {
		t.Fatal("Classify succeeded against an unhealthy sidecar")
	}

	// Re-arming makes it probe again.
	c.SetEnabled(true)
	if c.IsHealthy() {
		t.Fatal("re-armed classifier reported healthy without a loaded model")
	}
}

func TestHealthCheckCached(t *testing.T) {
	probes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		probes++
		json.NewEncoder(w).Encode(healthResponse{Status: "ok", ModelLoaded: true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClassifier(srv.URL)
	for i := 0; i < 5; i++ {
		if !c.IsHealthy() {
			t.Fatal("healthy sidecar reported unhealthy")
		}
	}
	if probes != 1 {
		t.Fatalf("health probed %d times, want 1 (cached)", probes)
	}
}
