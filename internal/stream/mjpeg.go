package stream

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"phyto/internal/latest"
	"phyto/internal/pipeline"
)

// Feed serves the rendered frame slot as an MJPEG stream. Every client reads
// the same slot non-destructively, so the stream never starves the
// processing loop and a slow client only skips frames for itself.
type Feed struct {
	rendered *latest.Slot[*pipeline.FrameData]
	interval time.Duration
}

// NewFeed creates an MJPEG feed over the rendered frame slot.
func NewFeed(rendered *latest.Slot[*pipeline.FrameData]) *Feed {
	return &Feed{
		rendered: rendered,
		interval: 33 * time.Millisecond, // ~30 fps ceiling
	}
}

// ServeHTTP streams multipart JPEG parts until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	log.Printf("[Feed] Client connected from %s", r.RemoteAddr)
	defer log.Printf("[Feed] Client disconnected from %s", r.RemoteAddr)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame, ok := f.rendered.Peek()
			if !ok || frame.Seq == lastSeq {
				continue
			}
			lastSeq = frame.Seq

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame.Data))
			if _, err := w.Write(frame.Data); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}
