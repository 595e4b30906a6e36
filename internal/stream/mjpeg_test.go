package stream

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"phyto/internal/latest"
	"phyto/internal/pipeline"
)

func TestFeedStreamsLatestFrame(t *testing.T) {
	slot := latest.NewSlot[*pipeline.FrameData]()
	frame := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	slot.Put(&pipeline.FrameData{Data: frame, Seq: 1, Timestamp: time.Now()})

	srv := httptest.NewServer(NewFeed(slot))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("content type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Fatalf("first boundary = %q", line)
	}

	var sawLength bool
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read headers: %v", err)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "Content-Length: 6" {
			sawLength = true
		}
		if trimmed == "" {
			break
		}
	}
	if !sawLength {
		t.Fatal("part headers missing Content-Length")
	}

	body := make([]byte, len(frame))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if body[0] != 0xFF || body[1] != 0xD8 {
		t.Fatalf("part body does not start with a JPEG marker: % X", body[:2])
	}

	// The slot must still hold the frame for other readers.
	if _, ok := slot.Peek(); !ok {
		t.Fatal("feed consumed the rendered frame")
	}
}
