package pipeline

import (
	"bytes"
	"testing"
)

func TestExtractJPEGFrame(t *testing.T) {
	frame1 := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}
	frame2 := []byte{0xFF, 0xD8, 0x04, 0x05, 0xFF, 0xD9}

	buffer := append([]byte{0x00, 0x11}, frame1...) // garbage prefix
	buffer = append(buffer, frame2...)

	got := ExtractJPEGFrame(&buffer)
	if !bytes.Equal(got, frame1) {
		t.Fatalf("first frame = % X, want % X", got, frame1)
	}
	got = ExtractJPEGFrame(&buffer)
	if !bytes.Equal(got, frame2) {
		t.Fatalf("second frame = % X, want % X", got, frame2)
	}
	if got := ExtractJPEGFrame(&buffer); got != nil {
		t.Fatalf("drained buffer yielded % X", got)
	}
}

func TestExtractJPEGFrameIncomplete(t *testing.T) {
	// Start marker without an end marker: wait for more bytes.
	buffer := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0x04}
	if got := ExtractJPEGFrame(&buffer); got != nil {
		t.Fatalf("incomplete frame extracted: % X", got)
	}
	if len(buffer) != 6 {
		t.Fatalf("incomplete buffer consumed, %d bytes left", len(buffer))
	}

	buffer = append(buffer, 0xFF, 0xD9)
	if got := ExtractJPEGFrame(&buffer); got == nil {
		t.Fatal("completed frame not extracted")
	}
}
