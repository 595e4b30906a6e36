package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"phyto/internal/latest"
	"phyto/internal/metrics"
)

// Capture reads frames from the camera and publishes each into a
// single-slot buffer. The slot always holds the most recent frame;
// an unprocessed frame is silently replaced, never queued.
type Capture struct {
	device string
	fps    int
	width  int
	height int

	slot    *latest.Slot[*FrameData]
	stats   *metrics.Metrics
	seq     atomic.Uint64
	running atomic.Bool
	cmd     *exec.Cmd
}

// NewCapture creates a capture source for device. device is a V4L2 path
// (/dev/video0), an rtsp:// URL, or an http(s):// URL; HTTP still-image
// endpoints are polled, everything else goes through FFmpeg.
func NewCapture(device string, fps, width, height int, slot *latest.Slot[*FrameData], stats *metrics.Metrics) *Capture {
	return &Capture{
		device: device,
		fps:    fps,
		width:  width,
		height: height,
		slot:   slot,
		stats:  stats,
	}
}

// Running reports whether the capture loop is active.
func (c *Capture) Running() bool {
	return c.running.Load()
}

// FrameSeq returns the sequence number of the latest published frame.
func (c *Capture) FrameSeq() uint64 {
	return c.seq.Load()
}

// Run captures frames until ctx is cancelled.
func (c *Capture) Run(ctx context.Context) {
	c.running.Store(true)
	defer c.running.Store(false)

	log.Printf("[Capture] Starting capture loop (device: %s, fps: %d)", c.device, c.fps)

	if c.isHTTPImageEndpoint() {
		c.captureHTTPImages(ctx)
		return
	}
	c.captureFFmpeg(ctx)
}

func (c *Capture) isHTTPImageEndpoint() bool {
	return (strings.HasPrefix(c.device, "http://") || strings.HasPrefix(c.device, "https://")) &&
		(strings.Contains(c.device, ".jpg") || strings.Contains(c.device, ".jpeg") || strings.Contains(c.device, "image"))
}

func (c *Capture) captureHTTPImages(ctx context.Context) {
	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(c.fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.device, nil)
			if err != nil {
				log.Printf("[Capture] Error building frame request: %v", err)
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				log.Printf("[Capture] Error fetching frame from %s: %v", c.device, err)
				continue
			}

			frame, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				log.Printf("[Capture] Error reading frame: %v", err)
				continue
			}

			c.publish(frame)
		}
	}
}

func (c *Capture) captureFFmpeg(ctx context.Context) {
	var args []string

	if strings.HasPrefix(c.device, "rtsp://") {
		args = []string{
			"-rtsp_transport", "tcp",
			"-i", c.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", c.fps),
			"-q:v", "5",
			"-",
		}
	} else if strings.HasPrefix(c.device, "http://") || strings.HasPrefix(c.device, "https://") {
		args = []string{
			"-i", c.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", c.fps),
			"-q:v", "5",
			"-",
		}
	} else {
		// V4L2 device (USB camera)
		args = []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
			"-framerate", fmt.Sprintf("%d", c.fps),
			"-i", c.device,
			"-f", "image2pipe",
			"-vcodec", "mjpeg",
			"-q:v", "5",
			"-",
		}
	}

	c.cmd = exec.CommandContext(ctx, "ffmpeg", args...)

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		log.Printf("[Capture] Error creating stdout pipe: %v", err)
		return
	}

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		log.Printf("[Capture] Error creating stderr pipe: %v", err)
		return
	}

	if err := c.cmd.Start(); err != nil {
		log.Printf("[Capture] Error starting ffmpeg: %v", err)
		return
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := stdout.Read(chunk)
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					log.Printf("[Capture] Error reading frame: %v", err)
				}
				return
			}

			frameBuffer = append(frameBuffer, chunk[:n]...)

			for {
				frame := ExtractJPEGFrame(&frameBuffer)
				if frame == nil {
					break
				}
				c.publish(frame)
			}
		}
	}
}

// publish puts a frame into the latest-value slot, replacing any unconsumed
// predecessor.
func (c *Capture) publish(data []byte) {
	seq := c.seq.Add(1)

	frame := &FrameData{
		Data:      data,
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     c.width,
		Height:    c.height,
	}

	if c.stats != nil {
		c.stats.FramesCaptured.Add(1)
		if c.slot.Put(frame) {
			c.stats.FramesDropped.Add(1)
		}
	} else {
		c.slot.Put(frame)
	}

	if seq%100 == 0 {
		log.Printf("[Capture] Frame %d captured", seq)
	}
}

// ExtractJPEGFrame extracts one complete JPEG (FFD8..FFD9) from buffer,
// consuming the bytes up to and including the end marker.
func ExtractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
