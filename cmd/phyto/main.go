package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"phyto/internal/activity"
	"phyto/internal/classifier"
	"phyto/internal/control"
	"phyto/internal/latest"
	"phyto/internal/metrics"
	"phyto/internal/pipeline"
	"phyto/internal/services"
	"phyto/internal/stream"
)

func main() {
	// Define command line flags, add any other flag required to configure the
	// service.
	var (
		hostF       = flag.String("host", "0.0.0.0", "Server host")
		httpPortF   = flag.String("http-port", "8080", "HTTP port")
		dbgF        = flag.Bool("debug", false, "Log request and response bodies")
		deviceF     = flag.String("device", "/dev/video0", "Camera device path or stream URL")
		fpsF        = flag.Int("fps", 10, "Capture frame rate")
		widthF      = flag.Int("width", 640, "Capture frame width")
		heightF     = flag.Int("height", 480, "Capture frame height")
		classifierF = flag.String("classifier", "http://localhost:8000", "Classification sidecar base URL")
		relayF      = flag.String("relay", "", "Local pump relay bridge URL (empty: actuation via polling node only)")
	)
	flag.Parse()

	// Setup logger. Replace logger with your own log package of choice.
	var (
		logger *log.Logger
	)
	{
		logger = log.New(os.Stderr, "[phyto] ", log.Ltime)
	}

	// Shared state and the actuation controller.
	logbook := activity.New(activity.DefaultCapacity)
	state := control.NewState()
	gate := control.NewGate(control.DefaultLimits())

	var driver control.Driver
	localActuation := *relayF != ""
	if localActuation {
		driver = control.NewHTTPRelayDriver(*relayF)
	}
	sprayer := control.NewSprayer(driver, logbook)
	stats := metrics.New(sprayer)
	cls := classifier.NewHTTPClassifier(*classifierF)

	// Latest-value slots connecting capture, processing and streaming.
	rawFrames := latest.NewSlot[*pipeline.FrameData]()
	renderedFrames := latest.NewSlot[*pipeline.FrameData]()

	capture := pipeline.NewCapture(*deviceF, *fpsF, *widthF, *heightF, rawFrames, stats)
	feed := stream.NewFeed(renderedFrames)

	api := services.NewAPI(services.APIConfig{
		State:      state,
		Gate:       gate,
		Sprayer:    sprayer,
		Logbook:    logbook,
		Classifier: cls,
		Feed:       feed,
		Stats:      stats,
		Logger:     logger,
	})

	processor := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Raw:        rawFrames,
		Rendered:   renderedFrames,
		Classifier: cls,
		State:      state,
		Gate:       gate,
		Sprayer:    sprayer,
		Stats:      stats,
		Actuate:    localActuation,
		OnReading: func(control.StableReading) {
			api.BroadcastStatus()
		},
	})

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	go sprayer.Run(ctx)
	go capture.Run(ctx)
	go processor.Run(ctx)

	logbook.Add(activity.LevelInfo, "System started")

	addr := fmt.Sprintf("http://%s", net.JoinHostPort(*hostF, *httpPortF))
	u, err := url.Parse(addr)
	if err != nil {
		logger.Fatalf("invalid URL %#v: %s\n", addr, err)
	}
	handleHTTPServer(ctx, u, api, &wg, errc, logger, *dbgF)

	// Wait for signal.
	logger.Printf("exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()
	logger.Println("exited")
}
