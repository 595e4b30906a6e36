package services

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	goahttp "goa.design/goa/v3/http"

	"phyto/internal/activity"
	"phyto/internal/classifier"
	"phyto/internal/control"
	"phyto/internal/metrics"
	"phyto/internal/stream"
	"phyto/internal/ws"
)

// API is the HTTP surface: dashboard endpoints, the sensor node poll
// endpoints, the MJPEG feed and the websocket upgrade.
type API struct {
	state      *control.State
	gate       control.Gate
	sprayer    *control.Sprayer
	logbook    *activity.Log
	classifier classifier.Classifier
	hub        *ws.Hub
	wsHandler  *ws.Handler
	feed       *stream.Feed
	stats      *metrics.Metrics
	logger     *log.Logger
	started    time.Time
}

// APIConfig wires an API.
type APIConfig struct {
	State      *control.State
	Gate       control.Gate
	Sprayer    *control.Sprayer
	Logbook    *activity.Log
	Classifier classifier.Classifier
	Feed       *stream.Feed
	Stats      *metrics.Metrics
	Logger     *log.Logger
}

// NewAPI builds the HTTP surface and hooks the activity log into the
// websocket hub so every appended entry is pushed live.
func NewAPI(cfg APIConfig) *API {
	hub := ws.NewHub()
	a := &API{
		state:      cfg.State,
		gate:       cfg.Gate,
		sprayer:    cfg.Sprayer,
		logbook:    cfg.Logbook,
		classifier: cfg.Classifier,
		hub:        hub,
		wsHandler:  ws.NewHandler(hub),
		feed:       cfg.Feed,
		stats:      cfg.Stats,
		logger:     cfg.Logger,
		started:    time.Now(),
	}

	if a.logbook != nil {
		a.logbook.OnAppend(func(e activity.Entry) {
			hub.BroadcastJSON(ws.LogMessage{Type: "log", Entry: e})
		})
	}
	if a.stats != nil {
		a.stats.RegisterWSClients(hub.ClientCount)
	}
	return a
}

// Mount registers every route on the muxer.
func (a *API) Mount(mux goahttp.Muxer) {
	mux.Handle("GET", "/status", a.handleStatus)
	mux.Handle("GET", "/logs", a.handleLogs)
	mux.Handle("POST", "/process", a.handleProcess)
	mux.Handle("POST", "/dht22", a.handleDHT22)
	mux.Handle("POST", "/force_spray", a.handleForceSpray)
	mux.Handle("GET", "/healthz", a.handleHealthz)
	mux.Handle("GET", "/video_feed", a.handleVideoFeed)
	mux.Handle("GET", "/ws", a.wsHandler.ServeHTTP)
	if a.stats != nil {
		mux.Handle("GET", "/metrics", a.stats.Handler().ServeHTTP)
	}
}

// statusPayload is what GET /status and the websocket status push share.
type statusPayload struct {
	Plant       string   `json:"plant"`
	Confidence  float64  `json:"confidence"`
	ColorClass  string   `json:"color_class"`
	Moisture    float64  `json:"moisture"`
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Motor       string   `json:"motor"`
}

func (a *API) statusSnapshot() statusPayload {
	snap := a.state.Snapshot()

	motor := "OFF"
	if a.sprayer.Active() {
		motor = "ON"
	}

	return statusPayload{
		Plant:       string(snap.Reading.Label),
		Confidence:  snap.Reading.Confidence,
		ColorClass:  snap.Reading.ColorClass,
		Moisture:    snap.Env.Moisture,
		Temperature: snap.Env.Temperature,
		Humidity:    snap.Env.Humidity,
		Motor:       motor,
	}
}

// BroadcastStatus pushes the current status to websocket clients. Called by
// the processing loop after every stable reading update.
func (a *API) BroadcastStatus() {
	s := a.statusSnapshot()
	a.hub.BroadcastJSON(ws.StatusMessage{
		Type:        "status",
		Plant:       s.Plant,
		Confidence:  s.Confidence,
		ColorClass:  s.ColorClass,
		Moisture:    s.Moisture,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Motor:       s.Motor,
		Time:        time.Now().Format("15:04:05"),
	})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.statusSnapshot())
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, a.logbook.Entries())
}

// processRequest is the soil node's poll body.
type processRequest struct {
	Moisture float64 `json:"moisture"`
}

// processResponse tells the soil node what to do with its pump relay.
type processResponse struct {
	MotorCommand string `json:"motor_command"` // "RUN" or "STOP"
	Duration     int    `json:"duration"`      // seconds, 0 when stopped
}

// handleProcess ingests a soil moisture report and answers with a motor
// command. A pending manual override wins over the gate; either way the
// spray window is reserved here so the remote run cannot overlap a local
// session.
func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a.state.SetMoisture(req.Moisture)
	if a.stats != nil {
		a.stats.MoistureReports.Add(1)
	}

	snap := a.state.Snapshot()
	forced := a.state.ConsumeForce(func() bool {
		_, ok := a.sprayer.TryReserve(control.TriggerManual, snap.Reading.Label)
		return ok
	})
	if forced {
		a.writeJSON(w, http.StatusOK, processResponse{
			MotorCommand: "RUN",
			Duration:     int(control.ManualDuration.Seconds()),
		})
		return
	}

	snap = a.state.Snapshot()
	if a.gate.Allow(snap.Reading.Label, snap.Env, a.sprayer.Active()) {
		if d, ok := a.sprayer.TryReserve(control.TriggerAuto, snap.Reading.Label); ok {
			a.writeJSON(w, http.StatusOK, processResponse{
				MotorCommand: "RUN",
				Duration:     int(d.Seconds()),
			})
			return
		}
	}

	a.writeJSON(w, http.StatusOK, processResponse{MotorCommand: "STOP", Duration: 0})
}

// dht22Request is the climate node's push body.
type dht22Request struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
}

func (a *API) handleDHT22(w http.ResponseWriter, r *http.Request) {
	var req dht22Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a.state.SetClimate(req.Temperature, req.Humidity)
	if a.stats != nil {
		a.stats.ClimateReports.Add(1)
	}

	a.writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (a *API) handleForceSpray(w http.ResponseWriter, r *http.Request) {
	a.state.RequestForce()
	a.logbook.Add(activity.LevelWarning, "Force spray requested")
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// healthzPayload reports process health for probes.
type healthzPayload struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	ClassifierHealthy bool   `json:"classifier_healthy"`
	SprayerActive     bool   `json:"sprayer_active"`
	WSClients         int    `json:"ws_clients"`
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy := false
	if a.classifier != nil {
		healthy = a.classifier.IsHealthy()
	}
	a.writeJSON(w, http.StatusOK, healthzPayload{
		Status:            "ok",
		UptimeSeconds:     int64(time.Since(a.started).Seconds()),
		ClassifierHealthy: healthy,
		SprayerActive:     a.sprayer.Active(),
		WSClients:         a.hub.ClientCount(),
	})
}

func (a *API) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	if a.feed == nil {
		a.writeError(w, http.StatusServiceUnavailable, "video feed not available")
		return
	}
	a.feed.ServeHTTP(w, r)
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Printf("encoding response: %v", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}
