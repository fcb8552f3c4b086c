// Package console serves the operator page: live annotated snapshots,
// Start/Stop/Capture controls, and the capture summary.
package console

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dj-oyu/waste-detector/internal/chart"
	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/internal/session"
	"github.com/dj-oyu/waste-detector/internal/summary"
)

var log = logger.Module("Console")

// Controller receives operator intents (session.Session).
type Controller interface {
	Start() bool
	Stop() bool
	RequestCapture()
	Snapshot() session.Snapshot
}

// Server serves the console endpoints.
type Server struct {
	cfg     Config
	ctrl    Controller
	display *Display
	rows    summary.RowSource
	metrics *metrics.Metrics
}

// NewServer returns a configured console server.
func NewServer(cfg Config, ctrl Controller, display *Display, rows summary.RowSource, m *metrics.Metrics) *Server {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultConfig().StatusInterval
	}
	if cfg.LogName == "" {
		cfg.LogName = DefaultConfig().LogName
	}
	if display == nil {
		display = NewDisplay(cfg.JPEGQuality)
	}
	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		display: display,
		rows:    rows,
		metrics: m,
	}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/capture", s.handleCapture)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)
	mux.HandleFunc("GET /api/frame.jpg", s.handleFrame)
	mux.HandleFunc("GET /api/capture/last.jpg", s.handleLastCapture)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/summary/chart.png", s.handleSummaryChart)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := strings.NewReplacer(
		"{{POLL_MS}}", strconv.FormatInt(s.cfg.StatusInterval.Milliseconds(), 10),
		"{{LOG_NAME}}", html.EscapeString(s.cfg.LogName),
	).Replace(indexHTML)
	_, _ = w.Write([]byte(page))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	changed := s.ctrl.Start()
	writeJSON(w, map[string]any{"changed": changed, "state": s.ctrl.Snapshot().State})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	changed := s.ctrl.Stop()
	writeJSON(w, map[string]any{"changed": changed, "state": s.ctrl.Snapshot().State})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	s.ctrl.RequestCapture()
	writeJSONWithStatus(w, map[string]any{"capture_requested": true, "state": s.ctrl.Snapshot().State}, http.StatusAccepted)
}

func (s *Server) statusPayload() map[string]any {
	return map[string]any{
		"session":   s.ctrl.Snapshot(),
		"controls":  s.display.Statuses(),
		"timestamp": float64(time.Now().Unix()),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.statusPayload()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	data, err := s.display.FrameJPEG()
	if err != nil {
		log.Warn("frame encode: %v", err)
		http.Error(w, "frame encode failed", http.StatusInternalServerError)
		return
	}
	writeImage(w, "image/jpeg", data)
}

func (s *Server) handleLastCapture(w http.ResponseWriter, r *http.Request) {
	data, caption := s.display.Capture()
	if caption != "" {
		w.Header().Set("X-Caption", caption)
	}
	writeImage(w, "image/jpeg", data)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := summary.FromLog(s.rows)
	if err != nil {
		log.Error("summary: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusInternalServerError)
		return
	}
	entries := summary.Sorted(counts)

	if wantsProtobuf(r) {
		msg, err := summaryStruct(entries, summary.Total(counts), s.cfg.LogName)
		if err == nil {
			var data []byte
			data, err = proto.Marshal(msg)
			if err == nil {
				w.Header().Set("Content-Type", "application/x-protobuf")
				_, _ = w.Write(data)
				return
			}
		}
		log.Error("summary protobuf: %v", err)
		http.Error(w, "protobuf encode failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"log":     s.cfg.LogName,
		"total":   summary.Total(counts),
		"classes": entries,
	})
}

func (s *Server) handleSummaryChart(w http.ResponseWriter, r *http.Request) {
	counts, err := summary.FromLog(s.rows)
	if err != nil {
		log.Error("summary: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := chart.RenderBarChart(summary.Sorted(counts))
	if err != nil {
		log.Error("chart: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeImage(w, "image/png", data)
}

// summaryStruct mirrors the JSON summary as a protobuf Struct.
func summaryStruct(entries []summary.Entry, total int, logName string) (*structpb.Struct, error) {
	classes := make([]any, len(entries))
	for i, e := range entries {
		classes[i] = map[string]any{"clase": e.Label, "cantidad": e.Count}
	}
	return structpb.NewStruct(map[string]any{
		"log":     logName,
		"total":   total,
		"classes": classes,
	})
}

func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// writeImage writes data, or 204 when there is nothing to show yet.
func writeImage(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Cache-Control", "no-store")
	if len(data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
