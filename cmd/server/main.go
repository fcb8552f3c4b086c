package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/waste-detector/internal/camera"
	"github.com/dj-oyu/waste-detector/internal/capturelog"
	"github.com/dj-oyu/waste-detector/internal/config"
	"github.com/dj-oyu/waste-detector/internal/console"
	"github.com/dj-oyu/waste-detector/internal/detector"
	"github.com/dj-oyu/waste-detector/internal/journal"
	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/metrics"
	"github.com/dj-oyu/waste-detector/internal/session"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

var (
	// Command-line flags. Flags that are set override the config file.
	configPath   = flag.String("config", config.DefaultConfigPath, "YAML config file (missing file = defaults)")
	httpAddr     = flag.String("http", "", "Console HTTP address")
	pprofAddr    = flag.String("pprof", "", "pprof server address (empty = disabled)")
	cameraDevice = flag.Int("device", 0, "Camera device index")
	cameraInput  = flag.String("input", "", "Read frames from a video file instead of the device")
	backend      = flag.String("backend", "", "Camera backend (ffmpeg, gocv)")
	detectorKind = flag.String("detector", "", "Detector (remote, static)")
	detectorHost = flag.String("detector-host", "", "Inference server host:port")
	capturesDir  = flag.String("captures", "", "Captures directory")
	logPath      = flag.String("log", "", "Structured capture log (CSV)")
	databaseURL  = flag.String("journal-db", "", "PostgreSQL URL for the capture journal (empty = disabled)")
	logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor     = flag.Bool("log-color", true, "Enable colored log output")
)

// Server wires the capture session to the console.
type Server struct {
	cfg        config.Config
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	metrics    *metrics.Metrics
	captureLog *capturelog.Log
	detector   *detector.RemoteDetector
	store      *journal.Store
	journal    *journal.Writer
	session    *session.Session
	httpServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Log.Level, os.Stderr, cfg.Log.Color)
	logger.Info("Main", "Capture server starting...")
	logger.Info("Main", "Log level: %s", cfg.Log.Level)

	srv, err := NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")

	if err := srv.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// loadConfig reads the config file and applies the flags given on the command line.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	var errs []error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "device":
			cfg.Camera.Device = *cameraDevice
		case "input":
			cfg.Camera.Input = *cameraInput
		case "backend":
			cfg.Camera.Backend = *backend
		case "detector":
			cfg.Detector.Kind = *detectorKind
		case "detector-host":
			cfg.Detector.Host = *detectorHost
		case "captures":
			cfg.Storage.CapturesDir = *capturesDir
		case "log":
			cfg.Storage.LogPath = *logPath
		case "journal-db":
			cfg.Journal.DatabaseURL = *databaseURL
		case "log-level":
			level, err := logger.ParseLevel(*logLevel)
			if err != nil {
				errs = append(errs, err)
				return
			}
			cfg.Log.Level = level
		case "log-color":
			cfg.Log.Color = *logColor
		}
	})
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// NewServer creates the capture server. Storage initialization failure is
// the only startup error that aborts the process.
func NewServer(cfg config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	m := metrics.New()
	srv := &Server{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
	}

	if cfg.Journal.DatabaseURL != "" {
		openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
		store, err := journal.Open(openCtx, cfg.Journal.DatabaseURL)
		openCancel()
		if err != nil {
			logger.Warn("Main", "Capture journal disabled: %v", err)
		} else {
			srv.store = store
			srv.journal = journal.NewWriter(store)
			logger.Info("Main", "Capture journal enabled (session %s)", srv.journal.SessionID())
		}
	}

	opts := []capturelog.Option{
		capturelog.WithJPEGQuality(cfg.Storage.JPEGQuality),
		capturelog.WithMetrics(m),
	}
	if srv.journal != nil {
		opts = append(opts, capturelog.WithJournal(srv.journal))
	}
	srv.captureLog = capturelog.New(cfg.Storage.CapturesDir, cfg.Storage.LogPath, opts...)
	if err := srv.captureLog.EnsureInitialized(); err != nil {
		srv.closeJournal()
		cancel()
		return nil, fmt.Errorf("failed to initialize capture storage: %w", err)
	}

	det := srv.newDetector()
	adapter := detector.NewAdapter(det, detector.AdapterConfig{
		Names:         srv.cfg.Detector.Names,
		MinConfidence: srv.cfg.Detector.MinConfidence,
		Metrics:       m,
	})

	display := console.NewDisplay(cfg.Storage.JPEGQuality)
	srv.session = session.New(session.Config{
		Opener:   newOpener(cfg.Camera),
		Device:   cfg.Camera.Device,
		Detector: adapter,
		Store:    srv.captureLog,
		Target:   display,
		Metrics:  m,
	})

	consoleCfg := console.DefaultConfig()
	consoleCfg.Addr = cfg.HTTP.Addr
	consoleCfg.StatusInterval = cfg.HTTP.StatusInterval
	consoleCfg.LogName = filepath.Base(cfg.Storage.LogPath)
	consoleSrv := console.NewServer(consoleCfg, srv.session, display, srv.captureLog, m)

	srv.httpServer = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: consoleSrv.Handler(),
	}
	return srv, nil
}

func (s *Server) newDetector() detector.Detector {
	switch s.cfg.Detector.Kind {
	case config.DetectorStatic:
		names := s.cfg.Detector.Names
		if len(names) == 0 {
			names = []string{"bottle", "can"}
			s.cfg.Detector.Names = names
		}
		bounds := image.Rect(0, 0, s.cfg.Camera.Width, s.cfg.Camera.Height)
		logger.Info("Main", "Using static detector with classes %s", strings.Join(names, ", "))
		return &detector.StaticDetector{Results: detector.DemoResults(names, bounds)}
	default:
		s.detector = detector.NewRemoteDetector(s.cfg.Detector.Host, s.cfg.Detector.Timeout)
		logger.Info("Main", "Using inference server at %s", s.cfg.Detector.Host)
		return s.detector
	}
}

func newOpener(cfg config.CameraConfig) camera.Opener {
	stream := types.StreamConfig{
		Width:     cfg.Width,
		Height:    cfg.Height,
		TargetFPS: cfg.TargetFPS,
		Input:     cfg.Input,
	}
	if cfg.Backend == config.BackendGoCV {
		if !camera.GoCVAvailable {
			logger.Warn("Main", "gocv backend requested but this binary was built without -tags gocv")
		}
		return camera.NewGoCVOpener(stream)
	}
	return camera.NewFFmpegOpener(stream)
}

// Start starts the acquisition loop and the console.
func (s *Server) Start() error {
	log.Printf("Starting capture server...")
	log.Printf("  Console: %s", s.cfg.HTTP.Addr)
	log.Printf("  Camera: %s device %d (%dx%d@%dfps)", s.cfg.Camera.Backend, s.cfg.Camera.Device,
		s.cfg.Camera.Width, s.cfg.Camera.Height, s.cfg.Camera.TargetFPS)
	log.Printf("  Captures: %s", s.cfg.Storage.CapturesDir)
	log.Printf("  Log: %s", s.cfg.Storage.LogPath)

	if *pprofAddr != "" {
		go func() {
			log.Printf("Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	go func() {
		log.Printf("Starting HTTP server on %s", s.cfg.HTTP.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.session.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Main", "Session stopped: %v", err)
		}
	}()

	log.Println("Server started successfully")
	return nil
}

// Shutdown stops the console, then the session, then flushes the journal.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)

	s.session.Stop()
	s.cancel()

	// A camera read has no timeout; do not wait forever for the loop.
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("Main", "Acquisition loop did not stop in time")
	}

	if s.detector != nil {
		if cerr := s.detector.Close(); cerr != nil {
			logger.Warn("Main", "Detector close: %v", cerr)
		}
	}
	s.closeJournal()
	return err
}

func (s *Server) closeJournal() {
	s.journal.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logger.Warn("Main", "Journal close: %v", err)
		}
	}
}
