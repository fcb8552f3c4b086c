package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/waste-detector/internal/logger"
)

const (
	DefaultConfigPath = "config.yaml"

	BackendFFmpeg = "ffmpeg"
	BackendGoCV   = "gocv"

	DetectorRemote = "remote"
	DetectorStatic = "static"
)

// Config defines the runtime configuration of the capture server.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Storage  StorageConfig  `yaml:"storage"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
}

// HTTPConfig configures the operator console.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	StatusInterval time.Duration `yaml:"status_interval"` // page poll interval
}

// CameraConfig selects and sizes the frame source.
type CameraConfig struct {
	Backend   string `yaml:"backend"`    // ffmpeg or gocv
	Device    int    `yaml:"device"`     // capture device index
	Input     string `yaml:"input"`      // optional video file instead of the device
	Width     int    `yaml:"width"`      // scaled frame width
	Height    int    `yaml:"height"`     // scaled frame height
	TargetFPS int    `yaml:"target_fps"` // acquisition rate
}

// DetectorConfig configures the detection capability.
type DetectorConfig struct {
	Kind          string        `yaml:"kind"` // remote or static
	Host          string        `yaml:"host"` // inference server host:port
	Timeout       time.Duration `yaml:"timeout"`
	MinConfidence float64       `yaml:"min_confidence"`
	Names         []string      `yaml:"names"` // class vocabulary, indexed by class id
}

// StorageConfig locates the captures directory and the structured log.
type StorageConfig struct {
	CapturesDir string `yaml:"captures_dir"`
	LogPath     string `yaml:"log_path"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

// JournalConfig enables the optional PostgreSQL capture journal.
type JournalConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level logger.LogLevel `yaml:"level"`
	Color bool            `yaml:"color"`
}

// DefaultConfig returns a config matching the original single-operator setup.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			StatusInterval: 500 * time.Millisecond,
		},
		Camera: CameraConfig{
			Backend:   BackendFFmpeg,
			Device:    0,
			Width:     640,
			Height:    480,
			TargetFPS: 15,
		},
		Detector: DetectorConfig{
			Kind:    DetectorRemote,
			Host:    "localhost:8000",
			Timeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			CapturesDir: "capturas",
			LogPath:     "detecciones.csv",
			JPEGQuality: 90,
		},
		Log: LogConfig{
			Level: logger.INFO,
			Color: true,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside the pipeline.
func (c Config) Validate() error {
	var errs []error

	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height))
	}
	if c.Camera.TargetFPS <= 0 {
		errs = append(errs, fmt.Errorf("camera target_fps must be positive, got %d", c.Camera.TargetFPS))
	}
	if c.Camera.Backend != BackendFFmpeg && c.Camera.Backend != BackendGoCV {
		errs = append(errs, fmt.Errorf("unknown camera backend %q", c.Camera.Backend))
	}
	if c.Detector.Kind != DetectorRemote && c.Detector.Kind != DetectorStatic {
		errs = append(errs, fmt.Errorf("unknown detector kind %q", c.Detector.Kind))
	}
	if c.Detector.Kind == DetectorRemote && c.Detector.Host == "" {
		errs = append(errs, errors.New("detector host is required for the remote detector"))
	}
	if c.Detector.MinConfidence < 0 || c.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector min_confidence must be within [0,1], got %v", c.Detector.MinConfidence))
	}
	if c.Storage.CapturesDir == "" || c.Storage.LogPath == "" {
		errs = append(errs, errors.New("storage captures_dir and log_path are required"))
	}
	if c.Storage.JPEGQuality < 1 || c.Storage.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("storage jpeg_quality must be within [1,100], got %d", c.Storage.JPEGQuality))
	}

	return errors.Join(errs...)
}
