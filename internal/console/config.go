package console

import "time"

// Config defines the runtime configuration for the operator console.
type Config struct {
	Addr           string
	StatusInterval time.Duration // status stream push interval and page poll interval
	JPEGQuality    int           // quality of /api/frame.jpg snapshots
	LogName        string        // shown next to the summary
}

// DefaultConfig returns the console defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 500 * time.Millisecond,
		JPEGQuality:    80,
		LogName:        "detecciones.csv",
	}
}
