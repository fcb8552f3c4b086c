package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dj-oyu/waste-detector/internal/capturelog"
	"github.com/dj-oyu/waste-detector/internal/chart"
	"github.com/dj-oyu/waste-detector/internal/config"
	"github.com/dj-oyu/waste-detector/internal/journal"
	"github.com/dj-oyu/waste-detector/internal/logger"
	"github.com/dj-oyu/waste-detector/internal/summary"
)

func main() {
	cfg, err := config.Load(config.DefaultConfigPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var (
		chartPath   string
		useJournal  bool
		logLevel    string
		logColor    bool
		logPathFlag = cfg.Storage.LogPath
		databaseURL = cfg.Journal.DatabaseURL
	)

	flag.StringVar(&logPathFlag, "log", logPathFlag, "Structured capture log (CSV)")
	flag.StringVar(&chartPath, "chart", "", "Write the bar chart PNG to this path")
	flag.BoolVar(&useJournal, "journal", false, "Summarize the PostgreSQL journal instead of the CSV log")
	flag.StringVar(&databaseURL, "journal-db", databaseURL, "PostgreSQL URL of the capture journal")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", true, "Enable colored log output")
	flag.Parse()

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, os.Stderr, logColor)

	var counts map[string]int
	source := logPathFlag
	if useJournal {
		source = "journal"
		counts, err = journalCounts(databaseURL)
	} else {
		counts, err = summary.FromLog(capturelog.New(cfg.Storage.CapturesDir, logPathFlag))
	}
	if err != nil {
		log.Fatalf("Failed to summarize %s: %v", source, err)
	}

	entries := summary.Sorted(counts)
	if len(entries) == 0 {
		fmt.Printf("Sin detecciones registradas en %s\n", source)
		return
	}
	if err := printTable(os.Stdout, entries); err != nil {
		log.Fatalf("write summary: %v", err)
	}

	if chartPath == "" {
		return
	}
	data, err := chart.RenderBarChart(entries)
	if err != nil {
		log.Fatalf("render chart: %v", err)
	}
	if err := os.WriteFile(chartPath, data, 0o644); err != nil {
		log.Fatalf("write chart: %v", err)
	}
	logger.Info("Main", "Chart written to %s", chartPath)
}

func journalCounts(url string) (map[string]int, error) {
	if url == "" {
		return nil, fmt.Errorf("no journal database configured (-journal-db)")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := journal.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.ClassCounts(ctx)
}

func printTable(w io.Writer, entries []summary.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Clase\tCantidad")
	total := 0
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\n", e.Label, e.Count)
		total += e.Count
	}
	fmt.Fprintf(tw, "Total\t%d\n", total)
	return tw.Flush()
}
