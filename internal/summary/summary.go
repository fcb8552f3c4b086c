// Package summary reduces the capture log to per-class counts.
package summary

import (
	"io"
	"sort"

	"github.com/dj-oyu/waste-detector/internal/capturelog"
	"github.com/dj-oyu/waste-detector/pkg/types"
)

// Entry is one class and its row count.
type Entry struct {
	Label string `json:"clase"`
	Count int    `json:"cantidad"`
}

// Summarize counts rows per class label. No rows gives an empty map.
func Summarize(rows []types.LogRow) map[string]int {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.ClassLabel]++
	}
	return counts
}

// RowSource is anything that can return the full capture log.
type RowSource interface {
	Rows() ([]types.LogRow, error)
}

// FromLog reads the whole log from src and summarizes it.
func FromLog(src RowSource) (map[string]int, error) {
	rows, err := src.Rows()
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}

// FromReader parses a CSV log from r and summarizes it.
func FromReader(r io.Reader) (map[string]int, error) {
	rows, err := capturelog.ReadRows(r)
	if err != nil {
		return nil, err
	}
	return Summarize(rows), nil
}

// Sorted orders counts by count descending, then label ascending.
func Sorted(counts map[string]int) []Entry {
	entries := make([]Entry, 0, len(counts))
	for label, n := range counts {
		entries = append(entries, Entry{Label: label, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Label < entries[j].Label
	})
	return entries
}

// Total sums all counts.
func Total(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
