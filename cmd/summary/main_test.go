package main

import (
	"bytes"
	"testing"

	"github.com/dj-oyu/waste-detector/internal/summary"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	entries := summary.Sorted(map[string]int{"can": 1, "bottle": 2})
	if err := printTable(&buf, entries); err != nil {
		t.Fatalf("printTable: %v", err)
	}

	want := "Clase   Cantidad\n" +
		"bottle  2\n" +
		"can     1\n" +
		"Total   3\n"
	if buf.String() != want {
		t.Fatalf("table =\n%q\nwant\n%q", buf.String(), want)
	}
}
