package summary

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/dj-oyu/waste-detector/pkg/types"
)

type fakeSource struct {
	rows []types.LogRow
	err  error
}

func (f fakeSource) Rows() ([]types.LogRow, error) { return f.rows, f.err }

func rowsOf(labels ...string) []types.LogRow {
	rows := make([]types.LogRow, len(labels))
	for i, l := range labels {
		rows[i] = types.LogRow{ImageFilename: "x.jpg", ClassLabel: l, Confidence: "0.50", Timestamp: "x"}
	}
	return rows
}

func TestSummarizeCountsPerClass(t *testing.T) {
	got := Summarize(rowsOf("a", "a", "b"))
	want := map[string]int{"a": 2, "b": 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if Total(got) != 3 {
		t.Fatalf("total = %d", Total(got))
	}
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("got %v, want empty map", got)
	}
	if entries := Sorted(got); len(entries) != 0 {
		t.Fatalf("entries = %v", entries)
	}
}

func TestSortedOrdering(t *testing.T) {
	got := Sorted(map[string]int{"paper": 1, "can": 3, "bottle": 3, "lid": 2})
	want := []Entry{{"bottle", 3}, {"can", 3}, {"lid", 2}, {"paper", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFromLog(t *testing.T) {
	got, err := FromLog(fakeSource{rows: rowsOf("can", "bottle", "can")})
	if err != nil {
		t.Fatalf("FromLog: %v", err)
	}
	if got["can"] != 2 || got["bottle"] != 1 {
		t.Fatalf("got %v", got)
	}

	boom := errors.New("boom")
	if _, err := FromLog(fakeSource{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestFromReader(t *testing.T) {
	csv := "nombre_imagen,clase,confianza,timestamp\n" +
		"a.jpg,bottle,0.87,a\n" +
		"a.jpg,can,0.91,a\n" +
		"b.jpg,can,0.40,b\n"
	got, err := FromReader(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}
	want := map[string]int{"bottle": 1, "can": 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
