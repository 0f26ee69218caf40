package rangebot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"uni-rerange/internal/jsonl"
)

func TestMeanRerangeInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w := jsonl.New(path)
	defer w.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, 10 * time.Minute, 30 * time.Minute} {
		ev := Event{Event: "rerange", Mode: "live", Width: 120, TsUtc: base.Add(offset).Format(time.RFC3339)}
		if err := w.Write(ev); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	// Another width's events and a torn tail must both be skipped.
	if err := w.Write(Event{Event: "rerange", Width: 360, TsUtc: base.Format(time.RFC3339)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"event":"rerange","wid`); err != nil {
		t.Fatalf("append torn line: %v", err)
	}
	f.Close()

	mean, n, err := MeanRerangeInterval(path, 120)
	if err != nil {
		t.Fatalf("MeanRerangeInterval: %v", err)
	}
	if n != 3 {
		t.Fatalf("counted %d events, want 3", n)
	}
	if mean != 15*time.Minute {
		t.Fatalf("mean %v, want 15m", mean)
	}
}

func TestMeanRerangeIntervalMissingLog(t *testing.T) {
	mean, n, err := MeanRerangeInterval(filepath.Join(t.TempDir(), "absent.jsonl"), 120)
	if err != nil {
		t.Fatalf("missing log should not error: %v", err)
	}
	if mean != 0 || n != 0 {
		t.Fatalf("got mean=%v n=%d, want zeroes", mean, n)
	}
}

func TestMeanRerangeIntervalSingleEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	w := jsonl.New(path)
	defer w.Close()
	ev := Event{Event: "rerange", Width: 120, TsUtc: time.Now().UTC().Format(time.RFC3339)}
	if err := w.Write(ev); err != nil {
		t.Fatalf("write: %v", err)
	}

	mean, n, err := MeanRerangeInterval(path, 120)
	if err != nil {
		t.Fatalf("MeanRerangeInterval: %v", err)
	}
	if mean != 0 || n != 1 {
		t.Fatalf("got mean=%v n=%d, want mean=0 n=1", mean, n)
	}
}
