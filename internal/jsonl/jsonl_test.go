package jsonl

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

type record struct {
	Event string `json:"event"`
	N     int    `json:"n"`
}

func TestWriteThenForEach(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "log.jsonl")
	w := New(path)

	for i := 1; i <= 3; i++ {
		if err := w.Write(record{Event: "tick", N: i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var got []record
	err := ForEach(path, func(line []byte) error {
		var r record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(got) != 3 || got[0].N != 1 || got[2].N != 3 {
		t.Fatalf("read back %+v", got)
	}
}

func TestNilWriterIsANoop(t *testing.T) {
	w := New("  ")
	if w != nil {
		t.Fatalf("blank path should yield a nil writer")
	}
	if err := w.Write(record{}); err != nil {
		t.Fatalf("nil writer write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil writer close: %v", err)
	}
}

func TestForEachMissingFile(t *testing.T) {
	err := ForEach(filepath.Join(t.TempDir(), "absent.jsonl"), func([]byte) error {
		t.Fatalf("callback fired for a missing file")
		return nil
	})
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
}
