package rangebot

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"uni-rerange/internal/jsonl"
)

// Event is one appended analytics record. The bot only ever appends;
// decisions never read this log back.
type Event struct {
	Event     string  `json:"event"` // "rerange"
	Mode      string  `json:"mode"`  // dry | live
	Width     int     `json:"width"`
	TsUtc     string  `json:"ts_utc"`
	Direction string  `json:"direction,omitempty"`
	Block     uint64  `json:"block,omitempty"`
	TickLower int     `json:"tick_lower"`
	TickUpper int     `json:"tick_upper"`
	EntryTick int     `json:"entry_tick"`
	GasUsd    float64 `json:"gas_usd,omitempty"`
}

func appendEvent(w *jsonl.Writer, ev Event) {
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] analytics log write failed: %v", err)
	}
}

// MeanRerangeInterval scans the analytics log and reports the mean
// time between re-ranges for one width, plus the number of events
// seen. Fewer than two events means no interval exists.
func MeanRerangeInterval(path string, width int) (time.Duration, int, error) {
	var stamps []time.Time
	err := jsonl.ForEach(path, func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			// A torn final line from a crashed run is expected; skip it.
			return nil
		}
		if ev.Event != "rerange" || ev.Width != width {
			return nil
		}
		ts, err := time.Parse(time.RFC3339, ev.TsUtc)
		if err != nil {
			return nil
		}
		stamps = append(stamps, ts)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("read analytics log %s: %w", path, err)
	}
	if len(stamps) < 2 {
		return 0, len(stamps), nil
	}
	total := stamps[len(stamps)-1].Sub(stamps[0])
	return total / time.Duration(len(stamps)-1), len(stamps), nil
}
