package main

import (
	"log"

	"uni-rerange/internal/jsonl"
)

type runEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // start | shutdown

	Mode  string `json:"mode,omitempty"` // dry | live
	Pair  string `json:"pair,omitempty"`
	Width int    `json:"width,omitempty"`

	SlippageBps int64   `json:"slippage_bps,omitempty"`
	MaxGasGwei  float64 `json:"max_gas_gwei,omitempty"`

	Ok       bool  `json:"ok,omitempty"`
	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func runMode(enableTrading bool) string {
	if enableTrading {
		return "live"
	}
	return "dry"
}

func logRunEvent(w *jsonl.Writer, ev runEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] run log write failed: %v", err)
	}
}
