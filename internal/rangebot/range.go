package rangebot

import (
	"time"

	"uni-rerange/internal/univ3"
)

// Direction records which way price left the previous band. Analytics
// only, never load-bearing.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// RangeState is the band the bot believes it is providing liquidity
// over. The zero value is the sentinel "no range yet": a zero-width
// band contains no tick at all (including tick 0, which is why
// OutOfRange checks width before bounds), so the first OnBlock always
// triggers range establishment.
type RangeState struct {
	TickLower   int
	TickUpper   int
	EntryTick   int
	LastRerange time.Time
}

func (r RangeState) OutOfRange(tick int) bool {
	if r.TickLower >= r.TickUpper {
		return true
	}
	return tick < r.TickLower || tick > r.TickUpper
}

func (r RangeState) direction(tick int) Direction {
	if tick > r.TickUpper {
		return DirectionUp
	}
	return DirectionDown
}

// RangeAround centers a band of widthTicks on currentTick, clamps it
// to the protocol tick bounds and aligns it to the pool's tick
// spacing (lower rounds down, upper rounds up). Clamping runs before
// alignment, so a band against a protocol extreme comes out narrower
// than widthTicks; that is accepted, not corrected. Pure and
// deterministic: recomputing after a crash reproduces the band that
// was in flight.
func RangeAround(currentTick, widthTicks, tickSpacing int) (lower, upper int) {
	lower = currentTick - widthTicks/2
	if lower < univ3.MinTick {
		lower = univ3.MinTick
	}
	lower = floorMultiple(lower, tickSpacing)
	if lower < univ3.MinTick {
		lower += tickSpacing
	}

	upper = currentTick + widthTicks/2
	if upper > univ3.MaxTick {
		upper = univ3.MaxTick
	}
	upper = ceilMultiple(upper, tickSpacing)
	if upper > univ3.MaxTick {
		upper -= tickSpacing
	}

	if upper <= lower {
		upper = lower + tickSpacing
	}
	return lower, upper
}

func floorMultiple(x, spacing int) int {
	q := x / spacing
	if x%spacing != 0 && x < 0 {
		q--
	}
	return q * spacing
}

func ceilMultiple(x, spacing int) int {
	q := x / spacing
	if x%spacing != 0 && x > 0 {
		q++
	}
	return q * spacing
}
