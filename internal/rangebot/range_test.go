package rangebot

import (
	"testing"

	"uni-rerange/internal/univ3"
)

func TestRangeAroundAligned(t *testing.T) {
	lower, upper := RangeAround(200000, 120, 60)
	if lower != 199920 || upper != 200100 {
		t.Fatalf("got [%d, %d], want [199920, 200100]", lower, upper)
	}
	if lower%60 != 0 || upper%60 != 0 {
		t.Fatalf("bounds not aligned to spacing: [%d, %d]", lower, upper)
	}
}

func TestRangeAroundDeterministic(t *testing.T) {
	l1, u1 := RangeAround(-73456, 1800, 60)
	l2, u2 := RangeAround(-73456, 1800, 60)
	if l1 != l2 || u1 != u2 {
		t.Fatalf("same inputs produced [%d, %d] then [%d, %d]", l1, u1, l2, u2)
	}
	if l1%60 != 0 || u1%60 != 0 {
		t.Fatalf("negative-tick bounds not aligned: [%d, %d]", l1, u1)
	}
	if !(l1 <= -73456 && -73456 <= u1) {
		t.Fatalf("band [%d, %d] does not contain the entry tick", l1, u1)
	}
}

func TestRangeAroundClampsToProtocolBounds(t *testing.T) {
	lower, upper := RangeAround(univ3.MinTick+2, 1000, 60)
	if lower < univ3.MinTick {
		t.Fatalf("lower %d below protocol minimum", lower)
	}
	if lower%60 != 0 || upper%60 != 0 {
		t.Fatalf("bounds not aligned: [%d, %d]", lower, upper)
	}

	lower, upper = RangeAround(univ3.MaxTick-2, 1000, 60)
	if upper > univ3.MaxTick {
		t.Fatalf("upper %d above protocol maximum", upper)
	}
	if upper <= lower {
		t.Fatalf("degenerate band [%d, %d]", lower, upper)
	}
}

func TestRangeAroundNarrowWidth(t *testing.T) {
	// Width below one spacing still yields a usable band.
	lower, upper := RangeAround(0, 10, 60)
	if upper <= lower {
		t.Fatalf("degenerate band [%d, %d]", lower, upper)
	}
}

func TestOutOfRangeSentinel(t *testing.T) {
	var r RangeState
	for _, tick := range []int{0, 1, -1, 200000} {
		if !r.OutOfRange(tick) {
			t.Fatalf("sentinel range claims tick %d is in range", tick)
		}
	}
}

func TestOutOfRangeBoundsInclusive(t *testing.T) {
	r := RangeState{TickLower: 100, TickUpper: 200}
	cases := []struct {
		tick string
		in   int
		out  bool
	}{
		{"lower bound", 100, false},
		{"upper bound", 200, false},
		{"interior", 150, false},
		{"below", 99, true},
		{"above", 201, true},
	}
	for _, c := range cases {
		if got := r.OutOfRange(c.in); got != c.out {
			t.Fatalf("%s: OutOfRange(%d) = %v, want %v", c.tick, c.in, got, c.out)
		}
	}
}

func TestDirection(t *testing.T) {
	r := RangeState{TickLower: 100, TickUpper: 200}
	if r.direction(250) != DirectionUp {
		t.Fatalf("exit above band should be up")
	}
	if r.direction(50) != DirectionDown {
		t.Fatalf("exit below band should be down")
	}
}
