package rangebot

import (
	"math/big"

	"uni-rerange/internal/univ3"
)

// Balanced band: inside the open interval (0.5, 1.5) the wallet is
// close enough to the target mix that a swap would cost more than the
// dust it removes.
const (
	ratioSwapToken1Below = 0.5
	ratioSwapToken0Above = 1.5
	ratioEpsilon         = 1e-18
)

// SwapDecision says which asset is in excess, if any.
type SwapDecision int

const (
	SwapNone SwapDecision = iota
	SwapToken0
	SwapToken1
)

func (d SwapDecision) String() string {
	switch d {
	case SwapToken0:
		return "sell token0"
	case SwapToken1:
		return "sell token1"
	default:
		return "no swap"
	}
}

// BalanceRatio compares the two balances in common value terms:
// value0 over value1. A zero value1 is guarded by epsilon so an empty
// secondary balance yields a huge-but-finite ratio, never a panic.
func BalanceRatio(value0, value1 float64) float64 {
	if value1 < ratioEpsilon {
		value1 = ratioEpsilon
	}
	return value0 / value1
}

func DecideSwap(ratio float64) SwapDecision {
	switch {
	case ratio >= ratioSwapToken0Above:
		return SwapToken0
	case ratio <= ratioSwapToken1Below:
		return SwapToken1
	default:
		return SwapNone
	}
}

// swapPlan sizes the rebalancing swap for a new band. The amount is
// the optimal-ratio solution for the target range, not a flat 50%
// split: post-swap balances should match what the mint will actually
// consume, minimizing leftover dust. A nil amount means the decision
// band said swap but the exact sizing rounded to nothing.
func swapPlan(amount0, amount1, sqrtP *big.Int, tickLower, tickUpper int) (decision SwapDecision, amountIn *big.Int, err error) {
	price, _ := univ3.RawPrice(sqrtP).Float64()
	a0, _ := new(big.Float).SetInt(amount0).Float64()
	a1, _ := new(big.Float).SetInt(amount1).Float64()

	decision = DecideSwap(BalanceRatio(a0*price, a1))
	if decision == SwapNone {
		return SwapNone, nil, nil
	}

	sqrtA, err := univ3.SqrtRatioAtTick(tickLower)
	if err != nil {
		return SwapNone, nil, err
	}
	sqrtB, err := univ3.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return SwapNone, nil, err
	}

	sellToken0, amountIn := univ3.SwapForRatio(amount0, amount1, sqrtP, sqrtA, sqrtB)
	if amountIn == nil {
		return SwapNone, nil, nil
	}
	// The decision table and the exact sizing judge the same imbalance;
	// trust the sizing's direction.
	if sellToken0 {
		if amountIn.Cmp(amount0) > 0 {
			amountIn = new(big.Int).Set(amount0)
		}
		return SwapToken0, amountIn, nil
	}
	if amountIn.Cmp(amount1) > 0 {
		amountIn = new(big.Int).Set(amount1)
	}
	return SwapToken1, amountIn, nil
}
