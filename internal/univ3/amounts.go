package univ3

import (
	"math/big"
)

var q96 = new(big.Int).Lsh(big.NewInt(1), 96)

// AmountsForLiquidity returns the token0/token1 principal a position
// of the given liquidity holds at the current price. sqrtP is clamped
// into [sqrtA, sqrtB]: below the range the position is all token0,
// above it all token1.
func AmountsForLiquidity(sqrtP, sqrtA, sqrtB, liquidity *big.Int) (amount0, amount1 *big.Int) {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	p := sqrtP
	if p.Cmp(sqrtA) < 0 {
		p = sqrtA
	}
	if p.Cmp(sqrtB) > 0 {
		p = sqrtB
	}

	// amount0 = L * 2^96 * (sqrtB - p) / (sqrtB * p)
	amount0 = new(big.Int).Sub(sqrtB, p)
	amount0.Mul(amount0, liquidity)
	amount0.Mul(amount0, q96)
	amount0.Div(amount0, sqrtB)
	amount0.Div(amount0, p)

	// amount1 = L * (p - sqrtA) / 2^96
	amount1 = new(big.Int).Sub(p, sqrtA)
	amount1.Mul(amount1, liquidity)
	amount1.Div(amount1, q96)
	return amount0, amount1
}

// Token0ValueFraction returns the share of a fresh position's value
// that must be supplied as token0 when minting over [sqrtA, sqrtB] at
// price sqrtP. 1 below the range, 0 above it.
func Token0ValueFraction(sqrtP, sqrtA, sqrtB *big.Int) float64 {
	if sqrtA.Cmp(sqrtB) > 0 {
		sqrtA, sqrtB = sqrtB, sqrtA
	}
	if sqrtP.Cmp(sqrtA) <= 0 {
		return 1
	}
	if sqrtP.Cmp(sqrtB) >= 0 {
		return 0
	}

	// Per unit of liquidity, in token1 terms:
	//   value0 = price * amount0 = sqrtP/2^96 * (sqrtB-sqrtP)*2^96/(sqrtB*sqrtP)
	//          = (sqrtB - sqrtP) / sqrtB
	//   value1 = (sqrtP - sqrtA) / 2^96
	pf := new(big.Float).SetInt(sqrtP)
	af := new(big.Float).SetInt(sqrtA)
	bf := new(big.Float).SetInt(sqrtB)
	q96f := new(big.Float).SetInt(q96)

	v0 := new(big.Float).Quo(new(big.Float).Sub(bf, pf), bf)
	v1 := new(big.Float).Quo(new(big.Float).Sub(pf, af), q96f)
	v1.Quo(v1, new(big.Float).Quo(pf, q96f)) // scale to the same 1/sqrtP basis as v0

	total := new(big.Float).Add(v0, v1)
	if total.Sign() == 0 {
		return 0
	}
	frac, _ := new(big.Float).Quo(v0, total).Float64()
	return frac
}

// SwapForRatio sizes the single swap that moves wallet balances to the
// ratio a new [sqrtA, sqrtB] position needs at price sqrtP. It returns
// which token is in excess and the exact input amount; amountIn is nil
// when the balances already match the target.
func SwapForRatio(amount0, amount1, sqrtP, sqrtA, sqrtB *big.Int) (sellToken0 bool, amountIn *big.Int) {
	f0 := Token0ValueFraction(sqrtP, sqrtA, sqrtB)

	price := RawPrice(sqrtP) // token1 per token0, raw units
	a0 := new(big.Float).SetInt(amount0)
	a1 := new(big.Float).SetInt(amount1)

	v0 := new(big.Float).Mul(a0, price)
	total := new(big.Float).Add(v0, a1)
	target0 := new(big.Float).Mul(total, big.NewFloat(f0))

	if v0.Cmp(target0) > 0 {
		// Excess token0: sell (v0 - target0) worth of token0.
		excess := new(big.Float).Sub(v0, target0)
		excess.Quo(excess, price)
		out, _ := excess.Int(nil)
		if out.Sign() <= 0 {
			return true, nil
		}
		return true, out
	}

	excess := new(big.Float).Sub(total, target0) // target token1 value
	excess.Sub(a1, excess)
	out, _ := excess.Int(nil)
	if out.Sign() <= 0 {
		return false, nil
	}
	return false, out
}

// RawPrice is (sqrtP/2^96)^2: the raw-unit price of token0 in token1.
func RawPrice(sqrtP *big.Int) *big.Float {
	r := new(big.Float).Quo(new(big.Float).SetInt(sqrtP), new(big.Float).SetInt(q96))
	return r.Mul(r, r)
}
