package univ3

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Protocol-wide tick bounds for any Uniswap v3 pool.
const (
	MinTick = -887272
	MaxTick = 887272
)

var ErrTickOutOfBounds = errors.New("tick out of bounds")

// sqrtRatioSteps[i] is sqrt(1/1.0001^(2^i)) in UQ128.128, the ladder
// the pool contract itself multiplies through bit by bit.
var sqrtRatioSteps = [20]*uint256.Int{
	mustU256("0xfffcb933bd6fad37aa2d162d1a594001"),
	mustU256("0xfff97272373d413259a46990580e213a"),
	mustU256("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	mustU256("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	mustU256("0xffcb9843d60f6159c9db58835c926644"),
	mustU256("0xff973b41fa98c081472e6896dfb254c0"),
	mustU256("0xff2ea16466c96a3843ec78b326b52861"),
	mustU256("0xfe5dee046a99a2a811c461f1969c3053"),
	mustU256("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	mustU256("0xf987a7253ac413176f2b074cf7815e54"),
	mustU256("0xf3392b0822b70005940c7a398e4b70f3"),
	mustU256("0xe7159475a2c29b7443b29c7fa6e889d9"),
	mustU256("0xd097f3bdfd2022b8845ad8f792aa5825"),
	mustU256("0xa9f746462d870fdf8a65dc1f90e061e5"),
	mustU256("0x70d869a156d2a1b890bb3df62baf32f7"),
	mustU256("0x31be135f97d08fd981231505542fcfa6"),
	mustU256("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	mustU256("0x5d6af8dedb81196699c329225ee604"),
	mustU256("0x2216e584f5fa1ea926041bedfe98"),
	mustU256("0x48a170391f7dc42444e8fa2"),
}

var (
	oneUQ128    = mustU256("0x100000000000000000000000000000000")
	maxUint256U = new(uint256.Int).SetAllOne()
	lowMask     = uint256.NewInt(0xffffffff)
)

func mustU256(hex string) *uint256.Int {
	v, err := uint256.FromHex(hex)
	if err != nil {
		panic(err)
	}
	return v
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) * 2^96 as a Q64.96.
// Same multiply-and-shift ladder as the pool contract, so minting and
// rebalancing math here agrees bit-for-bit with what the chain will
// compute.
func SqrtRatioAtTick(tick int) (*big.Int, error) {
	if tick < MinTick || tick > MaxTick {
		return nil, ErrTickOutOfBounds
	}

	absTick := tick
	if absTick < 0 {
		absTick = -absTick
	}

	ratio := new(uint256.Int)
	if absTick&1 != 0 {
		ratio.Set(sqrtRatioSteps[0])
	} else {
		ratio.Set(oneUQ128)
	}
	for i := 1; i < len(sqrtRatioSteps); i++ {
		if absTick&(1<<i) != 0 {
			ratio.Mul(ratio, sqrtRatioSteps[i]).Rsh(ratio, 128)
		}
	}

	if tick > 0 {
		ratio.Div(maxUint256U, ratio)
	}

	// UQ128.128 -> Q64.96, rounding up.
	rem := new(uint256.Int).And(ratio, lowMask)
	ratio.Rsh(ratio, 32)
	if !rem.IsZero() {
		ratio.AddUint64(ratio, 1)
	}
	return ratio.ToBig(), nil
}
