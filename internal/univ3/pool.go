package univ3

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// PoolMeta is the immutable shape of one pool: its tokens, fee tier
// and tick granularity.
type PoolMeta struct {
	Addr        common.Address
	Token0      common.Address
	Token1      common.Address
	Fee         uint32
	TickSpacing int
	Decimals0   int
	Decimals1   int
	Symbol0     string
	Symbol1     string
}

func (m PoolMeta) Pair() string {
	return m.Symbol0 + "/" + m.Symbol1
}

// HumanPrice converts a tick to a display price adjusted for token
// decimals. invert reports the price of token1 in token0, which reads
// better for stable/volatile pairs like USDC/WETH.
func (m PoolMeta) HumanPrice(tick int, invert bool) float64 {
	p := math.Pow(1.0001, float64(tick)) * math.Pow(10, float64(m.Decimals0-m.Decimals1))
	if invert && p != 0 {
		return 1 / p
	}
	return p
}

// FormatPrice renders a price the way the price-change trigger diffs
// it: fixed notation, two decimals.
func FormatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

func (c *Client) loadPoolMeta(ctx context.Context, pool common.Address) (PoolMeta, error) {
	m := PoolMeta{Addr: pool}

	out, err := c.call(ctx, pool, newCall("token0()"))
	if err != nil {
		return m, fmt.Errorf("token0: %w", err)
	}
	if err := wantWords(out, 1); err != nil {
		return m, err
	}
	m.Token0 = wordAddress(out, 0)

	out, err = c.call(ctx, pool, newCall("token1()"))
	if err != nil {
		return m, fmt.Errorf("token1: %w", err)
	}
	if err := wantWords(out, 1); err != nil {
		return m, err
	}
	m.Token1 = wordAddress(out, 0)

	out, err = c.call(ctx, pool, newCall("fee()"))
	if err != nil {
		return m, fmt.Errorf("fee: %w", err)
	}
	if err := wantWords(out, 1); err != nil {
		return m, err
	}
	m.Fee = uint32(wordBig(out, 0).Uint64())

	out, err = c.call(ctx, pool, newCall("tickSpacing()"))
	if err != nil {
		return m, fmt.Errorf("tickSpacing: %w", err)
	}
	if err := wantWords(out, 1); err != nil {
		return m, err
	}
	m.TickSpacing = int(wordSigned(out, 0).Int64())

	if m.Decimals0, m.Symbol0, err = c.tokenMeta(ctx, m.Token0); err != nil {
		return m, err
	}
	if m.Decimals1, m.Symbol1, err = c.tokenMeta(ctx, m.Token1); err != nil {
		return m, err
	}
	return m, nil
}

// Slot0 is the pool's current price observation.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int
}

// Slot0 reads the current tick and sqrt price. No retries: a failed
// read propagates and the supervisor restarts us.
func (c *Client) Slot0(ctx context.Context, pool common.Address) (Slot0, error) {
	out, err := c.call(ctx, pool, newCall("slot0()"))
	if err != nil {
		return Slot0{}, fmt.Errorf("slot0 %s: %w", pool.Hex(), err)
	}
	if err := wantWords(out, 2); err != nil {
		return Slot0{}, err
	}
	return Slot0{
		SqrtPriceX96: wordBig(out, 0),
		Tick:         int(wordSigned(out, 1).Int64()),
	}, nil
}

// PoolLiquidity reads the pool's in-range liquidity.
func (c *Client) PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := c.call(ctx, pool, newCall("liquidity()"))
	if err != nil {
		return nil, fmt.Errorf("liquidity %s: %w", pool.Hex(), err)
	}
	if err := wantWords(out, 1); err != nil {
		return nil, err
	}
	return wordBig(out, 0), nil
}
