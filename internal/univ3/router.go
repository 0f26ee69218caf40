package univ3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Swap sells amountIn of one pool token for the other through the
// router's exactInputSingle, on the swap pool's fee tier. minOut is
// the slippage bound; the price limit is left open since the deadline
// and minOut already bound the trade.
func (c *Client) Swap(ctx context.Context, sellToken0 bool, amountIn, minOut *big.Int, deadline time.Time) (TxCost, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return TxCost{}, fmt.Errorf("swap amount must be positive")
	}
	tokenIn, tokenOut := c.swapPool.Token0, c.swapPool.Token1
	if !sellToken0 {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	data := newCall("exactInputSingle((address,address,uint24,address,uint256,uint256,uint256,uint160))").
		addr(tokenIn).
		addr(tokenOut).
		int(int64(c.swapPool.Fee)).
		addr(c.owner).
		int(deadline.Unix()).
		word(amountIn).
		word(minOut).
		word(big.NewInt(0))

	_, cost, err := c.send(ctx, c.addrs.Router, data, nil)
	if err != nil {
		return cost, fmt.Errorf("swap %s -> %s: %w", tokenIn.Hex(), tokenOut.Hex(), err)
	}
	return cost, nil
}

// QuoteOut is the expected swap output for amountIn. With a quoter
// address configured it asks QuoterV2, which walks the swap pool's
// liquidity and prices the impact in; without one it degrades to the
// mid-price, which ignores depth. The orchestrator shaves the slippage
// tolerance plus the fee tier off this to build minOut.
func (c *Client) QuoteOut(ctx context.Context, sellToken0 bool, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("quote amount must be positive")
	}
	if c.addrs.Quoter == (common.Address{}) {
		return c.midPriceOut(ctx, sellToken0, amountIn)
	}

	tokenIn, tokenOut := c.swapPool.Token0, c.swapPool.Token1
	if !sellToken0 {
		tokenIn, tokenOut = tokenOut, tokenIn
	}
	out, err := c.call(ctx, c.addrs.Quoter, quoteExactInputSingleCall(tokenIn, tokenOut, int64(c.swapPool.Fee), amountIn))
	if err != nil {
		return nil, fmt.Errorf("quoter %s -> %s: %w", tokenIn.Hex(), tokenOut.Hex(), err)
	}
	return decodeQuoteOut(out)
}

// quoteExactInputSingleCall builds QuoterV2 quoteExactInputSingle
// calldata. The params struct is static, so it encodes as five inline
// words; the price limit stays open like the swap itself.
func quoteExactInputSingleCall(tokenIn, tokenOut common.Address, fee int64, amountIn *big.Int) []byte {
	return newCall("quoteExactInputSingle((address,address,uint256,uint24,uint160))").
		addr(tokenIn).
		addr(tokenOut).
		word(amountIn).
		int(fee).
		word(big.NewInt(0))
}

// decodeQuoteOut picks amountOut out of the quoter's return data:
// (amountOut, sqrtPriceX96After, initializedTicksCrossed, gasEstimate).
func decodeQuoteOut(out []byte) (*big.Int, error) {
	if err := wantWords(out, 4); err != nil {
		return nil, err
	}
	return wordBig(out, 0), nil
}

// midPriceOut values amountIn at the swap pool's instantaneous price,
// price of token0 in token1 = sqrtP^2 / 2^192.
func (c *Client) midPriceOut(ctx context.Context, sellToken0 bool, amountIn *big.Int) (*big.Int, error) {
	slot, err := c.Slot0(ctx, c.swapPool.Addr)
	if err != nil {
		return nil, err
	}
	num := new(big.Int).Mul(slot.SqrtPriceX96, slot.SqrtPriceX96)
	q192 := new(big.Int).Mul(q96, q96)
	out := new(big.Int)
	if sellToken0 {
		out.Mul(amountIn, num)
		out.Div(out, q192)
	} else {
		out.Mul(amountIn, q192)
		out.Div(out, num)
	}
	return out, nil
}
