package univ3

import (
	"context"
	"fmt"
	"math/big"
)

// Unwrap withdraws amount of the wrapped native asset so it can pay
// for gas.
func (c *Client) Unwrap(ctx context.Context, amount *big.Int) (TxCost, error) {
	if amount == nil || amount.Sign() <= 0 {
		return TxCost{}, fmt.Errorf("unwrap amount must be positive")
	}
	data := newCall("withdraw(uint256)").word(amount)
	_, cost, err := c.send(ctx, c.addrs.WETH, data, nil)
	if err != nil {
		return cost, fmt.Errorf("weth withdraw: %w", err)
	}
	return cost, nil
}

// WrappedBalance reads the owner's wrapped-native balance.
func (c *Client) WrappedBalance(ctx context.Context) (*big.Int, error) {
	return c.TokenBalance(ctx, c.addrs.WETH, c.owner)
}
