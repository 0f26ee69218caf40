package univ3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func (c *Client) tokenMeta(ctx context.Context, token common.Address) (decimals int, symbol string, err error) {
	out, err := c.call(ctx, token, newCall("decimals()"))
	if err != nil {
		return 0, "", fmt.Errorf("decimals %s: %w", token.Hex(), err)
	}
	if err := wantWords(out, 1); err != nil {
		return 0, "", err
	}
	decimals = int(wordBig(out, 0).Int64())

	out, err = c.call(ctx, token, newCall("symbol()"))
	if err != nil {
		return 0, "", fmt.Errorf("symbol %s: %w", token.Hex(), err)
	}
	return decimals, decodeString(out), nil
}

// TokenBalance reads an ERC-20 balance for owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, newCall("balanceOf(address)").addr(owner))
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Hex(), err)
	}
	if err := wantWords(out, 1); err != nil {
		return nil, err
	}
	return wordBig(out, 0), nil
}

// TokenBalances reads both pool-token balances for owner.
func (c *Client) TokenBalances(ctx context.Context, owner common.Address) (amount0, amount1 *big.Int, err error) {
	if amount0, err = c.TokenBalance(ctx, c.pool.Token0, owner); err != nil {
		return nil, nil, err
	}
	if amount1, err = c.TokenBalance(ctx, c.pool.Token1, owner); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// Allowance reads the owner->spender ERC-20 allowance.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, newCall("allowance(address,address)").addr(owner).addr(spender))
	if err != nil {
		return nil, fmt.Errorf("allowance %s: %w", token.Hex(), err)
	}
	if err := wantWords(out, 1); err != nil {
		return nil, err
	}
	return wordBig(out, 0), nil
}

// Approve grants spender an unlimited allowance on token and waits for
// the transaction to confirm.
func (c *Client) Approve(ctx context.Context, token, spender common.Address) (TxCost, error) {
	max := new(big.Int).Sub(two256, big.NewInt(1))
	data := newCall("approve(address,uint256)").addr(spender).word(max)
	_, cost, err := c.send(ctx, token, data, nil)
	if err != nil {
		return cost, fmt.Errorf("approve %s for %s: %w", token.Hex(), spender.Hex(), err)
	}
	return cost, nil
}
