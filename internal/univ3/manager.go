package univ3

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Position is an open concentrated-liquidity stake as read from the
// position manager. Tick bounds are immutable for its lifetime;
// Liquidity is whatever the chain said at read time and must be
// re-read before any burn.
type Position struct {
	ID        *big.Int
	Token0    common.Address
	Token1    common.Address
	Fee       uint32
	TickLower int
	TickUpper int
	Liquidity *big.Int
}

var erc721TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// CurrentPosition resolves the owner's open position for the range
// pool straight from the manager's enumeration. It returns nil when
// no open position exists, which is the expected state at startup and
// mid-roundtrip. When several positions match (operator error or a
// crashed add), the most recently minted one wins.
func (c *Client) CurrentPosition(ctx context.Context, owner common.Address) (*Position, error) {
	out, err := c.call(ctx, c.addrs.Manager, newCall("balanceOf(address)").addr(owner))
	if err != nil {
		return nil, fmt.Errorf("manager balanceOf: %w", err)
	}
	if err := wantWords(out, 1); err != nil {
		return nil, err
	}
	count := wordBig(out, 0).Int64()

	var current *Position
	for i := int64(0); i < count; i++ {
		out, err := c.call(ctx, c.addrs.Manager,
			newCall("tokenOfOwnerByIndex(address,uint256)").addr(owner).int(i))
		if err != nil {
			return nil, fmt.Errorf("tokenOfOwnerByIndex(%d): %w", i, err)
		}
		if err := wantWords(out, 1); err != nil {
			return nil, err
		}
		id := wordBig(out, 0)

		pos, err := c.PositionByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if pos.Token0 != c.pool.Token0 || pos.Token1 != c.pool.Token1 || pos.Fee != c.pool.Fee {
			continue
		}
		if pos.Liquidity.Sign() == 0 {
			continue
		}
		current = pos
	}
	return current, nil
}

// PositionByID reads one position record from the manager.
func (c *Client) PositionByID(ctx context.Context, id *big.Int) (*Position, error) {
	out, err := c.call(ctx, c.addrs.Manager, newCall("positions(uint256)").word(id))
	if err != nil {
		return nil, fmt.Errorf("positions(%s): %w", id, err)
	}
	if err := wantWords(out, 12); err != nil {
		return nil, err
	}
	return &Position{
		ID:        new(big.Int).Set(id),
		Token0:    wordAddress(out, 2),
		Token1:    wordAddress(out, 3),
		Fee:       uint32(wordBig(out, 4).Uint64()),
		TickLower: int(wordSigned(out, 5).Int64()),
		TickUpper: int(wordSigned(out, 6).Int64()),
		Liquidity: wordBig(out, 7),
	}, nil
}

func collectCall(id *big.Int, recipient common.Address) calldata {
	return newCall("collect((uint256,address,uint128,uint128))").
		word(id).addr(recipient).word(MaxUint128).word(MaxUint128)
}

// UnclaimedFees simulates collect() without submitting a transaction
// and returns the fee amounts the position would pay out right now.
func (c *Client) UnclaimedFees(ctx context.Context, id *big.Int) (amount0, amount1 *big.Int, err error) {
	out, err := c.call(ctx, c.addrs.Manager, collectCall(id, c.owner))
	if err != nil {
		return nil, nil, fmt.Errorf("collect simulation: %w", err)
	}
	if err := wantWords(out, 2); err != nil {
		return nil, nil, err
	}
	return wordBig(out, 0), wordBig(out, 1), nil
}

// RemoveLiquidity burns 100% of the position's liquidity, collects
// principal plus all owed fees to the owner, and burns the NFT, as a
// single multicall transaction. min0/min1 bound the principal paid
// out; the fee component has no minimum (a zero fee floor is accepted,
// never an error).
func (c *Client) RemoveLiquidity(ctx context.Context, pos *Position, min0, min1 *big.Int, deadline time.Time) (TxCost, error) {
	if pos == nil || pos.Liquidity == nil || pos.Liquidity.Sign() == 0 {
		return TxCost{}, fmt.Errorf("remove: position has no liquidity")
	}
	decrease := newCall("decreaseLiquidity((uint256,uint128,uint256,uint256,uint256))").
		word(pos.ID).
		word(pos.Liquidity).
		word(min0).
		word(min1).
		int(deadline.Unix())
	collect := collectCall(pos.ID, c.owner)
	burn := newCall("burn(uint256)").word(pos.ID)

	data := encodeMulticall([][]byte{decrease, collect, burn})
	_, cost, err := c.send(ctx, c.addrs.Manager, data, nil)
	if err != nil {
		return cost, fmt.Errorf("remove liquidity (position %s): %w", pos.ID, err)
	}
	return cost, nil
}

// AddLiquidity mints a new position over [tickLower, tickUpper] using
// the given desired amounts. The new position id is recovered from the
// mint receipt's ERC-721 Transfer log; ok is false when the log could
// not be found, in which case the position exists on-chain but is
// untracked and the operator must intervene.
func (c *Client) AddLiquidity(ctx context.Context, tickLower, tickUpper int, amount0, amount1, min0, min1 *big.Int, deadline time.Time) (id *big.Int, ok bool, cost TxCost, err error) {
	data := newCall("mint((address,address,uint24,int24,int24,uint256,uint256,uint256,uint256,address,uint256))").
		addr(c.pool.Token0).
		addr(c.pool.Token1).
		int(int64(c.pool.Fee)).
		int(int64(tickLower)).
		int(int64(tickUpper)).
		word(amount0).
		word(amount1).
		word(min0).
		word(min1).
		addr(c.owner).
		int(deadline.Unix())

	receipt, cost, err := c.send(ctx, c.addrs.Manager, data, nil)
	if err != nil {
		return nil, false, cost, fmt.Errorf("mint: %w", err)
	}
	id, ok = MintedPositionID(receipt, c.addrs.Manager, c.owner)
	return id, ok, cost, nil
}

// MintedPositionID recovers a freshly minted position's token id from
// the ERC-721 Transfer(0x0 -> recipient) log the manager emits while
// minting. Best effort: ok is false when no such log is present.
func MintedPositionID(receipt *types.Receipt, manager, recipient common.Address) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != manager || len(lg.Topics) != 4 {
			continue
		}
		if lg.Topics[0] != erc721TransferTopic {
			continue
		}
		from := common.BytesToAddress(lg.Topics[1].Bytes())
		to := common.BytesToAddress(lg.Topics[2].Bytes())
		if (from != common.Address{}) || to != recipient {
			continue
		}
		return new(big.Int).SetBytes(lg.Topics[3].Bytes()), true
	}
	return nil, false
}
