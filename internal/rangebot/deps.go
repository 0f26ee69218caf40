package rangebot

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"uni-rerange/internal/univ3"
)

// MarketSnapshot is the per-block market view handed into the bot.
// It is an explicit value rather than process-global state so that
// several width instances can run side by side sharing nothing.
type MarketSnapshot struct {
	BlockNumber  uint64
	Tick         int
	SqrtPriceX96 *big.Int
	Price        float64  // display price, decimals-adjusted
	GasPrice     *big.Int // wei
	ObservedAt   time.Time
}

// Chain is everything the bot needs from the ledger. *univ3.Client
// implements it; tests use a stub.
type Chain interface {
	CurrentPosition(ctx context.Context, owner common.Address) (*univ3.Position, error)
	UnclaimedFees(ctx context.Context, id *big.Int) (amount0, amount1 *big.Int, err error)
	Slot0(ctx context.Context, pool common.Address) (univ3.Slot0, error)
	PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error)
	TokenBalances(ctx context.Context, owner common.Address) (amount0, amount1 *big.Int, err error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	WrappedBalance(ctx context.Context) (*big.Int, error)
	QuoteOut(ctx context.Context, sellToken0 bool, amountIn *big.Int) (*big.Int, error)

	RemoveLiquidity(ctx context.Context, pos *univ3.Position, min0, min1 *big.Int, deadline time.Time) (univ3.TxCost, error)
	Swap(ctx context.Context, sellToken0 bool, amountIn, minOut *big.Int, deadline time.Time) (univ3.TxCost, error)
	AddLiquidity(ctx context.Context, tickLower, tickUpper int, amount0, amount1, min0, min1 *big.Int, deadline time.Time) (id *big.Int, ok bool, cost univ3.TxCost, err error)
	Unwrap(ctx context.Context, amount *big.Int) (univ3.TxCost, error)
}

// Config is one bot instance's static configuration. Each range width
// gets its own instance with its own Config.
type Config struct {
	Owner common.Address
	Pool  univ3.PoolMeta

	WidthTicks  int
	SlippageBps int64 // swap/removal tolerance, e.g. 50 = 0.50%
	SwapFeeBps  int64 // swap pool fee tier in bps, subtracted from the quote

	// Gas ceiling: above this the bot defers re-ranging every block
	// rather than failing.
	MaxGasWei *big.Int

	// Gas reserve policy: keep at least MinNativeWei of the native
	// asset, topping up by unwrapping enough for ReserveMultiple
	// worst-case roundtrips (WorstCaseGasWei each) when affordable.
	MinNativeWei    *big.Int
	WorstCaseGasWei *big.Int
	ReserveMultiple int64

	DeadlineSecs int64

	// EnableTrading false is no-op mode: decisions are computed and
	// logged, no transaction is ever submitted.
	EnableTrading bool
	InvertPrice   bool

	// NativePriceFromPool: treat the display price as the USD price of
	// the native asset when accounting gas (true for stable/WETH pools).
	NativePriceFromPool bool
}
