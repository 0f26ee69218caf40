// Package rangebot runs one dynamic range order: it keeps a
// concentrated-liquidity position centered on the market and replaces
// it whenever price leaves the band.
package rangebot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/big"
	"time"

	"uni-rerange/internal/jsonl"
	"uni-rerange/internal/metrics"
	"uni-rerange/internal/univ3"
)

// State is the orchestrator's externally visible mode.
type State string

const (
	StateNoPosition State = "no-position"
	StateInPosition State = "in-position"
	StateReRanging  State = "re-ranging"
)

// ErrInvariant marks a state-machine precondition violation. These are
// never absorbed: they propagate to main and kill the process.
var ErrInvariant = errors.New("state machine invariant violation")

// Bot is one re-range orchestrator instance. It is single-goroutine:
// the event loop calls OnBlock/OnPriceChanged sequentially, and the
// locked flag guards against a new block callback overlapping a
// roundtrip that is still awaiting confirmations. The flag is not
// persisted; restart recovery re-derives everything from the chain.
type Bot struct {
	cfg    Config
	chain  Chain
	events *jsonl.Writer
	met    *metrics.Set

	rng       RangeState
	position  *univ3.Position
	locked    bool
	reranging bool

	// Gas spent across the transactions of the roundtrip in flight.
	// Logged and zeroed once the add confirms.
	gasWeiRound *big.Int
}

func New(cfg Config, chain Chain, events *jsonl.Writer, met *metrics.Set) *Bot {
	return &Bot{
		cfg:         cfg,
		chain:       chain,
		events:      events,
		met:         met,
		gasWeiRound: new(big.Int),
	}
}

func (b *Bot) State() State {
	switch {
	case b.reranging:
		return StateReRanging
	case b.position != nil:
		return StateInPosition
	default:
		return StateNoPosition
	}
}

func (b *Bot) Range() RangeState { return b.rng }

// Init resolves the open position from chain state. The position is a
// derived fact: it is re-read at every transaction boundary and never
// trusted across one.
func (b *Bot) Init(ctx context.Context) error {
	pos, err := b.chain.CurrentPosition(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("resolve current position: %w", err)
	}
	b.position = pos
	if pos == nil {
		log.Printf("No open position (width=%d); first block establishes the range", b.cfg.WidthTicks)
		return nil
	}
	slot, err := b.chain.Slot0(ctx, b.cfg.Pool.Addr)
	if err != nil {
		return fmt.Errorf("resolve pool state: %w", err)
	}
	// The adopted position was minted in a previous life, so its true
	// entry tick is unknown; the current tick is the honest stand-in.
	b.rng = RangeState{TickLower: pos.TickLower, TickUpper: pos.TickUpper, EntryTick: slot.Tick}
	b.met.SetPositionID(bigToFloat(pos.ID))
	log.Printf("Position %s open, range [%d, %d] (width=%d)", pos.ID, pos.TickLower, pos.TickUpper, b.cfg.WidthTicks)
	return nil
}

// OnPriceChanged fires when the formatted display price moved between
// blocks. It only refreshes fee estimates and gauges; it must never
// mutate the range or the position.
func (b *Bot) OnPriceChanged(ctx context.Context, snap MarketSnapshot) {
	log.Printf("[price] %s %s tick=%d block=%d", b.cfg.Pool.Pair(), univ3.FormatPrice(snap.Price), snap.Tick, snap.BlockNumber)
	if b.position == nil || b.position.ID == nil {
		return
	}
	fees0, fees1, err := b.chain.UnclaimedFees(ctx, b.position.ID)
	if err != nil {
		// Fee amounts are a display nicety, not correctness.
		log.Printf("[warn] fee estimate: %v", err)
		return
	}
	log.Printf("[fees] unclaimed %s=%s %s=%s", b.cfg.Pool.Symbol0, fees0, b.cfg.Pool.Symbol1, fees1)
	b.met.SetUnclaimedFees(bigToFloat(fees0), bigToFloat(fees1))
}

// OnBlock runs the full decision once per block: stay put, defer on
// gas, or execute a re-range roundtrip.
func (b *Bot) OnBlock(ctx context.Context, snap MarketSnapshot) error {
	b.met.BlockSeen(snap.ObservedAt)
	if snap.GasPrice != nil {
		b.met.SetGasPriceGwei(weiToGwei(snap.GasPrice))
	}

	if b.locked {
		log.Printf("[skip] block %d: roundtrip already in flight", snap.BlockNumber)
		return nil
	}
	if !b.rng.OutOfRange(snap.Tick) {
		return nil
	}

	// Deferred, not failed: re-checked every block until gas is sane.
	// An unknown gas price counts as over the ceiling.
	if b.cfg.MaxGasWei != nil {
		if snap.GasPrice == nil {
			log.Printf("[gas] price unknown at block %d; deferring re-range", snap.BlockNumber)
			return nil
		}
		if snap.GasPrice.Cmp(b.cfg.MaxGasWei) > 0 {
			log.Printf("[gas] %.1f gwei above ceiling %.1f; deferring re-range",
				weiToGwei(snap.GasPrice), weiToGwei(b.cfg.MaxGasWei))
			return nil
		}
	}

	if !b.cfg.EnableTrading {
		lower, upper := RangeAround(snap.Tick, b.cfg.WidthTicks, b.cfg.Pool.TickSpacing)
		dir := b.directionFrom(b.rng, snap.Tick)
		log.Printf("[dry] would re-range to [%d, %d] (tick=%d direction=%s)", lower, upper, snap.Tick, orNone(dir))
		b.rng = RangeState{TickLower: lower, TickUpper: upper, EntryTick: snap.Tick, LastRerange: time.Now()}
		b.met.RerangeDone(time.Now())
		appendEvent(b.events, Event{
			Event:     "rerange",
			Mode:      "dry",
			Width:     b.cfg.WidthTicks,
			TsUtc:     time.Now().UTC().Format(time.RFC3339),
			Direction: dir,
			Block:     snap.BlockNumber,
			TickLower: lower,
			TickUpper: upper,
			EntryTick: snap.Tick,
		})
		return nil
	}
	return b.rerange(ctx, snap)
}

// rerange is the strict roundtrip: balances checkpoint, fee estimate,
// reinitialize from chain, remove, new range, rebalance swap, gas
// top-up, add, final checkpoint. Any transaction error propagates and
// terminates the process; the supervisor restarts us and recovery
// re-derives state from the chain.
func (b *Bot) rerange(ctx context.Context, snap MarketSnapshot) error {
	b.locked = true
	b.reranging = true
	defer func() {
		b.locked = false
		b.reranging = false
	}()

	prev := b.rng
	b.gasWeiRound.SetInt64(0)

	if err := b.logBalances(ctx, "pre"); err != nil {
		return err
	}

	// Fee estimate before removal. A failed simulation degrades to a
	// zero fee floor; it never blocks the removal.
	if b.position != nil && b.position.ID != nil {
		fees0, fees1, err := b.chain.UnclaimedFees(ctx, b.position.ID)
		if err != nil {
			log.Printf("[warn] fee estimate failed, removing with zero floor: %v", err)
		} else {
			log.Printf("[fees] collecting %s=%s %s=%s", b.cfg.Pool.Symbol0, fees0, b.cfg.Pool.Symbol1, fees1)
			b.met.SetUnclaimedFees(bigToFloat(fees0), bigToFloat(fees1))
		}
	}

	// Reinitialize chain-derived state. Liquidity may have drifted
	// since the last read (external deposits, a prior partial run) and
	// a stale amount makes the burn revert.
	pos, err := b.chain.CurrentPosition(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("reinitialize position: %w", err)
	}
	b.position = pos
	slot, err := b.chain.Slot0(ctx, b.cfg.Pool.Addr)
	if err != nil {
		return fmt.Errorf("reinitialize pool: %w", err)
	}
	poolLiq, err := b.chain.PoolLiquidity(ctx, b.cfg.Pool.Addr)
	if err != nil {
		return fmt.Errorf("reinitialize pool liquidity: %w", err)
	}
	log.Printf("[pool] tick=%d liquidity=%s", slot.Tick, poolLiq)

	if pos == nil {
		// Restart-recovery path: the burn happened in a previous life.
		log.Printf("No position on chain; skipping removal")
	} else {
		min0, min1 := b.removalFloor(slot, pos)
		cost, err := b.chain.RemoveLiquidity(ctx, pos, min0, min1, b.deadline())
		if err != nil {
			return fmt.Errorf("remove liquidity: %w", err)
		}
		b.position = nil
		b.met.SetPositionID(0)
		b.recordTx("remove", cost, snap)
	}

	// New range from the fresh pool read, not the possibly stale
	// snapshot that triggered us.
	lower, upper := RangeAround(slot.Tick, b.cfg.WidthTicks, b.cfg.Pool.TickSpacing)
	dir := b.directionFrom(prev, slot.Tick)
	log.Printf("[range] new [%d, %d] entry=%d direction=%s", lower, upper, slot.Tick, orNone(dir))
	b.rng = RangeState{TickLower: lower, TickUpper: upper, EntryTick: slot.Tick, LastRerange: time.Now()}

	if err := b.rebalance(ctx, slot, lower, upper, snap); err != nil {
		return err
	}
	if err := b.topUpGasReserve(ctx, snap); err != nil {
		return err
	}

	if b.position != nil {
		return fmt.Errorf("%w: add-liquidity attempted while position %s is still tracked", ErrInvariant, b.position.ID)
	}
	bal0, bal1, err := b.chain.TokenBalances(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("balances before add: %w", err)
	}
	// The pre-swap already set the ratio the mint needs; the deadline
	// bounds price drift, so the mint minimums stay at zero.
	id, ok, cost, err := b.chain.AddLiquidity(ctx, lower, upper, bal0, bal1, big.NewInt(0), big.NewInt(0), b.deadline())
	if err != nil {
		return fmt.Errorf("add liquidity: %w", err)
	}
	b.recordTx("add", cost, snap)
	if !ok {
		// The mint landed but the receipt had no recognizable mint log.
		// The position is live on-chain and untracked here; an operator
		// (or a restart, which re-enumerates) has to adopt it.
		log.Printf("[error] minted position id missing from receipt %s; position untracked", cost.Hash.Hex())
	} else {
		b.position = &univ3.Position{ID: id, TickLower: lower, TickUpper: upper}
		b.met.SetPositionID(bigToFloat(id))
		log.Printf("Position %s minted over [%d, %d] (tx=%s latency=%s)", id, lower, upper, cost.Hash.Hex(), cost.Latency)
	}

	if err := b.logBalances(ctx, "post"); err != nil {
		return err
	}

	gasUsd := b.usd(b.gasWeiRound, snap)
	log.Printf("[gas] roundtrip total %s wei (~%.2f USD)", b.gasWeiRound, gasUsd)
	b.gasWeiRound.SetInt64(0)
	b.met.RerangeDone(time.Now())
	appendEvent(b.events, Event{
		Event:     "rerange",
		Mode:      "live",
		Width:     b.cfg.WidthTicks,
		TsUtc:     time.Now().UTC().Format(time.RFC3339),
		Direction: dir,
		Block:     snap.BlockNumber,
		TickLower: lower,
		TickUpper: upper,
		EntryTick: slot.Tick,
		GasUsd:    gasUsd,
	})
	return nil
}

func (b *Bot) rebalance(ctx context.Context, slot univ3.Slot0, lower, upper int, snap MarketSnapshot) error {
	bal0, bal1, err := b.chain.TokenBalances(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("balances before swap: %w", err)
	}
	decision, amountIn, err := swapPlan(bal0, bal1, slot.SqrtPriceX96, lower, upper)
	if err != nil {
		return fmt.Errorf("swap sizing: %w", err)
	}
	if decision == SwapNone || amountIn == nil || amountIn.Sign() == 0 {
		log.Printf("[swap] balances near target ratio; skipping swap")
		return nil
	}

	sellToken0 := decision == SwapToken0
	quote, err := b.chain.QuoteOut(ctx, sellToken0, amountIn)
	if err != nil {
		return fmt.Errorf("swap quote: %w", err)
	}
	minOut := applyBps(quote, 10_000-b.cfg.SlippageBps-b.cfg.SwapFeeBps)
	log.Printf("[swap] %s amount=%s minOut=%s", decision, amountIn, minOut)
	cost, err := b.chain.Swap(ctx, sellToken0, amountIn, minOut, b.deadline())
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}
	b.recordTx("swap", cost, snap)
	return nil
}

func (b *Bot) topUpGasReserve(ctx context.Context, snap MarketSnapshot) error {
	native, err := b.chain.NativeBalance(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("native balance: %w", err)
	}
	wrapped, err := b.chain.WrappedBalance(ctx)
	if err != nil {
		return fmt.Errorf("wrapped balance: %w", err)
	}
	amt := topUpAmount(native, wrapped, b.cfg)
	if amt == nil || amt.Sign() == 0 {
		return nil
	}
	log.Printf("[gas] native balance %s below floor %s; unwrapping %s", native, b.cfg.MinNativeWei, amt)
	cost, err := b.chain.Unwrap(ctx, amt)
	if err != nil {
		return fmt.Errorf("gas top-up: %w", err)
	}
	b.recordTx("unwrap", cost, snap)
	return nil
}

// removalFloor is the principal minimum for the burn: the position's
// current amounts shaved by the slippage tolerance. Fees ride on top
// with no minimum (a zero fee floor is accepted by design).
func (b *Bot) removalFloor(slot univ3.Slot0, pos *univ3.Position) (*big.Int, *big.Int) {
	sqrtA, errA := univ3.SqrtRatioAtTick(pos.TickLower)
	sqrtB, errB := univ3.SqrtRatioAtTick(pos.TickUpper)
	if errA != nil || errB != nil {
		// Ticks came from the chain, so this can't happen for a real
		// position; fall back to no floor rather than block removal.
		return big.NewInt(0), big.NewInt(0)
	}
	amount0, amount1 := univ3.AmountsForLiquidity(slot.SqrtPriceX96, sqrtA, sqrtB, pos.Liquidity)
	return applyBps(amount0, 10_000-b.cfg.SlippageBps), applyBps(amount1, 10_000-b.cfg.SlippageBps)
}

func (b *Bot) logBalances(ctx context.Context, tag string) error {
	bal0, bal1, err := b.chain.TokenBalances(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("token balances: %w", err)
	}
	native, err := b.chain.NativeBalance(ctx, b.cfg.Owner)
	if err != nil {
		return fmt.Errorf("native balance: %w", err)
	}
	log.Printf("[balances/%s] %s=%.6f %s=%.6f native=%.6f",
		tag,
		b.cfg.Pool.Symbol0, human(bal0, b.cfg.Pool.Decimals0),
		b.cfg.Pool.Symbol1, human(bal1, b.cfg.Pool.Decimals1),
		human(native, 18))
	b.met.SetBalances(bigToFloat(bal0), bigToFloat(bal1), bigToFloat(native))
	return nil
}

func (b *Bot) recordTx(kind string, cost univ3.TxCost, snap MarketSnapshot) {
	if cost.GasWei != nil {
		b.gasWeiRound.Add(b.gasWeiRound, cost.GasWei)
	}
	usd := b.usd(cost.GasWei, snap)
	b.met.ObserveTx(kind, usd, cost.Latency)
	log.Printf("[tx] %s %s gas=%s wei (~%.2f USD) latency=%s", kind, cost.Hash.Hex(), cost.GasWei, usd, cost.Latency)
}

// usd estimates a wei amount in dollars using the pool's display
// price as the native asset's USD price. Zero when the pool can't
// price the native asset.
func (b *Bot) usd(wei *big.Int, snap MarketSnapshot) float64 {
	if !b.cfg.NativePriceFromPool || wei == nil {
		return 0
	}
	return human(wei, 18) * snap.Price
}

func (b *Bot) directionFrom(prev RangeState, tick int) string {
	if prev.TickLower >= prev.TickUpper {
		return "" // sentinel: first range, no direction
	}
	return string(prev.direction(tick))
}

func (b *Bot) deadline() time.Time {
	secs := b.cfg.DeadlineSecs
	if secs <= 0 {
		secs = 180
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

func orNone(dir string) string {
	if dir == "" {
		return "none"
	}
	return dir
}

func human(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), big.NewFloat(math.Pow10(decimals))).Float64()
	return f
}

func bigToFloat(x *big.Int) float64 {
	if x == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}

func weiToGwei(x *big.Int) float64 {
	return human(x, 9)
}

func applyBps(x *big.Int, bps int64) *big.Int {
	if x == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(x, big.NewInt(bps))
	return out.Div(out, big.NewInt(10_000))
}
