package rangebot

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"uni-rerange/internal/univ3"
)

// stubChain is a canned ledger: reads return fixed values, writes
// count invocations. onRemove runs inside RemoveLiquidity so tests can
// observe the bot mid-roundtrip.
type stubChain struct {
	pos       *univ3.Position
	slot      univ3.Slot0
	liquidity *big.Int

	bal0, bal1 *big.Int
	native     *big.Int
	wrapped    *big.Int

	mintID *big.Int
	mintOK bool

	removes, swaps, adds, unwraps int

	onRemove func()
}

func newStub() *stubChain {
	return &stubChain{
		slot: univ3.Slot0{
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), // tick 0
			Tick:         0,
		},
		liquidity: big.NewInt(1_000_000),
		bal0:      big.NewInt(1_000_000),
		bal1:      big.NewInt(1_000_000),
		native:    big.NewInt(1_000_000_000_000_000_000),
		wrapped:   big.NewInt(0),
		mintID:    big.NewInt(7001),
		mintOK:    true,
	}
}

func (s *stubChain) CurrentPosition(ctx context.Context, owner common.Address) (*univ3.Position, error) {
	return s.pos, nil
}

func (s *stubChain) UnclaimedFees(ctx context.Context, id *big.Int) (*big.Int, *big.Int, error) {
	return big.NewInt(0), big.NewInt(0), nil
}

func (s *stubChain) Slot0(ctx context.Context, pool common.Address) (univ3.Slot0, error) {
	return s.slot, nil
}

func (s *stubChain) PoolLiquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	return s.liquidity, nil
}

func (s *stubChain) TokenBalances(ctx context.Context, owner common.Address) (*big.Int, *big.Int, error) {
	return s.bal0, s.bal1, nil
}

func (s *stubChain) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return s.native, nil
}

func (s *stubChain) WrappedBalance(ctx context.Context) (*big.Int, error) {
	return s.wrapped, nil
}

func (s *stubChain) QuoteOut(ctx context.Context, sellToken0 bool, amountIn *big.Int) (*big.Int, error) {
	return new(big.Int).Set(amountIn), nil
}

func (s *stubChain) RemoveLiquidity(ctx context.Context, pos *univ3.Position, min0, min1 *big.Int, deadline time.Time) (univ3.TxCost, error) {
	s.removes++
	s.pos = nil
	if s.onRemove != nil {
		s.onRemove()
	}
	return univ3.TxCost{GasWei: big.NewInt(100)}, nil
}

func (s *stubChain) Swap(ctx context.Context, sellToken0 bool, amountIn, minOut *big.Int, deadline time.Time) (univ3.TxCost, error) {
	s.swaps++
	return univ3.TxCost{GasWei: big.NewInt(100)}, nil
}

func (s *stubChain) AddLiquidity(ctx context.Context, tickLower, tickUpper int, amount0, amount1, min0, min1 *big.Int, deadline time.Time) (*big.Int, bool, univ3.TxCost, error) {
	s.adds++
	return s.mintID, s.mintOK, univ3.TxCost{GasWei: big.NewInt(100)}, nil
}

func (s *stubChain) Unwrap(ctx context.Context, amount *big.Int) (univ3.TxCost, error) {
	s.unwraps++
	return univ3.TxCost{GasWei: big.NewInt(100)}, nil
}

func testCfg() Config {
	return Config{
		WidthTicks:    600,
		SlippageBps:   50,
		SwapFeeBps:    5,
		DeadlineSecs:  60,
		EnableTrading: true,
		Pool: univ3.PoolMeta{
			TickSpacing: 60,
			Decimals0:   6,
			Decimals1:   18,
			Symbol0:     "USDC",
			Symbol1:     "WETH",
		},
	}
}

func snap(block uint64, tick int) MarketSnapshot {
	return MarketSnapshot{
		BlockNumber:  block,
		Tick:         tick,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Price:        1,
		GasPrice:     big.NewInt(20_000_000_000),
		ObservedAt:   time.Now(),
	}
}

func TestInitAdoptsOpenPosition(t *testing.T) {
	stub := newStub()
	stub.pos = &univ3.Position{ID: big.NewInt(42), TickLower: -300, TickUpper: 300, Liquidity: big.NewInt(5)}
	stub.slot.Tick = 120
	bot := New(testCfg(), stub, nil, nil)
	if err := bot.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if bot.State() != StateInPosition {
		t.Fatalf("state = %v, want in-position", bot.State())
	}
	if r := bot.Range(); r.TickLower != -300 || r.TickUpper != 300 {
		t.Fatalf("range [%d, %d] not adopted from the position", r.TickLower, r.TickUpper)
	}
	// The position predates this process, so the adopted range records
	// the tick at adoption time, not the band's lower bound.
	if r := bot.Range(); r.EntryTick != 120 {
		t.Fatalf("entry tick = %d, want the current tick 120", r.EntryTick)
	}
}

func TestBootstrapMintsWithoutRemoval(t *testing.T) {
	// No position on chain: the sentinel range forces a roundtrip that
	// must skip straight past removal. Same path covers restart
	// recovery after a crash between burn and mint.
	stub := newStub()
	bot := New(testCfg(), stub, nil, nil)
	if err := bot.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if bot.State() != StateNoPosition {
		t.Fatalf("state = %v, want no-position", bot.State())
	}

	if err := bot.OnBlock(context.Background(), snap(100, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.removes != 0 {
		t.Fatalf("removed %d positions, none exist", stub.removes)
	}
	if stub.adds != 1 {
		t.Fatalf("adds = %d, want 1", stub.adds)
	}
	if bot.State() != StateInPosition || bot.position.ID.Cmp(stub.mintID) != 0 {
		t.Fatalf("minted position not tracked: state=%v pos=%v", bot.State(), bot.position)
	}
	if r := bot.Range(); r.TickLower != -300 || r.TickUpper != 300 {
		t.Fatalf("range [%d, %d], want [-300, 300]", r.TickLower, r.TickUpper)
	}
}

func TestRoundtripRemovesSwapsAdds(t *testing.T) {
	stub := newStub()
	stub.pos = &univ3.Position{ID: big.NewInt(42), TickLower: -9000, TickUpper: -8400, Liquidity: big.NewInt(1_000_000)}
	stub.bal0 = big.NewInt(1_000_000)
	stub.bal1 = big.NewInt(0) // all one side: forces the rebalance swap
	bot := New(testCfg(), stub, nil, nil)
	if err := bot.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Pool tick 0 is far outside [-9000, -8400].
	if err := bot.OnBlock(context.Background(), snap(200, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.removes != 1 || stub.swaps != 1 || stub.adds != 1 {
		t.Fatalf("removes=%d swaps=%d adds=%d, want 1/1/1", stub.removes, stub.swaps, stub.adds)
	}
	if bot.position == nil || bot.position.ID.Cmp(stub.mintID) != 0 {
		t.Fatalf("new position not tracked: %v", bot.position)
	}
}

func TestInRangeBlockIsANoop(t *testing.T) {
	stub := newStub()
	bot := New(testCfg(), stub, nil, nil)
	bot.rng = RangeState{TickLower: -300, TickUpper: 300}

	if err := bot.OnBlock(context.Background(), snap(300, 100)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.removes+stub.swaps+stub.adds+stub.unwraps != 0 {
		t.Fatalf("in-range block touched the chain")
	}
}

func TestReentrantBlockIsSkipped(t *testing.T) {
	stub := newStub()
	stub.pos = &univ3.Position{ID: big.NewInt(42), TickLower: -9000, TickUpper: -8400, Liquidity: big.NewInt(1_000_000)}
	bot := New(testCfg(), stub, nil, nil)
	if err := bot.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	// A block callback arriving while the roundtrip is mid-flight must
	// not start a second one.
	var innerErr error
	stub.onRemove = func() {
		innerErr = bot.OnBlock(context.Background(), snap(401, 0))
	}
	if err := bot.OnBlock(context.Background(), snap(400, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if innerErr != nil {
		t.Fatalf("re-entrant OnBlock: %v", innerErr)
	}
	if stub.removes != 1 || stub.adds != 1 {
		t.Fatalf("removes=%d adds=%d, want exactly one roundtrip", stub.removes, stub.adds)
	}
}

func TestGasCeilingDefers(t *testing.T) {
	stub := newStub()
	cfg := testCfg()
	cfg.MaxGasWei = big.NewInt(10_000_000_000) // 10 gwei, below the snapshot's 20
	bot := New(cfg, stub, nil, nil)

	if err := bot.OnBlock(context.Background(), snap(500, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.adds != 0 {
		t.Fatalf("re-ranged despite the gas ceiling")
	}
	if !bot.Range().OutOfRange(0) {
		t.Fatalf("deferral must leave the trigger armed for the next block")
	}

	// Gas back under the ceiling: the deferred roundtrip runs.
	cheap := snap(501, 0)
	cheap.GasPrice = big.NewInt(5_000_000_000)
	if err := bot.OnBlock(context.Background(), cheap); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.adds != 1 {
		t.Fatalf("deferred roundtrip never ran")
	}
}

func TestUnknownGasPriceDefersUnderCeiling(t *testing.T) {
	stub := newStub()
	cfg := testCfg()
	cfg.MaxGasWei = big.NewInt(10_000_000_000)
	bot := New(cfg, stub, nil, nil)

	// A failed gas-price read must count as over the ceiling, not as a
	// free pass.
	blind := snap(520, 0)
	blind.GasPrice = nil
	if err := bot.OnBlock(context.Background(), blind); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.removes+stub.swaps+stub.adds+stub.unwraps != 0 {
		t.Fatalf("re-ranged on an unknown gas price")
	}
	if !bot.Range().OutOfRange(0) {
		t.Fatalf("deferral must leave the trigger armed for the next block")
	}

	// A priced block under the ceiling runs the deferred roundtrip.
	cheap := snap(521, 0)
	cheap.GasPrice = big.NewInt(5_000_000_000)
	if err := bot.OnBlock(context.Background(), cheap); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.adds != 1 {
		t.Fatalf("deferred roundtrip never ran")
	}

	// Without a ceiling the guard stays out of the way entirely.
	noCeiling := New(testCfg(), newStub(), nil, nil)
	blind2 := snap(522, 0)
	blind2.GasPrice = nil
	if err := noCeiling.OnBlock(context.Background(), blind2); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if noCeiling.State() != StateInPosition {
		t.Fatalf("unpriced block blocked the roundtrip with no ceiling configured")
	}
}

func TestDryRunNeverTouchesChain(t *testing.T) {
	stub := newStub()
	cfg := testCfg()
	cfg.EnableTrading = false
	bot := New(cfg, stub, nil, nil)

	if err := bot.OnBlock(context.Background(), snap(600, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.removes+stub.swaps+stub.adds+stub.unwraps != 0 {
		t.Fatalf("dry run submitted transactions")
	}
	if r := bot.Range(); r.TickLower != -300 || r.TickUpper != 300 {
		t.Fatalf("dry run should still track the range, got [%d, %d]", r.TickLower, r.TickUpper)
	}

	// The tracked range now suppresses further dry re-ranges.
	if err := bot.OnBlock(context.Background(), snap(601, 100)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if r := bot.Range(); r.TickLower != -300 || r.TickUpper != 300 {
		t.Fatalf("in-range dry block moved the range to [%d, %d]", r.TickLower, r.TickUpper)
	}
}

func TestMintWithoutReceiptIDIsNotFatal(t *testing.T) {
	stub := newStub()
	stub.mintOK = false
	bot := New(testCfg(), stub, nil, nil)

	if err := bot.OnBlock(context.Background(), snap(700, 0)); err != nil {
		t.Fatalf("untracked mint must not kill the roundtrip: %v", err)
	}
	if stub.adds != 1 {
		t.Fatalf("adds = %d, want 1", stub.adds)
	}
	if bot.position != nil {
		t.Fatalf("position tracked without a receipt id: %v", bot.position)
	}
}

func TestGasReserveTopUpDuringRoundtrip(t *testing.T) {
	stub := newStub()
	stub.native = big.NewInt(100)
	stub.wrapped = big.NewInt(10_000)
	cfg := testCfg()
	cfg.MinNativeWei = big.NewInt(1_000)
	cfg.WorstCaseGasWei = big.NewInt(500)
	cfg.ReserveMultiple = 4
	bot := New(cfg, stub, nil, nil)

	if err := bot.OnBlock(context.Background(), snap(800, 0)); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}
	if stub.unwraps != 1 {
		t.Fatalf("unwraps = %d, want 1", stub.unwraps)
	}
}
