// Removes the open position's liquidity and exits. With -panic it
// additionally swaps the whole remaining balance into one asset, for
// getting flat in a hurry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"uni-rerange/internal/dotenv"
	"uni-rerange/internal/univ3"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var rpcFlag, poolFlag, swapPoolFlag, managerFlag, routerFlag, quoterFlag, wethFlag, privateKeyFlag string
	var slippageFlag int64
	var deadlineFlag int64
	var panicFlag bool
	var keepFlag string
	flag.StringVar(&rpcFlag, "rpc", "", "RPC URL (or RPC_WS_URL env)")
	flag.StringVar(&poolFlag, "pool", "", "Uniswap v3 pool (or POOL_ADDRESS env)")
	flag.StringVar(&swapPoolFlag, "swap-pool", "", "Pool used for the panic swap (default: same as --pool)")
	flag.StringVar(&managerFlag, "manager", "0xC36442b4a4522E871399CD717aBDD847Ab11FE88", "NonfungiblePositionManager address")
	flag.StringVar(&routerFlag, "router", "0xE592427A0AEce92De3Edee1F18E0157C05861564", "SwapRouter address")
	flag.StringVar(&quoterFlag, "quoter", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e", "QuoterV2 address (empty = mid-price quotes)")
	flag.StringVar(&wethFlag, "weth", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "Wrapped native token address")
	flag.StringVar(&privateKeyFlag, "private-key", "", "Private key hex (0x...) (or PRIVATE_KEY env)")
	flag.Int64Var(&slippageFlag, "slippage-bps", 50, "Slippage tolerance in basis points")
	flag.Int64Var(&deadlineFlag, "deadline-secs", 180, "Transaction deadline in seconds")
	flag.BoolVar(&panicFlag, "panic", false, "After removal, swap everything into the kept asset")
	flag.StringVar(&keepFlag, "keep", "token0", "Asset to hold after -panic: token0 or token1")
	flag.Parse()

	rpc := strings.TrimSpace(rpcFlag)
	if rpc == "" {
		rpc = strings.TrimSpace(os.Getenv("RPC_WS_URL"))
	}
	if rpc == "" {
		log.Fatalf("[fatal] rpc required via --rpc or RPC_WS_URL")
	}
	pool := strings.TrimSpace(poolFlag)
	if pool == "" {
		pool = strings.TrimSpace(os.Getenv("POOL_ADDRESS"))
	}
	if !common.IsHexAddress(pool) {
		log.Fatalf("[fatal] pool required via --pool or POOL_ADDRESS")
	}
	swapPool := strings.TrimSpace(swapPoolFlag)
	if swapPool == "" {
		swapPool = pool
	}
	var keepToken0 bool
	switch strings.ToLower(strings.TrimSpace(keepFlag)) {
	case "token0":
		keepToken0 = true
	case "token1":
		keepToken0 = false
	default:
		log.Fatalf("[fatal] invalid --keep %q (use token0 or token1)", keepFlag)
	}

	pkHex := strings.TrimSpace(privateKeyFlag)
	if pkHex == "" {
		pkHex = strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	}
	if pkHex == "" {
		log.Fatalf("[fatal] private key required (set --private-key or PRIVATE_KEY)")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
	if err != nil {
		log.Fatalf("[fatal] invalid private key: %v", err)
	}

	addrs := univ3.Addresses{
		Pool:     common.HexToAddress(pool),
		SwapPool: common.HexToAddress(swapPool),
		Manager:  common.HexToAddress(managerFlag),
		Router:   common.HexToAddress(routerFlag),
		WETH:     common.HexToAddress(wethFlag),
	}
	if q := strings.TrimSpace(quoterFlag); q != "" {
		if !common.IsHexAddress(q) {
			log.Fatalf("[fatal] invalid quoter address: %q", q)
		}
		addrs.Quoter = common.HexToAddress(q)
	}

	ctx := context.Background()
	client, err := univ3.Dial(ctx, rpc, key, addrs)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	meta := client.Pool()
	owner := client.Owner()
	deadline := func() time.Time { return time.Now().Add(time.Duration(deadlineFlag) * time.Second) }

	pos, err := client.CurrentPosition(ctx, owner)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if pos == nil {
		log.Printf("No open position on %s", meta.Pair())
	} else {
		fees0, fees1, err := client.UnclaimedFees(ctx, pos.ID)
		if err != nil {
			log.Printf("[warn] fee estimate: %v", err)
		} else {
			log.Printf("Position %s [%d, %d], unclaimed %s=%s %s=%s",
				pos.ID, pos.TickLower, pos.TickUpper, meta.Symbol0, fees0, meta.Symbol1, fees1)
		}

		min0, min1, err := removalFloor(ctx, client, meta.Addr, pos, slippageFlag)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		cost, err := client.RemoveLiquidity(ctx, pos, min0, min1, deadline())
		if err != nil {
			log.Fatalf("[fatal] remove liquidity: %v", err)
		}
		log.Printf("Position %s removed (tx=%s gas=%s wei latency=%s)", pos.ID, cost.Hash.Hex(), cost.GasWei, cost.Latency)
	}

	if !panicFlag {
		return
	}

	bal0, bal1, err := client.TokenBalances(ctx, owner)
	if err != nil {
		log.Fatalf("[fatal] token balances: %v", err)
	}
	amountIn := bal1
	sellToken0 := false
	kept := meta.Symbol0
	if !keepToken0 {
		amountIn = bal0
		sellToken0 = true
		kept = meta.Symbol1
	}
	if amountIn.Sign() == 0 {
		log.Printf("Nothing to swap; already flat in %s", kept)
		return
	}

	quote, err := client.QuoteOut(ctx, sellToken0, amountIn)
	if err != nil {
		log.Fatalf("[fatal] swap quote: %v", err)
	}
	feeBps := int64(client.SwapPool().Fee) / 100
	minOut := new(big.Int).Mul(quote, big.NewInt(10_000-slippageFlag-feeBps))
	minOut.Div(minOut, big.NewInt(10_000))

	cost, err := client.Swap(ctx, sellToken0, amountIn, minOut, deadline())
	if err != nil {
		log.Fatalf("[fatal] panic swap: %v", err)
	}
	log.Printf("Swapped %s into %s (tx=%s gas=%s wei latency=%s)", amountIn, kept, cost.Hash.Hex(), cost.GasWei, cost.Latency)
}

func removalFloor(ctx context.Context, client *univ3.Client, pool common.Address, pos *univ3.Position, slippageBps int64) (*big.Int, *big.Int, error) {
	slot, err := client.Slot0(ctx, pool)
	if err != nil {
		return nil, nil, fmt.Errorf("slot0: %w", err)
	}
	sqrtA, err := univ3.SqrtRatioAtTick(pos.TickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtB, err := univ3.SqrtRatioAtTick(pos.TickUpper)
	if err != nil {
		return nil, nil, err
	}
	amount0, amount1 := univ3.AmountsForLiquidity(slot.SqrtPriceX96, sqrtA, sqrtB, pos.Liquidity)
	scale := big.NewInt(10_000 - slippageBps)
	min0 := new(big.Int).Mul(amount0, scale)
	min0.Div(min0, big.NewInt(10_000))
	min1 := new(big.Int).Mul(amount1, scale)
	min1.Div(min1, big.NewInt(10_000))
	return min0, min1, nil
}
