package main

import (
	"context"
	"crypto/ecdsa"
	"flag"
	"fmt"
	"log"
	"math/big"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"uni-rerange/internal/dotenv"
	"uni-rerange/internal/jsonl"
	"uni-rerange/internal/metrics"
	"uni-rerange/internal/rangebot"
	"uni-rerange/internal/univ3"
)

type args struct {
	rpcWs         string
	privateKeyHex string
	owner         common.Address
	addrs         univ3.Addresses

	width           int
	slippageBps     int64
	maxGasGwei      float64
	minNativeEth    float64
	worstCaseGasEth float64
	reserveMultiple int64
	deadlineSecs    int64

	enableTrading       bool
	invertPrice         bool
	nativePriceFromPool bool

	outFile     string
	metricsAddr string
	mtbr        bool
}

const defaultEventsOutFile = "./out/rerange.jsonl"

// Ethereum mainnet periphery. Overridable for other chains.
const (
	defaultManager = "0xC36442b4a4522E871399CD717aBDD847Ab11FE88"
	defaultRouter  = "0xE592427A0AEce92De3Edee1F18E0157C05861564"
	defaultQuoter  = "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"
	defaultWeth    = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	parsed, err := parseArgs()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	if parsed.mtbr {
		mean, n, err := rangebot.MeanRerangeInterval(parsed.outFile, parsed.width)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		if n < 2 {
			fmt.Printf("width=%d: %d re-range event(s) in %s, no interval yet\n", parsed.width, n, parsed.outFile)
			return
		}
		fmt.Printf("width=%d: %d re-ranges, mean time between re-ranges %s\n", parsed.width, n, mean.Round(time.Second))
		return
	}

	runStartedAt := time.Now()
	eventLog := jsonl.New(parsed.outFile)
	if eventLog != nil {
		log.Printf("Event log: %s (JSONL)", parsed.outFile)
		defer func() {
			if err := eventLog.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
		defer func() {
			logRunEvent(eventLog, runEvent{
				TsMs:     time.Now().UnixMilli(),
				Event:    "shutdown",
				Mode:     runMode(parsed.enableTrading),
				Width:    parsed.width,
				Ok:       true,
				UptimeMs: time.Since(runStartedAt).Milliseconds(),
			})
		}()
	}

	var met *metrics.Set
	if parsed.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		met = metrics.New(reg, strconv.Itoa(parsed.width))
		go func() {
			log.Printf("Metrics: http://%s/metrics", parsed.metricsAddr)
			if err := http.ListenAndServe(parsed.metricsAddr, metrics.Handler(reg)); err != nil {
				log.Printf("[warn] metrics server: %v", err)
			}
		}()
	}

	var key *ecdsa.PrivateKey
	if parsed.privateKeyHex != "" {
		key, err = parsePrivateKey(parsed.privateKeyHex)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
	} else if parsed.enableTrading {
		log.Fatalf("[fatal] enable-trading requires a private key (set --private-key or PRIVATE_KEY)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		cancel()
	}()

	log.Printf("Dynamic range order → Uniswap v3")
	log.Printf("Width: %d ticks", parsed.width)
	log.Printf("Slippage: %d bps", parsed.slippageBps)
	if parsed.maxGasGwei > 0 {
		log.Printf("Gas ceiling: %.1f gwei", parsed.maxGasGwei)
	}
	log.Printf("Dry-run: %v", !parsed.enableTrading)

	started := false
	for {
		client, err := dialWithBackoff(ctx, parsed.rpcWs, key, parsed.addrs, time.Second, 30*time.Second)
		if err != nil {
			// Context cancellation (SIGINT/SIGTERM) is the only expected way to get here.
			return
		}

		if key == nil {
			client.SetOwner(parsed.owner)
		}

		pool := client.Pool()
		log.Printf("Pool: %s %s fee=%d spacing=%d", pool.Addr.Hex(), pool.Pair(), pool.Fee, pool.TickSpacing)
		if !started {
			logRunEvent(eventLog, runEvent{
				TsMs:        time.Now().UnixMilli(),
				Event:       "start",
				Mode:        runMode(parsed.enableTrading),
				Pair:        pool.Pair(),
				Width:       parsed.width,
				SlippageBps: parsed.slippageBps,
				MaxGasGwei:  parsed.maxGasGwei,
			})
			started = true
		}

		cfg := rangebot.Config{
			Owner:               client.Owner(),
			Pool:                pool,
			WidthTicks:          parsed.width,
			SlippageBps:         parsed.slippageBps,
			SwapFeeBps:          int64(client.SwapPool().Fee) / 100,
			MaxGasWei:           gweiToWei(parsed.maxGasGwei),
			MinNativeWei:        ethToWei(parsed.minNativeEth),
			WorstCaseGasWei:     ethToWei(parsed.worstCaseGasEth),
			ReserveMultiple:     parsed.reserveMultiple,
			DeadlineSecs:        parsed.deadlineSecs,
			EnableTrading:       parsed.enableTrading,
			InvertPrice:         parsed.invertPrice,
			NativePriceFromPool: parsed.nativePriceFromPool,
		}

		// State is chain-derived, so a reconnect rebuilds the bot from
		// scratch and Init re-adopts whatever position is open.
		bot := rangebot.New(cfg, client, eventLog, met)
		if err := bot.Init(ctx); err != nil {
			log.Fatalf("[fatal] %v", err)
		}

		if done := runSession(ctx, client, bot, cfg); done {
			client.Close()
			return
		}
		client.Close()
		log.Printf("[warn] reconnecting...")
	}
}

// runSession subscribes to new heads and drives the bot until the
// subscription dies (reconnect) or the context is cancelled (true).
func runSession(ctx context.Context, client *univ3.Client, bot *rangebot.Bot, cfg rangebot.Config) bool {
	headsCh := make(chan *types.Header, 16)
	sub, err := client.Raw().SubscribeNewHead(ctx, headsCh)
	if err != nil {
		log.Printf("[warn] head subscription failed: %v", err)
		return ctx.Err() != nil
	}
	defer sub.Unsubscribe()

	log.Printf("Listening…")
	lastPrice := ""

	for {
		select {
		case <-ctx.Done():
			return true

		case err := <-sub.Err():
			if err != nil {
				log.Printf("[warn] head subscription error: %v", err)
			} else {
				log.Printf("[warn] head subscription ended")
			}
			return false

		case hdr := <-headsCh:
			if hdr == nil {
				continue
			}
			slot, err := client.Slot0(ctx, cfg.Pool.Addr)
			if err != nil {
				log.Printf("[warn] slot0 at block %d: %v", hdr.Number.Uint64(), err)
				continue
			}

			gasPrice := hdr.BaseFee
			if gasPrice == nil {
				if gasPrice, err = client.SuggestGasPrice(ctx); err != nil {
					log.Printf("[warn] gas price: %v", err)
					gasPrice = nil
				}
			}

			snap := rangebot.MarketSnapshot{
				BlockNumber:  hdr.Number.Uint64(),
				Tick:         slot.Tick,
				SqrtPriceX96: slot.SqrtPriceX96,
				Price:        cfg.Pool.HumanPrice(slot.Tick, cfg.InvertPrice),
				GasPrice:     gasPrice,
				ObservedAt:   time.Now(),
			}

			// Price-changed fires on the formatted price, so dust-level
			// moves inside the display precision stay quiet.
			if cur := univ3.FormatPrice(snap.Price); cur != lastPrice {
				if lastPrice != "" {
					bot.OnPriceChanged(ctx, snap)
				}
				lastPrice = cur
			}

			if err := bot.OnBlock(ctx, snap); err != nil {
				// No in-process retry: the supervisor restarts us and
				// recovery re-derives state from the chain.
				log.Fatalf("[fatal] block %d: %v", snap.BlockNumber, err)
			}
		}
	}
}

func dialWithBackoff(ctx context.Context, url string, key *ecdsa.PrivateKey, addrs univ3.Addresses, baseDelay, maxDelay time.Duration) (*univ3.Client, error) {
	delay := baseDelay
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		client, err := univ3.Dial(ctx, url, key, addrs)
		if err == nil {
			return client, nil
		}

		wait := jitterDuration(delay)
		log.Printf("[warn] failed to connect rpc, retrying in %s: %v", wait, err)
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	j := d / 5 // +/-20%
	if j <= 0 {
		return d
	}
	return d - j + time.Duration(rand.Int64N(int64(j*2)+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// --- args ---

func parseArgs() (args, error) {
	var rpcFlag string
	var privateKeyFlag string
	var poolFlag, swapPoolFlag, managerFlag, routerFlag, quoterFlag, wethFlag string

	var widthFlag int
	var slippageFlag int64
	var maxGasFlag float64
	var minNativeFlag float64
	var worstCaseFlag float64
	var reserveMultipleFlag int64
	var deadlineFlag int64

	enableTradingDefault := false
	if env := strings.TrimSpace(os.Getenv("ENABLE_TRADING")); env != "" {
		v, err := strconv.ParseBool(env)
		if err != nil {
			return args{}, fmt.Errorf("invalid ENABLE_TRADING %q: %w", env, err)
		}
		enableTradingDefault = v
	}
	var enableTradingFlag bool
	var invertPriceFlag bool
	var nativePriceFlag bool

	var outFlag string
	var metricsAddrFlag string
	var mtbrFlag bool

	var ownerFlag string

	flag.StringVar(&rpcFlag, "rpc", "", "WebSocket RPC URL (wss://...) (or RPC_WS_URL env)")
	flag.StringVar(&privateKeyFlag, "private-key", "", "Private key hex (0x...) (or PRIVATE_KEY env)")
	flag.StringVar(&ownerFlag, "owner", "", "Wallet to watch in key-less dry runs (or OWNER_ADDRESS env)")
	flag.StringVar(&poolFlag, "pool", "", "Uniswap v3 pool to range over (or POOL_ADDRESS env)")
	flag.StringVar(&swapPoolFlag, "swap-pool", "", "Pool used for rebalancing swaps (default: same as --pool)")
	flag.StringVar(&managerFlag, "manager", defaultManager, "NonfungiblePositionManager address")
	flag.StringVar(&routerFlag, "router", defaultRouter, "SwapRouter address")
	flag.StringVar(&quoterFlag, "quoter", defaultQuoter, "QuoterV2 address (empty = mid-price quotes)")
	flag.StringVar(&wethFlag, "weth", defaultWeth, "Wrapped native token address")

	flag.IntVar(&widthFlag, "width", 1800, "Range width in ticks")
	flag.Int64Var(&slippageFlag, "slippage-bps", 50, "Slippage tolerance in basis points")
	flag.Float64Var(&maxGasFlag, "max-gas-gwei", 0, "Defer re-ranging above this gas price (0 = no ceiling)")
	flag.Float64Var(&minNativeFlag, "min-native", 0.1, "Native balance floor before unwrapping reserve (ether units)")
	flag.Float64Var(&worstCaseFlag, "worst-case-gas", 0.002, "Worst-case roundtrip gas cost (ether units)")
	flag.Int64Var(&reserveMultipleFlag, "gas-reserve-multiple", 3, "Worst-case roundtrips to keep funded when topping up")
	flag.Int64Var(&deadlineFlag, "deadline-secs", 180, "Transaction deadline in seconds")

	flag.BoolVar(&enableTradingFlag, "enable-trading", enableTradingDefault, "Actually submit transactions (default is dry-run)")
	flag.BoolVar(&invertPriceFlag, "invert-price", false, "Display token0-per-token1 prices")
	flag.BoolVar(&nativePriceFlag, "native-price-from-pool", false, "Use the pool's display price as the native asset's USD price for gas accounting")

	flag.StringVar(&outFlag, "out", "", "Re-range event log path (JSONL)")
	flag.StringVar(&metricsAddrFlag, "metrics-addr", "", "Prometheus listen address (e.g. :9090; empty = disabled)")
	flag.BoolVar(&mtbrFlag, "mtbr", false, "Print mean time between re-ranges from the event log and exit")

	flag.Parse()

	outFile := strings.TrimSpace(outFlag)
	if outFile == "" {
		outFile = strings.TrimSpace(os.Getenv("RERANGE_OUT_FILE"))
	}
	if outFile == "" {
		outFile = defaultEventsOutFile
	}

	if widthFlag <= 0 {
		return args{}, fmt.Errorf("width must be positive, got %d", widthFlag)
	}
	if slippageFlag < 0 || slippageFlag >= 10_000 {
		return args{}, fmt.Errorf("slippage-bps must be in [0,10000), got %d", slippageFlag)
	}

	parsed := args{
		width:               widthFlag,
		slippageBps:         slippageFlag,
		maxGasGwei:          maxGasFlag,
		minNativeEth:        minNativeFlag,
		worstCaseGasEth:     worstCaseFlag,
		reserveMultiple:     reserveMultipleFlag,
		deadlineSecs:        deadlineFlag,
		enableTrading:       enableTradingFlag,
		invertPrice:         invertPriceFlag,
		nativePriceFromPool: nativePriceFlag,
		outFile:             outFile,
		mtbr:                mtbrFlag,
		metricsAddr:         strings.TrimSpace(metricsAddrFlag),
	}
	if parsed.mtbr {
		// Analytics-only: no RPC, no keys.
		return parsed, nil
	}

	rpcWs := strings.TrimSpace(rpcFlag)
	if rpcWs == "" {
		rpcWs = strings.TrimSpace(os.Getenv("RPC_WS_URL"))
	}
	if rpcWs == "" {
		return args{}, fmt.Errorf("rpc required via --rpc or RPC_WS_URL")
	}
	if !strings.HasPrefix(rpcWs, "ws") {
		return args{}, fmt.Errorf("rpc must be ws(s)://... for the block subscription (got %q)", rpcWs)
	}
	parsed.rpcWs = rpcWs

	pkHex := strings.TrimSpace(privateKeyFlag)
	if pkHex == "" {
		pkHex = strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	}
	parsed.privateKeyHex = pkHex

	ownerHex := strings.TrimSpace(ownerFlag)
	if ownerHex == "" {
		ownerHex = strings.TrimSpace(os.Getenv("OWNER_ADDRESS"))
	}
	if ownerHex != "" {
		if !common.IsHexAddress(ownerHex) {
			return args{}, fmt.Errorf("invalid owner address: %q", ownerHex)
		}
		parsed.owner = common.HexToAddress(ownerHex)
	}
	if pkHex == "" && (parsed.owner == common.Address{}) {
		return args{}, fmt.Errorf("need --private-key, or --owner for a key-less dry run")
	}

	addrs, err := parseAddresses(poolFlag, swapPoolFlag, managerFlag, routerFlag, quoterFlag, wethFlag)
	if err != nil {
		return args{}, err
	}
	parsed.addrs = addrs
	return parsed, nil
}

func parseAddresses(pool, swapPool, manager, router, quoter, weth string) (univ3.Addresses, error) {
	pool = strings.TrimSpace(pool)
	if pool == "" {
		pool = strings.TrimSpace(os.Getenv("POOL_ADDRESS"))
	}
	if pool == "" {
		return univ3.Addresses{}, fmt.Errorf("pool required via --pool or POOL_ADDRESS")
	}
	if swapPool = strings.TrimSpace(swapPool); swapPool == "" {
		swapPool = strings.TrimSpace(os.Getenv("SWAP_POOL_ADDRESS"))
	}
	if swapPool == "" {
		swapPool = pool
	}

	var addrs univ3.Addresses
	for _, a := range []struct {
		name string
		hex  string
		dst  *common.Address
	}{
		{"pool", pool, &addrs.Pool},
		{"swap-pool", swapPool, &addrs.SwapPool},
		{"manager", manager, &addrs.Manager},
		{"router", router, &addrs.Router},
		{"weth", weth, &addrs.WETH},
	} {
		if !common.IsHexAddress(a.hex) {
			return univ3.Addresses{}, fmt.Errorf("invalid %s address: %q", a.name, a.hex)
		}
		*a.dst = common.HexToAddress(a.hex)
	}

	// An explicitly blank quoter selects mid-price quoting.
	if quoter = strings.TrimSpace(quoter); quoter != "" {
		if !common.IsHexAddress(quoter) {
			return univ3.Addresses{}, fmt.Errorf("invalid quoter address: %q", quoter)
		}
		addrs.Quoter = common.HexToAddress(quoter)
	}
	return addrs, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("private key missing")
	}
	hexKey = strings.TrimPrefix(hexKey, "0x")
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, nil
}

func gweiToWei(gwei float64) *big.Int {
	if gwei <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9)).Int(nil)
	return wei
}

func ethToWei(eth float64) *big.Int {
	if eth <= 0 {
		return nil
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei
}
