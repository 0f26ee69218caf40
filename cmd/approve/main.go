// Grants the position manager and router max ERC-20 allowances for
// both pool tokens, skipping tokens already approved.
package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"uni-rerange/internal/dotenv"
	"uni-rerange/internal/univ3"
)

// Allowances above this are considered effectively unlimited.
var approvedThreshold = new(big.Int).Lsh(big.NewInt(1), 200)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var rpcFlag, poolFlag, managerFlag, routerFlag, wethFlag, privateKeyFlag string
	flag.StringVar(&rpcFlag, "rpc", "", "RPC URL (or RPC_WS_URL env)")
	flag.StringVar(&poolFlag, "pool", "", "Uniswap v3 pool (or POOL_ADDRESS env)")
	flag.StringVar(&managerFlag, "manager", "0xC36442b4a4522E871399CD717aBDD847Ab11FE88", "NonfungiblePositionManager address")
	flag.StringVar(&routerFlag, "router", "0xE592427A0AEce92De3Edee1F18E0157C05861564", "SwapRouter address")
	flag.StringVar(&wethFlag, "weth", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "Wrapped native token address")
	flag.StringVar(&privateKeyFlag, "private-key", "", "Private key hex (0x...) (or PRIVATE_KEY env)")
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

	pkHex := strings.TrimSpace(privateKeyFlag)
	if pkHex == "" {
		pkHex = strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	}
	if pkHex == "" {
		log.Fatalf("[fatal] private key required (set --private-key or PRIVATE_KEY)")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if err != nil {
		log.Fatalf("[fatal] invalid private key: %v", err)
	}

	addrs := univ3.Addresses{
		Pool:     common.HexToAddress(pool),
		SwapPool: common.HexToAddress(pool),
		Manager:  common.HexToAddress(managerFlag),
		Router:   common.HexToAddress(routerFlag),
		WETH:     common.HexToAddress(wethFlag),
	}

	ctx := context.Background()
	client, err := univ3.Dial(ctx, rpc, key, addrs)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	meta := client.Pool()
	owner := client.Owner()
	log.Printf("Approving %s for %s", meta.Pair(), owner.Hex())

	spenders := []struct {
		name string
		addr common.Address
	}{
		{"manager", addrs.Manager},
		{"router", addrs.Router},
	}
	tokens := []struct {
		symbol string
		addr   common.Address
	}{
		{meta.Symbol0, meta.Token0},
		{meta.Symbol1, meta.Token1},
	}

	for _, sp := range spenders {
		for _, tok := range tokens {
			allowance, err := client.Allowance(ctx, tok.addr, owner, sp.addr)
			if err != nil {
				log.Fatalf("[fatal] allowance %s→%s: %v", tok.symbol, sp.name, err)
			}
			if allowance.Cmp(approvedThreshold) >= 0 {
				log.Printf("%s → %s already approved", tok.symbol, sp.name)
				continue
			}
			cost, err := client.Approve(ctx, tok.addr, sp.addr)
			if err != nil {
				log.Fatalf("[fatal] approve %s→%s: %v", tok.symbol, sp.name, err)
			}
			log.Printf("%s → %s approved (tx=%s gas=%s wei latency=%s)", tok.symbol, sp.name, cost.Hash.Hex(), cost.GasWei, cost.Latency)
		}
	}
}
