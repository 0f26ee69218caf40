// Dumps the wallet's pool-token, wrapped-native and native balances.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/big"
	"os"
	"strings"

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

	var rpcFlag, poolFlag, ownerFlag, managerFlag, routerFlag, wethFlag string
	flag.StringVar(&rpcFlag, "rpc", "", "RPC URL (or RPC_WS_URL env)")
	flag.StringVar(&poolFlag, "pool", "", "Uniswap v3 pool (or POOL_ADDRESS env)")
	flag.StringVar(&ownerFlag, "owner", "", "Wallet address (default: derived from PRIVATE_KEY)")
	flag.StringVar(&managerFlag, "manager", "0xC36442b4a4522E871399CD717aBDD847Ab11FE88", "NonfungiblePositionManager address")
	flag.StringVar(&routerFlag, "router", "0xE592427A0AEce92De3Edee1F18E0157C05861564", "SwapRouter address")
	flag.StringVar(&wethFlag, "weth", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", "Wrapped native token address")
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

	owner, err := resolveOwner(ownerFlag)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	addrs := univ3.Addresses{
		Pool:     common.HexToAddress(pool),
		SwapPool: common.HexToAddress(pool),
		Manager:  common.HexToAddress(managerFlag),
		Router:   common.HexToAddress(routerFlag),
		WETH:     common.HexToAddress(wethFlag),
	}

	ctx := context.Background()
	client, err := univ3.Dial(ctx, rpc, nil, addrs)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	meta := client.Pool()
	fmt.Printf("Wallet %s on %s\n", owner.Hex(), meta.Pair())

	bal0, bal1, err := client.TokenBalances(ctx, owner)
	if err != nil {
		log.Fatalf("[fatal] token balances: %v", err)
	}
	fmt.Printf("  %-6s %s\n", meta.Symbol0, formatUnits(bal0, meta.Decimals0))
	fmt.Printf("  %-6s %s\n", meta.Symbol1, formatUnits(bal1, meta.Decimals1))

	weth, err := client.TokenBalance(ctx, addrs.WETH, owner)
	if err != nil {
		log.Fatalf("[fatal] wrapped balance: %v", err)
	}
	fmt.Printf("  %-6s %s (wrapped)\n", "WETH", formatUnits(weth, 18))

	native, err := client.NativeBalance(ctx, owner)
	if err != nil {
		log.Fatalf("[fatal] native balance: %v", err)
	}
	fmt.Printf("  %-6s %s\n", "native", formatUnits(native, 18))
}

func resolveOwner(ownerFlag string) (common.Address, error) {
	if s := strings.TrimSpace(ownerFlag); s != "" {
		if !common.IsHexAddress(s) {
			return common.Address{}, fmt.Errorf("invalid owner address: %q", s)
		}
		return common.HexToAddress(s), nil
	}
	pkHex := strings.TrimSpace(os.Getenv("PRIVATE_KEY"))
	if pkHex == "" {
		return common.Address{}, fmt.Errorf("owner required via --owner or PRIVATE_KEY")
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(pkHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(pk.PublicKey), nil
}

func formatUnits(x *big.Int, decimals int) string {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(x), big.NewFloat(math.Pow10(decimals))).Float64()
	return fmt.Sprintf("%.6f", f)
}
