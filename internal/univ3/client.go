package univ3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Addresses holds the per-chain contract set the bot talks to.
type Addresses struct {
	Pool     common.Address // range-order pool
	SwapPool common.Address // pool used for rebalancing swaps
	Manager  common.Address // NonfungiblePositionManager
	Router   common.Address // SwapRouter
	Quoter   common.Address // QuoterV2; zero means mid-price quotes
	WETH     common.Address // wrapped native, the gas reserve asset
}

// Client wraps an ethclient plus the contract set and token metadata
// for one range-order deployment. All reads are made with the owner as
// the call sender so view simulations (collect) see owner state.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	owner   common.Address

	addrs    Addresses
	pool     PoolMeta
	swapPool PoolMeta
}

// Dial connects, resolves the chain id and loads metadata for both
// pools. A nil key is allowed for read-only tools.
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, addrs Addresses) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}

	c := &Client{eth: eth, chainID: chainID, key: key, addrs: addrs}
	if key != nil {
		c.owner = crypto.PubkeyToAddress(key.PublicKey)
	}

	c.pool, err = c.loadPoolMeta(ctx, addrs.Pool)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("range pool meta: %w", err)
	}
	if addrs.SwapPool == addrs.Pool || (addrs.SwapPool == common.Address{}) {
		c.swapPool = c.pool
	} else {
		c.swapPool, err = c.loadPoolMeta(ctx, addrs.SwapPool)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("swap pool meta: %w", err)
		}
		if c.swapPool.Token0 != c.pool.Token0 || c.swapPool.Token1 != c.pool.Token1 {
			eth.Close()
			return nil, fmt.Errorf("swap pool %s tokens do not match range pool %s", addrs.SwapPool.Hex(), addrs.Pool.Hex())
		}
	}
	return c, nil
}

func (c *Client) Close() { c.eth.Close() }
func (c *Client) Owner() common.Address { return c.owner }

// SetOwner sets the read-as address for read-only clients, so dry runs
// can watch a wallet without holding its key. No-op when a signing key
// is present.
func (c *Client) SetOwner(owner common.Address) {
	if c.key == nil {
		c.owner = owner
	}
}
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }
func (c *Client) Pool() PoolMeta { return c.pool }
func (c *Client) SwapPool() PoolMeta { return c.swapPool }
func (c *Client) Raw() *ethclient.Client { return c.eth }

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.eth.CallContract(ctx, ethereum.CallMsg{From: c.owner, To: &to, Data: data}, nil)
}

// SuggestGasPrice is the gas-price read behind the orchestrator's
// ceiling guard.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, owner, nil)
}

// TxCost is what one confirmed transaction cost us.
type TxCost struct {
	Hash    common.Hash
	GasWei  *big.Int
	Latency time.Duration
}

// send signs and submits calldata as a dynamic-fee transaction, then
// blocks until it is mined. There is deliberately no resubmission
// here: a failed submission may still have landed, and the safe
// recovery is a process restart that re-derives state from the chain.
func (c *Client) send(ctx context.Context, to common.Address, data []byte, value *big.Int) (*types.Receipt, TxCost, error) {
	if c.key == nil {
		return nil, TxCost{}, fmt.Errorf("no private key: client is read-only")
	}
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, c.owner)
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("pending nonce: %w", err)
	}
	tip, err := c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("gas tip: %w", err)
	}
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("head: %w", err)
	}
	var feeCap *big.Int
	if head.BaseFee != nil {
		feeCap = new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
	} else {
		if feeCap, err = c.eth.SuggestGasPrice(ctx); err != nil {
			return nil, TxCost{}, fmt.Errorf("gas price: %w", err)
		}
	}

	gasLimit, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.owner,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit += gasLimit / 4

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		To:        &to,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		Value:     value,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("sign tx: %w", err)
	}

	start := time.Now()
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, TxCost{}, fmt.Errorf("send tx: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, TxCost{}, fmt.Errorf("wait mined %s: %w", signed.Hash().Hex(), err)
	}
	cost := TxCost{
		Hash:    signed.Hash(),
		GasWei:  new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice),
		Latency: time.Since(start),
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, cost, fmt.Errorf("tx %s reverted", signed.Hash().Hex())
	}
	return receipt, cost, nil
}
