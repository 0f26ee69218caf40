package univ3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteExactInputSingleCallLayout(t *testing.T) {
	tokenIn := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")  // USDC
	tokenOut := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2") // WETH
	amountIn := big.NewInt(1_000_000)

	data := quoteExactInputSingleCall(tokenIn, tokenOut, 500, amountIn)
	require.Len(t, data, 4+5*32, "static params struct: five inline words")

	body := data[4:]
	assert.Equal(t, tokenIn, wordAddress(body, 0))
	assert.Equal(t, tokenOut, wordAddress(body, 1))
	assert.Zero(t, wordBig(body, 2).Cmp(amountIn))
	assert.Equal(t, int64(500), wordBig(body, 3).Int64(), "fee tier")
	assert.Equal(t, int64(0), wordBig(body, 4).Int64(), "price limit left open")
}

func TestDecodeQuoteOut(t *testing.T) {
	// (amountOut, sqrtPriceX96After, initializedTicksCrossed, gasEstimate)
	ret := calldata{}.word(big.NewInt(987_654)).
		word(new(big.Int).Lsh(big.NewInt(1), 96)).
		int(3).
		int(80_000)

	out, err := decodeQuoteOut(ret)
	require.NoError(t, err)
	assert.Equal(t, int64(987_654), out.Int64())
}

func TestDecodeQuoteOutShortData(t *testing.T) {
	_, err := decodeQuoteOut([]byte(calldata{}.int(1)))
	require.Error(t, err)
}
