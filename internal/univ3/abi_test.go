package univ3

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorMatchesKnownValue(t *testing.T) {
	// transfer(address,uint256) is the classic reference selector.
	assert.Equal(t, "a9059cbb", hex.EncodeToString(selector("transfer(address,uint256)")))
}

func TestCalldataNegativeInt(t *testing.T) {
	data := newCall("f(int24)").int(-60)
	require.Len(t, []byte(data), 4+32)
	// Two's complement: all leading bytes 0xff.
	assert.Equal(t, byte(0xff), data[4])
	v := wordSigned(data[4:], 0)
	assert.Equal(t, int64(-60), v.Int64())
}

func TestWordSignedRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 887272, -887272} {
		data := calldata{}.int(v)
		assert.Equal(t, v, wordSigned(data, 0).Int64(), "value %d", v)
	}
}

func TestEncodeMulticallLayout(t *testing.T) {
	callA := []byte{0x01, 0x02, 0x03, 0x04}             // 4 bytes, pads to 32
	callB := make([]byte, 36)                           // 36 bytes, pads to 64
	data := encodeMulticall([][]byte{callA, callB})

	body := data[4:]
	require.Equal(t, int64(32), wordBig(body, 0).Int64(), "argument offset")
	require.Equal(t, int64(2), wordBig(body, 1).Int64(), "element count")
	// Element offsets are relative to the start of the element block.
	assert.Equal(t, int64(64), wordBig(body, 2).Int64())
	assert.Equal(t, int64(64+32+32), wordBig(body, 3).Int64())
	// First element: length then right-padded payload.
	assert.Equal(t, int64(4), wordBig(body, 4).Int64())
	assert.Equal(t, callA, []byte(word(body, 5))[:4])
	// Second element.
	assert.Equal(t, int64(36), wordBig(body, 6).Int64())
	assert.Len(t, body, 32*9)
}

func TestDecodeString(t *testing.T) {
	// Standard dynamic string: offset, length, data.
	enc := calldata{}.int(32).int(4)
	enc = append(enc, common.RightPadBytes([]byte("WETH"), 32)...)
	assert.Equal(t, "WETH", decodeString(enc))

	// bytes32 fallback (MKR-style symbol).
	assert.Equal(t, "MKR", decodeString(common.RightPadBytes([]byte("MKR"), 32)))
}

func TestWordAddress(t *testing.T) {
	a := common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	data := calldata{}.addr(a)
	assert.Equal(t, a, wordAddress(data, 0))
}

func TestMaxUint128(t *testing.T) {
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	assert.Zero(t, MaxUint128.Cmp(want))
}
