package univ3

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Calldata is built by hand from 4-byte selectors and 32-byte words.
// Every call this bot makes is a fixed shape (static tuples at most),
// so generated bindings would be more surface than they save. The one
// dynamic encoding we need is multicall(bytes[]).

var (
	two256     = new(big.Int).Lsh(big.NewInt(1), 256)
	two255     = new(big.Int).Lsh(big.NewInt(1), 255)
	MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

type calldata []byte

func newCall(signature string) calldata {
	return calldata(append([]byte(nil), selector(signature)...))
}

func (c calldata) addr(a common.Address) calldata {
	return append(c, common.LeftPadBytes(a.Bytes(), 32)...)
}

func (c calldata) word(x *big.Int) calldata {
	if x == nil {
		x = big.NewInt(0)
	}
	if x.Sign() < 0 {
		// Two's complement for negative int24/int256 arguments.
		x = new(big.Int).Add(two256, x)
	}
	return append(c, common.LeftPadBytes(x.Bytes(), 32)...)
}

func (c calldata) int(x int64) calldata {
	return c.word(big.NewInt(x))
}

// encodeMulticall wraps already-encoded inner calls into
// multicall(bytes[]) calldata.
func encodeMulticall(calls [][]byte) []byte {
	data := calldata(newCall("multicall(bytes[])"))
	data = data.int(32)                // offset of the bytes[] argument
	data = data.int(int64(len(calls))) // element count

	offset := int64(len(calls) * 32)
	for _, inner := range calls {
		data = data.int(offset)
		offset += int64(32 + pad32(len(inner)))
	}
	for _, inner := range calls {
		data = data.int(int64(len(inner)))
		data = append(data, common.RightPadBytes(inner, pad32(len(inner)))...)
	}
	return data
}

func pad32(n int) int {
	if n%32 == 0 {
		return n
	}
	return n + 32 - n%32
}

// Return-data decoding. Words are indexed from zero; callers are
// expected to have checked the overall length via wantWords.

func wantWords(out []byte, n int) error {
	if len(out) < n*32 {
		return fmt.Errorf("short return data: got %d bytes, want %d words", len(out), n)
	}
	return nil
}

func word(out []byte, i int) []byte {
	return out[i*32 : (i+1)*32]
}

func wordBig(out []byte, i int) *big.Int {
	return new(big.Int).SetBytes(word(out, i))
}

// wordSigned decodes a two's-complement int256 (covers int24 ticks,
// which the ABI sign-extends to a full word).
func wordSigned(out []byte, i int) *big.Int {
	v := wordBig(out, i)
	if v.Cmp(two255) >= 0 {
		v.Sub(v, two256)
	}
	return v
}

func wordAddress(out []byte, i int) common.Address {
	return common.BytesToAddress(word(out, i)[12:])
}

// decodeString handles the standard dynamic-string return shape and
// falls back to trimming a bytes32 for tokens that return one.
func decodeString(out []byte) string {
	if len(out) == 32 {
		return string(trimZeroes(out))
	}
	if len(out) < 64 {
		return ""
	}
	n := wordBig(out, 1).Int64()
	if n < 0 || 64+n > int64(len(out)) {
		return ""
	}
	return string(out[64 : 64+n])
}

func trimZeroes(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return b[:end]
}
