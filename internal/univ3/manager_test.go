package univ3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testManager   = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	testRecipient = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func mintLog(from, to common.Address, id int64) *types.Log {
	return &types.Log{
		Address: testManager,
		Topics: []common.Hash{
			erc721TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(id)),
		},
	}
}

func TestMintedPositionID(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{
		// Unrelated ERC-20 transfer emitted by a pool token.
		{
			Address: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Topics: []common.Hash{
				erc721TransferTopic,
				common.BytesToHash(testRecipient.Bytes()),
				common.BytesToHash(testManager.Bytes()),
			},
		},
		mintLog(common.Address{}, testRecipient, 424242),
	}}

	id, ok := MintedPositionID(receipt, testManager, testRecipient)
	require.True(t, ok)
	assert.Equal(t, int64(424242), id.Int64())
}

func TestMintedPositionIDIgnoresOtherRecipients(t *testing.T) {
	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	receipt := &types.Receipt{Logs: []*types.Log{
		mintLog(common.Address{}, other, 7),
	}}

	_, ok := MintedPositionID(receipt, testManager, testRecipient)
	assert.False(t, ok)
}

func TestMintedPositionIDIgnoresNonMintTransfers(t *testing.T) {
	// A transfer with a nonzero sender is an ordinary NFT move, not a
	// mint.
	receipt := &types.Receipt{Logs: []*types.Log{
		mintLog(testRecipient, testRecipient, 7),
	}}

	_, ok := MintedPositionID(receipt, testManager, testRecipient)
	assert.False(t, ok)
}

func TestMintedPositionIDNilReceipt(t *testing.T) {
	_, ok := MintedPositionID(nil, testManager, testRecipient)
	assert.False(t, ok)
}
