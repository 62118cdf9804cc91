package bip32

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 公开测试向量 (Hardhat / Anvil 默认助记词)
const testMnemonic = "test test test test test test test test test test test junk"

func TestFromMnemonic(t *testing.T) {
	key, err := FromMnemonic(testMnemonic, "", DefaultPath)
	require.NoError(t, err)

	addr, err := key.Address()
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", addr.Hex())
}

func TestFromMnemonicSecondAccount(t *testing.T) {
	key, err := FromMnemonic(testMnemonic, "", "m/44h/60h/0h/0/1")
	require.NoError(t, err)

	addr, err := key.Address()
	require.NoError(t, err)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", addr.Hex())
}

func TestFromMnemonicErrors(t *testing.T) {
	_, err := FromMnemonic("not a real mnemonic", "", DefaultPath)
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = FromMnemonic(testMnemonic, "", "m/44'/abc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}
