package bip32

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// DefaultPath 以太坊 BIP-44 第一个外部地址
const DefaultPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// Key 是派生到叶子节点的扩展私钥
type Key struct {
	key *hdkeychain.ExtendedKey
}

// ECDSA 返回可直接用于 go-ethereum 签名的私钥
func (k *Key) ECDSA() (*ecdsa.PrivateKey, error) {
	priv, err := k.key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("读取私钥失败: %w", err)
	}
	return priv.ToECDSA(), nil
}

// Address 返回 EIP-55 地址
func (k *Key) Address() (common.Address, error) {
	priv, err := k.ECDSA()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// FromMnemonic 助记词 -> Seed -> Master Key -> 按路径派生
// 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func FromMnemonic(mnemonic, passphrase, path string) (*Key, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.TrimSpace(mnemonic), passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	// 网络参数只影响序列化前缀 (xprv/tprv)，不影响以太坊私钥
	current, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	path = strings.TrimPrefix(strings.TrimSpace(path), "m/")

	for _, segment := range strings.Split(path, "/") {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: segment %q", ErrInvalidPath, segment)
		}
		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}

		current, err = current.Derive(index)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	return &Key{key: current}, nil
}
