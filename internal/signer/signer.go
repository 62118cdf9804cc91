package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"zeur-core/pkg/bip32"
	"zeur-core/pkg/config"
)

var (
	ErrNoWallet          = errors.New("signer: no wallet configured")
	ErrSignatureRejected = errors.New("signer: signature rejected by user")
)

// KeySigner 使用本地私钥签名；私钥来自 keystore 文件或助记词，自身不实现任何密码学
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// FromKeystore 解密 go-ethereum V3 keystore 文件
func FromKeystore(path, password string) (*KeySigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(raw, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return NewKeySigner(key.PrivateKey), nil
}

// FromMnemonic 按 BIP-44 路径派生，path 为空时使用默认路径
func FromMnemonic(mnemonic, path string) (*KeySigner, error) {
	if path == "" {
		path = bip32.DefaultPath
	}
	k, err := bip32.FromMnemonic(mnemonic, "", path)
	if err != nil {
		return nil, err
	}
	priv, err := k.ECDSA()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(priv), nil
}

// FromConfig keystore 优先，其次助记词
func FromConfig(cfg config.WalletConfig) (*KeySigner, error) {
	switch {
	case cfg.KeystorePath != "":
		return FromKeystore(cfg.KeystorePath, cfg.Password)
	case cfg.Mnemonic != "":
		return FromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
	default:
		return nil, ErrNoWallet
	}
}

func (s *KeySigner) Address() common.Address {
	return s.addr
}

func (s *KeySigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}
