package chaintest

import (
	"crypto/ecdsa"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"zeur-core/internal/chain"
	"zeur-core/internal/signer"
)

// hardhat 默认账户 #0
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

func Signer() *signer.KeySigner {
	return signer.NewKeySigner(TestKey())
}

// Gateway 使用极短轮询间隔，signer 为 nil 时只读
func Gateway(b *Backend, s chain.Signer) *chain.Gateway {
	return chain.NewGateway(b, s, chain.Options{
		Pool:          PoolAddress,
		PoolData:      PoolDataAddress,
		ChainID:       ChainID,
		Confirmations: 1,
		PollInterval:  5 * time.Millisecond,
		ReadTimeout:   time.Second,
	}, nil)
}
