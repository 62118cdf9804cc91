package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"zeur-core/pkg/monitor"
)

// Backend 是 Gateway 需要的 RPC 子集，*ethclient.Client 直接满足
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Signer 钱包签名方 (外部协作者)；签名被拒绝时返回 error
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

type Options struct {
	Pool          common.Address
	PoolData      common.Address
	ChainID       *big.Int
	Confirmations uint64
	PollInterval  time.Duration
	ReadTimeout   time.Duration
}

// Gateway 提供对 Pool / PoolData / ERC20 的类型化读写，本身不持有业务状态
type Gateway struct {
	backend Backend
	signer  Signer
	opts    Options
	logger  *zap.Logger

	// nonce 获取 -> 签名 -> 广播 必须串行，否则两个并发流程会拿到同一个 nonce
	sendMu sync.Mutex
}

func NewGateway(backend Backend, signer Signer, opts Options, logger *zap.Logger) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.ChainID == nil {
		opts.ChainID = big.NewInt(1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		backend: backend,
		signer:  signer,
		opts:    opts,
		logger:  logger,
	}
}

// Pool 返回 Pool 合约地址 (也是所有 ERC20 授权的 spender)
func (g *Gateway) Pool() common.Address {
	return g.opts.Pool
}

// Account 返回当前签名账户；没有 signer 时为零地址
func (g *Gateway) Account() common.Address {
	if g.signer == nil {
		return common.Address{}
	}
	return g.signer.Address()
}

// ReadAssetConfig 读取单个资产的链上配置与状态
func (g *Gateway) ReadAssetConfig(ctx context.Context, asset common.Address) (*AssetData, error) {
	out, err := g.call(ctx, g.opts.PoolData, &PoolDataABI, "getAssetData", asset)
	if err != nil {
		return nil, err
	}
	data := *abi.ConvertType(out[0], new(AssetData)).(*AssetData)
	return &data, nil
}

// ReadUserPosition 读取用户聚合仓位，没有仓位时各数组为空
func (g *Gateway) ReadUserPosition(ctx context.Context, user common.Address) (*UserData, error) {
	out, err := g.call(ctx, g.opts.PoolData, &PoolDataABI, "getUserData", user)
	if err != nil {
		return nil, err
	}
	data := *abi.ConvertType(out[0], new(UserData)).(*UserData)
	return &data, nil
}

func (g *Gateway) CollateralAssetList(ctx context.Context) ([]common.Address, error) {
	return g.addressList(ctx, "getCollateralAssetList")
}

func (g *Gateway) DebtAssetList(ctx context.Context) ([]common.Address, error) {
	return g.addressList(ctx, "getDebtAssetList")
}

func (g *Gateway) addressList(ctx context.Context, method string) ([]common.Address, error) {
	out, err := g.call(ctx, g.opts.PoolData, &PoolDataABI, method)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

// TokenAllowance 实时读取 ERC20 allowance (不做缓存)
func (g *Gateway) TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := g.call(ctx, token, &ERC20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (g *Gateway) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := g.call(ctx, token, &ERC20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (g *Gateway) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	out, err := g.call(ctx, token, &ERC20ABI, "symbol")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (g *Gateway) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.ReadTimeout)
	defer cancel()

	bal, err := g.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		monitor.ObserveReadFailure("balance")
		return nil, fmt.Errorf("%w: balance: %v", ErrNetwork, err)
	}
	return bal, nil
}

// call 执行一次 eth_call 并按 ABI 解码
func (g *Gateway) call(ctx context.Context, to common.Address, contract *abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.ReadTimeout)
	defer cancel()

	raw, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		monitor.ObserveReadFailure(method)
		g.logger.Warn("contract read failed",
			zap.String("method", method),
			zap.String("to", to.Hex()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, method, err)
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		monitor.ObserveReadFailure(method)
		return nil, fmt.Errorf("%w: decode %s: %v", ErrNetwork, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrNetwork, method)
	}
	return out, nil
}
