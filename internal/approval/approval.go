package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"

	"zeur-core/internal/chain"
	"zeur-core/pkg/monitor"
)

// Mode 授权额度策略
type Mode string

const (
	// ModeUnlimited 一次授权 MaxUint256，之后同一 spender 不再弹窗；代价是 spender 合约被攻破时可转走全部余额
	ModeUnlimited Mode = "unlimited"
	// ModeExact 每次只授权本次需要的数量，每笔交易前都需要重新授权
	ModeExact Mode = "exact"
)

var ErrAllowanceNotLoaded = errors.New("approval: allowance not loaded")

// EstimationError 模拟执行失败，交易不会被提交到钱包
type EstimationError struct {
	Method string
	Reason string
	Err    error
}

func (e *EstimationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("gas estimation failed for %s: %v", e.Method, e.Err)
}

func (e *EstimationError) Unwrap() error {
	return e.Err
}

// Gateway Approval 依赖的链访问能力
type Gateway interface {
	TokenAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	EstimateGas(ctx context.Context, from common.Address, call chain.WriteCall) (uint64, error)
	SubmitWrite(ctx context.Context, call chain.WriteCall, gasLimit uint64) (chain.PendingTx, error)
}

type Options struct {
	Mode             Mode
	GasBufferPercent uint64
}

type Manager struct {
	gw     Gateway
	opts   Options
	logger *zap.Logger
}

func NewManager(gw Gateway, opts Options, logger *zap.Logger) *Manager {
	if opts.Mode == "" {
		opts.Mode = ModeUnlimited
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gw: gw, opts: opts, logger: logger}
}

func (m *Manager) Mode() Mode {
	return m.opts.Mode
}

// Allowance 实时读取，不使用任何缓存
func (m *Manager) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return m.gw.TokenAllowance(ctx, token, owner, spender)
}

// NeedsApproval allowance 为 nil 表示尚未读取，此时不能给出结论
func NeedsApproval(allowance, amount *big.Int) (bool, error) {
	if allowance == nil {
		return false, ErrAllowanceNotLoaded
	}
	return allowance.Cmp(amount) < 0, nil
}

// ApprovalCall 构造 approve 调用
func (m *Manager) ApprovalCall(token, spender common.Address, amount *big.Int) chain.WriteCall {
	value := math.MaxBig256
	if m.opts.Mode == ModeExact {
		value = amount
	}
	return chain.WriteCall{
		To:     token,
		Method: chain.MethodApprove,
		Args:   []interface{}{spender, new(big.Int).Set(value)},
	}
}

// Approve 提交授权交易，不等待确认
func (m *Manager) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (chain.PendingTx, error) {
	call := m.ApprovalCall(token, spender, amount)

	pending, err := m.gw.SubmitWrite(ctx, call, 0)
	if err != nil {
		return chain.PendingTx{}, err
	}
	monitor.ObserveApproval(string(m.opts.Mode))
	m.logger.Info("approval submitted",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("mode", string(m.opts.Mode)),
		zap.String("hash", pending.Hash.Hex()))
	return pending, nil
}

// EstimateGas 模拟执行并加上缓冲；失败返回 *EstimationError，调用方不应继续请求签名
func (m *Manager) EstimateGas(ctx context.Context, call chain.WriteCall, from common.Address) (uint64, error) {
	gas, err := m.gw.EstimateGas(ctx, from, call)
	if err != nil {
		reason, _ := chain.DecodeRevert(err)
		return 0, &EstimationError{Method: call.Method, Reason: reason, Err: err}
	}
	return gas + gas*m.opts.GasBufferPercent/100, nil
}
