package lending

import (
	"context"
	"math/big"
	"time"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/internal/notify"
	"zeur-core/internal/txflow"
)

// 操作名，同时作为 txflow 的流程名
const (
	OpSupply    = "supply"
	OpWithdraw  = "withdraw"
	OpBorrow    = "borrow"
	OpRepay     = "repay"
	OpLiquidate = "liquidate"
)

// Deps 由 main 构造后注入各服务
type Deps struct {
	Market   *Market
	Balances *balance.Oracle
	Chain    txflow.Chain
	Approver txflow.Approver
	Notifier notify.Notifier
	Pool     common.Address
	Options  txflow.Options
	Logger   *zap.Logger
}

// operation 一种操作对应一个独立的 Orchestrator
type operation struct {
	name   string
	orch   *txflow.Orchestrator
	deps   Deps
	logger *zap.Logger
}

func newOperation(name string, d Deps) *operation {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	op := &operation{
		name:   name,
		orch:   txflow.New(name, d.Chain, d.Approver, d.Options, logger),
		deps:   d,
		logger: logger,
	}
	op.orch.OnTerminal(op.onTerminal)
	return op
}

// onTerminal 终态只处理一次：成功则刷新读模型、通知并 Reset；失败只通知，Reset 留给调用方
func (op *operation) onTerminal(s txflow.State) {
	if s.Metadata.Operation != op.name {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	account := op.deps.Chain.Account()
	if s.Step == txflow.StepCompleted {
		if err := op.deps.Market.Refetch(ctx, account); err != nil {
			op.logger.Warn("refetch after transaction failed", zap.String("operation", op.name), zap.Error(err))
		}
	}
	if op.deps.Notifier != nil {
		if err := op.deps.Notifier.Notify(ctx, notify.FromState(op.name, account, s)); err != nil {
			op.logger.Warn("notify failed", zap.String("operation", op.name), zap.Error(err))
		}
	}
	// 回调期间可能已有新的运行被接受，只 Reset 本次运行
	if s.Step == txflow.StepCompleted {
		op.orch.ResetRun(s.RunID)
	}
}

func (op *operation) execute(ctx context.Context, req txflow.Request) (*promise.Promise[txflow.State], error) {
	req.Metadata.Operation = op.name
	return op.orch.Execute(ctx, req)
}

func (op *operation) poolCall(method string, args ...interface{}) chain.WriteCall {
	return chain.WriteCall{To: op.deps.Pool, Method: method, Args: args}
}

func (op *operation) approvalFor(token common.Address, amount *big.Int) *txflow.ApprovalSpec {
	return &txflow.ApprovalSpec{Token: token, Spender: op.deps.Pool, Amount: amount}
}

func (op *operation) account() (common.Address, error) {
	a := op.deps.Chain.Account()
	if a == (common.Address{}) {
		return a, chain.ErrNoSigner
	}
	return a, nil
}

// checkWallet 金额不能超过钱包余额；余额读取失败视为数据不可用
func (op *operation) checkWallet(ctx context.Context, account, token common.Address, decimals uint8, amount *big.Int) error {
	bal, err := op.deps.Balances.GetBalance(ctx, account, token, decimals)
	if err != nil {
		return unavailable(err)
	}
	if amount.Cmp(bal.Raw) > 0 {
		return invalid("amount", ErrExceedsBalance)
	}
	return nil
}

func kindOf(a chain.AssetData) AssetKind {
	if a.AssetType == chain.AssetTypeDebt {
		return KindDebt
	}
	return KindCollateral
}

func metadata(symbol string, human decimal.Decimal, decimals uint8) txflow.Metadata {
	return txflow.Metadata{Asset: symbol, Amount: human.String(), Decimals: decimals}
}
