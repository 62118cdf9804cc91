package lending

import (
	"context"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"

	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/internal/txflow"
)

// SupplyService 存入与取出
type SupplyService struct {
	deps     Deps
	supply   *operation
	withdraw *operation
}

func NewSupplyService(d Deps) *SupplyService {
	return &SupplyService{
		deps:     d,
		supply:   newOperation(OpSupply, d),
		withdraw: newOperation(OpWithdraw, d),
	}
}

// Supply 存入抵押品或出借债务资产；ERC20 需要授权，原生币随交易附带 value
func (s *SupplyService) Supply(ctx context.Context, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
	account, err := s.supply.account()
	if err != nil {
		return nil, err
	}
	a, meta, err := s.deps.Market.Asset(ctx, asset)
	if err != nil {
		return nil, err
	}
	raw, human, err := ParseAmount(amount, a.Decimals)
	if err != nil {
		return nil, err
	}

	token := asset
	if meta.Native {
		token = balance.NativeToken
	}
	if err := s.supply.checkWallet(ctx, account, token, a.Decimals, raw); err != nil {
		return nil, err
	}

	req := txflow.Request{
		Call:     s.supply.poolCall(chain.MethodSupply, asset, raw, account),
		Metadata: metadata(meta.Symbol, human, a.Decimals),
	}
	if meta.Native {
		req.Call.Value = raw
	} else {
		req.Approval = s.supply.approvalFor(asset, raw)
	}
	return s.supply.execute(ctx, req)
}

// Withdraw 取出不需要授权，金额不能超过已存入余额
func (s *SupplyService) Withdraw(ctx context.Context, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
	account, err := s.withdraw.account()
	if err != nil {
		return nil, err
	}
	a, meta, err := s.deps.Market.Asset(ctx, asset)
	if err != nil {
		return nil, err
	}
	raw, human, err := ParseAmount(amount, a.Decimals)
	if err != nil {
		return nil, err
	}

	u, err := s.deps.Market.UserData(ctx, account)
	if err != nil {
		return nil, err
	}
	supplied := amountOf(u.CollateralAssets, u.CollateralAmounts, asset)
	if kindOf(a) == KindDebt {
		supplied = amountOf(u.DebtAssets, u.SupplyAmounts, asset)
	}
	if raw.Cmp(supplied) > 0 {
		return nil, invalid("amount", ErrExceedsSupplied)
	}

	return s.withdraw.execute(ctx, txflow.Request{
		Call:     s.withdraw.poolCall(chain.MethodWithdraw, asset, raw, account),
		Metadata: metadata(meta.Symbol, human, a.Decimals),
	})
}

// Flows 供外层查询 / Reset
func (s *SupplyService) Flows() []*txflow.Orchestrator {
	return []*txflow.Orchestrator{s.supply.orch, s.withdraw.orch}
}
