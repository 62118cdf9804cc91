package lending

import (
	"context"
	"math/big"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"

	"zeur-core/internal/chain"
	"zeur-core/internal/txflow"
)

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(wadDecimals), nil)

// BorrowService 借款、还款与清算
type BorrowService struct {
	deps      Deps
	borrow    *operation
	repay     *operation
	liquidate *operation
}

func NewBorrowService(d Deps) *BorrowService {
	return &BorrowService{
		deps:      d,
		borrow:    newOperation(OpBorrow, d),
		repay:     newOperation(OpRepay, d),
		liquidate: newOperation(OpLiquidate, d),
	}
}

// debtAsset 借款类操作只允许债务资产
func (s *BorrowService) debtAsset(ctx context.Context, asset common.Address) (chain.AssetData, string, error) {
	a, meta, err := s.deps.Market.Asset(ctx, asset)
	if err != nil {
		return chain.AssetData{}, "", err
	}
	if kindOf(a) != KindDebt {
		return chain.AssetData{}, "", invalid("asset", ErrWrongAssetType)
	}
	return a, meta.Symbol, nil
}

// Borrow 不需要授权；金额不能超过 availableBorrowsValue 按价格折算的数量
func (s *BorrowService) Borrow(ctx context.Context, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
	account, err := s.borrow.account()
	if err != nil {
		return nil, err
	}
	a, symbol, err := s.debtAsset(ctx, asset)
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
	if raw.Cmp(borrowLimit(u.AvailableBorrowsValue, a)) > 0 {
		return nil, invalid("amount", ErrExceedsBorrowLimit)
	}

	return s.borrow.execute(ctx, txflow.Request{
		Call:     s.borrow.poolCall(chain.MethodBorrow, asset, raw, account),
		Metadata: metadata(symbol, human, a.Decimals),
	})
}

// Repay 需要对 Pool 授权；金额不能超过欠款与钱包余额
func (s *BorrowService) Repay(ctx context.Context, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
	account, err := s.repay.account()
	if err != nil {
		return nil, err
	}
	a, symbol, err := s.debtAsset(ctx, asset)
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
	if raw.Cmp(amountOf(u.DebtAssets, u.BorrowAmounts, asset)) > 0 {
		return nil, invalid("amount", ErrExceedsBorrowed)
	}
	if err := s.repay.checkWallet(ctx, account, asset, a.Decimals, raw); err != nil {
		return nil, err
	}

	return s.repay.execute(ctx, txflow.Request{
		Call:     s.repay.poolCall(chain.MethodRepay, asset, raw, account),
		Approval: s.repay.approvalFor(asset, raw),
		Metadata: metadata(symbol, human, a.Decimals),
	})
}

// Liquidate 替 borrower 偿还 debtAmount 的债务并获得其抵押品；健康因子 >= 1 的仓位不可清算
func (s *BorrowService) Liquidate(ctx context.Context, borrower, collateral, debt common.Address, amount string) (*promise.Promise[txflow.State], error) {
	account, err := s.liquidate.account()
	if err != nil {
		return nil, err
	}
	if borrower == account {
		return nil, invalid("borrower", ErrSelfLiquidation)
	}
	c, _, err := s.deps.Market.Asset(ctx, collateral)
	if err != nil {
		return nil, err
	}
	if kindOf(c) != KindCollateral {
		return nil, invalid("collateral", ErrWrongAssetType)
	}
	a, symbol, err := s.debtAsset(ctx, debt)
	if err != nil {
		return nil, err
	}
	raw, human, err := ParseAmount(amount, a.Decimals)
	if err != nil {
		return nil, err
	}

	u, err := s.deps.Market.UserData(ctx, borrower)
	if err != nil {
		return nil, err
	}
	if !liquidatable(u.HealthFactor, u.TotalDebtValue) {
		return nil, invalid("borrower", ErrPositionHealthy)
	}
	if raw.Cmp(amountOf(u.DebtAssets, u.BorrowAmounts, debt)) > 0 {
		return nil, invalid("amount", ErrExceedsBorrowed)
	}
	if err := s.liquidate.checkWallet(ctx, account, debt, a.Decimals, raw); err != nil {
		return nil, err
	}

	return s.liquidate.execute(ctx, txflow.Request{
		Call:     s.liquidate.poolCall(chain.MethodLiquidate, collateral, debt, raw, borrower),
		Approval: s.liquidate.approvalFor(debt, raw),
		Metadata: metadata(symbol, human, a.Decimals),
	})
}

func (s *BorrowService) Flows() []*txflow.Orchestrator {
	return []*txflow.Orchestrator{s.borrow.orch, s.repay.orch, s.liquidate.orch}
}

// borrowLimit availableBorrowsValue (1e8) / price (1e8) 换算为资产最小单位
func borrowLimit(available *big.Int, a chain.AssetData) *big.Int {
	if available == nil || a.Price == nil || a.Price.Sign() == 0 {
		return new(big.Int)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.Decimals)), nil)
	limit := new(big.Int).Mul(available, scale)
	return limit.Quo(limit, a.Price)
}

func liquidatable(hf, debt *big.Int) bool {
	if debt == nil || debt.Sign() == 0 || hf == nil {
		return false
	}
	return hf.Cmp(wad) < 0
}
