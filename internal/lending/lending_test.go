package lending

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeur-core/internal/approval"
	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/internal/chain/chaintest"
	"zeur-core/internal/notify"
	"zeur-core/internal/txflow"
	"zeur-core/pkg/config"
)

var (
	weth     = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	ether    = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")
	usdc     = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	eurc     = common.HexToAddress("0x08210F9170F89Ab7658F0B5E3fF39b0E03C594D4")
	borrower = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func e6(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e6)) }
func e8(v int64) *big.Int { return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e8)) }

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
	before func() // 在记录之前调用，用于在终态回调中途挂起
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	if r.before != nil {
		r.before()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) list() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type env struct {
	backend *chaintest.Backend
	account common.Address
	market  *Market
	supply  *SupplyService
	borrow  *BorrowService
	notes   *recorder
}

func newEnv(t *testing.T, s chain.Signer) *env {
	t.Helper()
	b := chaintest.New()
	b.AddAsset(chaintest.NewAsset(weth, chain.AssetTypeCollateral, 18, 2000e8), "WETH")
	b.AddAsset(chaintest.NewAsset(ether, chain.AssetTypeCollateral, 18, 2000e8), "")
	b.AddAsset(chaintest.NewAsset(usdc, chain.AssetTypeDebt, 6, 92e6), "USDC")
	b.AddAsset(chaintest.NewAsset(eurc, chain.AssetTypeDebt, 6, 125e6), "EURC")

	gw := chaintest.Gateway(b, s)
	metas := []config.AssetMeta{{Address: ether.Hex(), Symbol: "ETH", Native: true}}
	market := NewMarket(gw, nil, time.Minute, metas, nil)
	notes := &recorder{}
	d := Deps{
		Market:   market,
		Balances: balance.NewOracle(gw, 0, nil),
		Chain:    gw,
		Approver: approval.NewManager(gw, approval.Options{}, nil),
		Notifier: notes,
		Pool:     chaintest.PoolAddress,
	}
	var account common.Address
	if s != nil {
		account = s.Address()
	}
	return &env{
		backend: b,
		account: account,
		market:  market,
		supply:  NewSupplyService(d),
		borrow:  NewBorrowService(d),
		notes:   notes,
	}
}

func (e *env) flows() []*txflow.Orchestrator {
	return append(e.supply.Flows(), e.borrow.Flows()...)
}

// await 返回的函数可以直接接收 Supply / Borrow 等的两个返回值
func await(t *testing.T) func(*promise.Promise[txflow.State], error) txflow.State {
	return func(p *promise.Promise[txflow.State], err error) txflow.State {
		t.Helper()
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		final, err := p.Await(ctx)
		require.NoError(t, err)
		return *final
	}
}

func methods(calls []chaintest.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input    string
		decimals uint8
		want     *big.Int
		err      error
	}{
		{"100", 6, e6(100), nil},
		{" 1.5 ", 6, big.NewInt(1_500_000), nil},
		{"1.000000", 6, e6(1), nil},
		{"0.5", 18, new(big.Int).Quo(e18(1), big.NewInt(2)), nil},
		{"", 6, nil, ErrEmptyAmount},
		{"   ", 6, nil, ErrEmptyAmount},
		{"0", 6, nil, ErrNonPositiveAmount},
		{"-5", 6, nil, ErrNonPositiveAmount},
		{"abc", 6, nil, ErrInvalidAmount},
		{"1e3", 6, nil, ErrInvalidAmount},
		{"0.0000001", 6, nil, ErrTooManyDecimals},
	}
	for _, c := range cases {
		t.Run(c.input, func(t *testing.T) {
			raw, _, err := ParseAmount(c.input, c.decimals)
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, c.want.Cmp(raw), "got %s", raw)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "100", FormatAmount(e6(100), 6))
	assert.Equal(t, "1.5", FormatAmount(big.NewInt(1_500_000), 6))
	assert.Equal(t, "0", FormatAmount(nil, 6))
}

func TestHealthFactorDisplay(t *testing.T) {
	assert.Equal(t, "∞", healthFactor(new(big.Int), new(big.Int)))
	assert.Equal(t, "1.49", healthFactor(big.NewInt(1_499_999_999_999_999_999), e8(1)))
	assert.Equal(t, "0.90", healthFactor(big.NewInt(9e17), e8(1)))
}

func TestProjectAssets(t *testing.T) {
	a := chaintest.NewAsset(usdc, chain.AssetTypeDebt, 6, 92e6)
	a.SupplyRate = big.NewInt(350)
	a.UtilizationRate = big.NewInt(45e16)
	a.TotalSupply = e6(1_500_000)
	a.BorrowCap = e6(2000)
	c := chaintest.NewAsset(weth, chain.AssetTypeCollateral, 18, 2000e8)
	c.LTV = big.NewInt(7500)

	debts, collaterals := projectAssets([]chain.AssetData{c, a}, map[common.Address]string{usdc: "USDC", weth: "WETH"}, nil)
	require.Len(t, debts, 1)
	require.Len(t, collaterals, 1)

	assert.Equal(t, "USDC", debts[0].Symbol)
	assert.Equal(t, "0.92", debts[0].Price)
	assert.Equal(t, "3.50%", debts[0].SupplyRate)
	assert.Equal(t, "45.00%", debts[0].Utilization)
	assert.Equal(t, "1.50M", debts[0].TotalSupply)
	assert.Equal(t, "Unlimited", debts[0].SupplyCap)
	assert.Equal(t, "2.00K", debts[0].BorrowCap)

	assert.Equal(t, "WETH", collaterals[0].Symbol)
	assert.Equal(t, "75.00%", collaterals[0].LTV)
	assert.Equal(t, "2000.00", collaterals[0].Price)
}

func TestPositionEmpty(t *testing.T) {
	e := newEnv(t, chaintest.Signer())

	pos, err := e.market.Position(context.Background(), e.account)
	require.NoError(t, err)
	assert.Empty(t, pos.Collaterals)
	assert.Empty(t, pos.Supplies)
	assert.Empty(t, pos.Borrows)
	assert.Equal(t, "∞", pos.HealthFactor)
	assert.Equal(t, "0.00", pos.TotalDebtValue)
}

func TestMarketProjectionsAreMemoized(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	ctx := context.Background()

	_, err := e.market.Assets(ctx)
	require.NoError(t, err)
	_, err = e.market.Collaterals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.market.Projections())

	_, err = e.market.Position(ctx, e.account)
	require.NoError(t, err)
	_, err = e.market.Position(ctx, e.account)
	require.NoError(t, err)
	assert.Equal(t, 2, e.market.Projections())

	// 数据未变化的 refetch 不产生新版本
	require.NoError(t, e.market.Refetch(ctx, e.account))
	_, err = e.market.Position(ctx, e.account)
	require.NoError(t, err)
	_, err = e.market.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, e.market.Projections())

	e.backend.SetUser(e.account, chain.UserData{
		TotalCollateralValue: e8(2000),
		CollateralAssets:     []common.Address{weth},
		CollateralAmounts:    []*big.Int{e18(1)},
	})
	require.NoError(t, e.market.Refetch(ctx, e.account))
	pos, err := e.market.Position(ctx, e.account)
	require.NoError(t, err)
	_, err = e.market.Assets(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, e.market.Projections())

	require.Len(t, pos.Collaterals, 1)
	assert.Equal(t, "WETH", pos.Collaterals[0].Symbol)
	assert.Equal(t, "1", pos.Collaterals[0].Amount)
	assert.Equal(t, "2000.00", pos.Collaterals[0].Value)
}

func TestMarketCachesRawReads(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	ctx := context.Background()

	_, err := e.market.Assets(ctx)
	require.NoError(t, err)
	_, err = e.market.Collaterals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, e.backend.Reads("getAssetData"))
	// registry 中的 ETH 不读 symbol
	assert.Equal(t, 3, e.backend.Reads("symbol"))
}

func TestMarketUnavailable(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.FailReads(errors.New("connection refused"))

	_, err := e.market.Assets(context.Background())
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = e.supply.Withdraw(context.Background(), usdc, "1")
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.False(t, IsValidation(err))

	e.backend.FailReads(nil)
	require.NoError(t, e.market.Refetch(context.Background(), e.account))
	views, err := e.market.Assets(context.Background())
	require.NoError(t, err)
	assert.Len(t, views, 2)
}

func TestUnknownAsset(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	_, err := e.supply.Supply(context.Background(), common.HexToAddress("0x01"), "1")
	assert.ErrorIs(t, err, ErrUnknownAsset)
}

func TestNoSigner(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.supply.Supply(context.Background(), usdc, "1")
	assert.ErrorIs(t, err, chain.ErrNoSigner)
}

func TestSupplyValidationRejectsBeforeSubmit(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetBalance(usdc, e.account, e6(500))

	cases := []struct {
		amount string
		err    error
	}{
		{"0", ErrNonPositiveAmount},
		{"", ErrEmptyAmount},
		{"-5", ErrNonPositiveAmount},
		{"abc", ErrInvalidAmount},
		{"1000", ErrExceedsBalance},
		{"1.0000001", ErrTooManyDecimals},
	}
	for _, c := range cases {
		t.Run(c.amount, func(t *testing.T) {
			_, err := e.supply.Supply(context.Background(), usdc, c.amount)
			assert.ErrorIs(t, err, c.err)
			assert.True(t, IsValidation(err))
		})
	}

	assert.Empty(t, e.backend.Calls())
	for _, o := range e.flows() {
		assert.Equal(t, txflow.StepIdle, o.State().Step, o.Name())
	}
}

func TestSupplyCompletes(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetBalance(usdc, e.account, e6(500))
	e.backend.OnWrite = func(b *chaintest.Backend, c chaintest.Call) {
		if c.Method == chain.MethodSupply {
			b.SetUser(c.From, chain.UserData{
				DebtAssets:    []common.Address{usdc},
				SupplyAmounts: []*big.Int{c.Args[1].(*big.Int)},
				BorrowAmounts: []*big.Int{new(big.Int)},
			})
		}
	}

	before, err := e.market.Position(context.Background(), e.account)
	require.NoError(t, err)
	assert.Empty(t, before.Supplies)

	final := await(t)(e.supply.Supply(context.Background(), usdc, "100"))

	assert.Equal(t, txflow.StepCompleted, final.Step)
	assert.Equal(t, "supply", final.Metadata.Operation)
	assert.Equal(t, "USDC", final.Metadata.Asset)
	assert.Equal(t, "100", final.Metadata.Amount)
	assert.Equal(t, []string{chain.MethodApprove, chain.MethodSupply}, methods(e.backend.Calls()))

	calls := e.backend.Calls()
	assert.Equal(t, usdc, calls[1].Args[0])
	assert.Equal(t, 0, e6(100).Cmp(calls[1].Args[1].(*big.Int)))
	assert.Equal(t, e.account, calls[1].Args[2])

	// 完成后自动 refetch、通知一次并回到 idle
	after, err := e.market.Position(context.Background(), e.account)
	require.NoError(t, err)
	require.Len(t, after.Supplies, 1)
	assert.Equal(t, "100", after.Supplies[0].Amount)

	events := e.notes.list()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ResultCompleted, events[0].Result)
	assert.Equal(t, final.RunID, events[0].RunID)

	flow := e.supply.Flows()[0]
	assert.Equal(t, txflow.StepIdle, flow.State().Step)
	last, ok := flow.Last()
	require.True(t, ok)
	assert.Equal(t, final.RunID, last.RunID)
}

func TestSupplyNativeSkipsApproval(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetBalance(balance.NativeToken, e.account, e18(3))

	_, err := e.supply.Supply(context.Background(), ether, "5")
	assert.ErrorIs(t, err, ErrExceedsBalance)

	final := await(t)(e.supply.Supply(context.Background(), ether, "1.5"))
	assert.Equal(t, txflow.StepCompleted, final.Step)
	assert.Equal(t, "ETH", final.Metadata.Asset)

	calls := e.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, chain.MethodSupply, calls[0].Method)
	assert.Equal(t, 0, new(big.Int).Quo(e18(3), big.NewInt(2)).Cmp(calls[0].Value))
}

func TestWithdrawChecksSuppliedBalance(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetUser(e.account, chain.UserData{
		DebtAssets:    []common.Address{usdc},
		SupplyAmounts: []*big.Int{e6(50)},
		BorrowAmounts: []*big.Int{new(big.Int)},
	})

	_, err := e.supply.Withdraw(context.Background(), usdc, "60")
	assert.ErrorIs(t, err, ErrExceedsSupplied)
	assert.Empty(t, e.backend.Calls())
	assert.Equal(t, txflow.StepIdle, e.supply.Flows()[1].State().Step)

	final := await(t)(e.supply.Withdraw(context.Background(), usdc, "50"))
	assert.Equal(t, txflow.StepCompleted, final.Step)
	assert.Equal(t, []string{chain.MethodWithdraw}, methods(e.backend.Calls()))
}

func TestWithdrawCollateral(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetUser(e.account, chain.UserData{
		CollateralAssets:  []common.Address{weth},
		CollateralAmounts: []*big.Int{e18(2)},
	})

	_, err := e.supply.Withdraw(context.Background(), weth, "2.1")
	assert.ErrorIs(t, err, ErrExceedsSupplied)

	final := await(t)(e.supply.Withdraw(context.Background(), weth, "2"))
	assert.Equal(t, txflow.StepCompleted, final.Step)
}

func TestBorrowLimit(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	// 可借 100 (1e8)，EURC 价格 1.25 => 最多 80 EURC
	e.backend.SetUser(e.account, chain.UserData{AvailableBorrowsValue: e8(100)})

	_, err := e.borrow.Borrow(context.Background(), eurc, "80.000001")
	assert.ErrorIs(t, err, ErrExceedsBorrowLimit)

	_, err = e.borrow.Borrow(context.Background(), weth, "1")
	assert.ErrorIs(t, err, ErrWrongAssetType)
	assert.Empty(t, e.backend.Calls())

	final := await(t)(e.borrow.Borrow(context.Background(), eurc, "80"))
	assert.Equal(t, txflow.StepCompleted, final.Step)
	assert.NotContains(t, final.Trace, txflow.StepApproving)
	assert.Equal(t, []string{chain.MethodBorrow}, methods(e.backend.Calls()))
	assert.Equal(t, 0, e.backend.Reads("allowance"))
}

func TestRepayChecks(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetUser(e.account, chain.UserData{
		TotalDebtValue: e8(62),
		DebtAssets:     []common.Address{eurc},
		SupplyAmounts:  []*big.Int{new(big.Int)},
		BorrowAmounts:  []*big.Int{e6(50)},
	})
	e.backend.SetBalance(eurc, e.account, e6(10))

	_, err := e.borrow.Repay(context.Background(), eurc, "60")
	assert.ErrorIs(t, err, ErrExceedsBorrowed)
	_, err = e.borrow.Repay(context.Background(), eurc, "20")
	assert.ErrorIs(t, err, ErrExceedsBalance)
	assert.Empty(t, e.backend.Calls())

	e.backend.SetAllowance(eurc, e.account, chaintest.PoolAddress, e6(100))
	final := await(t)(e.borrow.Repay(context.Background(), eurc, "10"))
	assert.Equal(t, txflow.StepCompleted, final.Step)
	assert.Equal(t, []string{chain.MethodRepay}, methods(e.backend.Calls()))
}

func TestLiquidate(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	ctx := context.Background()
	e.backend.SetBalance(eurc, e.account, e6(1000))

	_, err := e.borrow.Liquidate(ctx, e.account, weth, eurc, "10")
	assert.ErrorIs(t, err, ErrSelfLiquidation)

	_, err = e.borrow.Liquidate(ctx, borrower, eurc, eurc, "10")
	assert.ErrorIs(t, err, ErrWrongAssetType)

	healthy := chain.UserData{
		TotalDebtValue: e8(100),
		HealthFactor:   big.NewInt(15e17),
		DebtAssets:     []common.Address{eurc},
		SupplyAmounts:  []*big.Int{new(big.Int)},
		BorrowAmounts:  []*big.Int{e6(80)},
	}
	e.backend.SetUser(borrower, healthy)
	_, err = e.borrow.Liquidate(ctx, borrower, weth, eurc, "10")
	assert.ErrorIs(t, err, ErrPositionHealthy)

	unhealthy := healthy
	unhealthy.HealthFactor = big.NewInt(9e17)
	e.backend.SetUser(borrower, unhealthy)
	require.NoError(t, e.market.Refetch(ctx, borrower))

	_, err = e.borrow.Liquidate(ctx, borrower, weth, eurc, "90")
	assert.ErrorIs(t, err, ErrExceedsBorrowed)
	assert.Empty(t, e.backend.Calls())

	final := await(t)(e.borrow.Liquidate(ctx, borrower, weth, eurc, "40"))
	assert.Equal(t, txflow.StepCompleted, final.Step)

	calls := e.backend.Calls()
	require.Equal(t, []string{chain.MethodApprove, chain.MethodLiquidate}, methods(calls))
	assert.Equal(t, eurc, calls[0].To)
	require.Len(t, calls[1].Args, 4)
	assert.Equal(t, weth, calls[1].Args[0])
	assert.Equal(t, eurc, calls[1].Args[1])
	assert.Equal(t, 0, e6(40).Cmp(calls[1].Args[2].(*big.Int)))
	assert.Equal(t, borrower, calls[1].Args[3])
}

func TestFailedRunNotifiesWithoutReset(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetUser(e.account, chain.UserData{AvailableBorrowsValue: e8(1000)})
	e.backend.RevertOnChain(chain.MethodBorrow, chaintest.PoolError("BorrowCapExceeded", eurc))

	final := await(t)(e.borrow.Borrow(context.Background(), eurc, "100"))
	assert.Equal(t, txflow.StepError, final.Step)
	assert.Equal(t, txflow.KindExecution, final.ErrorKind)
	assert.Contains(t, final.Error, "BorrowCapExceeded")

	events := e.notes.list()
	require.Len(t, events, 1)
	assert.Equal(t, notify.ResultError, events[0].Result)

	// 错误终态保留，等待调用方 Reset
	flow := e.borrow.Flows()[0]
	assert.Equal(t, txflow.StepError, flow.State().Step)
	flow.Reset()
	assert.Equal(t, txflow.StepIdle, flow.State().Step)
}

func TestBorrowLimitMath(t *testing.T) {
	a := chaintest.NewAsset(eurc, chain.AssetTypeDebt, 6, 125e6)
	assert.Equal(t, 0, e6(80).Cmp(borrowLimit(e8(100), a)))
	assert.Equal(t, 0, borrowLimit(nil, a).Sign())

	a.Price = new(big.Int)
	assert.Equal(t, 0, borrowLimit(e8(100), a).Sign())
}

func TestCompletionResetKeepsNextRun(t *testing.T) {
	e := newEnv(t, chaintest.Signer())
	e.backend.SetBalance(usdc, e.account, e6(500))

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.notes.before = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	first, err := e.supply.Supply(context.Background(), usdc, "100")
	require.NoError(t, err)
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("completion notification not reached")
	}

	// 第一笔的终态回调尚未返回，第二笔已被接受并广播
	e.backend.HoldReceipts(true)
	second, err := e.supply.Supply(context.Background(), usdc, "50")
	require.NoError(t, err)
	flow := e.supply.Flows()[0]
	require.Eventually(t, func() bool { return flow.State().Step == txflow.StepConfirming },
		5*time.Second, 5*time.Millisecond)
	secondRun := flow.State().RunID

	close(release)
	firstFinal := await(t)(first, nil)
	assert.Equal(t, txflow.StepCompleted, firstFinal.Step)

	s := flow.State()
	assert.Equal(t, secondRun, s.RunID, "第一笔的回调不能 Reset 第二笔")
	assert.Equal(t, txflow.StepConfirming, s.Step)
	assert.True(t, s.IsProcessing)

	e.backend.HoldReceipts(false)
	secondFinal := await(t)(second, nil)
	assert.Equal(t, txflow.StepCompleted, secondFinal.Step)
	assert.Equal(t, secondRun, secondFinal.RunID)

	events := e.notes.list()
	require.Len(t, events, 2)
	assert.Equal(t, firstFinal.RunID, events[0].RunID)
	assert.Equal(t, secondRun, events[1].RunID)
	assert.Equal(t, txflow.StepIdle, flow.State().Step)
}
