package txflow

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeur-core/internal/approval"
	"zeur-core/internal/chain"
	"zeur-core/internal/chain/chaintest"
	"zeur-core/internal/signer"
)

var (
	usdc = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
	eurc = common.HexToAddress("0x08210F9170F89Ab7658F0B5E3fF39b0E03C594D4")
)

type env struct {
	backend *chaintest.Backend
	account common.Address
	orch    *Orchestrator
}

func newEnv(t *testing.T, s chain.Signer, opts Options) *env {
	t.Helper()
	b := chaintest.New()
	if s == nil {
		s = chaintest.Signer()
	}
	gw := chaintest.Gateway(b, s)
	mgr := approval.NewManager(gw, approval.Options{}, nil)
	return &env{
		backend: b,
		account: s.Address(),
		orch:    New("test", gw, mgr, opts, nil),
	}
}

func (e *env) supplyRequest(amount int64) Request {
	return Request{
		Call: chain.WriteCall{
			To:     chaintest.PoolAddress,
			Method: chain.MethodSupply,
			Args:   []interface{}{usdc, big.NewInt(amount), e.account},
		},
		Approval: &ApprovalSpec{Token: usdc, Spender: chaintest.PoolAddress, Amount: big.NewInt(amount)},
		Metadata: Metadata{Operation: "supply", Asset: "USDC", Amount: "100", Decimals: 6},
	}
}

func (e *env) borrowRequest(amount int64) Request {
	return Request{
		Call: chain.WriteCall{
			To:     chaintest.PoolAddress,
			Method: chain.MethodBorrow,
			Args:   []interface{}{eurc, big.NewInt(amount), e.account},
		},
		Metadata: Metadata{Operation: "borrow", Asset: "EURC", Amount: "200", Decimals: 6},
	}
}

func run(t *testing.T, o *Orchestrator, req Request) State {
	t.Helper()
	p, err := o.Execute(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := p.Await(ctx)
	require.NoError(t, err)
	return *final
}

func methods(calls []chaintest.Call) []string {
	out := make([]string, 0, len(calls))
	for _, c := range calls {
		out = append(out, c.Method)
	}
	return out
}

func waitForStep(t *testing.T, ch <-chan State, step Step) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Step == step {
				return
			}
		case <-timeout:
			t.Fatalf("step %s not reached", step)
		}
	}
}

func TestSupplyWithZeroAllowance(t *testing.T) {
	e := newEnv(t, nil, Options{})

	final := run(t, e.orch, e.supplyRequest(100e6))

	assert.Equal(t, StepCompleted, final.Step)
	assert.Equal(t, []Step{StepIdle, StepCheckingApproval, StepApproving, StepExecuting, StepConfirming, StepCompleted}, final.Trace)
	assert.True(t, final.IsCompleted)
	assert.False(t, final.IsProcessing)
	assert.Equal(t, "USDC", final.Metadata.Asset)
	assert.Equal(t, "100", final.Metadata.Amount)
	assert.NotNil(t, final.ApprovalHash)
	assert.NotNil(t, final.TxHash)
	assert.NoError(t, final.Err())

	// 授权严格先于主交易
	assert.Equal(t, []string{"approve", "supply"}, methods(e.backend.Calls()))
}

func TestRepayWithSufficientAllowance(t *testing.T) {
	e := newEnv(t, nil, Options{})
	e.backend.SetAllowance(eurc, e.account, chaintest.PoolAddress, big.NewInt(50e6))

	req := Request{
		Call: chain.WriteCall{
			To:     chaintest.PoolAddress,
			Method: chain.MethodRepay,
			Args:   []interface{}{eurc, big.NewInt(50e6), e.account},
		},
		Approval: &ApprovalSpec{Token: eurc, Spender: chaintest.PoolAddress, Amount: big.NewInt(50e6)},
		Metadata: Metadata{Operation: "repay", Asset: "EURC", Amount: "50", Decimals: 6},
	}
	final := run(t, e.orch, req)

	assert.Equal(t, []Step{StepIdle, StepCheckingApproval, StepExecuting, StepConfirming, StepCompleted}, final.Trace)
	assert.Nil(t, final.ApprovalHash)
	assert.Equal(t, 0, final.Allowance.Cmp(big.NewInt(50e6)))
	assert.Equal(t, []string{"repay"}, methods(e.backend.Calls()))
}

func TestBorrowWithoutApproval(t *testing.T) {
	e := newEnv(t, nil, Options{})

	final := run(t, e.orch, e.borrowRequest(200e6))

	assert.Equal(t, []Step{StepIdle, StepCheckingApproval, StepExecuting, StepConfirming, StepCompleted}, final.Trace)
	assert.Nil(t, final.Allowance)
	assert.Zero(t, e.backend.Reads("allowance"), "no allowance read without an approval spec")
}

func TestStepsAreMonotonic(t *testing.T) {
	e := newEnv(t, nil, Options{})
	ch, cancel := e.orch.Subscribe(64)
	defer cancel()

	run(t, e.orch, e.supplyRequest(100e6))

	last := StepIdle
	for {
		select {
		case s := <-ch:
			assert.GreaterOrEqual(t, int(s.Step), int(last), "step went from %s to %s", last, s.Step)
			last = s.Step
			if s.Step.Terminal() {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no terminal state observed")
		}
	}
}

func TestAwaitingSignature(t *testing.T) {
	release := make(chan struct{})
	s := signer.NewConfirmingSigner(chaintest.Signer(), func(context.Context, common.Address, *types.Transaction) (bool, error) {
		<-release
		return true, nil
	})
	e := newEnv(t, s, Options{})
	ch, cancel := e.orch.Subscribe(64)
	defer cancel()

	p, err := e.orch.Execute(context.Background(), e.borrowRequest(1e6))
	require.NoError(t, err)

	waitForStep(t, ch, StepExecuting)
	assert.Eventually(t, func() bool { return e.orch.State().AwaitingSignature }, time.Second, 5*time.Millisecond)

	close(release)
	final, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, final.AwaitingSignature)
	assert.Equal(t, StepCompleted, final.Step)
}

func TestResetSuppressesInFlightRun(t *testing.T) {
	e := newEnv(t, nil, Options{})
	e.backend.HoldReceipts(true)

	var hooks atomic.Int32
	e.orch.OnTerminal(func(State) { hooks.Add(1) })
	ch, cancel := e.orch.Subscribe(64)
	defer cancel()

	p, err := e.orch.Execute(context.Background(), e.borrowRequest(1e6))
	require.NoError(t, err)
	waitForStep(t, ch, StepConfirming)

	e.orch.Reset()
	_, err = p.Await(context.Background())
	assert.ErrorIs(t, err, ErrReset)

	// 交易随后上链，也不能让已 Reset 的流程复活
	e.backend.HoldReceipts(false)
	time.Sleep(50 * time.Millisecond)

	s := e.orch.State()
	assert.Equal(t, StepIdle, s.Step)
	assert.Empty(t, s.Error)
	assert.Nil(t, s.TxHash)
	assert.Nil(t, s.ApprovalHash)
	assert.False(t, s.IsProcessing)
	assert.Zero(t, hooks.Load())
}

func TestResetFromTerminal(t *testing.T) {
	e := newEnv(t, nil, Options{})
	final := run(t, e.orch, e.borrowRequest(1e6))
	require.Equal(t, StepCompleted, final.Step)

	e.orch.Reset()
	s := e.orch.State()
	assert.Equal(t, StepIdle, s.Step)
	assert.Nil(t, s.TxHash)

	last, ok := e.orch.Last()
	require.True(t, ok)
	assert.Equal(t, StepCompleted, last.Step)
}

func TestExecuteWhileBusy(t *testing.T) {
	e := newEnv(t, nil, Options{})
	e.backend.HoldReceipts(true)

	_, err := e.orch.Execute(context.Background(), e.borrowRequest(1e6))
	require.NoError(t, err)

	_, err = e.orch.Execute(context.Background(), e.borrowRequest(2e6))
	assert.ErrorIs(t, err, ErrBusy)

	e.orch.Reset()
	e.backend.HoldReceipts(false)
	final := run(t, e.orch, e.borrowRequest(2e6))
	assert.Equal(t, StepCompleted, final.Step)
}

func TestTerminalHookOncePerRun(t *testing.T) {
	e := newEnv(t, nil, Options{})

	var seen []Step
	e.orch.OnTerminal(func(s State) { seen = append(seen, s.Step) })

	run(t, e.orch, e.borrowRequest(1e6))
	// 终态后直接 Execute 等同于先 Reset
	e.backend.RevertOnEstimate(chain.MethodBorrow, chaintest.PoolError("InsufficientCollateral"))
	run(t, e.orch, e.borrowRequest(1e6))

	assert.Equal(t, []Step{StepCompleted, StepError}, seen)
}

func TestFailures(t *testing.T) {
	rejectApprove := signer.NewConfirmingSigner(chaintest.Signer(), func(_ context.Context, _ common.Address, tx *types.Transaction) (bool, error) {
		return *tx.To() != usdc, nil
	})

	tests := []struct {
		name      string
		signer    chain.Signer
		opts      Options
		setup     func(b *chaintest.Backend)
		supply    bool
		wantKind  Kind
		wantStep  Step
		wantErr   error
		wantMsg   string
		wantCalls []string
	}{
		{
			name:      "approval rejected",
			signer:    rejectApprove,
			supply:    true,
			wantKind:  KindApproval,
			wantStep:  StepApproving,
			wantErr:   signer.ErrSignatureRejected,
			wantCalls: []string{},
		},
		{
			name:   "approval reverted",
			supply: true,
			setup: func(b *chaintest.Backend) {
				b.RevertOnChain(chain.MethodApprove, nil)
			},
			wantKind:  KindApproval,
			wantStep:  StepApproving,
			wantErr:   chain.ErrTxReverted,
			wantCalls: []string{"approve"},
		},
		{
			name:   "allowance unavailable",
			supply: true,
			setup: func(b *chaintest.Backend) {
				b.FailReads(errors.New("rpc down"))
			},
			wantKind:  KindNetwork,
			wantStep:  StepCheckingApproval,
			wantErr:   chain.ErrNetwork,
			wantCalls: []string{},
		},
		{
			name: "estimation reverts",
			setup: func(b *chaintest.Backend) {
				b.RevertOnEstimate(chain.MethodBorrow, chaintest.PoolError("BorrowCapExceeded", eurc))
			},
			wantKind:  KindEstimation,
			wantStep:  StepExecuting,
			wantMsg:   "BorrowCapExceeded(" + eurc.Hex() + ")",
			wantCalls: []string{},
		},
		{
			name: "execution reverts on chain",
			setup: func(b *chaintest.Backend) {
				b.RevertOnChain(chain.MethodBorrow, chaintest.PoolError("AssetPaused", eurc))
			},
			wantKind:  KindExecution,
			wantStep:  StepConfirming,
			wantErr:   chain.ErrTxReverted,
			wantMsg:   "AssetPaused(" + eurc.Hex() + ")",
			wantCalls: []string{"borrow"},
		},
		{
			name: "broadcast fails",
			setup: func(b *chaintest.Backend) {
				b.FailSend(errors.New("insufficient funds for gas"))
			},
			wantKind:  KindExecution,
			wantStep:  StepExecuting,
			wantCalls: []string{},
		},
		{
			name: "confirmation timeout",
			opts: Options{ConfirmTimeout: 30 * time.Millisecond},
			setup: func(b *chaintest.Backend) {
				b.HoldReceipts(true)
			},
			wantKind:  KindExecution,
			wantStep:  StepConfirming,
			wantCalls: []string{"borrow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.signer, tt.opts)
			if tt.setup != nil {
				tt.setup(e.backend)
			}

			req := e.borrowRequest(1e6)
			if tt.supply {
				req = e.supplyRequest(100e6)
			}
			final := run(t, e.orch, req)

			assert.Equal(t, StepError, final.Step)
			assert.False(t, final.IsProcessing)
			assert.False(t, final.IsCompleted)
			assert.Equal(t, tt.wantKind, final.ErrorKind)
			assert.NotEmpty(t, final.Error)

			var flowErr *Error
			require.True(t, errors.As(final.Err(), &flowErr))
			assert.Equal(t, tt.wantStep, flowErr.Step)
			if tt.wantErr != nil {
				assert.ErrorIs(t, final.Err(), tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, final.Error)
			}
			assert.Equal(t, tt.wantCalls, methods(e.backend.Calls()))
			assert.NotContains(t, final.Trace, StepCompleted)
		})
	}
}

func TestInvalidRequest(t *testing.T) {
	e := newEnv(t, nil, Options{})

	_, err := e.orch.Execute(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := e.supplyRequest(1)
	req.Approval.Amount = nil
	_, err = e.orch.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, StepIdle, e.orch.State().Step)
}

func TestRequestIsCopied(t *testing.T) {
	e := newEnv(t, nil, Options{})

	req := e.borrowRequest(200e6)
	p, err := e.orch.Execute(context.Background(), req)
	require.NoError(t, err)
	req.Call.Args[1] = big.NewInt(1)

	_, err = p.Await(context.Background())
	require.NoError(t, err)

	calls := e.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0, calls[0].Args[1].(*big.Int).Cmp(big.NewInt(200e6)))
}

func TestStepText(t *testing.T) {
	for step := StepIdle; step <= StepError; step++ {
		text, err := step.MarshalText()
		require.NoError(t, err)

		var back Step
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, step, back)
	}
	assert.Equal(t, "checking-approval", StepCheckingApproval.String())
}

func TestResetRunOnlyResetsItsOwnRun(t *testing.T) {
	e := newEnv(t, nil, Options{})

	entered := make(chan string, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	var resetFirst atomic.Bool
	e.orch.OnTerminal(func(s State) {
		if calls.Add(1) != 1 {
			return
		}
		entered <- s.RunID
		<-release
		resetFirst.Store(e.orch.ResetRun(s.RunID))
	})

	first, err := e.orch.Execute(context.Background(), e.borrowRequest(1e6))
	require.NoError(t, err)
	var firstRun string
	select {
	case firstRun = <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal hook not reached")
	}

	// 回调还在执行时已是终态，可以开始下一次运行
	e.backend.HoldReceipts(true)
	ch, cancel := e.orch.Subscribe(64)
	defer cancel()
	second, err := e.orch.Execute(context.Background(), e.borrowRequest(2e6))
	require.NoError(t, err)
	waitForStep(t, ch, StepConfirming)

	close(release)
	_, err = first.Await(context.Background())
	require.NoError(t, err)
	assert.False(t, resetFirst.Load())

	s := e.orch.State()
	assert.NotEqual(t, firstRun, s.RunID)
	assert.Equal(t, StepConfirming, s.Step)
	assert.False(t, e.orch.ResetRun(""))
	assert.False(t, e.orch.ResetRun(firstRun))

	e.backend.HoldReceipts(false)
	ctx, cancelAwait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelAwait()
	final, err := second.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, final.Step)

	assert.True(t, e.orch.ResetRun(final.RunID))
	assert.Equal(t, StepIdle, e.orch.State().Step)
}

// unloadedApprover allowance 读取返回 nil 且没有错误
type unloadedApprover struct {
	*approval.Manager
}

func (unloadedApprover) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return nil, nil
}

func TestUnloadedAllowanceFails(t *testing.T) {
	b := chaintest.New()
	s := chaintest.Signer()
	gw := chaintest.Gateway(b, s)
	e := &env{
		backend: b,
		account: s.Address(),
		orch:    New("test", gw, unloadedApprover{approval.NewManager(gw, approval.Options{}, nil)}, Options{}, nil),
	}

	final := run(t, e.orch, e.supplyRequest(100e6))

	assert.Equal(t, StepError, final.Step)
	assert.Equal(t, KindNetwork, final.ErrorKind)
	assert.ErrorIs(t, final.Err(), approval.ErrAllowanceNotLoaded)
	assert.Empty(t, b.Calls(), "allowance 未知时不能跳过授权直接提交")
}
