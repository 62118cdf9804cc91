package txflow

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"zeur-core/internal/approval"
	"zeur-core/internal/chain"
	"zeur-core/pkg/monitor"
)

// Chain 提交与确认交易
type Chain interface {
	Account() common.Address
	SubmitWrite(ctx context.Context, call chain.WriteCall, gasLimit uint64) (chain.PendingTx, error)
	Confirmation(ctx context.Context, tx chain.PendingTx) *promise.Promise[types.Receipt]
}

// Approver 读取 allowance、发起授权、估算 gas；approval.Manager 实现
type Approver interface {
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (chain.PendingTx, error)
	EstimateGas(ctx context.Context, call chain.WriteCall, from common.Address) (uint64, error)
}

type Options struct {
	ReadTimeout    time.Duration // allowance 读取 / gas 估算
	SignTimeout    time.Duration // 等待钱包签名
	ConfirmTimeout time.Duration // 等待上链确认
}

// TerminalHook 每次运行进入终态时调用一次；Reset 掉的运行不会触发
type TerminalHook func(State)

// Orchestrator 单个交易流程的状态机，同一时刻只处理一个 Request
// 多个实例之间互不共享状态
type Orchestrator struct {
	name     string
	chain    Chain
	approver Approver
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	last   *State
	gen    uint64
	cancel context.CancelFunc
	hooks  []TerminalHook
	subs   map[int]chan State
	nextID int
}

func New(name string, c Chain, a Approver, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.SignTimeout <= 0 {
		opts.SignTimeout = 2 * time.Minute
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		name:     name,
		chain:    c,
		approver: a,
		opts:     opts,
		logger:   logger.With(zap.String("flow", name)),
		state:    State{Step: StepIdle},
		subs:     make(map[int]chan State),
	}
}

func (o *Orchestrator) Name() string {
	return o.name
}

// OnTerminal 注册终态回调，需在第一次 Execute 之前调用
func (o *Orchestrator) OnTerminal(hook TerminalHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, hook)
}

// State 当前状态快照
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.snapshot()
}

// Last 最近一次进入终态的结果，Reset 后仍保留
func (o *Orchestrator) Last() (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return State{}, false
	}
	return o.last.snapshot(), true
}

// Subscribe 订阅状态变化；慢消费者会丢失中间状态，但终态之前的顺序不会乱
func (o *Orchestrator) Subscribe(buffer int) (<-chan State, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan State, buffer)

	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
			close(ch)
		})
	}
}

// Execute 启动一次流程并立即返回，promise 在终态时 resolve (包括 error 终态)
// 运行中再次调用返回 ErrBusy；上一次运行已结束时隐式 Reset
// 运行不受 ctx 取消影响，只能通过 Reset 中止
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*promise.Promise[State], error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req = req.clone()

	o.mu.Lock()
	if o.state.IsProcessing {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.gen++
	gen := o.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.cancel = cancel
	o.state = State{
		RunID:        uuid.NewString(),
		Step:         StepCheckingApproval,
		IsProcessing: true,
		Metadata:     req.Metadata,
		Trace:        []Step{StepIdle, StepCheckingApproval},
		StartedAt:    time.Now(),
	}
	o.publishLocked()
	runID := o.state.RunID
	o.mu.Unlock()

	monitor.ObserveStep(o.name, StepCheckingApproval.String())
	o.logger.Info("transaction flow started",
		zap.String("run_id", runID),
		zap.String("method", req.Call.Method),
		zap.String("asset", req.Metadata.Asset),
		zap.String("amount", req.Metadata.Amount),
		zap.Bool("approval", req.Approval != nil))

	return promise.New(func(resolve func(State), reject func(error)) {
		defer cancel()
		final, ok := o.run(runCtx, gen, req)
		if !ok {
			reject(ErrReset)
			return
		}
		resolve(final)
	}), nil
}

// Reset 回到 idle；正在进行的运行被取消，之后它的任何结果都会被丢弃
// 已广播的链上交易无法撤回
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resetLocked()
}

func (o *Orchestrator) resetLocked() {
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	if o.state.IsProcessing {
		o.logger.Info("transaction flow reset while in flight",
			zap.String("run_id", o.state.RunID),
			zap.Stringer("step", o.state.Step))
	}
	o.state = State{Step: StepIdle}
	o.publishLocked()
}

// ResetRun 只在当前状态仍属于 runID 时 Reset；终态回调期间可能已经开始了新的运行，不能误伤
func (o *Orchestrator) ResetRun(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if runID == "" || o.state.RunID != runID {
		return false
	}
	o.resetLocked()
	return true
}

// run 依次经过各个挂起点；返回 false 表示运行已被 Reset
func (o *Orchestrator) run(ctx context.Context, gen uint64, req Request) (State, bool) {
	from := o.chain.Account()

	// 1. checking-approval：每次运行都重新读取 allowance，不信任任何缓存
	if spec := req.Approval; spec != nil {
		allowance, err := await(ctx, o.opts.ReadTimeout, "allowance", func(ctx context.Context) (*big.Int, error) {
			return o.approver.Allowance(ctx, spec.Token, from, spec.Spender)
		})
		if err != nil {
			return o.fail(gen, KindNetwork, err)
		}
		if !o.update(gen, func(s *State) { s.Allowance = allowance }) {
			return State{}, false
		}

		need, err := approval.NeedsApproval(allowance, spec.Amount)
		if err != nil {
			return o.fail(gen, KindNetwork, err)
		}
		if need {
			if final, ok, done := o.approve(ctx, gen, from, spec); done {
				return final, ok
			}
		}
	}

	// 2. executing：先模拟执行，失败则不请求签名
	if !o.advance(gen, StepExecuting, nil) {
		return State{}, false
	}
	gas, err := await(ctx, o.opts.ReadTimeout, "gas estimation", func(ctx context.Context) (uint64, error) {
		return o.approver.EstimateGas(ctx, req.Call, from)
	})
	if err != nil {
		return o.fail(gen, KindEstimation, err)
	}

	pending, err := await(ctx, o.opts.SignTimeout, "signature", func(ctx context.Context) (chain.PendingTx, error) {
		return o.chain.SubmitWrite(ctx, req.Call, gas)
	})
	if err != nil {
		return o.fail(gen, KindExecution, err)
	}

	// 3. confirming
	hash := pending.Hash
	if !o.advance(gen, StepConfirming, func(s *State) { s.TxHash = &hash }) {
		return State{}, false
	}
	if _, err := o.confirm(ctx, pending); err != nil {
		return o.fail(gen, KindExecution, err)
	}

	return o.finish(gen, StepCompleted, nil)
}

// approve 提交授权并等待确认，然后重新读取 allowance
// done 为 true 时流程已结束 (终态或被 Reset)
func (o *Orchestrator) approve(ctx context.Context, gen uint64, from common.Address, spec *ApprovalSpec) (State, bool, bool) {
	if !o.advance(gen, StepApproving, nil) {
		return State{}, false, true
	}

	pending, err := await(ctx, o.opts.SignTimeout, "approval signature", func(ctx context.Context) (chain.PendingTx, error) {
		return o.approver.Approve(ctx, spec.Token, spec.Spender, spec.Amount)
	})
	if err != nil {
		final, ok := o.fail(gen, KindApproval, err)
		return final, ok, true
	}
	hash := pending.Hash
	if !o.update(gen, func(s *State) { s.ApprovalHash = &hash }) {
		return State{}, false, true
	}

	if _, err := o.confirm(ctx, pending); err != nil {
		final, ok := o.fail(gen, KindApproval, err)
		return final, ok, true
	}

	allowance, err := await(ctx, o.opts.ReadTimeout, "allowance", func(ctx context.Context) (*big.Int, error) {
		return o.approver.Allowance(ctx, spec.Token, from, spec.Spender)
	})
	if err != nil {
		final, ok := o.fail(gen, KindApproval, err)
		return final, ok, true
	}
	if !o.update(gen, func(s *State) { s.Allowance = allowance }) {
		return State{}, false, true
	}
	need, err := approval.NeedsApproval(allowance, spec.Amount)
	if err != nil {
		final, ok := o.fail(gen, KindNetwork, err)
		return final, ok, true
	}
	if need {
		final, ok := o.fail(gen, KindApproval, ErrStillInsufficient)
		return final, ok, true
	}
	return State{}, false, false
}

func (o *Orchestrator) confirm(ctx context.Context, pending chain.PendingTx) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ConfirmTimeout)
	defer cancel()

	receipt, err := o.chain.Confirmation(ctx, pending).Await(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, chain.ErrConfirmationTimeout) {
			return nil, timeoutError("confirmation")
		}
		return nil, err
	}
	return receipt, nil
}

// await 把一次阻塞调用包装为带超时的挂起点；被调用方不响应 ctx 时也不会卡住流程
func await[T any](ctx context.Context, timeout time.Duration, stage string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := promise.New(func(resolve func(T), reject func(error)) {
		v, err := fn(ctx)
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	})

	var zero T
	v, err := p.Await(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return zero, timeoutError(stage)
		}
		return zero, err
	}
	return *v, nil
}

// update 修改当前运行的状态；运行已被 Reset 时返回 false
func (o *Orchestrator) update(gen uint64, fn func(*State)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return false
	}
	fn(&o.state)
	o.publishLocked()
	return true
}

// advance 推进到下一个阶段，违反顺序的推进会被丢弃
func (o *Orchestrator) advance(gen uint64, step Step, fn func(*State)) bool {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return false
	}
	if !canAdvance(o.state.Step, step) {
		from := o.state.Step
		o.mu.Unlock()
		o.logger.Error("dropped out-of-order step transition",
			zap.Stringer("from", from),
			zap.Stringer("to", step))
		return false
	}
	o.state.Step = step
	o.state.Trace = append(o.state.Trace, step)
	if fn != nil {
		fn(&o.state)
	}
	o.publishLocked()
	o.mu.Unlock()

	monitor.ObserveStep(o.name, step.String())
	return true
}

func (o *Orchestrator) fail(gen uint64, kind Kind, err error) (State, bool) {
	o.mu.Lock()
	step := o.state.Step
	o.mu.Unlock()
	return o.finish(gen, StepError, newError(kind, step, err))
}

// finish 进入终态并触发回调，每次运行只会发生一次
func (o *Orchestrator) finish(gen uint64, step Step, failure *Error) (State, bool) {
	o.mu.Lock()
	if gen != o.gen || !canAdvance(o.state.Step, step) {
		o.mu.Unlock()
		return State{}, false
	}
	s := &o.state
	s.Step = step
	s.Trace = append(s.Trace, step)
	s.IsProcessing = false
	s.IsCompleted = step == StepCompleted
	s.FinishedAt = time.Now()
	if failure != nil {
		s.Error = failure.Error()
		s.ErrorKind = failure.Kind
		s.failure = failure
	}
	final := s.snapshot()
	o.last = &final
	o.publishLocked()
	hooks := append([]TerminalHook(nil), o.hooks...)
	o.mu.Unlock()

	elapsed := final.FinishedAt.Sub(final.StartedAt)
	monitor.ObserveStep(o.name, step.String())
	if failure != nil {
		monitor.ObserveResult(o.name, string(failure.Kind), elapsed)
		o.logger.Warn("transaction flow failed",
			zap.String("run_id", final.RunID),
			zap.String("kind", string(failure.Kind)),
			zap.Stringer("at", failure.Step),
			zap.Error(failure.Err))
	} else {
		monitor.ObserveResult(o.name, "completed", elapsed)
		o.logger.Info("transaction flow completed",
			zap.String("run_id", final.RunID),
			zap.Stringer("tx", final.TxHash),
			zap.Duration("elapsed", elapsed))
	}

	for _, hook := range hooks {
		hook(final)
	}
	return final, true
}

// publishLocked 调用方需持有 mu；非阻塞发送
func (o *Orchestrator) publishLocked() {
	if len(o.subs) == 0 {
		return
	}
	snap := o.state.snapshot()
	for _, ch := range o.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
