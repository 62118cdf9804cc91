package balance

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"zeur-core/pkg/monitor"
)

// NativeToken 零地址表示链原生币
var NativeToken = common.Address{}

// Reader 余额读取依赖，由 chain.Gateway 实现
type Reader interface {
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
}

type Balance struct {
	Raw       *big.Int `json:"raw"`
	Formatted string   `json:"formatted"`
	Numeric   float64  `json:"numeric"`
	Decimals  uint8    `json:"decimals"`
}

func newBalance(raw *big.Int, decimals uint8) Balance {
	v := ToDecimal(raw, decimals)
	f, _ := v.Float64()
	return Balance{
		Raw:       raw,
		Formatted: FormatDecimal(v),
		Numeric:   f,
		Decimals:  decimals,
	}
}

type Oracle struct {
	reader   Reader
	interval time.Duration
	logger   *zap.Logger
}

func NewOracle(reader Reader, interval time.Duration, logger *zap.Logger) *Oracle {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{reader: reader, interval: interval, logger: logger}
}

// GetBalance 读取一次余额
func (o *Oracle) GetBalance(ctx context.Context, account, token common.Address, decimals uint8) (Balance, error) {
	var (
		raw *big.Int
		err error
	)
	if token == NativeToken {
		raw, err = o.reader.NativeBalance(ctx, account)
	} else {
		raw, err = o.reader.TokenBalance(ctx, token, account)
	}
	if err != nil {
		return Balance{}, err
	}
	monitor.ObserveBalanceRefresh()
	return newBalance(raw, decimals), nil
}

// Watch 后台按间隔轮询，直到 Close 或 ctx 结束
func (o *Oracle) Watch(ctx context.Context, account, token common.Address, decimals uint8) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		oracle:   o,
		account:  account,
		token:    token,
		decimals: decimals,
		cancel:   cancel,
		done:     make(chan struct{}),
		loaded:   make(chan struct{}),
		changes:  make(chan Balance, 1),
	}
	go w.loop(ctx)
	return w
}

type Watcher struct {
	oracle   *Oracle
	account  common.Address
	token    common.Address
	decimals uint8

	mu      sync.RWMutex
	latest  Balance
	lastErr error
	closed  bool

	loadOnce  sync.Once
	loaded    chan struct{}
	changes   chan Balance
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.oracle.interval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) (Balance, error) {
	b, err := w.oracle.GetBalance(ctx, w.account, w.token, w.decimals)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return b, err
	}
	if err != nil {
		w.lastErr = err
		w.oracle.logger.Debug("balance refresh failed",
			zap.String("token", w.token.Hex()),
			zap.Error(err))
	} else {
		changed := w.latest.Raw == nil || w.latest.Raw.Cmp(b.Raw) != 0
		w.latest = b
		w.lastErr = nil
		if changed {
			w.publishLocked(b)
		}
	}
	w.loadOnce.Do(func() { close(w.loaded) })
	return b, err
}

// publishLocked 只保留最新一次变化，慢消费者看到的总是最新余额
func (w *Watcher) publishLocked(b Balance) {
	select {
	case <-w.changes:
	default:
	}
	w.changes <- b
}

// Changes 余额变化 (包括第一次成功读取) 时收到最新值；Close 后关闭
func (w *Watcher) Changes() <-chan Balance {
	return w.changes
}

// Latest 返回最近一次成功的余额以及最近一次刷新的错误
func (w *Watcher) Latest() (Balance, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest, w.lastErr
}

// Loaded 第一次刷新 (无论成功失败) 完成后关闭
func (w *Watcher) Loaded() <-chan struct{} {
	return w.loaded
}

// Refetch 立即刷新一次
func (w *Watcher) Refetch(ctx context.Context) (Balance, error) {
	return w.refresh(ctx)
}

// Close 停止轮询；之后的刷新结果不再写入
func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.changes)
		w.mu.Unlock()
		w.cancel()
		<-w.done
	})
}
