package notify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"zeur-core/internal/service/mq"
	"zeur-core/internal/txflow"
	"zeur-core/pkg/lock"
)

const (
	ResultCompleted = "completed"
	ResultError     = "error"
)

// Event 交易终态通知，每次运行只发一次
type Event struct {
	RunID     string    `json:"runId"`
	Flow      string    `json:"flow"`
	Operation string    `json:"operation"`
	Account   string    `json:"account"`
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	Result    string    `json:"result"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	At        time.Time `json:"at"`
}

// FromState 由终态构造事件
func FromState(flow string, account common.Address, s txflow.State) Event {
	e := Event{
		RunID:     s.RunID,
		Flow:      flow,
		Operation: s.Metadata.Operation,
		Account:   account.Hex(),
		Asset:     s.Metadata.Asset,
		Amount:    s.Metadata.Amount,
		Result:    ResultCompleted,
		At:        s.FinishedAt,
	}
	if s.Step == txflow.StepError {
		e.Result = ResultError
		e.ErrorKind = string(s.ErrorKind)
		e.Error = s.Error
	}
	if s.TxHash != nil {
		e.TxHash = s.TxHash.Hex()
	}
	return e
}

// Fingerprint 事件去重键
func (e Event) Fingerprint() string {
	sum := blake3.Sum256([]byte(e.RunID + "|" + e.Flow + "|" + e.Result))
	return hex.EncodeToString(sum[:16])
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// LogNotifier 只写日志
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, e Event) error {
	fields := []zap.Field{
		zap.String("run_id", e.RunID),
		zap.String("operation", e.Operation),
		zap.String("asset", e.Asset),
		zap.String("amount", e.Amount),
		zap.String("tx", e.TxHash),
	}
	if e.Result == ResultError {
		n.logger.Warn("transaction failed", append(fields, zap.String("kind", e.ErrorKind), zap.String("error", e.Error))...)
		return nil
	}
	n.logger.Info("transaction confirmed", fields...)
	return nil
}

// MQNotifier 发布到 Kafka / Redis Stream；同一事件在多实例间只发布一次
type MQNotifier struct {
	producer mq.Producer
	topic    string
	lock     lock.DistributedLock
	dedupTTL time.Duration
}

func NewMQNotifier(producer mq.Producer, topic string, l lock.DistributedLock) *MQNotifier {
	if l == nil {
		l = lock.NewMemoryLock()
	}
	return &MQNotifier{producer: producer, topic: topic, lock: l, dedupTTL: 24 * time.Hour}
}

func (n *MQNotifier) Notify(ctx context.Context, e Event) error {
	ok, err := n.lock.Acquire(ctx, "notify:"+e.Fingerprint(), n.dedupTTL)
	if err != nil {
		return fmt.Errorf("notify dedup: %w", err)
	}
	if !ok {
		return nil
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := n.producer.Publish(ctx, n.topic, e.Account, payload); err != nil {
		// 发布失败时释放去重键，允许重试
		_ = n.lock.Release(ctx, "notify:"+e.Fingerprint())
		return err
	}
	return nil
}

// Multi 依次通知，返回所有错误
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
