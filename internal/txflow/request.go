package txflow

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"zeur-core/internal/chain"
)

// ApprovalSpec ERC20 授权要求，Spender 在本系统中总是 Pool
type ApprovalSpec struct {
	Token   common.Address `json:"token"`
	Spender common.Address `json:"spender"`
	Amount  *big.Int       `json:"amount"`
}

// Metadata 调用方附带的展示信息，原样回显在 State 中
type Metadata struct {
	Operation string `json:"operation"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Decimals  uint8  `json:"decimals"`
}

// Request 一次用户操作对应的写交易；提交后不再修改 (Execute 内部会复制)
type Request struct {
	Call     chain.WriteCall
	Approval *ApprovalSpec
	Metadata Metadata
}

func (r Request) validate() error {
	if r.Call.Method == "" || r.Call.To == (common.Address{}) {
		return ErrInvalidRequest
	}
	if r.Approval != nil && (r.Approval.Amount == nil || r.Approval.Amount.Sign() < 0) {
		return ErrInvalidRequest
	}
	return nil
}

func (r Request) clone() Request {
	out := r
	out.Call.Args = append([]interface{}(nil), r.Call.Args...)
	if r.Call.Value != nil {
		out.Call.Value = new(big.Int).Set(r.Call.Value)
	}
	if r.Approval != nil {
		a := *r.Approval
		a.Amount = new(big.Int).Set(r.Approval.Amount)
		out.Approval = &a
	}
	return out
}

// State 对外暴露的唯一交易状态
type State struct {
	RunID        string       `json:"runId,omitempty"`
	Step         Step         `json:"step"`
	IsProcessing bool         `json:"isProcessing"`
	IsCompleted  bool         `json:"isCompleted"`
	Error        string       `json:"error,omitempty"`
	ErrorKind    Kind         `json:"errorKind,omitempty"`
	Allowance    *big.Int     `json:"allowance,omitempty"`
	ApprovalHash *common.Hash `json:"approvalHash,omitempty"`
	TxHash       *common.Hash `json:"txHash,omitempty"`
	Metadata     Metadata     `json:"metadata"`
	Trace        []Step       `json:"trace,omitempty"`
	StartedAt    time.Time    `json:"startedAt,omitempty"`
	FinishedAt   time.Time    `json:"finishedAt,omitempty"`

	// AwaitingSignature 已进入提交阶段但还没有拿到交易哈希，即钱包弹窗中
	AwaitingSignature bool `json:"awaitingSignature"`

	failure *Error
}

// Err 终态为 error 时返回对应错误
func (s State) Err() error {
	if s.failure == nil {
		return nil
	}
	return s.failure
}

func (s State) snapshot() State {
	out := s
	out.Trace = append([]Step(nil), s.Trace...)
	if s.Allowance != nil {
		out.Allowance = new(big.Int).Set(s.Allowance)
	}
	switch s.Step {
	case StepApproving:
		out.AwaitingSignature = s.ApprovalHash == nil
	case StepExecuting:
		out.AwaitingSignature = s.TxHash == nil
	default:
		out.AwaitingSignature = false
	}
	return out
}
