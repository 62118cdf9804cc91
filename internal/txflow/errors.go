package txflow

import (
	"errors"
	"fmt"
)

var (
	ErrBusy           = errors.New("txflow: a transaction is already in progress")
	ErrReset          = errors.New("txflow: flow was reset")
	ErrInvalidRequest = errors.New("txflow: invalid request")
	ErrTimeout        = errors.New("txflow: timed out")
)

// ErrStillInsufficient 授权交易确认后 allowance 仍不足 (例如期间被其它交易修改)
var ErrStillInsufficient = errors.New("txflow: allowance still insufficient after approval")

// Kind 终态错误分类
type Kind string

const (
	KindApproval   Kind = "approval"
	KindEstimation Kind = "estimation"
	KindExecution  Kind = "execution"
	KindNetwork    Kind = "network"
)

// Error 流程进入 error 终态时携带的错误
type Error struct {
	Kind Kind
	Step Step
	Err  error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, step Step, err error) *Error {
	return &Error{Kind: kind, Step: step, Err: err}
}

func timeoutError(stage string) error {
	return fmt.Errorf("%w waiting for %s", ErrTimeout, stage)
}
