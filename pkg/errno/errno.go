package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 返回一个 Code 相同、Message 替换后的副本
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrTooManyRequests  = Errno{Code: 10005, Message: "Too many requests"}
)

// Business Errors (20000+)
var (
	// 20100 客户端金额校验，不会产生交易
	ErrValidation   = Errno{Code: 20101, Message: "Invalid amount"}
	ErrUnknownAsset = Errno{Code: 20102, Message: "Unknown asset"}
	ErrNoWallet     = Errno{Code: 20103, Message: "No wallet connected"}

	// 20200 交易流程
	ErrTxBusy       = Errno{Code: 20201, Message: "A transaction is already in progress"}
	ErrTxApproval   = Errno{Code: 20202, Message: "Approval failed"}
	ErrTxEstimation = Errno{Code: 20203, Message: "Transaction would fail"}
	ErrTxExecution  = Errno{Code: 20204, Message: "Transaction failed"}
	ErrUnknownFlow  = Errno{Code: 20205, Message: "Unknown transaction flow"}

	// 20300 链上读取失败，可通过 refetch 重试
	ErrDataUnavailable = Errno{Code: 20301, Message: "Data unavailable, retry"}
)
