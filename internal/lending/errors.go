package lending

import (
	"errors"
	"fmt"
)

// 金额校验错误，均在构造交易之前返回
var (
	ErrEmptyAmount        = errors.New("please enter an amount")
	ErrInvalidAmount      = errors.New("amount must be a number")
	ErrNonPositiveAmount  = errors.New("amount must be greater than 0")
	ErrTooManyDecimals    = errors.New("amount has more decimal places than the asset supports")
	ErrExceedsBalance     = errors.New("amount exceeds your wallet balance")
	ErrExceedsSupplied    = errors.New("amount exceeds your supplied balance")
	ErrExceedsBorrowed    = errors.New("amount exceeds your outstanding debt")
	ErrExceedsBorrowLimit = errors.New("amount exceeds your available borrow limit")
	ErrUnknownAsset       = errors.New("asset is not listed in the pool")
	ErrWrongAssetType     = errors.New("operation is not supported for this asset")
	ErrSelfLiquidation    = errors.New("cannot liquidate your own position")
	ErrPositionHealthy    = errors.New("position is not eligible for liquidation")
)

// ErrDataUnavailable 链上数据读取失败，可通过 Refetch 重试
var ErrDataUnavailable = errors.New("data unavailable, retry")

// ValidationError 客户端校验失败
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation 判断是否为客户端校验错误
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
}
