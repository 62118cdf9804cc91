package handler

import (
	"errors"

	"zeur-core/internal/chain"
	"zeur-core/internal/lending"
	"zeur-core/internal/txflow"
	"zeur-core/pkg/errno"
)

// toErrno 把领域错误映射为对外错误码，message 保留原始提示
func toErrno(err error) error {
	switch {
	case errors.Is(err, lending.ErrUnknownAsset):
		return errno.ErrUnknownAsset.WithMessage(err.Error())
	case lending.IsValidation(err):
		return errno.ErrValidation.WithMessage(err.Error())
	case errors.Is(err, lending.ErrDataUnavailable), errors.Is(err, chain.ErrNetwork):
		return errno.ErrDataUnavailable
	case errors.Is(err, chain.ErrNoSigner):
		return errno.ErrNoWallet
	case errors.Is(err, txflow.ErrBusy):
		return errno.ErrTxBusy
	case errors.Is(err, txflow.ErrInvalidRequest):
		return errno.ErrBind.WithMessage(err.Error())
	}
	return err
}
