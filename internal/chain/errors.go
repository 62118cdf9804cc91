package chain

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNetwork             = errors.New("chain: read failed")
	ErrNoSigner            = errors.New("chain: no signer configured")
	ErrTxReverted          = errors.New("chain: transaction reverted")
	ErrConfirmationTimeout = errors.New("chain: confirmation timeout")
	ErrUnknownMethod       = errors.New("chain: unknown method")
)

// RevertError 交易上链后 revert，Reason 尽量还原合约的具名错误
type RevertError struct {
	Hash   common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.Hash.Hex())
	}
	return e.Reason
}

func (e *RevertError) Unwrap() error {
	return ErrTxReverted
}
