package signer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"zeur-core/internal/chain"
)

// PromptFunc 签名前的确认回调 (CLI 交互 / 测试注入)，返回 false 表示用户拒绝
type PromptFunc func(ctx context.Context, from common.Address, tx *types.Transaction) (bool, error)

// ConfirmingSigner 在签名前等待确认，相当于钱包弹窗
type ConfirmingSigner struct {
	inner  chain.Signer
	prompt PromptFunc
}

func NewConfirmingSigner(inner chain.Signer, prompt PromptFunc) *ConfirmingSigner {
	return &ConfirmingSigner{inner: inner, prompt: prompt}
}

func (s *ConfirmingSigner) Address() common.Address {
	return s.inner.Address()
}

func (s *ConfirmingSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	type answer struct {
		ok  bool
		err error
	}
	// prompt 可能阻塞在终端输入上，ctx 超时需要能及时返回
	done := make(chan answer, 1)
	go func() {
		ok, err := s.prompt(ctx, s.inner.Address(), tx)
		done <- answer{ok, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case a := <-done:
		if a.err != nil {
			return nil, a.err
		}
		if !a.ok {
			return nil, ErrSignatureRejected
		}
	}
	return s.inner.SignTx(ctx, tx, chainID)
}
