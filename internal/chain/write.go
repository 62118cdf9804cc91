package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var errNotConfirmed = errors.New("chain: not confirmed yet")

func (g *Gateway) abiFor(to common.Address) *abi.ABI {
	if to == g.opts.Pool {
		return &PoolABI
	}
	return &ERC20ABI
}

// CallMsg 把 WriteCall 编码为 eth_call / eth_estimateGas 所需的消息
func (g *Gateway) CallMsg(from common.Address, call WriteCall) (ethereum.CallMsg, error) {
	contract := g.abiFor(call.To)
	if _, ok := contract.Methods[call.Method]; !ok {
		return ethereum.CallMsg{}, fmt.Errorf("%w: %s", ErrUnknownMethod, call.Method)
	}
	data, err := contract.Pack(call.Method, call.Args...)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("pack %s: %w", call.Method, err)
	}
	to := call.To
	return ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: call.Value,
		Data:  data,
	}, nil
}

// EstimateGas 模拟执行；revert 时返回的 error 可用 DecodeRevert 解析
func (g *Gateway) EstimateGas(ctx context.Context, from common.Address, call WriteCall) (uint64, error) {
	msg, err := g.CallMsg(from, call)
	if err != nil {
		return 0, err
	}
	return g.backend.EstimateGas(ctx, msg)
}

// SubmitWrite 签名并广播，不等待确认
// 签名阶段即钱包确认弹窗，可能因用户拒绝而失败
func (g *Gateway) SubmitWrite(ctx context.Context, call WriteCall, gasLimit uint64) (PendingTx, error) {
	if g.signer == nil {
		return PendingTx{}, ErrNoSigner
	}
	from := g.signer.Address()

	msg, err := g.CallMsg(from, call)
	if err != nil {
		return PendingTx{}, err
	}

	g.sendMu.Lock()
	defer g.sendMu.Unlock()

	// 1. Nonce & GasPrice
	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return PendingTx{}, fmt.Errorf("%w: nonce: %v", ErrNetwork, err)
	}
	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return PendingTx{}, fmt.Errorf("%w: gas price: %v", ErrNetwork, err)
	}
	if gasLimit == 0 {
		if gasLimit, err = g.backend.EstimateGas(ctx, msg); err != nil {
			return PendingTx{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	// 2. 构造并签名 (EIP-155)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       msg.To,
		Value:    value,
		Data:     msg.Data,
	})
	signed, err := g.signer.SignTx(ctx, tx, g.opts.ChainID)
	if err != nil {
		return PendingTx{}, fmt.Errorf("sign %s: %w", call.Method, err)
	}

	// 3. 广播
	if err := g.backend.SendTransaction(ctx, signed); err != nil {
		if reason, ok := DecodeRevert(err); ok {
			return PendingTx{}, fmt.Errorf("send %s: %s", call.Method, reason)
		}
		return PendingTx{}, fmt.Errorf("send %s: %w", call.Method, err)
	}

	g.logger.Info("transaction broadcast",
		zap.String("method", call.Method),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit))

	return PendingTx{
		Hash:        signed.Hash(),
		Nonce:       nonce,
		Msg:         msg,
		SubmittedAt: time.Now(),
	}, nil
}

// AwaitConfirmation 轮询 receipt 直到达到确认深度
// 超时由调用方通过 ctx 控制；deadline 到达返回 ErrConfirmationTimeout
func (g *Gateway) AwaitConfirmation(ctx context.Context, p PendingTx) (*types.Receipt, error) {
	var receipt *types.Receipt

	op := func() error {
		r, err := g.backend.TransactionReceipt(ctx, p.Hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				g.logger.Debug("receipt poll failed", zap.String("hash", p.Hash.Hex()), zap.Error(err))
			}
			return errNotConfirmed
		}
		if r.Status != types.ReceiptStatusSuccessful {
			receipt = r
			return backoff.Permanent(ErrTxReverted)
		}
		if g.opts.Confirmations > 1 && r.BlockNumber != nil {
			head, err := g.backend.BlockNumber(ctx)
			if err != nil {
				return errNotConfirmed
			}
			if head+1 < r.BlockNumber.Uint64()+g.opts.Confirmations {
				return errNotConfirmed
			}
		}
		receipt = r
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(g.opts.PollInterval), ctx))
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, ErrTxReverted):
		return receipt, &RevertError{Hash: p.Hash, Reason: g.replayRevert(ctx, p, receipt)}
	case errors.Is(err, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w: %s", ErrConfirmationTimeout, p.Hash.Hex())
	default:
		return nil, err
	}
}

// Confirmation AwaitConfirmation 的 future 形式，ctx 取消时 promise 以 ctx 错误 reject
func (g *Gateway) Confirmation(ctx context.Context, p PendingTx) *promise.Promise[types.Receipt] {
	return promise.New(func(resolve func(types.Receipt), reject func(error)) {
		receipt, err := g.AwaitConfirmation(ctx, p)
		if err != nil {
			reject(err)
			return
		}
		resolve(*receipt)
	})
}

// replayRevert 在 revert 所在区块重放调用以取回 revert 原因，取不到时返回空字符串
func (g *Gateway) replayRevert(ctx context.Context, p PendingTx, receipt *types.Receipt) string {
	if receipt == nil || receipt.BlockNumber == nil || p.Msg.To == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.ReadTimeout)
	defer cancel()

	_, err := g.backend.CallContract(ctx, p.Msg, receipt.BlockNumber)
	if err == nil {
		return ""
	}
	reason, _ := DecodeRevert(err)
	return reason
}
