package chain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// DecodeRevert 从 RPC 错误中取出 revert 原因
// 优先解析 Error(string) / Panic(uint256)，其次匹配 Pool 的具名错误，最后退回节点返回的文本
func DecodeRevert(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(raw); decErr == nil {
				if reason, ok := DecodeRevertData(data); ok {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		return strings.TrimSpace(msg[idx:]), true
	}
	return "", false
}

// DecodeRevertData 解析原始 revert 数据
func DecodeRevertData(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason, true
	}
	for _, e := range PoolABI.Errors {
		if !bytes.Equal(e.ID.Bytes()[:4], data[:4]) {
			continue
		}
		if len(e.Inputs) == 0 {
			return e.Name, true
		}
		values, err := e.Inputs.Unpack(data[4:])
		if err != nil {
			return e.Name, true
		}
		args := make([]string, 0, len(values))
		for _, v := range values {
			if addr, ok := v.(common.Address); ok {
				args = append(args, addr.Hex())
				continue
			}
			args = append(args, fmt.Sprint(v))
		}
		return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", ")), true
	}
	return "", false
}
