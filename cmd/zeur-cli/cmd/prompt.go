package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/term"

	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/internal/signer"
)

func readPassword(label string) (string, error) {
	fmt.Print(label)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return string(bytePassword), nil
}

// terminalPrompt 显示交易详情供用户确认 (Verify on Screen)
func terminalPrompt(in *bufio.Reader, out io.Writer) signer.PromptFunc {
	return func(ctx context.Context, from common.Address, tx *types.Transaction) (bool, error) {
		fmt.Fprintln(out, "\n================ 待签名交易 ================")
		fmt.Fprint(out, describeTx(from, tx))
		fmt.Fprintln(out, "============================================")
		fmt.Fprint(out, "确认签名? [y/N]: ")

		line, err := in.ReadString('\n')
		if err != nil && line == "" {
			return false, fmt.Errorf("读取确认失败: %w", err)
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

var contracts = map[string]abi.ABI{
	"Pool":  chain.PoolABI,
	"ERC20": chain.ERC20ABI,
}

// describeTx 按 Pool / ERC20 ABI 解码调用
func describeTx(from common.Address, tx *types.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From:       %s\n", from.Hex())
	if tx.To() != nil {
		fmt.Fprintf(&b, "To:         %s\n", tx.To().Hex())
	}
	if tx.Value() != nil && tx.Value().Sign() > 0 {
		fmt.Fprintf(&b, "Value:      %s ETH\n", balance.ToDecimal(tx.Value(), 18).String())
	}
	fmt.Fprintf(&b, "Nonce:      %d\n", tx.Nonce())
	fmt.Fprintf(&b, "Gas:        %d @ %s gwei\n", tx.Gas(), balance.ToDecimal(tx.GasPrice(), 9).String())

	data := tx.Data()
	if len(data) < 4 {
		return b.String()
	}
	for _, name := range []string{"Pool", "ERC20"} {
		contract := contracts[name]
		method, err := contract.MethodById(data[:4])
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "Call:       %s.%s\n", name, method.Name)
		args, err := method.Inputs.Unpack(data[4:])
		if err != nil {
			break
		}
		for i, arg := range args {
			fmt.Fprintf(&b, "  %-9s %v\n", method.Inputs[i].Name+":", formatArg(arg))
		}
		break
	}
	return b.String()
}

func formatArg(v interface{}) string {
	switch a := v.(type) {
	case common.Address:
		return a.Hex()
	case fmt.Stringer:
		return a.String()
	}
	return fmt.Sprint(v)
}
