package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"zeur-core/internal/app"
	"zeur-core/internal/chain"
	"zeur-core/internal/signer"
)

// loadCore withSigner 为 false 时只读
func loadCore(ctx context.Context, withSigner bool) (*app.Core, error) {
	var s chain.Signer
	if withSigner {
		ks, err := loadSigner()
		if err != nil {
			return nil, err
		}
		s = signer.NewConfirmingSigner(ks, terminalPrompt(bufio.NewReader(os.Stdin), os.Stdout))
	}
	return app.Build(ctx, cfg, s)
}

// loadSigner keystore 未提供密码时在终端输入
func loadSigner() (*signer.KeySigner, error) {
	w := cfg.Wallet
	if w.KeystorePath != "" && w.Password == "" {
		password, err := readPassword(fmt.Sprintf("请输入 %s 的密码: ", w.KeystorePath))
		if err != nil {
			return nil, err
		}
		w.Password = password
	}
	ks, err := signer.FromConfig(w)
	if errors.Is(err, signer.ErrNoWallet) {
		return nil, fmt.Errorf("%w: set wallet.keystore_path or wallet.mnemonic", err)
	}
	return ks, err
}

func errInvalidAddress(s string) error {
	return fmt.Errorf("invalid address %q", s)
}

// resolveAsset 接受地址或 symbol (不区分大小写)
func resolveAsset(ctx context.Context, core *app.Core, arg string) (common.Address, error) {
	if common.IsHexAddress(arg) {
		return common.HexToAddress(arg), nil
	}
	assets, err := core.Market.Assets(ctx)
	if err != nil {
		return common.Address{}, err
	}
	for _, a := range assets {
		if strings.EqualFold(a.Symbol, arg) {
			return a.Address, nil
		}
	}
	collaterals, err := core.Market.Collaterals(ctx)
	if err != nil {
		return common.Address{}, err
	}
	for _, a := range collaterals {
		if strings.EqualFold(a.Symbol, arg) {
			return a.Address, nil
		}
	}
	return common.Address{}, fmt.Errorf("unknown asset %q", arg)
}
