package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"zeur-core/internal/balance"
	"zeur-core/internal/view"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "列出借贷市场与抵押资产",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		core, err := loadCore(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer core.Close()

		debts, err := core.Market.Assets(cmd.Context())
		if err != nil {
			return err
		}
		collaterals, err := core.Market.Collaterals(cmd.Context())
		if err != nil {
			return err
		}

		cards := make([]view.Card, 0, len(debts)+len(collaterals))
		for _, a := range debts {
			cards = append(cards, view.MarketCard(a))
		}
		for _, c := range collaterals {
			cards = append(cards, view.CollateralCard(c))
		}
		return render(cards...)
	},
}

var positionCmd = &cobra.Command{
	Use:   "position [account]",
	Short: "查看仓位，默认使用配置的钱包地址",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var account common.Address
		withSigner := len(args) == 0
		if !withSigner {
			if !common.IsHexAddress(args[0]) {
				return errInvalidAddress(args[0])
			}
			account = common.HexToAddress(args[0])
		}

		core, err := loadCore(cmd.Context(), withSigner)
		if err != nil {
			return err
		}
		defer core.Close()
		if withSigner {
			account = core.Gateway.Account()
		}

		pos, err := core.Market.Position(cmd.Context(), account)
		if err != nil {
			return err
		}
		return render(view.PositionCard(pos))
	},
}

var (
	balanceAccount string
	balanceWatch   bool
)

var balanceCmd = &cobra.Command{
	Use:   "balance <asset>",
	Short: "查询钱包余额，asset 可以是地址或 symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withSigner := balanceAccount == ""
		if !withSigner && !common.IsHexAddress(balanceAccount) {
			return errInvalidAddress(balanceAccount)
		}

		core, err := loadCore(cmd.Context(), withSigner)
		if err != nil {
			return err
		}
		defer core.Close()

		account := common.HexToAddress(balanceAccount)
		if withSigner {
			account = core.Gateway.Account()
		}
		asset, err := resolveAsset(cmd.Context(), core, args[0])
		if err != nil {
			return err
		}
		data, meta, err := core.Market.Asset(cmd.Context(), asset)
		if err != nil {
			return err
		}
		token := asset
		if meta.Native {
			token = balance.NativeToken
		}
		if balanceWatch {
			return watchBalance(cmd.Context(), core.Balances, account, token, meta.Symbol, data.Decimals)
		}
		b, err := core.Balances.GetBalance(cmd.Context(), account, token, data.Decimals)
		if err != nil {
			return err
		}
		return render(view.BalanceCard(meta.Symbol, b))
	},
}

// watchBalance 持续轮询，余额变化时打印，直到 Ctrl+C
func watchBalance(ctx context.Context, oracle *balance.Oracle, account, token common.Address, symbol string, decimals uint8) error {
	w := oracle.Watch(ctx, account, token, decimals)
	defer w.Close()

	select {
	case <-w.Loaded():
	case <-ctx.Done():
		return nil
	}
	if b, err := w.Latest(); err != nil && b.Raw == nil {
		return err
	}

	fmt.Printf("正在监听 %s 在 %s 的余额 (Ctrl+C 退出)\n", account.Hex(), symbol)
	for {
		select {
		case <-ctx.Done():
			return nil
		case b, ok := <-w.Changes():
			if !ok {
				return nil
			}
			fmt.Printf("[%s]\n", time.Now().Format("15:04:05"))
			if err := render(view.BalanceCard(symbol, b)); err != nil {
				return err
			}
		}
	}
}

func render(cards ...view.Card) error {
	panels, err := view.RenderAll(cards)
	if err != nil {
		return err
	}
	view.Write(os.Stdout, panels...)
	return nil
}

func init() {
	balanceCmd.Flags().StringVar(&balanceAccount, "account", "", "查询的地址，默认使用配置的钱包")
	balanceCmd.Flags().BoolVarP(&balanceWatch, "watch", "w", false, "按 balance.poll_interval 持续刷新，余额变化时输出")
	rootCmd.AddCommand(assetsCmd, positionCmd, balanceCmd)
}
