package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/chebyrash/promise"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"zeur-core/internal/app"
	"zeur-core/internal/lending"
	"zeur-core/internal/txflow"
	"zeur-core/internal/view"
)

type amountFunc func(ctx context.Context, core *app.Core, asset common.Address, amount string) (*promise.Promise[txflow.State], error)

// amountCommand supply / withdraw / borrow / repay 共用
func amountCommand(op, short string, start amountFunc) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <asset> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, err := loadCore(ctx, true)
			if err != nil {
				return err
			}
			defer core.Close()

			asset, err := resolveAsset(ctx, core, args[0])
			if err != nil {
				return err
			}
			return follow(ctx, core, op, func() (*promise.Promise[txflow.State], error) {
				return start(ctx, core, asset, args[1])
			})
		},
	}
}

var liquidateCmd = &cobra.Command{
	Use:   "liquidate <borrower> <collateral> <debt> <amount>",
	Short: "清算健康因子低于 1 的仓位，由当前钱包偿还 debt 并获得 collateral",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if !common.IsHexAddress(args[0]) {
			return errInvalidAddress(args[0])
		}
		borrower := common.HexToAddress(args[0])

		core, err := loadCore(ctx, true)
		if err != nil {
			return err
		}
		defer core.Close()

		collateral, err := resolveAsset(ctx, core, args[1])
		if err != nil {
			return err
		}
		debt, err := resolveAsset(ctx, core, args[2])
		if err != nil {
			return err
		}
		return follow(ctx, core, lending.OpLiquidate, func() (*promise.Promise[txflow.State], error) {
			return core.Borrow.Liquidate(ctx, borrower, collateral, debt, args[3])
		})
	},
}

// follow 订阅流程状态并逐步打印，等待终态后输出交易卡片
func follow(ctx context.Context, core *app.Core, op string, start func() (*promise.Promise[txflow.State], error)) error {
	var flow *txflow.Orchestrator
	for _, f := range core.Flows() {
		if f.Name() == op {
			flow = f
		}
	}
	if flow == nil {
		return fmt.Errorf("unknown flow %q", op)
	}

	updates, cancel := flow.Subscribe(16)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printed := ""
		for s := range updates {
			if s.RunID == "" {
				continue
			}
			if text := view.StatusText(s); text != printed {
				fmt.Println("...", text)
				printed = text
			}
		}
	}()

	p, err := start()
	if err != nil {
		cancel()
		<-done
		return err
	}
	final, err := p.Await(ctx)
	cancel()
	<-done
	if err != nil {
		return err
	}

	if err := render(view.TransactionCard(op, *final)); err != nil {
		return err
	}
	if final.Step == txflow.StepError {
		return errors.New(final.Error)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(
		amountCommand(lending.OpSupply, "存入资产 (抵押品或出借 EUR 稳定币)",
			func(ctx context.Context, core *app.Core, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
				return core.Supply.Supply(ctx, asset, amount)
			}),
		amountCommand(lending.OpWithdraw, "取回已存入的资产",
			func(ctx context.Context, core *app.Core, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
				return core.Supply.Withdraw(ctx, asset, amount)
			}),
		amountCommand(lending.OpBorrow, "借出 EUR 稳定币",
			func(ctx context.Context, core *app.Core, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
				return core.Borrow.Borrow(ctx, asset, amount)
			}),
		amountCommand(lending.OpRepay, "偿还借款",
			func(ctx context.Context, core *app.Core, asset common.Address, amount string) (*promise.Promise[txflow.State], error) {
				return core.Borrow.Repay(ctx, asset, amount)
			}),
		liquidateCmd,
	)
}
