// Package view 把各类展示模型收敛为一个 tagged union，由 Render 统一分发
package view

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"zeur-core/internal/balance"
	"zeur-core/internal/lending"
	"zeur-core/internal/txflow"
)

type Kind string

const (
	KindMarket      Kind = "market"
	KindCollateral  Kind = "collateral"
	KindPosition    Kind = "position"
	KindBalance     Kind = "balance"
	KindTransaction Kind = "transaction"
)

var (
	ErrUnknownKind = errors.New("view: unknown card kind")
	ErrEmptyCard   = errors.New("view: card payload missing")
)

type BalanceView struct {
	Symbol string          `json:"symbol"`
	Value  balance.Balance `json:"value"`
}

type TransactionView struct {
	Flow  string       `json:"flow"`
	State txflow.State `json:"state"`
}

// Card Kind 决定哪一个载荷字段有效，其余为 nil
type Card struct {
	Kind        Kind                    `json:"kind"`
	Market      *lending.AssetView      `json:"market,omitempty"`
	Collateral  *lending.CollateralView `json:"collateral,omitempty"`
	Position    *lending.PositionView   `json:"position,omitempty"`
	Balance     *BalanceView            `json:"balance,omitempty"`
	Transaction *TransactionView        `json:"transaction,omitempty"`
}

func MarketCard(v lending.AssetView) Card { return Card{Kind: KindMarket, Market: &v} }

func CollateralCard(v lending.CollateralView) Card {
	return Card{Kind: KindCollateral, Collateral: &v}
}

func PositionCard(v lending.PositionView) Card { return Card{Kind: KindPosition, Position: &v} }

func BalanceCard(symbol string, b balance.Balance) Card {
	return Card{Kind: KindBalance, Balance: &BalanceView{Symbol: symbol, Value: b}}
}

func TransactionCard(flow string, s txflow.State) Card {
	return Card{Kind: KindTransaction, Transaction: &TransactionView{Flow: flow, State: s}}
}

// Row 一行 label / value
type Row struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Panel 与输出介质无关的渲染结果，HTTP 直接返回 JSON，CLI 画成表格
type Panel struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Rows  []Row  `json:"rows"`
}

// Render 唯一的分发入口
func Render(c Card) (Panel, error) {
	switch c.Kind {
	case KindMarket:
		if c.Market == nil {
			return Panel{}, fmt.Errorf("%w: %s", ErrEmptyCard, c.Kind)
		}
		return renderMarket(*c.Market), nil
	case KindCollateral:
		if c.Collateral == nil {
			return Panel{}, fmt.Errorf("%w: %s", ErrEmptyCard, c.Kind)
		}
		return renderCollateral(*c.Collateral), nil
	case KindPosition:
		if c.Position == nil {
			return Panel{}, fmt.Errorf("%w: %s", ErrEmptyCard, c.Kind)
		}
		return renderPosition(*c.Position), nil
	case KindBalance:
		if c.Balance == nil {
			return Panel{}, fmt.Errorf("%w: %s", ErrEmptyCard, c.Kind)
		}
		return renderBalance(*c.Balance), nil
	case KindTransaction:
		if c.Transaction == nil {
			return Panel{}, fmt.Errorf("%w: %s", ErrEmptyCard, c.Kind)
		}
		return renderTransaction(*c.Transaction), nil
	}
	return Panel{}, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
}

// RenderAll 任意一张卡片失败即返回
func RenderAll(cards []Card) ([]Panel, error) {
	panels := make([]Panel, 0, len(cards))
	for _, c := range cards {
		p, err := Render(c)
		if err != nil {
			return nil, err
		}
		panels = append(panels, p)
	}
	return panels, nil
}

func renderMarket(v lending.AssetView) Panel {
	rows := []Row{
		{"Price", "$" + v.Price},
		{"Total supplied", v.TotalSupply},
		{"Total borrowed", v.TotalBorrow},
		{"Utilization", v.Utilization},
		{"Supply APY", v.SupplyRate},
		{"Borrow APY", v.BorrowRate},
		{"Supply cap", v.SupplyCap},
		{"Borrow cap", v.BorrowCap},
	}
	return Panel{Kind: KindMarket, Title: title(v.Symbol, v.IsFrozen, v.IsPaused), Rows: rows}
}

func renderCollateral(v lending.CollateralView) Panel {
	rows := []Row{
		{"Price", "$" + v.Price},
		{"Max LTV", v.LTV},
		{"Liquidation threshold", v.LiquidationThreshold},
		{"Liquidation bonus", v.LiquidationBonus},
		{"Total supplied", v.TotalSupplied},
		{"Supply cap", v.SupplyCap},
	}
	if len(v.Protocols) > 0 {
		rows = append(rows, Row{"Protocols", strings.Join(v.Protocols, ", ")})
	}
	for _, s := range v.Staked {
		rows = append(rows, Row{"Staked " + s.Symbol, s.Formatted})
	}
	return Panel{Kind: KindCollateral, Title: title(v.Symbol, v.IsFrozen, v.IsPaused), Rows: rows}
}

func renderPosition(v lending.PositionView) Panel {
	rows := []Row{
		{"Collateral value", "$" + v.TotalCollateralValue},
		{"Debt value", "$" + v.TotalDebtValue},
		{"Available to borrow", "$" + v.AvailableBorrows},
		{"Health factor", v.HealthFactor},
	}
	add := func(prefix string, entries []lending.PositionEntry) {
		for _, e := range entries {
			rows = append(rows, Row{prefix + " " + e.Symbol, e.Formatted + " ($" + e.Value + ")"})
		}
	}
	add("Collateral", v.Collaterals)
	add("Supplied", v.Supplies)
	add("Borrowed", v.Borrows)
	return Panel{Kind: KindPosition, Title: v.Account.Hex(), Rows: rows}
}

func renderBalance(v BalanceView) Panel {
	return Panel{Kind: KindBalance, Title: v.Symbol, Rows: []Row{
		{"Wallet balance", v.Value.Formatted},
		{"Exact", balance.ToDecimal(v.Value.Raw, v.Value.Decimals).String()},
	}}
}

func renderTransaction(v TransactionView) Panel {
	s := v.State
	rows := []Row{
		{"Step", s.Step.String()},
		{"Status", StatusText(s)},
	}
	if s.Metadata.Asset != "" {
		rows = append(rows, Row{"Amount", s.Metadata.Amount + " " + s.Metadata.Asset})
	}
	if s.ApprovalHash != nil {
		rows = append(rows, Row{"Approval tx", s.ApprovalHash.Hex()})
	}
	if s.TxHash != nil {
		rows = append(rows, Row{"Transaction", s.TxHash.Hex()})
	}
	if s.Error != "" {
		rows = append(rows, Row{"Error", s.Error})
	}
	return Panel{Kind: KindTransaction, Title: v.Flow, Rows: rows}
}

// StatusText 交易进度的一句话描述
func StatusText(s txflow.State) string {
	switch s.Step {
	case txflow.StepIdle:
		return "Ready"
	case txflow.StepCheckingApproval:
		return "Checking allowance..."
	case txflow.StepApproving:
		if s.AwaitingSignature {
			return "Approve " + s.Metadata.Asset + " in your wallet"
		}
		return "Waiting for approval confirmation..."
	case txflow.StepExecuting:
		if s.AwaitingSignature {
			return "Confirm the transaction in your wallet"
		}
		return "Submitting transaction..."
	case txflow.StepConfirming:
		return "Waiting for confirmation..."
	case txflow.StepCompleted:
		return "Transaction confirmed"
	case txflow.StepError:
		return "Transaction failed"
	}
	return s.Step.String()
}

func title(symbol string, frozen, paused bool) string {
	switch {
	case paused:
		return symbol + " (paused)"
	case frozen:
		return symbol + " (frozen)"
	}
	return symbol
}

// Write 以表格形式输出，CLI 使用
func Write(w io.Writer, panels ...Panel) {
	for i, p := range panels {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s ==\n", p.Title)
		table := tablewriter.NewWriter(w)
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		table.SetColumnSeparator("")
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		for _, r := range p.Rows {
			table.Append([]string{r.Label, r.Value})
		}
		table.Render()
	}
}
