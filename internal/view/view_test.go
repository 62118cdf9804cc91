package view

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zeur-core/internal/balance"
	"zeur-core/internal/lending"
	"zeur-core/internal/txflow"
)

func TestRenderDispatch(t *testing.T) {
	hash := common.HexToHash("0xabc")
	cards := []struct {
		card  Card
		kind  Kind
		title string
		label string
		value string
	}{
		{MarketCard(lending.AssetView{Symbol: "EURC", Price: "1.08", BorrowRate: "0.00%"}), KindMarket, "EURC", "Borrow APY", "0.00%"},
		{MarketCard(lending.AssetView{Symbol: "EURS", IsPaused: true}), KindMarket, "EURS (paused)", "Price", "$"},
		{CollateralCard(lending.CollateralView{Symbol: "WETH", LTV: "75.00%", IsFrozen: true}), KindCollateral, "WETH (frozen)", "Max LTV", "75.00%"},
		{PositionCard(lending.PositionView{HealthFactor: "∞"}), KindPosition, common.Address{}.Hex(), "Health factor", "∞"},
		{BalanceCard("USDC", balance.Balance{Raw: big.NewInt(1_500_000), Formatted: "1.50", Decimals: 6}), KindBalance, "USDC", "Exact", "1.5"},
		{TransactionCard("supply", txflow.State{Step: txflow.StepConfirming, TxHash: &hash}), KindTransaction, "supply", "Transaction", hash.Hex()},
	}
	for _, c := range cards {
		t.Run(c.title, func(t *testing.T) {
			p, err := Render(c.card)
			require.NoError(t, err)
			assert.Equal(t, c.kind, p.Kind)
			assert.Equal(t, c.title, p.Title)
			assert.Contains(t, p.Rows, Row{c.label, c.value})
		})
	}
}

func TestRenderRejectsMalformedCards(t *testing.T) {
	_, err := Render(Card{Kind: "chart"})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Render(Card{Kind: KindPosition})
	assert.ErrorIs(t, err, ErrEmptyCard)

	_, err = RenderAll([]Card{MarketCard(lending.AssetView{}), {Kind: KindBalance}})
	assert.ErrorIs(t, err, ErrEmptyCard)
}

func TestPositionRows(t *testing.T) {
	p, err := Render(PositionCard(lending.PositionView{
		HealthFactor: "1.52",
		Collaterals:  []lending.PositionEntry{{Symbol: "WETH", Formatted: "1.00", Value: "2000.00"}},
		Borrows:      []lending.PositionEntry{{Symbol: "EURC", Formatted: "500.00", Value: "540.00"}},
	}))
	require.NoError(t, err)
	assert.Contains(t, p.Rows, Row{"Collateral WETH", "1.00 ($2000.00)"})
	assert.Contains(t, p.Rows, Row{"Borrowed EURC", "500.00 ($540.00)"})
}

func TestStatusText(t *testing.T) {
	hash := common.HexToHash("0x01")
	cases := []struct {
		state txflow.State
		want  string
	}{
		{txflow.State{Step: txflow.StepIdle}, "Ready"},
		{txflow.State{Step: txflow.StepApproving, AwaitingSignature: true, Metadata: txflow.Metadata{Asset: "USDC"}}, "Approve USDC in your wallet"},
		{txflow.State{Step: txflow.StepApproving, ApprovalHash: &hash}, "Waiting for approval confirmation..."},
		{txflow.State{Step: txflow.StepExecuting, AwaitingSignature: true}, "Confirm the transaction in your wallet"},
		{txflow.State{Step: txflow.StepConfirming}, "Waiting for confirmation..."},
		{txflow.State{Step: txflow.StepError, Error: "execution reverted"}, "Transaction failed"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, StatusText(c.state), c.state.Step.String())
	}
}

func TestWrite(t *testing.T) {
	panels, err := RenderAll([]Card{
		BalanceCard("EURC", balance.Balance{Raw: big.NewInt(0), Formatted: "0.00", Decimals: 6}),
		TransactionCard("borrow", txflow.State{Step: txflow.StepError, Error: "InsufficientCollateral"}),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	Write(&buf, panels...)
	out := buf.String()
	assert.Contains(t, out, "== EURC ==")
	assert.Contains(t, out, "== borrow ==")
	assert.Contains(t, out, "InsufficientCollateral")
}
