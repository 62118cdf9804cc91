package lending

import (
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"zeur-core/internal/balance"
	"zeur-core/internal/chain"
	"zeur-core/pkg/config"
)

// 合约中 price 与各类 value 均为 1e8 精度，healthFactor 与 utilization 为 1e18，利率与 LTV 为 bps
const (
	priceDecimals = 8
	wadDecimals   = 18
)

type AssetKind string

const (
	KindCollateral AssetKind = "collateral"
	KindDebt       AssetKind = "debt"
)

// Registry 资产静态元数据，链上数据为准
type Registry map[common.Address]config.AssetMeta

func NewRegistry(metas []config.AssetMeta) Registry {
	r := make(Registry, len(metas))
	for _, m := range metas {
		r[common.HexToAddress(m.Address)] = m
	}
	return r
}

func (r Registry) meta(addr common.Address, fallbackSymbol string) config.AssetMeta {
	m, ok := r[addr]
	if !ok {
		m = config.AssetMeta{Address: addr.Hex()}
	}
	if m.Symbol == "" {
		m.Symbol = fallbackSymbol
	}
	if m.Symbol == "" {
		m.Symbol = addr.Hex()[:8]
	}
	if m.Name == "" {
		m.Name = m.Symbol
	}
	return m
}

type StakedView struct {
	Token     common.Address `json:"token"`
	Symbol    string         `json:"symbol"`
	Amount    string         `json:"amount"`
	Formatted string         `json:"formatted"`
}

// AssetView 债务资产 (EUR 稳定币) 的市场数据
type AssetView struct {
	Address     common.Address `json:"address"`
	Symbol      string         `json:"symbol"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon,omitempty"`
	Protocols   []string       `json:"protocols,omitempty"`
	Decimals    uint8          `json:"decimals"`
	Price       string         `json:"price"`
	TotalSupply string         `json:"totalSupply"`
	TotalBorrow string         `json:"totalBorrow"`
	SupplyCap   string         `json:"supplyCap"`
	BorrowCap   string         `json:"borrowCap"`
	Utilization string         `json:"utilization"`
	SupplyRate  string         `json:"supplyRate"`
	BorrowRate  string         `json:"borrowRate"`
	IsFrozen    bool           `json:"isFrozen"`
	IsPaused    bool           `json:"isPaused"`
}

// CollateralView 抵押资产的配置与状态
type CollateralView struct {
	Address              common.Address `json:"address"`
	Symbol               string         `json:"symbol"`
	Name                 string         `json:"name"`
	Icon                 string         `json:"icon,omitempty"`
	Protocols            []string       `json:"protocols,omitempty"`
	Native               bool           `json:"native"`
	Decimals             uint8          `json:"decimals"`
	Price                string         `json:"price"`
	LTV                  string         `json:"ltv"`
	LiquidationThreshold string         `json:"liquidationThreshold"`
	LiquidationBonus     string         `json:"liquidationBonus"`
	TotalSupplied        string         `json:"totalSupplied"`
	SupplyCap            string         `json:"supplyCap"`
	IsFrozen             bool           `json:"isFrozen"`
	IsPaused             bool           `json:"isPaused"`
	Staked               []StakedView   `json:"staked,omitempty"`
}

// PositionEntry 用户在某个资产上的一条仓位
type PositionEntry struct {
	Asset     common.Address `json:"asset"`
	Symbol    string         `json:"symbol"`
	Icon      string         `json:"icon,omitempty"`
	Decimals  uint8          `json:"decimals"`
	Amount    string         `json:"amount"`
	Formatted string         `json:"formatted"`
	Value     string         `json:"value"`
}

type (
	// UserCollateralView 已存入的抵押品
	UserCollateralView = PositionEntry
	// UserDebtView 存入债务资产 (出借) 的余额
	UserDebtView = PositionEntry
	// UserBorrowView 借款余额
	UserBorrowView = PositionEntry
)

type PositionView struct {
	Account              common.Address       `json:"account"`
	TotalCollateralValue string               `json:"totalCollateralValue"`
	TotalDebtValue       string               `json:"totalDebtValue"`
	AvailableBorrows     string               `json:"availableBorrows"`
	HealthFactor         string               `json:"healthFactor"`
	Collaterals          []UserCollateralView `json:"collaterals"`
	Supplies             []UserDebtView       `json:"supplies"`
	Borrows              []UserBorrowView     `json:"borrows"`
}

func percentBps(v *big.Int) string {
	if v == nil {
		return "0.00%"
	}
	return decimal.NewFromBigInt(v, -2).StringFixed(2) + "%"
}

func percentWad(v *big.Int) string {
	if v == nil {
		return "0.00%"
	}
	return decimal.NewFromBigInt(v, 2-wadDecimals).StringFixed(2) + "%"
}

func price(v *big.Int) string {
	return balance.ToDecimal(v, priceDecimals).StringFixed(2)
}

func capacity(v *big.Int, decimals uint8) string {
	if v == nil || v.Sign() == 0 {
		return "Unlimited"
	}
	return balance.Format(v, decimals)
}

// value 数量 × 价格，结果同样为 1e8 精度
func value(amount *big.Int, decimals uint8, p *big.Int) string {
	d := balance.ToDecimal(amount, decimals).Mul(balance.ToDecimal(p, priceDecimals))
	return d.StringFixed(2)
}

func healthFactor(hf, debt *big.Int) string {
	if debt == nil || debt.Sign() == 0 {
		return "∞"
	}
	return balance.ToDecimal(hf, wadDecimals).Truncate(2).StringFixed(2)
}

// projectAssets 纯函数：链上资产数据 + 元数据 -> 展示模型
func projectAssets(raw []chain.AssetData, symbols map[common.Address]string, reg Registry) ([]AssetView, []CollateralView) {
	debts := make([]AssetView, 0)
	collaterals := make([]CollateralView, 0)

	for _, a := range raw {
		m := reg.meta(a.Asset, symbols[a.Asset])
		if a.AssetType == chain.AssetTypeDebt {
			debts = append(debts, AssetView{
				Address:     a.Asset,
				Symbol:      m.Symbol,
				Name:        m.Name,
				Icon:        m.Icon,
				Protocols:   m.Protocols,
				Decimals:    a.Decimals,
				Price:       price(a.Price),
				TotalSupply: balance.Format(a.TotalSupply, a.Decimals),
				TotalBorrow: balance.Format(a.TotalBorrow, a.Decimals),
				SupplyCap:   capacity(a.SupplyCap, a.Decimals),
				BorrowCap:   capacity(a.BorrowCap, a.Decimals),
				Utilization: percentWad(a.UtilizationRate),
				SupplyRate:  percentBps(a.SupplyRate),
				BorrowRate:  percentBps(a.BorrowRate),
				IsFrozen:    a.IsFrozen,
				IsPaused:    a.IsPaused,
			})
			continue
		}

		staked := make([]StakedView, 0, len(a.StakedTokens))
		for i, token := range a.StakedTokens {
			if i >= len(a.StakedAmounts) {
				break
			}
			staked = append(staked, StakedView{
				Token:     token,
				Symbol:    reg.meta(token, symbols[token]).Symbol,
				Amount:    FormatAmount(a.StakedAmounts[i], a.Decimals),
				Formatted: balance.Format(a.StakedAmounts[i], a.Decimals),
			})
		}
		collaterals = append(collaterals, CollateralView{
			Address:              a.Asset,
			Symbol:               m.Symbol,
			Name:                 m.Name,
			Icon:                 m.Icon,
			Protocols:            m.Protocols,
			Native:               m.Native,
			Decimals:             a.Decimals,
			Price:                price(a.Price),
			LTV:                  percentBps(a.LTV),
			LiquidationThreshold: percentBps(a.LiquidationThreshold),
			LiquidationBonus:     percentBps(a.LiquidationBonus),
			TotalSupplied:        balance.Format(a.TotalSupply, a.Decimals),
			SupplyCap:            capacity(a.SupplyCap, a.Decimals),
			IsFrozen:             a.IsFrozen,
			IsPaused:             a.IsPaused,
			Staked:               staked,
		})
	}

	sort.SliceStable(debts, func(i, j int) bool { return strings.ToLower(debts[i].Symbol) < strings.ToLower(debts[j].Symbol) })
	sort.SliceStable(collaterals, func(i, j int) bool {
		return strings.ToLower(collaterals[i].Symbol) < strings.ToLower(collaterals[j].Symbol)
	})
	return debts, collaterals
}

// projectPosition 纯函数：用户聚合数据 + 资产数据 -> 仓位展示；未知资产按 18 位精度兜底并跳过估值
func projectPosition(account common.Address, u chain.UserData, assets map[common.Address]chain.AssetData, symbols map[common.Address]string, reg Registry) PositionView {
	entry := func(addr common.Address, amount *big.Int) PositionEntry {
		a, known := assets[addr]
		decimals := a.Decimals
		if !known {
			decimals = wadDecimals
		}
		m := reg.meta(addr, symbols[addr])
		e := PositionEntry{
			Asset:     addr,
			Symbol:    m.Symbol,
			Icon:      m.Icon,
			Decimals:  decimals,
			Amount:    FormatAmount(amount, decimals),
			Formatted: balance.Format(amount, decimals),
			Value:     "0.00",
		}
		if known {
			e.Value = value(amount, decimals, a.Price)
		}
		return e
	}

	view := PositionView{
		Account:              account,
		TotalCollateralValue: price(u.TotalCollateralValue),
		TotalDebtValue:       price(u.TotalDebtValue),
		AvailableBorrows:     price(u.AvailableBorrowsValue),
		HealthFactor:         healthFactor(u.HealthFactor, u.TotalDebtValue),
		Collaterals:          make([]UserCollateralView, 0),
		Supplies:             make([]UserDebtView, 0),
		Borrows:              make([]UserBorrowView, 0),
	}

	for i, addr := range u.CollateralAssets {
		if i < len(u.CollateralAmounts) && u.CollateralAmounts[i].Sign() > 0 {
			view.Collaterals = append(view.Collaterals, entry(addr, u.CollateralAmounts[i]))
		}
	}
	for i, addr := range u.DebtAssets {
		if i < len(u.SupplyAmounts) && u.SupplyAmounts[i].Sign() > 0 {
			view.Supplies = append(view.Supplies, entry(addr, u.SupplyAmounts[i]))
		}
		if i < len(u.BorrowAmounts) && u.BorrowAmounts[i].Sign() > 0 {
			view.Borrows = append(view.Borrows, entry(addr, u.BorrowAmounts[i]))
		}
	}
	return view
}
