package balance

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var (
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
	one      = decimal.NewFromInt(1)
)

// ToDecimal 按资产精度把链上整数转换为十进制数
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Format 分档展示余额，一律截断不进位，展示值不会大于实际持有
//
//	>= 1e6      "1.23M"
//	>= 1e3      "12.34K"
//	>= 1        "12.34"
//	(0, 1)      "0.123456"
//	其余        "0.00"
func Format(raw *big.Int, decimals uint8) string {
	return FormatDecimal(ToDecimal(raw, decimals))
}

func FormatDecimal(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(million):
		return v.Div(million).Truncate(2).StringFixed(2) + "M"
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).Truncate(2).StringFixed(2) + "K"
	case v.GreaterThanOrEqual(one):
		return v.Truncate(2).StringFixed(2)
	case v.IsPositive():
		return v.Truncate(6).StringFixed(6)
	default:
		return "0.00"
	}
}
