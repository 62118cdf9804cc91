package lending

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount 把用户输入的十进制金额转换为链上整数 (按资产自身的 decimals，不假设 18)
func ParseAmount(input string, decimals uint8) (*big.Int, decimal.Decimal, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, decimal.Zero, invalid("amount", ErrEmptyAmount)
	}
	// decimal 接受科学计数法，用户输入不允许
	if strings.ContainsAny(s, "eE") {
		return nil, decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, decimal.Zero, invalid("amount", ErrInvalidAmount)
	}
	if !d.IsPositive() {
		return nil, decimal.Zero, invalid("amount", ErrNonPositiveAmount)
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, decimal.Zero, invalid("amount", ErrTooManyDecimals)
	}
	return shifted.BigInt(), d, nil
}

// FormatAmount 链上整数转为不带多余 0 的十进制字符串
func FormatAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
