package balance

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{"zero", big.NewInt(0), 6, "0.00"},
		{"nil", nil, 6, "0.00"},
		{"sub one", raw("123456789"), 9, "0.123456"},
		{"sub one truncated", raw("999999999"), 9, "0.999999"},
		{"smallest unit", big.NewInt(1), 6, "0.000001"},
		{"dust below display", big.NewInt(1), 18, "0.000000"},
		{"one", raw("1000000"), 6, "1.00"},
		{"units", raw("12345678"), 6, "12.34"},
		{"thousands", raw("1234560000"), 6, "1.23K"},
		{"just below million", raw("999999990000"), 6, "999.99K"},
		{"millions", raw("2500000000000"), 6, "2.50M"},
		{"18 decimals", raw("1500000000000000000"), 18, "1.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.raw, tt.decimals))
		})
	}
}

// 展示值解析回整数后，与原值的差不超过展示精度
func TestFormatRoundTrip(t *testing.T) {
	tests := []struct {
		raw      *big.Int
		decimals uint8
		unit     decimal.Decimal
	}{
		{raw("123456789"), 9, decimal.New(1, -6)},
		{raw("999999"), 6, decimal.New(1, -6)},
		{raw("12345678"), 6, decimal.New(1, -2)},
		{raw("987654321098765432"), 18, decimal.New(1, -6)},
		{raw("5432109876543210987"), 18, decimal.New(1, -2)},
	}

	for _, tt := range tests {
		shown, err := decimal.NewFromString(Format(tt.raw, tt.decimals))
		require.NoError(t, err)

		back := shown.Shift(int32(tt.decimals)).BigInt()
		diff := ToDecimal(new(big.Int).Sub(tt.raw, back), tt.decimals)

		assert.False(t, diff.IsNegative(), "display must not exceed the balance")
		assert.True(t, diff.LessThan(tt.unit), "lost %s for %s", diff, tt.raw)
	}
}

type fakeReader struct {
	token  atomic.Int64
	native atomic.Int64
	calls  atomic.Int32
	fail   atomic.Bool
}

func (f *fakeReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	f.calls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("rpc down")
	}
	return big.NewInt(f.token.Load()), nil
}

func (f *fakeReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.calls.Add(1)
	return big.NewInt(f.native.Load()), nil
}

var (
	account = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	usdc    = common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238")
)

func TestGetBalance(t *testing.T) {
	r := &fakeReader{}
	r.token.Store(100_000_000)
	r.native.Store(5e17)
	o := NewOracle(r, time.Second, nil)

	b, err := o.GetBalance(context.Background(), account, usdc, 6)
	require.NoError(t, err)
	assert.Equal(t, "100.00", b.Formatted)
	assert.Equal(t, 100.0, b.Numeric)

	b, err = o.GetBalance(context.Background(), account, NativeToken, 18)
	require.NoError(t, err)
	assert.Equal(t, "0.500000", b.Formatted)
}

func TestWatcher(t *testing.T) {
	r := &fakeReader{}
	r.token.Store(1_000_000)
	o := NewOracle(r, 10*time.Millisecond, nil)

	w := o.Watch(context.Background(), account, usdc, 6)
	<-w.Loaded()

	b, err := w.Latest()
	require.NoError(t, err)
	assert.Equal(t, "1.00", b.Formatted)

	r.token.Store(2_500_000)
	b, err = w.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.50", b.Formatted)

	// 轮询失败时保留上一次成功的余额
	r.fail.Store(true)
	_, err = w.Refetch(context.Background())
	assert.Error(t, err)
	latest, lastErr := w.Latest()
	assert.Error(t, lastErr)
	assert.Equal(t, "2.50", latest.Formatted)

	w.Close()
	calls := r.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, r.calls.Load(), "no polling after close")
}

func TestWatcherChanges(t *testing.T) {
	r := &fakeReader{}
	r.token.Store(1_000_000)
	o := NewOracle(r, time.Hour, nil)

	w := o.Watch(context.Background(), account, usdc, 6)
	<-w.Loaded()

	first := <-w.Changes()
	assert.Equal(t, "1.00", first.Formatted)

	// 余额不变时不发送
	_, err := w.Refetch(context.Background())
	require.NoError(t, err)
	select {
	case b := <-w.Changes():
		t.Fatalf("unexpected change %s", b.Formatted)
	default:
	}

	r.token.Store(4_000_000)
	_, err = w.Refetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "4.00", (<-w.Changes()).Formatted)

	w.Close()
	_, ok := <-w.Changes()
	assert.False(t, ok)
	w.Close()
}
