package cmd

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"zeur-core/internal/balance"
)

type staticReader struct {
	raw *big.Int
	err error
}

func (r staticReader) TokenBalance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return r.raw, r.err
}

func (r staticReader) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	return r.raw, r.err
}

func TestWatchBalanceStopsOnInterrupt(t *testing.T) {
	oracle := balance.NewOracle(staticReader{raw: big.NewInt(1_500_000)}, 10*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := watchBalance(ctx, oracle, testFrom, testAsset, "USDC", 6)
	assert.NoError(t, err)
}

func TestWatchBalanceFirstReadFails(t *testing.T) {
	oracle := balance.NewOracle(staticReader{err: errors.New("rpc down")}, time.Hour, nil)

	err := watchBalance(context.Background(), oracle, testFrom, testAsset, "USDC", 6)
	assert.EqualError(t, err, "rpc down")
}
