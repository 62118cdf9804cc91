package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
chain:
  pool_address: "0x1111111111111111111111111111111111111111"
  pool_data_address: "0x2222222222222222222222222222222222222222"
  confirm_timeout: 90s
assets:
  - address: "0x3333333333333333333333333333333333333333"
    symbol: USDC
    name: USD Coin
    protocols: [circle]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 90*time.Second, cfg.Chain.ConfirmTimeout)
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Balance.PollInterval)
	assert.Equal(t, "unlimited", cfg.Approval.Mode)
	require.Len(t, cfg.Assets, 1)
	assert.Equal(t, "USDC", cfg.Assets[0].Symbol)
	assert.Equal(t, []string{"circle"}, cfg.Assets[0].Protocols)
}

func TestLoadRequiresContracts(t *testing.T) {
	path := writeConfig(t, "app:\n  env: test\n")

	_, err := Load(path)
	assert.Error(t, err, "缺少合约地址时应返回错误")
}

func TestLoadRejectsUnknownApprovalMode(t *testing.T) {
	path := writeConfig(t, `
chain:
  pool_address: "0x1111111111111111111111111111111111111111"
  pool_data_address: "0x2222222222222222222222222222222222222222"
approval:
  mode: sometimes
`)

	_, err := Load(path)
	assert.Error(t, err)
}
