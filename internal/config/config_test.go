package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "50", cfg.Lottery.USDEntryFee)
	assert.Equal(t, uint8(8), cfg.PriceFeed.Decimals)
	assert.Equal(t, "200000000000", cfg.PriceFeed.InitialAnswer)
	assert.Equal(t, "100000000000000000", cfg.VRF.Fee)
	assert.Equal(t, 2*time.Second, cfg.VRF.FulfillInterval)
	assert.Equal(t, 10*time.Minute, cfg.VRF.StuckAfter)
	assert.False(t, cfg.VRF.AutoFulfill)
	assert.Equal(t, 10, cfg.Accounts.Count)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lottery.yaml")
	content := `
server:
  addr: ":9090"
lottery:
  usd_entry_fee: "25"
  price_stale_after: 1h
vrf:
  auto_fulfill: true
  fulfill_interval: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("LOTTERY_SERVER_ADDR", ":7070")
	t.Setenv("LOTTERY_ACCOUNTS_COUNT", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides file")
	assert.Equal(t, "25", cfg.Lottery.USDEntryFee)
	assert.Equal(t, time.Hour, cfg.Lottery.PriceStaleAfter)
	assert.True(t, cfg.VRF.AutoFulfill)
	assert.Equal(t, 500*time.Millisecond, cfg.VRF.FulfillInterval)
	assert.Equal(t, 3, cfg.Accounts.Count)
	assert.Equal(t, "100", cfg.Accounts.BalanceEther, "defaults fill gaps")
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_Validate(t *testing.T) {
	t.Run("auto fulfill needs an interval", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lottery.yaml")
		content := `
vrf:
  auto_fulfill: true
  fulfill_interval: 0s
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := Load(path)
		require.ErrorContains(t, err, "fulfill_interval")
	})

	t.Run("zero interval is fine without auto fulfill", func(t *testing.T) {
		t.Setenv("LOTTERY_VRF_FULFILL_INTERVAL", "0s")
		_, err := Load("")
		require.NoError(t, err)
	})

	for env, value := range map[string]string{
		"LOTTERY_ACCOUNTS_COUNT":       "-1",
		"LOTTERY_VRF_STUCK_AFTER":      "-1m",
		"LOTTERY_PRICE_STALE_AFTER":    "-5s",
		"LOTTERY_VRF_FULFILL_INTERVAL": "-1s",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv("LOTTERY_VRF_AUTO_FULFILL", "true")
			t.Setenv(env, value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	cfg.VRF.AutoFulfill = true
	cfg.VRF.FulfillInterval = 0
	assert.Error(t, cfg.Validate())
}
