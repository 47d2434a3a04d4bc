package services

import (
	"math/big"
	"testing"

	"vrflottery/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevAccount(t *testing.T) {
	assert.Equal(t, DevAccount(0), DevAccount(0), "deterministic")
	assert.NotEqual(t, DevAccount(0), DevAccount(1))
	assert.Equal(t, DevAccount(3), crypto.PubkeyToAddress(DevKey(3).PublicKey))
}

func TestDeploy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		dep := deployForTest(t)

		require.Len(t, dep.Accounts, 5)
		assert.Equal(t, DevAccount(0), dep.Lottery.Owner())
		hundred := new(big.Int).Mul(big.NewInt(100), oneEther)
		assert.Equal(t, hundred, dep.Ledger.BalanceOf(dep.Accounts[4]))
		assert.NotEqual(t, dep.Lottery.Address(), dep.Coordinator.Address())
		assert.Equal(t, 0, dep.Link.BalanceOf(dep.Lottery.Address()).Sign())

		acct, err := dep.Account(2)
		require.NoError(t, err)
		assert.Equal(t, DevAccount(2), acct)
		_, err = dep.Account(5)
		require.Error(t, err)
	})

	t.Run("explicit owner and LINK funding", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Lottery.Owner = "0x00000000000000000000000000000000000000aa"
		cfg.Link.FundAmount = "1000"
		dep, err := Deploy(cfg)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0xaa"), dep.Lottery.Owner())
		assert.Equal(t, big.NewInt(1000), dep.Link.BalanceOf(dep.Lottery.Address()))
	})

	t.Run("invalid settings", func(t *testing.T) {
		for name, mutate := range map[string]func(c *config.Config){
			"owner":  func(c *config.Config) { c.Lottery.Owner = "nope" },
			"fee":    func(c *config.Config) { c.Lottery.USDEntryFee = "x" },
			"zero":   func(c *config.Config) { c.Lottery.USDEntryFee = "0" },
			"answer": func(c *config.Config) { c.PriceFeed.InitialAnswer = "1.5" },
			"vrf":    func(c *config.Config) { c.VRF.Fee = "-1" },
			"link":   func(c *config.Config) { c.Link.FundAmount = "abc" },
			"eth":    func(c *config.Config) { c.Accounts.BalanceEther = "lots" },
		} {
			t.Run(name, func(t *testing.T) {
				cfg := testConfig(t)
				mutate(cfg)
				_, err := Deploy(cfg)
				require.Error(t, err)
			})
		}
	})
}
