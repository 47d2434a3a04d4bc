package services

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")

	t.Run("transfer moves funds", func(t *testing.T) {
		l := NewLedger("ETH")
		l.Mint(alice, big.NewInt(100))
		require.NoError(t, l.Transfer(alice, bob, big.NewInt(40)))
		assert.Equal(t, big.NewInt(60), l.BalanceOf(alice))
		assert.Equal(t, big.NewInt(40), l.BalanceOf(bob))
	})

	t.Run("insufficient funds moves nothing", func(t *testing.T) {
		l := NewLedger("ETH")
		l.Mint(alice, big.NewInt(10))
		err := l.Transfer(alice, bob, big.NewInt(11))
		require.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, big.NewInt(10), l.BalanceOf(alice))
		assert.Equal(t, 0, l.BalanceOf(bob).Sign())
	})

	t.Run("negative amount", func(t *testing.T) {
		l := NewLedger("ETH")
		require.Error(t, l.Transfer(alice, bob, big.NewInt(-1)))
	})

	t.Run("balances are copies", func(t *testing.T) {
		l := NewLedger("LINK")
		l.Mint(alice, big.NewInt(5))
		b := l.BalanceOf(alice)
		b.SetInt64(1000)
		assert.Equal(t, big.NewInt(5), l.BalanceOf(alice))
		assert.Equal(t, "LINK", l.Symbol())
	})
}
