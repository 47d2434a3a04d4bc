package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotteryState_String(t *testing.T) {
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "CALCULATING_WINNER", StateCalculatingWinner.String())
	assert.Equal(t, "LotteryState(7)", LotteryState(7).String())
	// Clients compare against the raw number.
	assert.Equal(t, uint8(2), uint8(StateCalculatingWinner))
}

func TestEther(t *testing.T) {
	t.Run("format", func(t *testing.T) {
		assert.Equal(t, "0.025", FormatEther(big.NewInt(25_000_000_000_000_000)))
		assert.Equal(t, "0", FormatEther(nil))
	})

	t.Run("parse", func(t *testing.T) {
		wei, err := ParseEther("0.025")
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(25_000_000_000_000_000), wei)
	})

	t.Run("parse rejects sub-wei and negative values", func(t *testing.T) {
		_, err := ParseEther("0.0000000000000000001")
		require.Error(t, err)
		_, err = ParseEther("-1")
		require.Error(t, err)
		_, err = ParseEther("abc")
		require.Error(t, err)
	})
}

func TestReceipt_Event(t *testing.T) {
	from := common.HexToAddress("0x01")
	r := NewReceipt(from, Event{Name: EventRequestedRandomness, Args: map[string]any{"requestId": common.HexToHash("0xaa")}})

	ev, ok := r.Event(EventRequestedRandomness)
	require.True(t, ok)
	assert.Equal(t, common.HexToHash("0xaa"), ev.Args["requestId"])

	_, ok = r.Event(EventWinnerPicked)
	assert.False(t, ok)
	assert.NotEqual(t, r.TxID, NewReceipt(from).TxID)
}
