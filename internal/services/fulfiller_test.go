package services

import (
	"context"
	"math/big"
	"testing"
	"time"

	"vrflottery/internal/models"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	values []*big.Int
	fails  int
}

func (f *fixedSource) Uint256() (*big.Int, error) {
	if f.fails > 0 {
		f.fails--
		return nil, assert.AnError
	}
	v := f.values[0]
	if len(f.values) > 1 {
		f.values = f.values[1:]
	}
	return v, nil
}

func newTestFulfiller(dep *Deployment, source RandomSource) *Fulfiller {
	f := NewFulfiller(dep.Coordinator, source, time.Minute)
	f.retryOpts = []retry.Option{retry.Attempts(3), retry.Delay(time.Millisecond), retry.LastErrorOnly(true)}
	return f
}

func TestFulfiller_FulfillPending(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers pending requests", func(t *testing.T) {
		dep := deployForTest(t)
		openWithPlayers(t, dep, 3)
		endRound(t, dep)

		f := newTestFulfiller(dep, &fixedSource{values: []*big.Int{big.NewInt(777)}})
		assert.Equal(t, 1, f.FulfillPending(ctx))
		assert.Equal(t, dep.Accounts[0], dep.Lottery.RecentWinner())
		assert.Equal(t, models.StateClosed, dep.Lottery.State())
		assert.Equal(t, 0, f.FulfillPending(ctx), "nothing left")
	})

	t.Run("retries a failing source", func(t *testing.T) {
		dep := deployForTest(t)
		openWithPlayers(t, dep, 2)
		endRound(t, dep)

		f := newTestFulfiller(dep, &fixedSource{values: []*big.Int{big.NewInt(1)}, fails: 2})
		assert.Equal(t, 1, f.FulfillPending(ctx))
		assert.Equal(t, dep.Accounts[1], dep.Lottery.RecentWinner())
	})

	t.Run("no players is not retried and stays pending", func(t *testing.T) {
		dep := deployForTest(t)
		openWithPlayers(t, dep, 0)
		endRound(t, dep)

		f := newTestFulfiller(dep, CryptoSource())
		assert.Equal(t, 0, f.FulfillPending(ctx))
		assert.Len(t, dep.Coordinator.Pending(), 1)
		assert.Equal(t, models.StateCalculatingWinner, dep.Lottery.State())
	})

	t.Run("requests of cancelled rounds are dropped", func(t *testing.T) {
		dep := deployForTest(t)
		openWithPlayers(t, dep, 1)
		endRound(t, dep)
		_, err := dep.Lottery.CancelRound(ctx, dep.Lottery.Owner())
		require.NoError(t, err)

		f := newTestFulfiller(dep, CryptoSource())
		assert.Equal(t, 0, f.FulfillPending(ctx))
		assert.Empty(t, dep.Coordinator.Pending())
	})
}

func TestFulfiller_Run(t *testing.T) {
	dep := deployForTest(t)
	openWithPlayers(t, dep, 2)
	requestID := endRound(t, dep)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go newTestFulfiller(dep, CryptoSource()).Run(ctx, 5*time.Millisecond)

	wctx, wcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer wcancel()
	result, err := dep.Lottery.AwaitRound(wctx, requestID)
	require.NoError(t, err)
	assert.Contains(t, dep.Accounts[:2], result.Winner)
}

func TestFulfiller_RunRejectsZeroInterval(t *testing.T) {
	dep := deployForTest(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		newTestFulfiller(dep, CryptoSource()).Run(context.Background(), 0)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestCryptoSource(t *testing.T) {
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	v, err := CryptoSource().Uint256()
	require.NoError(t, err)
	assert.True(t, v.Sign() >= 0 && v.Cmp(limit) < 0)
}
