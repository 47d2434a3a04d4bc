package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// RoundData is the latest answer reported by a price feed.
type RoundData struct {
	RoundID   uint64
	Answer    *big.Int
	UpdatedAt time.Time
}

// PriceFeed reports the USD price of one unit of the native currency.
type PriceFeed interface {
	LatestRoundData(ctx context.Context) (RoundData, error)
	Decimals() uint8
}

// MockAggregator is a settable PriceFeed for local networks and tests.
type MockAggregator struct {
	mu          sync.RWMutex
	decimals    uint8
	round       RoundData
	unavailable error
	now         func() time.Time
}

// NewMockAggregator creates a feed reporting initialAnswer with the given decimals.
func NewMockAggregator(decimals uint8, initialAnswer *big.Int) *MockAggregator {
	m := &MockAggregator{decimals: decimals, now: time.Now}
	m.UpdateAnswer(initialAnswer)
	return m
}

// Decimals returns the number of decimals of the answer.
func (m *MockAggregator) Decimals() uint8 {
	return m.decimals
}

// UpdateAnswer publishes a new answer as a new round.
func (m *MockAggregator) UpdateAnswer(answer *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = RoundData{
		RoundID:   m.round.RoundID + 1,
		Answer:    new(big.Int).Set(answer),
		UpdatedAt: m.now(),
	}
}

// UpdateRoundData publishes a round with an explicit timestamp.
func (m *MockAggregator) UpdateRoundData(answer *big.Int, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.round = RoundData{
		RoundID:   m.round.RoundID + 1,
		Answer:    new(big.Int).Set(answer),
		UpdatedAt: updatedAt,
	}
}

// SetUnavailable makes LatestRoundData fail with err until called with nil.
func (m *MockAggregator) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

// LatestRoundData returns the current round.
func (m *MockAggregator) LatestRoundData(ctx context.Context) (RoundData, error) {
	if err := ctx.Err(); err != nil {
		return RoundData{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable != nil {
		return RoundData{}, errors.Wrap(m.unavailable, "aggregator")
	}
	r := m.round
	r.Answer = new(big.Int).Set(m.round.Answer)
	return r, nil
}
