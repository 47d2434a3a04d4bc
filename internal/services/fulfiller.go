package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

// RandomSource produces the values delivered to consumers.
type RandomSource interface {
	Uint256() (*big.Int, error)
}

type cryptoSource struct{}

// CryptoSource draws uniform 256-bit values from crypto/rand.
func CryptoSource() RandomSource { return cryptoSource{} }

func (cryptoSource) Uint256() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 256))
}

// Fulfiller answers pending coordinator requests from a RandomSource.
type Fulfiller struct {
	coordinator *VRFCoordinator
	source      RandomSource
	stuckAfter  time.Duration
	now         func() time.Time
	retryOpts   []retry.Option
}

// NewFulfiller creates a Fulfiller. Requests pending longer than stuckAfter
// are reported on every pass; zero disables the report.
func NewFulfiller(coordinator *VRFCoordinator, source RandomSource, stuckAfter time.Duration) *Fulfiller {
	return &Fulfiller{
		coordinator: coordinator,
		source:      source,
		stuckAfter:  stuckAfter,
		now:         time.Now,
		retryOpts: []retry.Option{
			retry.Attempts(3),
			retry.Delay(100 * time.Millisecond),
			retry.LastErrorOnly(true),
		},
	}
}

// isRejection reports whether the consumer refused the delivery on its
// merits. Retrying a rejection never helps.
func isRejection(err error) bool {
	for _, target := range []error{ErrNoPlayers, ErrWrongState, ErrUnrecognizedRequest, ErrUnauthorized} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// FulfillPending delivers randomness to every pending request once and
// returns the number delivered.
func (f *Fulfiller) FulfillPending(ctx context.Context) int {
	delivered := 0
	for _, req := range f.coordinator.Pending() {
		err := f.fulfill(ctx, req)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrUnrecognizedRequest), errors.Is(err, ErrWrongState):
			// the consumer moved on, e.g. the round was cancelled
			f.coordinator.Drop(req.ID)
			logger.Warningf("fulfiller: dropped %s: %v", req.ID.Hex(), err)
		default:
			logger.Errorf("fulfiller: %s: %v", req.ID.Hex(), err)
			if f.stuckAfter > 0 && f.now().Sub(req.RequestedAt) > f.stuckAfter {
				logger.Warningf("fulfiller: request %s from %s pending since %s", req.ID.Hex(), req.Consumer.Hex(), req.RequestedAt.Format(time.RFC3339))
			}
		}
	}
	return delivered
}

func (f *Fulfiller) fulfill(ctx context.Context, req RandomnessRequest) error {
	opts := append([]retry.Option{
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool { return !isRejection(err) }),
	}, f.retryOpts...)

	return retry.Do(func() error {
		randomness, err := f.source.Uint256()
		if err != nil {
			return errors.Wrap(err, "draw randomness")
		}
		return f.coordinator.CallBackWithRandomness(ctx, req.ID, randomness, req.Consumer)
	}, opts...)
}

// Run calls FulfillPending every interval until ctx is done.
func (f *Fulfiller) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Errorf("fulfiller: interval must be positive, got %s", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.FulfillPending(ctx); n > 0 {
				logger.Infof("fulfiller: delivered %d requests", n)
			}
		}
	}
}
