package services

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

// Coordinator accepts randomness requests on behalf of a consumer.
type Coordinator interface {
	Address() common.Address
	RequestRandomness(ctx context.Context, consumer common.Address, keyHash common.Hash, fee *big.Int) (common.Hash, error)
}

// RandomnessConsumer receives randomness from a coordinator.
type RandomnessConsumer interface {
	Address() common.Address
	RawFulfillRandomness(ctx context.Context, caller common.Address, requestID common.Hash, randomness *big.Int) error
}

// RandomnessRequest is an outstanding request held by the coordinator.
type RandomnessRequest struct {
	ID          common.Hash    `json:"requestId"`
	Consumer    common.Address `json:"consumer"`
	KeyHash     common.Hash    `json:"keyHash"`
	Fee         *big.Int       `json:"fee"`
	Seed        uint64         `json:"seed"`
	RequestedAt time.Time      `json:"requestedAt"`
}

// VRFCoordinator is a local coordinator. Requests are charged in LINK and
// answered by whoever calls CallBackWithRandomness.
type VRFCoordinator struct {
	mu        sync.Mutex
	address   common.Address
	link      *Ledger
	seed      uint64
	requests  map[common.Hash]RandomnessRequest
	consumers map[common.Address]RandomnessConsumer
	now       func() time.Time
}

// NewVRFCoordinator creates a coordinator at address that collects fees on link.
func NewVRFCoordinator(address common.Address, link *Ledger) *VRFCoordinator {
	return &VRFCoordinator{
		address:   address,
		link:      link,
		requests:  make(map[common.Hash]RandomnessRequest),
		consumers: make(map[common.Address]RandomnessConsumer),
		now:       time.Now,
	}
}

func (c *VRFCoordinator) Address() common.Address {
	return c.address
}

// Register makes consumer reachable by CallBackWithRandomness.
func (c *VRFCoordinator) Register(consumer RandomnessConsumer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumers[consumer.Address()] = consumer
}

// RequestRandomness charges fee from consumer and records a new request.
// The request id is keccak256(keyHash, seed).
func (c *VRFCoordinator) RequestRandomness(ctx context.Context, consumer common.Address, keyHash common.Hash, fee *big.Int) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.link.Transfer(consumer, c.address, fee); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return common.Hash{}, errors.Wrapf(ErrInsufficientLink, "consumer %s: %v", consumer.Hex(), err)
		}
		return common.Hash{}, err
	}

	seed := c.seed
	c.seed++
	id := crypto.Keccak256Hash(keyHash.Bytes(), common.BigToHash(new(big.Int).SetUint64(seed)).Bytes())
	c.requests[id] = RandomnessRequest{
		ID:          id,
		Consumer:    consumer,
		KeyHash:     keyHash,
		Fee:         new(big.Int).Set(fee),
		Seed:        seed,
		RequestedAt: c.now(),
	}
	logger.Infof("vrf: request %s from %s (seed %d)", id.Hex(), consumer.Hex(), seed)
	return id, nil
}

// CallBackWithRandomness delivers randomness to the consumer at consumerAddr.
// The request stays pending if the consumer rejects it.
func (c *VRFCoordinator) CallBackWithRandomness(ctx context.Context, requestID common.Hash, randomness *big.Int, consumerAddr common.Address) error {
	c.mu.Lock()
	consumer, ok := c.consumers[consumerAddr]
	c.mu.Unlock()
	if !ok {
		return errors.Errorf("vrf: no consumer registered at %s", consumerAddr.Hex())
	}

	if err := consumer.RawFulfillRandomness(ctx, c.address, requestID, randomness); err != nil {
		return errors.Wrapf(err, "vrf: callback for %s", requestID.Hex())
	}

	c.mu.Lock()
	delete(c.requests, requestID)
	c.mu.Unlock()
	logger.Infof("vrf: fulfilled %s", requestID.Hex())
	return nil
}

// Drop forgets a pending request without delivering it.
func (c *VRFCoordinator) Drop(requestID common.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.requests[requestID]
	delete(c.requests, requestID)
	return ok
}

// Pending returns outstanding requests, oldest first.
func (c *VRFCoordinator) Pending() []RandomnessRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]RandomnessRequest, 0, len(c.requests))
	for _, r := range c.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })
	return out
}
