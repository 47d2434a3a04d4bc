package models

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LotteryState is the lifecycle state of the lottery.
// The numeric values are part of the public surface: clients read the
// state as a number.
type LotteryState uint8

const (
	StateOpen LotteryState = iota
	StateClosed
	StateCalculatingWinner
)

func (s LotteryState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateCalculatingWinner:
		return "CALCULATING_WINNER"
	default:
		return fmt.Sprintf("LotteryState(%d)", uint8(s))
	}
}

// Entry is a single paid entry into the current round.
type Entry struct {
	Player common.Address `json:"player"`
	Amount *big.Int       `json:"amount"`
}

// Event names emitted by the lottery.
const (
	EventLotteryStarted      = "LotteryStarted"
	EventPlayerEntered       = "PlayerEntered"
	EventRequestedRandomness = "RequestedRandomness"
	EventWinnerPicked        = "WinnerPicked"
	EventRoundCancelled      = "RoundCancelled"
)

// Event is a named log entry emitted by a state changing call.
type Event struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Receipt is returned by every state changing call.
type Receipt struct {
	TxID   uuid.UUID      `json:"txId"`
	From   common.Address `json:"from"`
	Events []Event        `json:"events"`
}

// NewReceipt creates a receipt with a fresh transaction id.
func NewReceipt(from common.Address, events ...Event) *Receipt {
	return &Receipt{TxID: uuid.New(), From: from, Events: events}
}

// Event returns the first event with the given name.
func (r *Receipt) Event(name string) (Event, bool) {
	for _, e := range r.Events {
		if e.Name == name {
			return e, true
		}
	}
	return Event{}, false
}

// RoundResult stores the outcome of a settled round.
type RoundResult struct {
	RequestID   common.Hash    `json:"requestId"`
	Randomness  *big.Int       `json:"randomness"`
	WinnerIndex int            `json:"winnerIndex"`
	Winner      common.Address `json:"winner"`
	Payout      *big.Int       `json:"payout"`
	PlayerCount int            `json:"playerCount"`
	SettledAt   time.Time      `json:"settledAt"`
}

var weiPerEther = decimal.New(1, 18)

// FormatEther renders a wei amount as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}

// ParseEther converts a decimal ether string to wei. Fractions below one
// wei are rejected.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	wei := d.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("%s ether is not a whole number of wei", s)
	}
	if wei.IsNegative() {
		return nil, fmt.Errorf("negative amount %s", s)
	}
	return wei.BigInt(), nil
}
