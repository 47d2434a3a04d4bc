package services

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Ledger tracks balances of a single asset per account.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	balances map[common.Address]*big.Int
}

// NewLedger creates an empty ledger for the given asset symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{
		symbol:   symbol,
		balances: make(map[common.Address]*big.Int),
	}
}

// Symbol returns the asset symbol.
func (l *Ledger) Symbol() string {
	return l.symbol
}

// BalanceOf returns a copy of the balance of addr.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits amount to addr out of thin air.
func (l *Ledger) Mint(addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// Transfer moves amount from one account to another. Either both sides
// change or neither does.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Errorf("invalid %s amount %v", l.symbol, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.balances[from]
	if have == nil {
		have = new(big.Int)
	}
	if have.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientFunds, "%s has %s %s, needs %s", from.Hex(), have, l.symbol, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	l.balances[from] = new(big.Int).Sub(have, amount)
	l.credit(to, amount)
	return nil
}

func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	cur := l.balances[addr]
	if cur == nil {
		cur = new(big.Int)
	}
	l.balances[addr] = new(big.Int).Add(cur, amount)
}
