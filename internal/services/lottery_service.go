package services

import (
	"context"
	"math/big"
	"sync"
	"time"

	"vrflottery/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

var oneEther = big.NewInt(1_000_000_000_000_000_000)

// maxCancelledRounds bounds how many cancelled request ids AwaitRound remembers.
const maxCancelledRounds = 64

// LotteryParams are fixed at deployment.
type LotteryParams struct {
	Address common.Address
	Owner   common.Address
	// USDEntryFee is the entrance fee in USD with 18 decimals.
	USDEntryFee *big.Int
	KeyHash     common.Hash
	// VRFFee is the LINK amount paid per randomness request.
	VRFFee *big.Int
	// PriceStaleAfter rejects feed answers older than this. Zero disables the check.
	PriceStaleAfter time.Duration
}

// Option configures a LotteryService.
type Option func(*LotteryService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *LotteryService) { s.now = now }
}

// pendingRound resolves once its round settles or is cancelled.
type pendingRound struct {
	done   chan struct{}
	result *models.RoundResult
	err    error
}

func (p *pendingRound) resolve(result *models.RoundResult, err error) {
	p.result, p.err = result, err
	close(p.done)
}

// LotteryService is a single lottery. Every entry point holds mu for its
// whole duration and validates before mutating, so a failed call leaves
// no trace.
type LotteryService struct {
	mu sync.Mutex

	params      LotteryParams
	ledger      *Ledger
	priceFeed   PriceFeed
	coordinator Coordinator
	now         func() time.Time

	state            models.LotteryState
	entries          []models.Entry
	recentWinner     common.Address
	pendingRequestID common.Hash
	// rounds holds only unresolved rounds; settled ones live in history.
	rounds    map[common.Hash]*pendingRound
	history   []*models.RoundResult
	cancelled []common.Hash
}

// NewLotteryService creates a closed lottery.
func NewLotteryService(params LotteryParams, ledger *Ledger, priceFeed PriceFeed, coordinator Coordinator, opts ...Option) *LotteryService {
	s := &LotteryService{
		params:      params,
		ledger:      ledger,
		priceFeed:   priceFeed,
		coordinator: coordinator,
		now:         time.Now,
		state:       models.StateClosed,
		rounds:      make(map[common.Hash]*pendingRound),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Address returns the account holding the lottery's funds.
func (s *LotteryService) Address() common.Address {
	return s.params.Address
}

// Owner returns the deployer.
func (s *LotteryService) Owner() common.Address {
	return s.params.Owner
}

// GetEntranceFee converts the USD entrance fee into wei at the current feed price.
// The result can change between calls; callers re-query before entering.
func (s *LotteryService) GetEntranceFee(ctx context.Context) (*big.Int, error) {
	round, err := s.priceFeed.LatestRoundData(ctx)
	if err != nil {
		return nil, errors.Wrapf(ErrPriceFeedUnavailable, "%v", err)
	}
	if round.Answer == nil || round.Answer.Sign() <= 0 {
		return nil, errors.Wrapf(ErrPriceFeedUnavailable, "non-positive answer %v in round %d", round.Answer, round.RoundID)
	}
	if stale := s.params.PriceStaleAfter; stale > 0 {
		if age := s.now().Sub(round.UpdatedAt); age > stale {
			return nil, errors.Wrapf(ErrPriceFeedUnavailable, "round %d is %s old", round.RoundID, age)
		}
	}

	decimals := int64(s.priceFeed.Decimals())
	if decimals > 18 {
		return nil, errors.Wrapf(ErrPriceFeedUnavailable, "unsupported feed decimals %d", decimals)
	}
	// price with 18 decimals
	adjusted := new(big.Int).Mul(round.Answer, new(big.Int).Exp(big.NewInt(10), big.NewInt(18-decimals), nil))
	fee := new(big.Int).Mul(s.params.USDEntryFee, oneEther)
	return fee.Quo(fee, adjusted), nil
}

// StartLottery opens a new round.
func (s *LotteryService) StartLottery(ctx context.Context, from common.Address) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(from); err != nil {
		return nil, err
	}
	if err := s.requireState(models.StateClosed, "start"); err != nil {
		return nil, err
	}
	s.state = models.StateOpen
	logger.Infof("lottery: started by %s", from.Hex())
	return models.NewReceipt(from, models.Event{Name: models.EventLotteryStarted}), nil
}

// Enter pays value from the caller into the lottery and records one entry.
func (s *LotteryService) Enter(ctx context.Context, from common.Address, value *big.Int) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireState(models.StateOpen, "enter"); err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	fee, err := s.GetEntranceFee(ctx)
	if err != nil {
		return nil, err
	}
	if value.Cmp(fee) < 0 {
		return nil, errors.Wrapf(ErrInsufficientPayment, "paid %s, fee is %s", value, fee)
	}
	// last fallible step
	if err := s.ledger.Transfer(from, s.params.Address, value); err != nil {
		return nil, err
	}

	s.entries = append(s.entries, models.Entry{Player: from, Amount: new(big.Int).Set(value)})
	logger.Infof("lottery: %s entered with %s wei (player %d)", from.Hex(), value, len(s.entries)-1)
	return models.NewReceipt(from, models.Event{
		Name: models.EventPlayerEntered,
		Args: map[string]any{"player": from, "amount": new(big.Int).Set(value), "index": len(s.entries) - 1},
	}), nil
}

// EndLottery closes entries and asks the coordinator for randomness. The
// winner is picked later, when the coordinator calls RawFulfillRandomness.
func (s *LotteryService) EndLottery(ctx context.Context, from common.Address) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(from); err != nil {
		return nil, err
	}
	if err := s.requireState(models.StateOpen, "end"); err != nil {
		return nil, err
	}

	requestID, err := s.coordinator.RequestRandomness(ctx, s.params.Address, s.params.KeyHash, s.params.VRFFee)
	if err != nil {
		return nil, errors.Wrap(err, "request randomness")
	}

	s.state = models.StateCalculatingWinner
	s.pendingRequestID = requestID
	s.rounds[requestID] = &pendingRound{done: make(chan struct{})}
	logger.Infof("lottery: ended by %s with %d players, awaiting %s", from.Hex(), len(s.entries), requestID.Hex())
	return models.NewReceipt(from, models.Event{
		Name: models.EventRequestedRandomness,
		Args: map[string]any{"requestId": requestID},
	}), nil
}

// RawFulfillRandomness settles the round. Only the coordinator may call it.
//
// The winner is randomness mod playerCount. When the randomness range is
// not a multiple of the player count, lower indices are very slightly
// favoured; for 256-bit randomness the bias is negligible and accepted.
func (s *LotteryService) RawFulfillRandomness(ctx context.Context, caller common.Address, requestID common.Hash, randomness *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.coordinator.Address() {
		return errors.Wrapf(ErrUnauthorized, "%s is not the coordinator", caller.Hex())
	}
	if err := s.requireState(models.StateCalculatingWinner, "fulfill"); err != nil {
		return err
	}
	if requestID != s.pendingRequestID {
		return errors.Wrapf(ErrUnrecognizedRequest, "got %s, waiting for %s", requestID.Hex(), s.pendingRequestID.Hex())
	}
	if len(s.entries) == 0 {
		// The round stays in CALCULATING_WINNER until the owner cancels it.
		logger.Warningf("lottery: randomness for %s arrived with no players", requestID.Hex())
		return errors.Wrapf(ErrNoPlayers, "request %s", requestID.Hex())
	}
	if randomness == nil || randomness.Sign() < 0 {
		return errors.Errorf("invalid randomness %v", randomness)
	}

	count := big.NewInt(int64(len(s.entries)))
	index := int(new(big.Int).Mod(randomness, count).Int64())
	winner := s.entries[index].Player
	payout := s.ledger.BalanceOf(s.params.Address)
	if err := s.ledger.Transfer(s.params.Address, winner, payout); err != nil {
		return errors.Wrap(err, "pay winner")
	}

	result := &models.RoundResult{
		RequestID:   requestID,
		Randomness:  new(big.Int).Set(randomness),
		WinnerIndex: index,
		Winner:      winner,
		Payout:      payout,
		PlayerCount: len(s.entries),
		SettledAt:   s.now(),
	}
	s.recentWinner = winner
	s.entries = nil
	s.pendingRequestID = common.Hash{}
	s.state = models.StateClosed
	s.history = append(s.history, result)
	if round, ok := s.rounds[requestID]; ok {
		round.resolve(result, nil)
		delete(s.rounds, requestID)
	}
	logger.Infof("lottery: %s won %s wei (index %d of %d)", winner.Hex(), payout, index, result.PlayerCount)
	return nil
}

// CancelRound refunds every entry of a round stuck in CALCULATING_WINNER
// and closes the lottery. The outstanding request becomes unrecognized.
func (s *LotteryService) CancelRound(ctx context.Context, from common.Address) (*models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.onlyOwner(from); err != nil {
		return nil, err
	}
	if err := s.requireState(models.StateCalculatingWinner, "cancel"); err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, e := range s.entries {
		total.Add(total, e.Amount)
	}
	if bal := s.ledger.BalanceOf(s.params.Address); bal.Cmp(total) < 0 {
		return nil, errors.Wrapf(ErrInsufficientFunds, "refunds need %s, lottery holds %s", total, bal)
	}
	for _, e := range s.entries {
		if err := s.ledger.Transfer(s.params.Address, e.Player, e.Amount); err != nil {
			// balance was checked above and mu is held
			return nil, errors.Wrap(err, "refund")
		}
	}

	requestID := s.pendingRequestID
	refunded := len(s.entries)
	s.entries = nil
	s.pendingRequestID = common.Hash{}
	s.state = models.StateClosed
	if round, ok := s.rounds[requestID]; ok {
		round.resolve(nil, errors.Wrapf(ErrRoundCancelled, "request %s", requestID.Hex()))
		delete(s.rounds, requestID)
	}
	s.cancelled = append(s.cancelled, requestID)
	if len(s.cancelled) > maxCancelledRounds {
		s.cancelled = s.cancelled[len(s.cancelled)-maxCancelledRounds:]
	}
	logger.Warningf("lottery: round %s cancelled by %s, %d entries refunded", requestID.Hex(), from.Hex(), refunded)
	return models.NewReceipt(from, models.Event{
		Name: models.EventRoundCancelled,
		Args: map[string]any{"requestId": requestID, "refunded": refunded},
	}), nil
}

// AwaitRound blocks until the round for requestID settles or is
// cancelled, or ctx is done.
func (s *LotteryService) AwaitRound(ctx context.Context, requestID common.Hash) (*models.RoundResult, error) {
	s.mu.Lock()
	round, ok := s.rounds[requestID]
	if !ok {
		defer s.mu.Unlock()
		return s.resolvedRound(requestID)
	}
	s.mu.Unlock()

	select {
	case <-round.done:
		return round.result, round.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolvedRound answers AwaitRound for a round that is no longer pending.
// Callers hold mu.
func (s *LotteryService) resolvedRound(requestID common.Hash) (*models.RoundResult, error) {
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].RequestID == requestID {
			return s.history[i], nil
		}
	}
	for _, id := range s.cancelled {
		if id == requestID {
			return nil, errors.Wrapf(ErrRoundCancelled, "request %s", requestID.Hex())
		}
	}
	return nil, errors.Wrapf(ErrUnknownRequest, "request %s", requestID.Hex())
}

// State returns the lifecycle state.
func (s *LotteryService) State() models.LotteryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Player returns the player at index i of the current round.
func (s *LotteryService) Player(i int) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.entries) {
		return common.Address{}, errors.Wrapf(ErrPlayerIndexOutOfRange, "index %d, %d players", i, len(s.entries))
	}
	return s.entries[i].Player, nil
}

// Players returns the players of the current round in entry order.
func (s *LotteryService) Players() []common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Address, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Player
	}
	return out
}

// PlayerCount returns the number of entries in the current round.
func (s *LotteryService) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RecentWinner returns the winner of the last settled round.
func (s *LotteryService) RecentWinner() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentWinner
}

// PendingRequestID returns the outstanding request id, or the zero hash.
func (s *LotteryService) PendingRequestID() common.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingRequestID
}

// Balance returns the funds held by the lottery.
func (s *LotteryService) Balance() *big.Int {
	return s.ledger.BalanceOf(s.params.Address)
}

// Rounds returns settled rounds, oldest first.
func (s *LotteryService) Rounds() []*models.RoundResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.RoundResult(nil), s.history...)
}

func (s *LotteryService) onlyOwner(from common.Address) error {
	if from != s.params.Owner {
		return errors.Wrapf(ErrUnauthorized, "%s is not the owner", from.Hex())
	}
	return nil
}

func (s *LotteryService) requireState(want models.LotteryState, op string) error {
	if s.state != want {
		return errors.Wrapf(ErrWrongState, "%s requires %s, lottery is %s", op, want, s.state)
	}
	return nil
}
