package services

import (
	"math/big"

	"vrflottery/internal/config"
	"vrflottery/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/logger"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Deployment holds every component of a local lottery network.
type Deployment struct {
	Ledger      *Ledger
	Link        *Ledger
	PriceFeed   *MockAggregator
	Coordinator *VRFCoordinator
	Lottery     *LotteryService
	Accounts    []common.Address
}

// Deploy builds a local network from cfg: funded dev accounts, a LINK
// ledger, a price aggregator, a VRF coordinator and the lottery, in that
// order. The lottery is registered with the coordinator.
func Deploy(cfg *config.Config, opts ...Option) (*Deployment, error) {
	owner := DevAccount(0)
	if cfg.Lottery.Owner != "" {
		if !common.IsHexAddress(cfg.Lottery.Owner) {
			return nil, errors.Errorf("invalid owner address %q", cfg.Lottery.Owner)
		}
		owner = common.HexToAddress(cfg.Lottery.Owner)
	}

	usdFee, err := decimal.NewFromString(cfg.Lottery.USDEntryFee)
	if err != nil {
		return nil, errors.Wrap(err, "usd_entry_fee")
	}
	if !usdFee.IsPositive() {
		return nil, errors.Errorf("usd_entry_fee must be positive, got %s", usdFee)
	}
	answer, ok := new(big.Int).SetString(cfg.PriceFeed.InitialAnswer, 10)
	if !ok {
		return nil, errors.Errorf("invalid price_feed.initial_answer %q", cfg.PriceFeed.InitialAnswer)
	}
	vrfFee, ok := new(big.Int).SetString(cfg.VRF.Fee, 10)
	if !ok || vrfFee.Sign() < 0 {
		return nil, errors.Errorf("invalid vrf.fee %q", cfg.VRF.Fee)
	}
	linkFund, ok := new(big.Int).SetString(cfg.Link.FundAmount, 10)
	if !ok || linkFund.Sign() < 0 {
		return nil, errors.Errorf("invalid link.fund_amount %q", cfg.Link.FundAmount)
	}
	balance, err := models.ParseEther(cfg.Accounts.BalanceEther)
	if err != nil {
		return nil, errors.Wrap(err, "accounts.balance_ether")
	}

	dep := &Deployment{
		Ledger: NewLedger("ETH"),
		Link:   NewLedger("LINK"),
	}
	for i := 0; i < cfg.Accounts.Count; i++ {
		acct := DevAccount(i)
		dep.Accounts = append(dep.Accounts, acct)
		dep.Ledger.Mint(acct, balance)
	}

	dep.PriceFeed = NewMockAggregator(cfg.PriceFeed.Decimals, answer)
	dep.Coordinator = NewVRFCoordinator(contractAddress(owner, 1), dep.Link)
	dep.Lottery = NewLotteryService(LotteryParams{
		Address:         contractAddress(owner, 2),
		Owner:           owner,
		USDEntryFee:     usdFee.Mul(decimal.New(1, 18)).BigInt(),
		KeyHash:         common.HexToHash(cfg.VRF.KeyHash),
		VRFFee:          vrfFee,
		PriceStaleAfter: cfg.Lottery.PriceStaleAfter,
	}, dep.Ledger, dep.PriceFeed, dep.Coordinator, opts...)
	dep.Coordinator.Register(dep.Lottery)

	if linkFund.Sign() > 0 {
		dep.FundWithLink(dep.Lottery.Address(), linkFund)
	}

	logger.Infof("deploy: lottery %s owned by %s, coordinator %s, %d accounts",
		dep.Lottery.Address().Hex(), owner.Hex(), dep.Coordinator.Address().Hex(), len(dep.Accounts))
	return dep, nil
}

// FundWithLink mints LINK to target so it can pay for randomness.
func (d *Deployment) FundWithLink(target common.Address, amount *big.Int) {
	d.Link.Mint(target, amount)
	logger.Infof("deploy: funded %s with %s LINK", target.Hex(), models.FormatEther(amount))
}

// Account returns the dev account at index.
func (d *Deployment) Account(index int) (common.Address, error) {
	if index < 0 || index >= len(d.Accounts) {
		return common.Address{}, errors.Errorf("no dev account %d, have %d", index, len(d.Accounts))
	}
	return d.Accounts[index], nil
}
