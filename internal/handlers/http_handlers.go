package handlers

import (
	"context"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"vrflottery/internal/models"
	"vrflottery/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/pkg/errors"
)

// AccountHeader carries the caller's address.
const AccountHeader = "X-Account"

const accountKey = "account"

const maxAwait = time.Minute

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	dep *services.Deployment
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(dep *services.Deployment) *HTTPHandler {
	return &HTTPHandler{dep: dep}
}

// RegisterPublicRoutes registers read-only routes that need no caller.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/lottery", h.GetLottery)
	router.GET("/lottery/entrance-fee", h.GetEntranceFee)
	router.GET("/lottery/players", h.GetPlayers)
	router.GET("/lottery/players/:index", h.GetPlayer)
	router.GET("/lottery/winner", h.GetRecentWinner)
	router.GET("/lottery/rounds", h.GetRounds)
	router.GET("/lottery/rounds/:requestId/await", h.AwaitRound)
	router.GET("/vrf/requests", h.GetPendingRequests)
	router.GET("/accounts", h.GetAccounts)
	router.GET("/accounts/:address/balance", h.GetBalance)
}

// RegisterAccountRoutes registers routes acting on behalf of the caller.
// The group must use AccountMiddleware.
func (h *HTTPHandler) RegisterAccountRoutes(router gin.IRouter) {
	router.POST("/lottery/start", h.StartLottery)
	router.POST("/lottery/enter", h.Enter)
	router.POST("/lottery/end", h.EndLottery)
	router.POST("/lottery/cancel", h.CancelRound)

	// Local network controls. Whoever delivers randomness picks the winner,
	// so these stay with the deployer.
	owner := router.Group("/", h.OwnerMiddleware())
	owner.POST("/vrf/callback", h.CallBackWithRandomness)
	owner.POST("/link/fund", h.FundWithLink)
	owner.PUT("/price-feed", h.UpdatePrice)
}

// AccountMiddleware identifies the caller from the X-Account header.
func (h *HTTPHandler) AccountMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(AccountHeader)
		if !common.IsHexAddress(raw) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": AccountHeader + " header must be a hex address"})
			return
		}
		c.Set(accountKey, common.HexToAddress(raw))
		c.Next()
	}
}

// OwnerMiddleware rejects callers other than the lottery owner. It must run
// after AccountMiddleware.
func (h *HTTPHandler) OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if from := caller(c); from != h.dep.Lottery.Owner() {
			err := errors.Wrapf(services.ErrUnauthorized, "%s is not the owner", from.Hex())
			logger.Infof("%s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) common.Address {
	return c.MustGet(accountKey).(common.Address)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrWrongState), errors.Is(err, services.ErrNoPlayers):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInsufficientPayment),
		errors.Is(err, services.ErrInsufficientFunds),
		errors.Is(err, services.ErrInsufficientLink):
		return http.StatusPaymentRequired
	case errors.Is(err, services.ErrUnrecognizedRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrPriceFeedUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrPlayerIndexOutOfRange), errors.Is(err, services.ErrUnknownRequest):
		return http.StatusNotFound
	case errors.Is(err, services.ErrRoundCancelled):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		logger.Infof("%s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// parseWei reads a base-10 integer amount.
func parseWei(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

// GetLottery returns a summary of the lottery.
func (h *HTTPHandler) GetLottery(c *gin.Context) {
	l := h.dep.Lottery
	state := l.State()
	data := gin.H{
		"address":      l.Address(),
		"owner":        l.Owner(),
		"state":        state,
		"stateName":    state.String(),
		"playerCount":  l.PlayerCount(),
		"balance":      l.Balance().String(),
		"balanceEther": models.FormatEther(l.Balance()),
		"recentWinner": l.RecentWinner(),
	}
	if id := l.PendingRequestID(); id != (common.Hash{}) {
		data["pendingRequestId"] = id
	}
	if fee, err := l.GetEntranceFee(c.Request.Context()); err == nil {
		data["entranceFee"] = fee.String()
	}
	c.JSON(http.StatusOK, data)
}

// GetEntranceFee returns the current entrance fee.
func (h *HTTPHandler) GetEntranceFee(c *gin.Context) {
	fee, err := h.dep.Lottery.GetEntranceFee(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fee": fee.String(), "feeEther": models.FormatEther(fee)})
}

// GetPlayers lists the players of the current round.
func (h *HTTPHandler) GetPlayers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"players": h.dep.Lottery.Players()})
}

// GetPlayer returns the player at an index.
func (h *HTTPHandler) GetPlayer(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "Invalid index")
		return
	}
	player, err := h.dep.Lottery.Player(index)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"index": index, "player": player})
}

// GetRecentWinner returns the winner of the last settled round.
func (h *HTTPHandler) GetRecentWinner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"recentWinner": h.dep.Lottery.RecentWinner()})
}

// GetRounds lists settled rounds, oldest first.
func (h *HTTPHandler) GetRounds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rounds": h.dep.Lottery.Rounds()})
}

// AwaitRound waits for a round to settle, up to the timeout query parameter.
func (h *HTTPHandler) AwaitRound(c *gin.Context) {
	raw := c.Param("requestId")
	if len(common.FromHex(raw)) != common.HashLength {
		badRequest(c, "Invalid request id")
		return
	}
	timeout := 30 * time.Second
	if t := c.Query("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil || d <= 0 {
			badRequest(c, "Invalid timeout")
			return
		}
		timeout = min(d, maxAwait)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()
	result, err := h.dep.Lottery.AwaitRound(ctx, common.HexToHash(raw))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetPendingRequests lists requests the coordinator has not answered.
func (h *HTTPHandler) GetPendingRequests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"requests": h.dep.Coordinator.Pending()})
}

// GetAccounts lists the funded development accounts.
func (h *HTTPHandler) GetAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"accounts": h.dep.Accounts})
}

// GetBalance returns ETH and LINK balances of an address.
func (h *HTTPHandler) GetBalance(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		badRequest(c, "Invalid address")
		return
	}
	addr := common.HexToAddress(raw)
	eth := h.dep.Ledger.BalanceOf(addr)
	c.JSON(http.StatusOK, gin.H{
		"address":      addr,
		"balance":      eth.String(),
		"balanceEther": models.FormatEther(eth),
		"link":         h.dep.Link.BalanceOf(addr).String(),
	})
}

// StartLottery opens a new round.
func (h *HTTPHandler) StartLottery(c *gin.Context) {
	receipt, err := h.dep.Lottery.StartLottery(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type enterRequest struct {
	Value      string `json:"value"`
	ValueEther string `json:"valueEther"`
}

// Enter pays the entrance fee on behalf of the caller.
func (h *HTTPHandler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid body")
		return
	}

	var value *big.Int
	switch {
	case req.Value != "":
		v, ok := parseWei(req.Value)
		if !ok {
			badRequest(c, "Invalid value")
			return
		}
		value = v
	case req.ValueEther != "":
		v, err := models.ParseEther(req.ValueEther)
		if err != nil {
			badRequest(c, "Invalid valueEther")
			return
		}
		value = v
	default:
		badRequest(c, "value or valueEther is required")
		return
	}

	receipt, err := h.dep.Lottery.Enter(c.Request.Context(), caller(c), value)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// EndLottery closes entries and requests randomness.
func (h *HTTPHandler) EndLottery(c *gin.Context) {
	receipt, err := h.dep.Lottery.EndLottery(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// CancelRound refunds a round stuck waiting for randomness.
func (h *HTTPHandler) CancelRound(c *gin.Context) {
	receipt, err := h.dep.Lottery.CancelRound(c.Request.Context(), caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type callbackRequest struct {
	RequestID  string `json:"requestId" binding:"required"`
	Randomness string `json:"randomness" binding:"required"`
	Consumer   string `json:"consumer"`
}

// CallBackWithRandomness has the coordinator deliver a chosen value, the
// way a local network answers requests.
func (h *HTTPHandler) CallBackWithRandomness(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "requestId and randomness are required")
		return
	}
	if len(common.FromHex(req.RequestID)) != common.HashLength {
		badRequest(c, "Invalid requestId")
		return
	}
	randomness, ok := parseWei(req.Randomness)
	if !ok {
		badRequest(c, "Invalid randomness")
		return
	}
	consumer := h.dep.Lottery.Address()
	if req.Consumer != "" {
		if !common.IsHexAddress(req.Consumer) {
			badRequest(c, "Invalid consumer")
			return
		}
		consumer = common.HexToAddress(req.Consumer)
	}

	requestID := common.HexToHash(req.RequestID)
	if err := h.dep.Coordinator.CallBackWithRandomness(c.Request.Context(), requestID, randomness, consumer); err != nil {
		fail(c, err)
		return
	}
	logger.Infof("vrf callback for %s sent by %s", requestID.Hex(), caller(c).Hex())
	c.JSON(http.StatusOK, gin.H{"requestId": requestID, "recentWinner": h.dep.Lottery.RecentWinner()})
}

type fundRequest struct {
	Target string `json:"target"`
	Amount string `json:"amount" binding:"required"`
}

// FundWithLink mints LINK to the lottery or another target. Owner only.
func (h *HTTPHandler) FundWithLink(c *gin.Context) {
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "amount is required")
		return
	}
	amount, ok := parseWei(req.Amount)
	if !ok {
		badRequest(c, "Invalid amount")
		return
	}
	target := h.dep.Lottery.Address()
	if req.Target != "" {
		if !common.IsHexAddress(req.Target) {
			badRequest(c, "Invalid target")
			return
		}
		target = common.HexToAddress(req.Target)
	}
	h.dep.FundWithLink(target, amount)
	c.JSON(http.StatusOK, gin.H{"target": target, "link": h.dep.Link.BalanceOf(target).String()})
}

type priceRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// UpdatePrice publishes a new answer on the local price feed.
func (h *HTTPHandler) UpdatePrice(c *gin.Context) {
	var req priceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "answer is required")
		return
	}
	answer, ok := new(big.Int).SetString(req.Answer, 10)
	if !ok {
		badRequest(c, "Invalid answer")
		return
	}
	h.dep.PriceFeed.UpdateAnswer(answer)
	c.JSON(http.StatusOK, gin.H{"answer": answer.String(), "decimals": h.dep.PriceFeed.Decimals()})
}
