package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/olyamironova/eos-exchange/internal/api/dto"
	"github.com/olyamironova/eos-exchange/internal/core"
	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/middleware"
)

// Ledger is the read and funding side of the settlement gateway.
type Ledger interface {
	Balances(ctx context.Context, account string) (map[string]int64, error)
	Deposit(ctx context.Context, account string, amount domain.Amount) error
}

type Options struct {
	Tokens       map[string]string
	RateLimit    time.Duration
	AllowDeposit bool
	// Stream serves GET /stream when set.
	Stream gin.HandlerFunc
}

type HTTPServer struct {
	Eng    *core.Engine
	ledger Ledger
	log    *zap.Logger
	opts   Options
}

func NewHTTPServer(eng *core.Engine, ledger Ledger, log *zap.Logger, opts Options) *HTTPServer {
	return &HTTPServer{Eng: eng, ledger: ledger, log: log, opts: opts}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(s.log))

	r.Use(middleware.Auth(s.opts.Tokens))
	rl := middleware.NewRateLimiter(s.opts.RateLimit)
	r.Use(rl.Middleware())

	r.POST("/orders/buy", s.submitOrder(domain.Buy))
	r.POST("/orders/sell", s.submitOrder(domain.Sell))
	r.POST("/orders/cancel", s.cancelOrder)
	r.GET("/orders/:id", s.getOrder)
	r.GET("/orders/:id/fills", s.getFills)
	r.GET("/orderbook", s.getOrderbook)
	r.GET("/balances/:account", s.getBalances)
	if s.opts.AllowDeposit {
		r.POST("/ledger/deposit", s.deposit)
	}
	if s.opts.Stream != nil {
		r.GET("/stream", s.opts.Stream)
	}
	return r
}

func (s *HTTPServer) Run(addr string) error {
	return s.Router().Run(addr)
}

func account(c *gin.Context) string {
	return c.GetString(middleware.AccountKey)
}

func (s *HTTPServer) submitOrder(side domain.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.SubmitOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amount := domain.Amount{Symbol: req.Symbol, Units: req.Quantity}
		res, err := s.Eng.Submit(c.Request.Context(), account(c), amount, req.ReferenceTotal, side)
		if err != nil {
			writeError(c, err)
			return
		}
		resp := dto.SubmitOrderResponse{
			OrderID:   res.RestingID,
			Filled:    res.Filled(),
			Fills:     convertFills(res.Fills),
			Transfers: convertTransfers(res.Transfers),
			Refund:    res.Refund,
		}
		if res.Resting != nil {
			o := convertOrder(res.Resting)
			resp.Remaining = &o
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Eng.Cancel(c.Request.Context(), account(c), req.OrderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{
		OrderID:   req.OrderID,
		Cancelled: true,
		Refund:    dto.Amount(res.Refund),
	})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	o, err := s.Eng.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: convertOrder(o)})
}

// getFills serves an order's fill history to the order's owner only.
func (s *HTTPServer) getFills(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	fills, err := s.Eng.GetFills(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	for _, f := range fills {
		owner := f.MakerOwner
		if f.TakerID == id {
			owner = f.TakerOwner
		}
		if owner != account(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "fills of another account's order"})
			return
		}
	}
	c.JSON(http.StatusOK, dto.GetFillsResponse{OrderID: id, Fills: convertFills(fills)})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	ob, err := s.Eng.GetOrderbook(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	copySnapshot := ob.DeepCopy()
	c.JSON(http.StatusOK, dto.GetOrderbookResponse{
		Symbol:    copySnapshot.Symbol,
		Reference: copySnapshot.Reference,
		Bids:      convertOrders(copySnapshot.Bids),
		Asks:      convertOrders(copySnapshot.Asks),
		Timestamp: copySnapshot.Timestamp,
	})
}

// getBalances only shows an account's own balances.
func (s *HTTPServer) getBalances(c *gin.Context) {
	acct := c.Param("account")
	if acct != account(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "balances of another account"})
		return
	}
	balances, err := s.ledger.Balances(c.Request.Context(), acct)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BalancesResponse{Account: acct, Balances: balances})
}

func (s *HTTPServer) deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acct := account(c)
	if err := s.ledger.Deposit(c.Request.Context(), acct, domain.Amount{Symbol: req.Symbol, Units: req.Units}); err != nil {
		writeError(c, err)
		return
	}
	balances, err := s.ledger.Balances(c.Request.Context(), acct)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.BalancesResponse{Account: acct, Balances: balances})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func convertOrder(o *domain.Order) dto.Order {
	return dto.Order{
		ID:             o.ID,
		Owner:          o.Owner,
		Symbol:         o.Quantity.Symbol,
		Side:           dto.Side(o.Side),
		Quantity:       o.Quantity.Units,
		ReferenceTotal: o.ReferenceTotal,
		Price:          o.UnitPrice(),
		CreatedAt:      o.CreatedAt,
	}
}

func convertOrders(orders []domain.Order) []dto.Order {
	res := make([]dto.Order, len(orders))
	for i := range orders {
		res[i] = convertOrder(&orders[i])
	}
	return res
}

func convertFills(fills []domain.Fill) []dto.Fill {
	res := make([]dto.Fill, len(fills))
	for i, f := range fills {
		res[i] = dto.Fill{
			MakerID:    f.MakerID,
			MakerOwner: f.MakerOwner,
			TakerID:    f.TakerID,
			TakerOwner: f.TakerOwner,
			Quantity:   f.Quantity,
			Reference:  f.Reference,
			Price:      f.Price,
			MakerDone:  f.MakerDone,
			ExecutedAt: f.ExecutedAt,
		}
	}
	return res
}

func convertTransfers(transfers []domain.Transfer) []dto.Transfer {
	res := make([]dto.Transfer, len(transfers))
	for i, t := range transfers {
		res[i] = dto.Transfer{
			ID:     t.ID,
			From:   t.From,
			To:     t.To,
			Amount: dto.Amount(t.Amount),
			Memo:   t.Memo,
		}
	}
	return res
}
