package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olyamironova/eos-exchange/internal/adapter/in_memory"
	"github.com/olyamironova/eos-exchange/internal/api/dto"
	"github.com/olyamironova/eos-exchange/internal/core"
	"github.com/olyamironova/eos-exchange/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var tokens = map[string]string{"alice": "alice-token", "bob": "bob-token"}

type testServer struct {
	router *gin.Engine
	ledger *in_memory.Ledger
}

func newTestServer(t *testing.T, allowDeposit bool) *testServer {
	t.Helper()
	ledger := in_memory.NewLedger()
	eng := core.NewEngine(in_memory.NewMemoryRepo(), ledger,
		core.Market{Symbol: "TOKEN", Reference: "EOS", Custody: "exchange"},
		core.WithCache(in_memory.NewCache()),
		core.WithLogger(zaptest.NewLogger(t)),
	)
	srv := NewHTTPServer(eng, ledger, zaptest.NewLogger(t), Options{
		Tokens:       tokens,
		AllowDeposit: allowDeposit,
	})
	return &testServer{router: srv.Router(), ledger: ledger}
}

func (s *testServer) do(t *testing.T, method, path, account string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set("X-Client-ID", account)
		req.Header.Set("Authorization", "Bearer "+tokens[account])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestSubmitMatchAndCancelFlow(t *testing.T) {
	s := newTestServer(t, false)
	ctx := context.Background()
	require.NoError(t, s.ledger.Deposit(ctx, "alice", domain.Amount{Symbol: "EOS", Units: 200}))
	require.NoError(t, s.ledger.Deposit(ctx, "bob", domain.Amount{Symbol: "TOKEN", Units: 100}))

	w := s.do(t, http.MethodPost, "/orders/sell", "bob", dto.SubmitOrderRequest{Symbol: "TOKEN", Quantity: 100, ReferenceTotal: 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sell := decode[dto.SubmitOrderResponse](t, w)
	require.NotZero(t, sell.OrderID)
	require.NotNil(t, sell.Remaining)
	assert.Equal(t, "1", sell.Remaining.Price.String())

	w = s.do(t, http.MethodPost, "/orders/buy", "alice", dto.SubmitOrderRequest{Symbol: "TOKEN", Quantity: 40, ReferenceTotal: 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	buy := decode[dto.SubmitOrderResponse](t, w)
	assert.True(t, buy.Filled)
	require.Len(t, buy.Fills, 1)
	assert.Equal(t, int64(40), buy.Fills[0].Reference)
	assert.Equal(t, int64(10), buy.Refund)

	w = s.do(t, http.MethodGet, "/orderbook", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ob := decode[dto.GetOrderbookResponse](t, w)
	require.Len(t, ob.Asks, 1)
	assert.Equal(t, int64(60), ob.Asks[0].Quantity)
	assert.Empty(t, ob.Bids)

	w = s.do(t, http.MethodPost, "/orders/cancel", "alice", dto.CancelOrderRequest{OrderID: sell.OrderID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/orders/cancel", "bob", dto.CancelOrderRequest{OrderID: sell.OrderID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[dto.CancelOrderResponse](t, w)
	assert.Equal(t, dto.Amount{Symbol: "TOKEN", Units: 60}, cancelled.Refund)

	w = s.do(t, http.MethodPost, "/orders/cancel", "bob", dto.CancelOrderRequest{OrderID: sell.OrderID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/balances/bob", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	bal := decode[dto.BalancesResponse](t, w)
	assert.Equal(t, map[string]int64{"EOS": 40, "TOKEN": 60}, bal.Balances)

	// history survives cancellation
	fillsPath := "/orders/" + strconv.FormatUint(sell.OrderID, 10) + "/fills"
	w = s.do(t, http.MethodGet, fillsPath, "bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	hist := decode[dto.GetFillsResponse](t, w)
	require.Len(t, hist.Fills, 1)
	assert.Equal(t, "alice", hist.Fills[0].TakerOwner)
	assert.Equal(t, int64(40), hist.Fills[0].Quantity)

	w = s.do(t, http.MethodGet, fillsPath, "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/orders/buy", "", dto.SubmitOrderRequest{Symbol: "TOKEN", Quantity: 1, ReferenceTotal: 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/orders/buy", "alice", dto.SubmitOrderRequest{Symbol: "EOS", Quantity: 1, ReferenceTotal: 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/orders/buy", "alice", dto.SubmitOrderRequest{Symbol: "TOKEN", Quantity: 1, ReferenceTotal: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodGet, "/orders/77", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/orders/abc", "bob", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/balances/alice", "bob", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/ledger/deposit", "alice", dto.DepositRequest{Symbol: "EOS", Units: 5})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDepositWhenEnabled(t *testing.T) {
	s := newTestServer(t, true)
	w := s.do(t, http.MethodPost, "/ledger/deposit", "alice", dto.DepositRequest{Symbol: "EOS", Units: 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	bal := decode[dto.BalancesResponse](t, w)
	assert.Equal(t, map[string]int64{"EOS": 5}, bal.Balances)

	w = s.do(t, http.MethodGet, "/orders/1", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOptionalRoutesDisabled(t *testing.T) {
	s := newTestServer(t, false)
	w := s.do(t, http.MethodPost, "/ledger/deposit", "alice", dto.DepositRequest{Symbol: "EOS", Units: 5})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/stream", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
