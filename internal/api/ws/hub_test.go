package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/olyamironova/eos-exchange/internal/domain"
	"github.com/olyamironova/eos-exchange/internal/middleware"
)

func dial(t *testing.T, srv *httptest.Server, account string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream?account=" + account
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubStreamsOwnEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t), []string{"http://localhost:3000"})
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		c.Set(middleware.AccountKey, c.Query("account"))
	}, hub.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	alice := dial(t, srv, "alice")
	carol := dial(t, srv, "carol")
	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	ev := &domain.MatchEvent{
		Owner: "bob",
		Side:  domain.Sell,
		Fills: []domain.Fill{{MakerID: 1, MakerOwner: "alice", Quantity: 5, Reference: 10}},
	}
	require.NoError(t, hub.Publish(ctx, ev))

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got domain.MatchEvent
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "bob", got.Owner)
	assert.Equal(t, uint64(1), got.Fills[0].MakerID)

	require.NoError(t, carol.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err)
}

func TestInvolves(t *testing.T) {
	ev := &domain.MatchEvent{Owner: "bob", Fills: []domain.Fill{{MakerOwner: "alice"}}}
	assert.True(t, involves(ev, "bob"))
	assert.True(t, involves(ev, "alice"))
	assert.False(t, involves(ev, "carol"))
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t), []string{"http://localhost:3000"})
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/stream", hub.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Len())

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/stream", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	check := originChecker([]string{"https://app.example"})
	assert.True(t, check(req("")))
	assert.True(t, check(req("https://app.example")))
	assert.False(t, check(req("https://other.example")))
	assert.True(t, originChecker([]string{"*"})(req("https://other.example")))
}
