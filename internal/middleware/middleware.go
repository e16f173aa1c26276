package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountKey is the gin context key holding the authenticated account.
const AccountKey = "account"

// RateLimiter admits one request per account every limit. It runs after Auth
// and keys on the authenticated account, falling back to the client IP.
// Entries idle for longer than limit are swept at most once per limit.
type RateLimiter struct {
	clients   map[string]time.Time
	mu        sync.Mutex
	limit     time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now and records it if so.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if now.Sub(r.lastSweep) >= r.limit {
		for k, last := range r.clients {
			if now.Sub(last) >= r.limit {
				delete(r.clients, k)
			}
		}
		r.lastSweep = now
	}
	if last, ok := r.clients[key]; ok && now.Sub(last) < r.limit {
		return false
	}
	r.clients[key] = now
	return true
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString(AccountKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !r.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Auth accepts a request only when X-Client-ID names an account and the
// bearer token matches the one configured for it. The account is stored
// under AccountKey.
func Auth(tokens map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		account := c.GetHeader("X-Client-ID")
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		want, known := tokens[account]
		if account == "" || !ok || !known || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(AccountKey, account)
		c.Next()
	}
}

// RequestLogger logs one line per request and tags it with an X-Request-ID.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		c.Next()
		log.Info("http_request",
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("client_id", c.GetHeader("X-Client-ID")),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
