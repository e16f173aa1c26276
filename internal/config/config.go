package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Market struct {
	Symbol    string
	Reference string
	Custody   string
}

type Store struct {
	Backend     string // memory, pebble or postgres
	PebblePath  string
	DatabaseURL string
}

type Ledger struct {
	Backend      string // memory or postgres
	AllowDeposit bool
}

type Cache struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type HTTP struct {
	Addr      string
	RateLimit time.Duration
	// Tokens maps an account to the bearer token that proves it.
	Tokens      map[string]string
	CORSOrigins []string
	Stream      bool
}

type Log struct {
	Level string
	File  string
}

type Config struct {
	Market Market
	Store  Store
	Ledger Ledger
	Cache  Cache
	Kafka  Kafka
	HTTP   HTTP
	Log    Log
}

func Default() Config {
	return Config{
		Market: Market{
			Symbol:    "TOKEN",
			Reference: "EOS",
			Custody:   "exchange",
		},
		Store: Store{
			Backend:    "memory",
			PebblePath: "data/orderbook",
		},
		Ledger: Ledger{
			Backend: "memory",
		},
		Cache: Cache{
			TTL: 5 * time.Minute,
		},
		Kafka: Kafka{
			Topic: "match-events",
		},
		HTTP: HTTP{
			Addr:        ":8080",
			RateLimit:   100 * time.Millisecond,
			Tokens:      map[string]string{},
			CORSOrigins: []string{"http://localhost:3000"},
			Stream:      true,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Market.Symbol = getEnv("MARKET_SYMBOL", cfg.Market.Symbol)
	cfg.Market.Reference = getEnv("REFERENCE_SYMBOL", cfg.Market.Reference)
	cfg.Market.Custody = getEnv("CUSTODY_ACCOUNT", cfg.Market.Custody)

	cfg.Store.Backend = getEnv("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.PebblePath = getEnv("PEBBLE_PATH", cfg.Store.PebblePath)
	cfg.Store.DatabaseURL = getEnv("DATABASE_URL", cfg.Store.DatabaseURL)

	cfg.Ledger.Backend = getEnv("LEDGER_BACKEND", cfg.Ledger.Backend)
	if v := os.Getenv("LEDGER_ALLOW_DEPOSIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: LEDGER_ALLOW_DEPOSIT: %w", err)
		}
		cfg.Ledger.AllowDeposit = b
	}

	cfg.Cache.RedisAddr = getEnv("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: REDIS_DB: %w", err)
		}
		cfg.Cache.RedisDB = db
	}
	if v := os.Getenv("CACHE_TTL_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: CACHE_TTL_SEC: %w", err)
		}
		cfg.Cache.TTL = time.Duration(sec) * time.Second
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)

	if v := os.Getenv("ACCOUNT_TOKENS"); v != "" {
		tokens, err := parseTokens(v)
		if err != nil {
			return cfg, err
		}
		cfg.HTTP.Tokens = tokens
	}
	if v := os.Getenv("RATE_LIMIT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: RATE_LIMIT_MS: %w", err)
		}
		cfg.HTTP.RateLimit = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("HTTP_STREAM"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("config: HTTP_STREAM: %w", err)
		}
		cfg.HTTP.Stream = b
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Market.Symbol == "" || c.Market.Reference == "":
		return fmt.Errorf("config: market and reference symbols are required")
	case c.Market.Symbol == c.Market.Reference:
		return fmt.Errorf("config: market symbol %q equals the reference symbol", c.Market.Symbol)
	case c.Market.Custody == "":
		return fmt.Errorf("config: CUSTODY_ACCOUNT is required")
	}
	switch c.Store.Backend {
	case "memory", "pebble":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store.Backend)
	}
	switch c.Ledger.Backend {
	case "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	return nil
}

// parseTokens reads "alice:tok1,bob:tok2".
func parseTokens(s string) (map[string]string, error) {
	res := make(map[string]string)
	for _, pair := range splitList(s) {
		account, token, ok := strings.Cut(pair, ":")
		if !ok || account == "" || token == "" {
			return nil, fmt.Errorf("config: bad ACCOUNT_TOKENS entry %q", pair)
		}
		res[account] = token
	}
	return res, nil
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
