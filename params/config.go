package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// API configures the HTTP/WebSocket collaborator.
type API struct {
	Addr           string
	AllowedOrigins []string
}

// Storage configures where the event journal lives.
type Storage struct {
	JournalPath string
}

// Engine tunes the trading core.
type Engine struct {
	DefaultFeeBps int64 // pool fee used when the API caller does not set one
	MaxHops       int   // bound for multi-hop route search
	TradeHistory  int   // recent trades kept per market
	EventBuffer   int   // post-commit event channel capacity
}

type Config struct {
	API     API
	Storage Storage
	Engine  Engine
	LogFile string
}

func Default() Config {
	return Config{
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Storage: Storage{
			JournalPath: "data/journal",
		},
		Engine: Engine{
			DefaultFeeBps: 30,
			MaxHops:       4,
			TradeHistory:  1024,
			EventBuffer:   4096,
		},
		LogFile: "data/node.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("API_ALLOWED_ORIGINS"); v != "" {
		cfg.API.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Storage.JournalPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DEFAULT_FEE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 && n < 10000 {
			cfg.Engine.DefaultFeeBps = n
		}
	}
	if v := os.Getenv("MAX_HOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.MaxHops = n
		}
	}
	if v := os.Getenv("TRADE_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Engine.TradeHistory = n
		}
	}
	if v := os.Getenv("EVENT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Engine.EventBuffer = n
		}
	}

	return cfg
}
