package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Exchange struct {
	// FeeBps is the exchange fee in basis points of notional.
	FeeBps int64
	// NetworkFee is the flat per-order confirmation fee (decimal string).
	NetworkFee string
	// CashAsset is the reference currency for cost basis.
	CashAsset string
}

type Chain struct {
	// ConfirmDelayTicks is how many ticks a transaction waits in the
	// mempool before the simulated miner confirms it.
	ConfirmDelayTicks int
}

type Node struct {
	APIAddr string
	DataDir string
	// TickInterval is the wall-clock pacing of the simulated tick loop.
	TickInterval time.Duration
	// TickStep is how much simulated time advances per tick.
	TickStep time.Duration
}

type Config struct {
	Exchange Exchange
	Chain    Chain
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			FeeBps:     10,
			NetworkFee: "0",
			CashAsset:  "USD",
		},
		Chain: Chain{
			ConfirmDelayTicks: 1,
		},
		Node: Node{
			APIAddr:      ":8080",
			DataDir:      "data",
			TickInterval: 100 * time.Millisecond,
			TickStep:     time.Minute,
		},
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

	if v := os.Getenv("EXCHANGE_FEE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Exchange.FeeBps = n
		}
	}
	if v := os.Getenv("EXCHANGE_NETWORK_FEE"); v != "" {
		cfg.Exchange.NetworkFee = v
	}
	if v := os.Getenv("EXCHANGE_CASH_ASSET"); v != "" {
		cfg.Exchange.CashAsset = v
	}
	if v := os.Getenv("CHAIN_CONFIRM_DELAY_TICKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chain.ConfirmDelayTicks = n
		}
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.Node.APIAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("TICK_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.TickInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("TICK_STEP_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Node.TickStep = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}
