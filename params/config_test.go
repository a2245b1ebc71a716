package params

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(10), cfg.Exchange.FeeBps)
	assert.Equal(t, "0", cfg.Exchange.NetworkFee)
	assert.Equal(t, "USD", cfg.Exchange.CashAsset)
	assert.Equal(t, 1, cfg.Chain.ConfirmDelayTicks)
	assert.Equal(t, ":8080", cfg.Node.APIAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.Node.TickInterval)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_FEE_BPS", "25")
	t.Setenv("EXCHANGE_NETWORK_FEE", "0.001")
	t.Setenv("EXCHANGE_CASH_ASSET", "EUR")
	t.Setenv("CHAIN_CONFIRM_DELAY_TICKS", "3")
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("TICK_STEP_MS", "60000")

	cfg := LoadFromEnv("")
	assert.Equal(t, int64(25), cfg.Exchange.FeeBps)
	assert.Equal(t, "0.001", cfg.Exchange.NetworkFee)
	assert.Equal(t, "EUR", cfg.Exchange.CashAsset)
	assert.Equal(t, 3, cfg.Chain.ConfirmDelayTicks)
	assert.Equal(t, ":9090", cfg.Node.APIAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.Node.TickInterval)
	assert.Equal(t, time.Minute, cfg.Node.TickStep)
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("EXCHANGE_FEE_BPS", "not-a-number")
	t.Setenv("TICK_INTERVAL_MS", "soon")

	cfg := LoadFromEnv("")
	assert.Equal(t, int64(10), cfg.Exchange.FeeBps, "unparseable values keep defaults")
	assert.Equal(t, 100*time.Millisecond, cfg.Node.TickInterval)
}
