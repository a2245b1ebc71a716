package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/exsim/pkg/num"
)

func tradeAt(price, qty string, dt time.Time) Trade {
	return Trade{Ticker: "BTCUSD", Price: num.MustDecimal(price), Qty: num.MustDecimal(qty), DT: dt}
}

func TestCandlesFrom(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	trades := []Trade{
		tradeAt("150", "1", t0.Add(5*time.Second)),
		tradeAt("155", "2", t0.Add(20*time.Second)),
		tradeAt("149", "1", t0.Add(40*time.Second)),
		tradeAt("152", "1", t0.Add(59*time.Second)),
		// next bucket, with a gap before the one after
		tradeAt("153", "3", t0.Add(70*time.Second)),
		tradeAt("160", "1", t0.Add(200*time.Second)),
	}

	candles := candlesFrom(trades, time.Minute)
	require.Len(t, candles, 3, "empty buckets are skipped")

	first := candles[0]
	assert.Equal(t, t0, first.DT)
	assert.True(t, first.Open.Equal(num.MustDecimal("150")))
	assert.True(t, first.High.Equal(num.MustDecimal("155")))
	assert.True(t, first.Low.Equal(num.MustDecimal("149")))
	assert.True(t, first.Close.Equal(num.MustDecimal("152")))
	assert.True(t, first.Volume.Equal(num.MustDecimal("5")))

	assert.Equal(t, t0.Add(time.Minute), candles[1].DT)
	assert.True(t, candles[1].Volume.Equal(num.MustDecimal("3")))
	assert.Equal(t, t0.Add(3*time.Minute), candles[2].DT)
}

func TestCandlesFromEmpty(t *testing.T) {
	assert.Nil(t, candlesFrom(nil, time.Minute))
	assert.Nil(t, candlesFrom([]Trade{tradeAt("150", "1", time.Now())}, 0))
}
