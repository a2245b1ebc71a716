package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one matched execution on a ticker's book, recorded at match time.
// The book is optimistic: a trade appears on the tape before its settlement
// legs confirm.
type Trade struct {
	Ticker    string          `json:"ticker"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	Taker     string          `json:"taker"`
	Maker     string          `json:"maker"`
	TakerSide string          `json:"taker_side"`
	DT        time.Time       `json:"dt"`
}

// Candle is one OHLCV bucket of simulated time.
type Candle struct {
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	DT     time.Time       `json:"dt"` // bucket start
}

// candlesFrom buckets trades by interval. Trades are already in time order;
// empty buckets are skipped rather than forward-filled.
func candlesFrom(trades []Trade, interval time.Duration) []Candle {
	if interval <= 0 || len(trades) == 0 {
		return nil
	}
	var out []Candle
	var cur *Candle
	for _, tr := range trades {
		bucket := tr.DT.Truncate(interval)
		if cur == nil || !cur.DT.Equal(bucket) {
			out = append(out, Candle{
				Open: tr.Price, High: tr.Price, Low: tr.Price, Close: tr.Price,
				Volume: tr.Qty, DT: bucket,
			})
			cur = &out[len(out)-1]
			continue
		}
		if tr.Price.Cmp(cur.High) > 0 {
			cur.High = tr.Price
		}
		if tr.Price.Cmp(cur.Low) < 0 {
			cur.Low = tr.Price
		}
		cur.Close = tr.Price
		cur.Volume = cur.Volume.Add(tr.Qty)
	}
	return out
}
