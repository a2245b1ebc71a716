package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/num"
)

// AssetSpec describes a new tradable pair and its seed liquidity.
type AssetSpec struct {
	Base          string
	Quote         string
	BaseDecimals  int32
	QuoteDecimals int32
	MinQty        decimal.Decimal
	MinPrice      decimal.Decimal
	MinQtyPercent decimal.Decimal

	// Seeding: the seed agent receives MarketQty of base plus matching
	// quote, prints an opening unit trade at SeedPrice, and quotes a
	// two-sided market at SeedPrice*SeedBid / SeedPrice*SeedAsk.
	SeedPrice decimal.Decimal
	SeedBid   decimal.Decimal // e.g. 0.99
	SeedAsk   decimal.Decimal // e.g. 1.01
	MarketQty decimal.Decimal
}

// seedReserve is the base quantity the seed agent withholds from its resting
// ask: one unit crossing in the opening print plus one unit of fee float.
var seedReserve = num.MustDecimal("2")

// CreateAsset registers a pair and seeds its market. The resulting book for
// the standard fixture (seed 150, bid .99, ask 1.01, qty 1000) is a bid of
// 1 at 148.5 and an ask of 998 at 151.5, with an opening print at 150.
func (ex *Exchange) CreateAsset(spec AssetSpec) (*asset.Pair, string, error) {
	if spec.BaseDecimals == 0 {
		spec.BaseDecimals = 8
	}
	if spec.QuoteDecimals == 0 {
		spec.QuoteDecimals = 2
	}
	if spec.MinQty.Sign() == 0 {
		spec.MinQty = num.MustDecimal("0.00000001")
	}
	if spec.MinPrice.Sign() == 0 {
		spec.MinPrice = num.MustDecimal("0.01")
	}

	now := ex.Now()
	pair, err := asset.NewPair(spec.Base, spec.Quote, spec.BaseDecimals, spec.QuoteDecimals,
		spec.MinQty, spec.MinPrice, spec.MinQtyPercent, now)
	if err != nil {
		return nil, "", err
	}
	if err := ex.pairs.Register(pair); err != nil {
		return nil, "", err
	}

	if spec.MarketQty.Sign() <= 0 || spec.SeedPrice.Sign() <= 0 {
		// listing without seed liquidity
		return pair, "", nil
	}
	if spec.MarketQty.Cmp(seedReserve) <= 0 {
		return pair, "", fmt.Errorf("market qty %s too small to seed %s", spec.MarketQty, pair.Ticker)
	}

	seed, err := ex.agents.Register("init_seed_"+pair.Ticker, map[string]decimal.Decimal{
		spec.Base:  spec.MarketQty,
		spec.Quote: spec.MarketQty.Mul(spec.SeedPrice),
	}, now)
	if err != nil {
		return nil, "", err
	}

	one := decimal.NewFromInt(1)

	// opening print: the seed crosses itself for one unit at the seed price
	if _, err := ex.LimitSell(pair.Ticker, spec.SeedPrice, one, seed.Name); err != nil {
		return nil, "", fmt.Errorf("seed opening ask: %w", err)
	}
	if _, err := ex.MarketBuy(pair.Ticker, one, seed.Name); err != nil {
		return nil, "", fmt.Errorf("seed opening print: %w", err)
	}

	bidPrice := num.Quantize(spec.SeedPrice.Mul(spec.SeedBid), spec.QuoteDecimals)
	askPrice := num.Quantize(spec.SeedPrice.Mul(spec.SeedAsk), spec.QuoteDecimals)

	if _, err := ex.LimitBuy(pair.Ticker, bidPrice, one, seed.Name); err != nil {
		return nil, "", fmt.Errorf("seed bid: %w", err)
	}
	askQty := spec.MarketQty.Sub(seedReserve)
	if _, err := ex.LimitSell(pair.Ticker, askPrice, askQty, seed.Name); err != nil {
		return nil, "", fmt.Errorf("seed ask: %w", err)
	}

	ex.log.Info("asset created",
		zap.String("ticker", pair.Ticker),
		zap.String("seed_price", spec.SeedPrice.String()),
		zap.String("seed_agent", seed.Name))
	return pair, seed.Name, nil
}
