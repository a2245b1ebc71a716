package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/params"
	"github.com/uhyunpark/exsim/pkg/api"
	"github.com/uhyunpark/exsim/pkg/archive"
	"github.com/uhyunpark/exsim/pkg/chain"
	"github.com/uhyunpark/exsim/pkg/exchange"
	"github.com/uhyunpark/exsim/pkg/exchange/agent"
	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/num"
	"github.com/uhyunpark/exsim/pkg/strategy"
	"github.com/uhyunpark/exsim/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.Node.DataDir, "exchange.log")
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("logger initialized", zap.String("log_file", logFile))

	networkFee, err := num.Parse(cfg.Exchange.NetworkFee)
	if err != nil {
		logger.Fatal("bad network fee", zap.String("value", cfg.Exchange.NetworkFee), zap.Error(err))
	}

	// ---- Persistence ----
	ledger, err := agent.NewLedger(filepath.Join(cfg.Node.DataDir, "agents"), logger)
	if err != nil {
		logger.Fatal("agent ledger", zap.Error(err))
	}
	defer ledger.Close()

	arch, err := archive.Open(filepath.Join(cfg.Node.DataDir, "archive"))
	if err != nil {
		logger.Fatal("archive", zap.Error(err))
	}
	defer arch.Close()

	// ---- Settlement layer ----
	bc := chain.NewBlockchain(logger)
	miner := chain.NewMiner(bc, cfg.Chain.ConfirmDelayTicks, logger)

	// ---- Exchange ----
	clock := util.NewSimClock(time.Now())
	ex, err := exchange.New(asset.NewRegistry(), ledger, bc, arch, exchange.Options{
		FeeBps:     cfg.Exchange.FeeBps,
		NetworkFee: networkFee,
		CashAsset:  cfg.Exchange.CashAsset,
	}, clock.Now(), logger)
	if err != nil {
		logger.Fatal("exchange init", zap.Error(err))
	}

	tickers := seedMarkets(ex, cfg, logger)
	runners := startBots(ex, tickers, logger)

	// ---- API Server ----
	apiServer := api.NewServer(ex, bc, cfg.Chain.ConfirmDelayTicks, logger)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("exchange starting",
		zap.String("api_addr", cfg.Node.APIAddr),
		zap.Duration("tick_interval", cfg.Node.TickInterval),
		zap.Duration("tick_step", cfg.Node.TickStep),
		zap.Int("confirm_delay_ticks", cfg.Chain.ConfirmDelayTicks))

	// ---- Tick loop ----
	// Each tick: advance simulated time, let strategies act, mine
	// confirmations, reconcile pending settlement, broadcast market data.
	seen := make(map[string]int)
	ticker := time.NewTicker(cfg.Node.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			now := clock.Advance(cfg.Node.TickStep)
			ex.ObserveTime(now)

			for _, r := range runners {
				r.Step()
			}

			miner.Tick()
			ex.Next(now)

			apiServer.BroadcastClock(now)
			for _, t := range tickers {
				broadcastNewTrades(ex, apiServer, t, seen)
				apiServer.BroadcastBook(t)
			}
		}
	}
}

// seedMarkets lists the default market unless SEED_MARKET=false. Returns
// the tickers in play.
func seedMarkets(ex *exchange.Exchange, cfg params.Config, logger *zap.Logger) []string {
	if os.Getenv("SEED_MARKET") == "false" {
		return nil
	}

	pair, seedAgent, err := ex.CreateAsset(exchange.AssetSpec{
		Base:      "BTC",
		Quote:     cfg.Exchange.CashAsset,
		SeedPrice: num.MustDecimal("150"),
		SeedBid:   num.MustDecimal("0.99"),
		SeedAsk:   num.MustDecimal("1.01"),
		MarketQty: num.MustDecimal("1000"),
	})
	if err != nil {
		logger.Fatal("seed market", zap.Error(err))
	}
	logger.Info("market seeded",
		zap.String("ticker", pair.Ticker),
		zap.String("seed_agent", seedAgent))
	return []string{pair.Ticker}
}

// startBots registers maker/taker agents and wires their runners when
// ENABLE_BOTS=true. BOT_SEED fixes the taker's coin flips.
func startBots(ex *exchange.Exchange, tickers []string, logger *zap.Logger) []*strategy.Runner {
	if os.Getenv("ENABLE_BOTS") != "true" || len(tickers) == 0 {
		return nil
	}

	seed := time.Now().UnixNano()
	if raw := os.Getenv("BOT_SEED"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			seed = n
		}
	}
	rng := rand.New(rand.NewSource(seed))

	var runners []*strategy.Runner
	for _, t := range tickers {
		pair, err := ex.Pairs().Get(t)
		if err != nil {
			continue
		}

		maker, err := ex.RegisterAgent("bot_maker", map[string]decimal.Decimal{
			pair.Quote: num.MustDecimal("100000"),
			pair.Base:  num.MustDecimal("100"),
		})
		if err != nil {
			logger.Fatal("register maker", zap.Error(err))
		}
		taker, err := ex.RegisterAgent("bot_taker", map[string]decimal.Decimal{
			pair.Quote: num.MustDecimal("50000"),
			pair.Base:  num.MustDecimal("50"),
		})
		if err != nil {
			logger.Fatal("register taker", zap.Error(err))
		}

		runners = append(runners,
			strategy.NewRunner(ex,
				strategy.NewNaiveMarketMaker(num.MustDecimal("0.005"), num.MustDecimal("1")),
				maker.Name, t, pair.Base, logger),
			strategy.NewRunner(ex,
				strategy.NewRandomMarketTaker(rng, 0.5, num.MustDecimal("0.5")),
				taker.Name, t, pair.Base, logger),
		)
		logger.Info("bots started",
			zap.String("ticker", t),
			zap.String("maker", maker.Name),
			zap.String("taker", taker.Name),
			zap.Int64("seed", seed))
	}
	return runners
}

// broadcastNewTrades pushes trades appended to the tape since the last tick.
func broadcastNewTrades(ex *exchange.Exchange, srv *api.Server, ticker string, seen map[string]int) {
	trades, err := ex.Trades(ticker, 0)
	if err != nil {
		return
	}
	for _, trade := range trades[seen[ticker]:] {
		srv.BroadcastTrade(trade)
	}
	seen[ticker] = len(trades)
}
