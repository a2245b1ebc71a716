package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/exsim/pkg/chain"
	"github.com/uhyunpark/exsim/pkg/exchange"
	"github.com/uhyunpark/exsim/pkg/exchange/asset"
	"github.com/uhyunpark/exsim/pkg/exchange/book"
)

// Server exposes the exchange over REST and WebSocket.
type Server struct {
	ex           *exchange.Exchange
	bc           *chain.Blockchain
	confirmDelay int
	router       *mux.Router
	hub          *Hub
	log          *zap.Logger
}

// NewServer wires routes against a running exchange. bc may be nil when the
// settlement layer is remote; chain endpoints then return 404.
func NewServer(ex *exchange.Exchange, bc *chain.Blockchain, confirmDelay int, log *zap.Logger) *Server {
	s := &Server{
		ex:           ex,
		bc:           bc,
		confirmDelay: confirmDelay,
		router:       mux.NewRouter(),
		hub:          NewHub(log),
		log:          log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// asset listing
	api.HandleFunc("/assets", s.handleCreateAsset).Methods("POST")
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")
	api.HandleFunc("/assets/{symbol}/holders", s.handleAgentsHolding).Methods("GET")
	api.HandleFunc("/assets/{symbol}/outstanding", s.handleOutstandingShares).Methods("GET")

	// order flow
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/cancel_all", s.handleCancelAll).Methods("POST")

	// market data
	api.HandleFunc("/markets/{ticker}/book", s.handleOrderBook).Methods("GET")
	api.HandleFunc("/markets/{ticker}/trades", s.handleTrades).Methods("GET")
	api.HandleFunc("/markets/{ticker}/trades/latest", s.handleLatestTrade).Methods("GET")
	api.HandleFunc("/markets/{ticker}/trades/archive", s.handleArchivedTrades).Methods("GET")
	api.HandleFunc("/markets/{ticker}/quotes", s.handleQuotes).Methods("GET")
	api.HandleFunc("/markets/{ticker}/bid", s.handleBestBid).Methods("GET")
	api.HandleFunc("/markets/{ticker}/ask", s.handleBestAsk).Methods("GET")
	api.HandleFunc("/markets/{ticker}/mid", s.handleMidprice).Methods("GET")
	api.HandleFunc("/markets/{ticker}/candles", s.handleCandles).Methods("GET")
	api.HandleFunc("/markets/{ticker}/orders/{id}", s.handleGetOrder).Methods("GET")

	// agents
	api.HandleFunc("/agents", s.handleRegisterAgent).Methods("POST")
	api.HandleFunc("/agents", s.handleGetAgents).Methods("GET")
	api.HandleFunc("/agents/{name}", s.handleGetAgent).Methods("GET")
	api.HandleFunc("/agents/{name}/cash", s.handleAddCash).Methods("POST")
	api.HandleFunc("/agents/{name}/cash/withdraw", s.handleRemoveCash).Methods("POST")
	api.HandleFunc("/agents/{name}/cash", s.handleGetCash).Methods("GET")
	api.HandleFunc("/agents/{name}/assets", s.handleAddAsset).Methods("POST")
	api.HandleFunc("/agents/{name}/assets/withdraw", s.handleRemoveAsset).Methods("POST")
	api.HandleFunc("/agents/{name}/assets", s.handleGetAssets).Methods("GET")
	api.HandleFunc("/agents/{name}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/agents/{name}/taxable_events", s.handleTaxableEvents).Methods("GET")
	api.HandleFunc("/agents/{name}/taxable_events/archive", s.handleArchivedTaxableEvents).Methods("GET")

	// cross-agent views
	api.HandleFunc("/positions", s.handleAgentsPositions).Methods("GET")
	api.HandleFunc("/taxable_events", s.handleAllTaxableEvents).Methods("GET")

	// settlement layer
	api.HandleFunc("/chain/status", s.handleChainStatus).Methods("GET")
	api.HandleFunc("/chain/mempool", s.handleMempool).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and blocks on ListenAndServe.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Asset Handlers
// ==============================

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	pair, seedAgent, err := s.ex.CreateAsset(exchange.AssetSpec{
		Base:          req.Base,
		Quote:         req.Quote,
		BaseDecimals:  req.BaseDecimals,
		QuoteDecimals: req.QuoteDecimals,
		MinQty:        req.MinQty,
		MinPrice:      req.MinPrice,
		MinQtyPercent: req.MinQtyPercent,
		SeedPrice:     req.SeedPrice,
		SeedBid:       req.SeedBid,
		SeedAsk:       req.SeedAsk,
		MarketQty:     req.MarketQty,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "create asset failed", err.Error())
		return
	}

	respondJSON(w, map[string]any{
		"pair":       pairInfo(pair),
		"seed_agent": seedAgent,
	})
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	pairs := s.ex.Pairs().List()
	out := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		out[i] = pairInfo(p)
	}
	respondJSON(w, out)
}

func (s *Server) handleAgentsHolding(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	respondJSON(w, s.ex.GetAgentsHolding(symbol))
}

func (s *Server) handleOutstandingShares(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	respondJSON(w, map[string]decimal.Decimal{symbol: s.ex.GetOutstandingShares(symbol)})
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Ticker == "" || req.Agent == "" {
		respondError(w, http.StatusBadRequest, "missing ticker or agent", "")
		return
	}

	var (
		order *book.Order
		err   error
	)
	switch req.Type + ":" + req.Side {
	case "limit:buy":
		order, err = s.ex.LimitBuy(req.Ticker, req.Price, req.Qty, req.Agent)
	case "limit:sell":
		order, err = s.ex.LimitSell(req.Ticker, req.Price, req.Qty, req.Agent)
	case "market:buy":
		order, err = s.ex.MarketBuy(req.Ticker, req.Qty, req.Agent)
	case "market:sell":
		order, err = s.ex.MarketSell(req.Ticker, req.Qty, req.Agent)
	default:
		respondError(w, http.StatusBadRequest, "unknown order kind",
			"type must be limit|market and side buy|sell")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "order rejected", err.Error())
		return
	}

	s.log.Info("order submitted",
		zap.String("id", order.ID),
		zap.String("ticker", req.Ticker),
		zap.String("agent", req.Agent),
		zap.String("status", order.Status.String()))
	respondJSON(w, orderInfo(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	o, err := s.ex.CancelOrder(req.Ticker, req.OrderID)
	if err != nil {
		respondError(w, http.StatusNotFound, "cancel failed", err.Error())
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	var req CancelAllRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	cancelled, err := s.ex.CancelAllOrders(req.Ticker, req.Agent)
	if err != nil {
		respondError(w, http.StatusNotFound, "cancel failed", err.Error())
		return
	}
	respondJSON(w, orderInfos(cancelled))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	o, err := s.ex.GetOrder(vars["ticker"], vars["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "order not found", err.Error())
		return
	}
	respondJSON(w, orderInfo(o))
}

// ==============================
// Market Data Handlers
// ==============================

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	bids, asks, err := s.ex.Depth(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, BookSnapshot{
		Ticker:    ticker,
		Bids:      bids,
		Asks:      asks,
		Timestamp: s.ex.Now(),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit", err.Error())
			return
		}
		limit = n
	}
	trades, err := s.ex.Trades(ticker, limit)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleArchivedTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.ex.ArchivedTrades(mux.Vars(r)["ticker"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive read failed", err.Error())
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleLatestTrade(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	trade, ok, err := s.ex.LatestTrade(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "no trades yet", "")
		return
	}
	respondJSON(w, trade)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	q, err := s.ex.Quotes(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, QuoteInfo{BestBid: orderInfo(q.BestBid), BestAsk: orderInfo(q.BestAsk)})
}

func (s *Server) handleBestBid(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	o, err := s.ex.BestBid(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleBestAsk(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	o, err := s.ex.BestAsk(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleMidprice(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	mid, err := s.ex.Midprice(ticker)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, map[string]decimal.Decimal{"midprice": mid})
}

func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	interval := time.Minute
	if raw := r.URL.Query().Get("interval"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "invalid interval", raw)
			return
		}
		interval = d
	}
	candles, err := s.ex.Candles(ticker, interval)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown ticker", err.Error())
		return
	}
	respondJSON(w, candles)
}

// ==============================
// Agent Handlers
// ==============================

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	a, err := s.ex.RegisterAgent(req.Name, req.InitialAssets)
	if err != nil {
		respondError(w, http.StatusBadRequest, "register failed", err.Error())
		return
	}
	s.log.Info("agent registered", zap.String("name", a.Name))
	respondJSON(w, a)
}

func (s *Server) handleGetAgents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.ex.GetAgents())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.ex.GetAgent(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, a)
}

func (s *Server) handleAddCash(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, func(name string, req BalanceRequest) error {
		return s.ex.AddCash(name, req.Amount, req.Reason)
	})
}

func (s *Server) handleRemoveCash(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, func(name string, req BalanceRequest) error {
		return s.ex.RemoveCash(name, req.Amount)
	})
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, func(name string, req BalanceRequest) error {
		return s.ex.AddAsset(name, req.Asset, req.Amount, req.Reason)
	})
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	s.handleBalanceChange(w, r, func(name string, req BalanceRequest) error {
		return s.ex.RemoveAsset(name, req.Asset, req.Amount)
	})
}

func (s *Server) handleBalanceChange(w http.ResponseWriter, r *http.Request, apply func(string, BalanceRequest) error) {
	name := mux.Vars(r)["name"]
	var req BalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if err := apply(name, req); err != nil {
		respondError(w, http.StatusBadRequest, "balance change failed", err.Error())
		return
	}
	assets, err := s.ex.GetAssets(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, assets)
}

func (s *Server) handleGetCash(w http.ResponseWriter, r *http.Request) {
	cash, err := s.ex.GetCash(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, map[string]decimal.Decimal{"cash": cash})
}

func (s *Server) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.ex.GetAssets(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, assets)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.ex.GetPositions(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, positions)
}

func (s *Server) handleTaxableEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ex.GetTaxableEvents(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, "agent not found", err.Error())
		return
	}
	respondJSON(w, events)
}

func (s *Server) handleArchivedTaxableEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ex.ArchivedTaxableEvents(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive read failed", err.Error())
		return
	}
	respondJSON(w, events)
}

func (s *Server) handleAgentsPositions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.ex.GetAgentsPositions())
}

func (s *Server) handleAllTaxableEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.ex.GetTaxableEvents("")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "taxable events failed", err.Error())
		return
	}
	respondJSON(w, events)
}

// ==============================
// Chain Handlers
// ==============================

func (s *Server) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	if s.bc == nil {
		respondError(w, http.StatusNotFound, "no local settlement layer", "")
		return
	}
	respondJSON(w, ChainStatus{
		MempoolSize:  len(s.bc.GetMempool()),
		PendingLegs:  s.ex.PendingCount(),
		ConfirmDelay: s.confirmDelay,
	})
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	if s.bc == nil {
		respondError(w, http.StatusNotFound, "no local settlement layer", "")
		return
	}
	respondJSON(w, s.bc.GetMempool())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the tick loop)
// ==============================

// BroadcastClock pushes simulation time to "clock" subscribers.
func (s *Server) BroadcastClock(now time.Time) {
	s.hub.BroadcastToChannel("clock", ClockUpdate{Type: "clock", Now: now})
}

// BroadcastTrade pushes one trade to "trades:<ticker>" subscribers.
func (s *Server) BroadcastTrade(trade exchange.Trade) {
	s.hub.BroadcastToChannel("trades:"+trade.Ticker, trade)
}

// BroadcastBook pushes a depth snapshot to "orderbook:<ticker>" subscribers.
func (s *Server) BroadcastBook(ticker string) {
	bids, asks, err := s.ex.Depth(ticker)
	if err != nil {
		return
	}
	s.hub.BroadcastToChannel("orderbook:"+ticker, BookUpdate{
		Type:      "orderbook",
		Ticker:    ticker,
		Bids:      bids,
		Asks:      asks,
		Timestamp: s.ex.Now(),
	})
}

// ==============================
// Helpers
// ==============================

func pairInfo(p *asset.Pair) PairInfo {
	return PairInfo{
		Ticker:        p.Ticker,
		Base:          p.Base,
		Quote:         p.Quote,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
		MinQty:        p.MinQty,
		MinPrice:      p.MinPrice,
		IsActive:      p.IsActive,
		CreatedAt:     p.CreatedAt,
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errStr, Message: message})
}
