// Package api is the HTTP/WebSocket collaborator around the trading core:
// a thin REST surface over the engine's calls plus a broadcast feed of its
// post-commit events. Transport only; every rule lives in the core.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/verex-dex/verex/pkg/amm"
	"github.com/verex-dex/verex/pkg/book"
	"github.com/verex-dex/verex/pkg/engine"
	"github.com/verex-dex/verex/pkg/ledger"
	"github.com/verex-dex/verex/pkg/match"
)

// Server hosts the REST API and the WebSocket hub.
type Server struct {
	engine        *engine.Engine
	router        *mux.Router
	hub           *Hub
	log           *zap.SugaredLogger
	defaultFeeBps int64
	origins       []string
}

type Options struct {
	DefaultFeeBps  int64
	AllowedOrigins []string
}

func NewServer(e *engine.Engine, log *zap.SugaredLogger, opts Options) *Server {
	s := &Server{
		engine:        e,
		router:        mux.NewRouter(),
		hub:           NewHub(log),
		log:           log,
		defaultFeeBps: opts.DefaultFeeBps,
		origins:       opts.AllowedOrigins,
	}
	s.setupRoutes()
	return s
}

// Hub returns the WebSocket hub so the event pump can broadcast into it.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Tokens & balances
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleRegisterToken).Methods("POST")
	api.HandleFunc("/accounts/{account}/balances/{token}", s.handleBalance).Methods("GET")
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")

	// AMM
	api.HandleFunc("/pools", s.handleListPools).Methods("GET")
	api.HandleFunc("/pools", s.handleCreatePool).Methods("POST")
	api.HandleFunc("/pools/{id:.+}", s.handleGetPool).Methods("GET")
	api.HandleFunc("/liquidity/add", s.handleAddLiquidity).Methods("POST")
	api.HandleFunc("/liquidity/remove", s.handleRemoveLiquidity).Methods("POST")
	api.HandleFunc("/swap", s.handleSwap).Methods("POST")
	api.HandleFunc("/swap/quote", s.handleQuote).Methods("POST")

	// Order book
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets/{symbol}/book", s.handleOrderBook).Methods("GET")
	api.HandleFunc("/markets/{symbol}/best", s.handleBestBidAsk).Methods("GET")
	api.HandleFunc("/markets/{symbol}/trades", s.handleTrades).Methods("GET")
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ---- helpers ----

func (s *Server) respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Warnw("response_encode_failed", "err", err)
		}
	}
}

// respondError maps core error kinds onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	code := http.StatusBadRequest
	switch {
	case errors.Is(err, match.ErrMarketNotFound),
		errors.Is(err, match.ErrOrderNotFound),
		errors.Is(err, amm.ErrPathNotFound),
		errors.Is(err, amm.ErrPoolNotFound),
		errors.Is(err, engine.ErrUnknownToken):
		code = http.StatusNotFound
	case errors.Is(err, match.ErrMarketExists):
		code = http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, amm.ErrInsufficientShares):
		code = http.StatusUnprocessableEntity
	}
	s.respond(w, code, ErrorResponse{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "buy":
		return book.Buy, nil
	case "sell":
		return book.Sell, nil
	}
	return 0, errors.New("side must be \"buy\" or \"sell\"")
}

func parseType(s string) (book.Type, error) {
	switch s {
	case "", "limit":
		return book.Limit, nil
	case "market":
		return book.Market, nil
	}
	return 0, errors.New("type must be \"limit\" or \"market\"")
}

// ---- handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTokens(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Tokens())
}

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req RegisterTokenRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	t, err := s.engine.RegisterToken(req.Symbol, req.Decimals)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, t)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account, token := vars["account"], vars["token"]
	s.respond(w, http.StatusOK, BalanceResponse{
		Account: account,
		Token:   token,
		Amount:  s.engine.BalanceOf(account, token),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.engine.Deposit(req.Account, req.Token, req.Amount); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, BalanceResponse{
		Account: req.Account,
		Token:   req.Token,
		Amount:  s.engine.BalanceOf(req.Account, req.Token),
	})
}

func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Pools())
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	fee := s.defaultFeeBps
	if req.FeeBps != nil {
		fee = *req.FeeBps
	}
	id, err := s.engine.CreatePool(req.TokenA, req.TokenB, fee)
	if err != nil {
		s.respondError(w, err)
		return
	}
	st, err := s.engine.Pool(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, st)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Pool(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, st)
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	usedA, usedB, shares, err := s.engine.AddLiquidity(req.Pool, req.Provider, req.AmountA, req.AmountB, req.MinShares)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, LiquidityResponse{AmountA: usedA, AmountB: usedB, Shares: shares})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	amountA, amountB, err := s.engine.RemoveLiquidity(req.Pool, req.Provider, req.Shares, req.MinA, req.MinB)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, LiquidityResponse{AmountA: amountA, AmountB: amountB, Shares: req.Shares})
}

// handleSwap dispatches on the request shape: direct pool swap, explicit
// path, or auto-routed endpoints.
func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	switch {
	case req.Pool != "":
		out, err := s.engine.Swap(req.Pool, req.Trader, req.TokenIn, req.AmountIn, req.MinAmountOut)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusOK, SwapResponse{AmountOut: out})
	case len(req.Path) >= 2:
		out, err := s.engine.MultiTokenSwap(req.Trader, req.Path, req.AmountIn, req.MinAmountOut)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusOK, SwapResponse{AmountOut: out, Path: req.Path})
	default:
		out, path, err := s.engine.RouteSwap(req.Trader, req.TokenIn, req.TokenOut, req.AmountIn, req.MinAmountOut)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusOK, SwapResponse{AmountOut: out, Path: path})
	}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	out, err := s.engine.QuotePath(req.Path, req.AmountIn)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, SwapResponse{AmountOut: out, Path: req.Path})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Markets())
}

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	m, err := s.engine.CreateMarket(req.Base, req.Quote)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, m)
}

func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	bids, asks, err := s.engine.OrderBook(symbol)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"market": symbol, "bids": bids, "asks": asks})
}

func (s *Server) handleBestBidAsk(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	bid, ask, hasBid, hasAsk, err := s.engine.BestBidAsk(symbol)
	if err != nil {
		s.respondError(w, err)
		return
	}
	resp := BestBidAskResponse{Market: symbol}
	if hasBid {
		resp.Bid = &bid
	}
	if hasAsk {
		resp.Ask = &ask
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	n := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	trades, err := s.engine.Trades(symbol, n)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, trades)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		s.respondError(w, err)
		return
	}
	typ, err := parseType(req.Type)
	if err != nil {
		s.respondError(w, err)
		return
	}
	res, err := s.engine.SubmitOrder(req.Market, req.Owner, side, typ, req.Price, req.Qty)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.engine.CancelOrder(req.Market, req.OrderID); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
