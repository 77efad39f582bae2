package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"editionmarket/native/assets"
	"editionmarket/native/market"
	"editionmarket/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeRejected       = -32030
)

// Server exposes the market engine and asset ledger over JSON-RPC 2.0.
type Server struct {
	engine *market.Engine
	ledger *assets.Ledger
	logger *slog.Logger
}

// NewServer constructs an RPC server bound to the supplied engines.
func NewServer(engine *market.Engine, ledger *assets.Ledger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, ledger: ledger, logger: logger}
}

// RPCRequest is the inbound JSON-RPC envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// RPCResponse is the outbound JSON-RPC envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError carries a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, id interface{}, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(RPCResponse{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Result:  result,
	})
}

// rejectionErrors is the precondition taxonomy surfaced to callers with the
// dedicated rejection code so clients can distinguish "your request was
// invalid" from engine faults.
var rejectionErrors = []error{
	market.ErrOnlyApprovedCreators,
	market.ErrZeroEditions,
	market.ErrInvalidFixedTime,
	market.ErrIncorrectTime,
	market.ErrEditionsExceedCap,
	market.ErrWrongPercentages,
	market.ErrZeroPrice,
	market.ErrWrongPrice,
	market.ErrWrongEdition,
	market.ErrAlreadySold,
	market.ErrAuctionEnded,
	market.ErrAuctionRunning,
	market.ErrBidTooLow,
	market.ErrNoActiveBid,
	market.ErrNotBidWinner,
	market.ErrNotHolder,
	market.ErrNotSeller,
	market.ErrNotSaleMode,
	market.ErrNotEligible,
	market.ErrNotApprovedOperator,
	market.ErrNothingToClaim,
	market.ErrOrderNotFound,
	market.ErrWorkNotFound,
	market.ErrEditionNotFound,
	market.ErrInsufficientFunds,
	market.ErrAlreadyBurned,
	market.ErrFeeTooHigh,
}

func isRejection(err error) bool {
	for _, candidate := range rejectionErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, method string, err error) {
	if isRejection(err) {
		observability.MarketMetrics().Reject(method, err.Error())
		writeError(w, id, http.StatusOK, codeRejected, err.Error())
		return
	}
	s.logger.Error("rpc handler failed", "method", method, "err", err)
	writeError(w, id, http.StatusInternalServerError, codeServerError, err.Error())
}

type handlerFunc func(w http.ResponseWriter, req *RPCRequest)

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"market_mint":              s.handleMint,
		"market_setMaxEditions":    s.handleSetMaxEditions,
		"market_approveCreators":   s.handleApproveCreators,
		"market_buyNow":            s.handleBuyNow,
		"market_secondHand":        s.handleSecondHand,
		"market_putOnSaleBuy":      s.handlePutOnSaleBuy,
		"market_placeBid":          s.handlePlaceBid,
		"market_claimAfterAuction": s.handleClaimAfterAuction,
		"market_requestOffer":      s.handleRequestOffer,
		"market_claimBack":         s.handleClaimBack,
		"market_acceptOffer":       s.handleAcceptOffer,
		"market_transfer":          s.handleTransfer,
		"market_burnEdition":       s.handleBurnEdition,
		"market_getOrder":          s.handleGetOrder,
		"market_getWork":           s.handleGetWork,
		"market_getHolder":         s.handleGetHolder,
		"market_getBid":            s.handleGetBid,
		"assets_balanceOf":         s.handleBalanceOf,
		"assets_setApprovalForAll": s.handleSetApprovalForAll,
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, http.StatusBadRequest, codeParseError, "unable to read request body")
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, nil, http.StatusBadRequest, codeParseError, "invalid JSON payload")
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, req.ID, http.StatusBadRequest, codeInvalidRequest, "unsupported jsonrpc version")
		return
	}
	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, req.ID, http.StatusNotFound, codeMethodNotFound, "unknown method "+req.Method)
		return
	}
	started := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(rec, req)
	outcome := "ok"
	if rec.status >= http.StatusBadRequest {
		outcome = "error"
	}
	observability.MarketMetrics().Observe(req.Method, outcome, time.Since(started))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Router assembles the HTTP surface: the JSON-RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/rpc", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves the RPC surface on the supplied address, blocking until the
// listener fails.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("rpc listening", "addr", addr)
	return srv.ListenAndServe()
}
