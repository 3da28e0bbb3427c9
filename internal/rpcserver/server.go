// Package rpcserver exposes internal/view as a minimal HTTP surface: one
// route per alkanes_* method, rate limited and request-logged. Transport
// framing beyond this plain HTTP+JSON surface is out of scope.
package rpcserver

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alkanes-io/alkanes/internal/alkaneid"
	"github.com/alkanes-io/alkanes/internal/handler"
	"github.com/alkanes-io/alkanes/internal/runetx"
	"github.com/alkanes-io/alkanes/internal/view"
)

// Server wires internal/view behind a chi router.
type Server struct {
	View   *view.View
	Logger *zap.SugaredLogger

	router  chi.Router
	limiter *rate.Limiter
}

// New builds a Server that rate-limits every route to ratePerSec requests
// per second with a burst of one second's worth.
func New(v *view.View, logger *zap.SugaredLogger, ratePerSec int) *Server {
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	s := &Server{
		View:    v,
		Logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.correlate)
	r.Use(s.throttle)

	r.Get("/alkanes/balance_sheet/{txid}/{vout}", s.handleBalanceSheet)
	r.Get("/alkanes/balances_by_address/{script}", s.handleBalancesByAddress)
	r.Get("/alkanes/trace/{txid}/{vout}", s.handleTrace)
	r.Get("/alkanes/traces_by_height/{height}", s.handleTracesByHeight)
	r.Get("/alkanes/bytecode/{block}/{tx}", s.handleBytecode)
	r.Post("/alkanes/simulate", s.handleSimulate)
	r.Get("/alkanes/state_root/{height}", s.handleStateRoot)

	s.router = r
}

// correlate stamps every request with a correlation id, independent of
// chi's own RequestID: a client-supplied X-Correlation-Id is echoed back
// verbatim on any route, otherwise a fresh uuid is generated.
func (s *Server) correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		s.Logger.Infow("request", "path", r.URL.Path, "correlation_id", id, "elapsed", time.Since(start))
	})
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func parseOutpoint(r *http.Request) (runetx.OutPoint, error) {
	txidHex := chi.URLParam(r, "txid")
	voutParam := chi.URLParam(r, "vout")
	hash, err := chainhashFromHex(txidHex)
	if err != nil {
		return runetx.OutPoint{}, err
	}
	vout, err := parseUint32(voutParam)
	if err != nil {
		return runetx.OutPoint{}, err
	}
	return runetx.OutPoint{Hash: hash, Index: vout}, nil
}

func (s *Server) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	op, err := parseOutpoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.View.BalanceSheet(op)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleBalancesByAddress(w http.ResponseWriter, r *http.Request) {
	scriptHex := chi.URLParam(r, "script")
	script, err := hex.DecodeString(scriptHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "script must be hex-encoded")
		return
	}
	out, err := s.View.BalancesByAddress(script)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	op, err := parseOutpoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trace, err := s.View.Trace(op)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trace == nil {
		writeError(w, http.StatusNotFound, "no trace recorded at outpoint")
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func (s *Server) handleTracesByHeight(w http.ResponseWriter, r *http.Request) {
	height, err := parseUint64(chi.URLParam(r, "height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ops, err := s.View.TracesByHeight(height)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleBytecode(w http.ResponseWriter, r *http.Request) {
	block, err := parseUint64(chi.URLParam(r, "block"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := parseUint64(chi.URLParam(r, "tx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	compressed := s.View.Bytecode(alkaneid.AlkaneId{Block: block, Tx: tx})
	if compressed == nil {
		writeError(w, http.StatusNotFound, "no bytecode registered at id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"compressed_hex": hex.EncodeToString(compressed)})
}

// simulateRequest is the wire shape clients POST to /alkanes/simulate.
type simulateRequest struct {
	CellpackHex string `json:"cellpack_hex"`
	Height      uint64 `json:"height"`
	Vout        uint32 `json:"vout"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	cellpack, err := hex.DecodeString(req.CellpackHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cellpack_hex must be hex-encoded")
		return
	}
	result, err := s.View.Simulate(view.SimulateRequest{
		Cellpack: cellpack,
		Context: handler.MessageContextParcel{
			Height: req.Height,
			Vout:   req.Vout,
		},
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStateRoot(w http.ResponseWriter, r *http.Request) {
	height, err := parseUint64(chi.URLParam(r, "height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	root, err := s.View.StateRoot(height)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state_root": root})
}
