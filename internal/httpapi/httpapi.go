// Package httpapi is a thin manual-operation surface over the reconciliation
// core: a health check, a way to trigger one monitor cycle on demand, and a
// read endpoint over a single account/token's stored balance-change history.
// It exists for smoke testing the core end-to-end, not as the engine's
// primary interface — the query/export/chart read surface and the
// monitored-account CRUD surface a production deployment would sit in front
// of this core are not elaborated here.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nearwatch/reconciler/internal/monitor"
	"github.com/nearwatch/reconciler/internal/store"
	"github.com/nearwatch/reconciler/internal/tokenid"
)

// ChainHead resolves the current block height to reconcile up to, when a
// manual cycle request doesn't pin one explicitly.
type ChainHead interface {
	LatestBlockHeight(ctx context.Context) (uint64, error)
}

// BalanceChangeLister is the read surface the history endpoint drives off of.
type BalanceChangeLister interface {
	ListBalanceChanges(ctx context.Context, accountID, tokenID string, limit int) ([]store.BalanceChangeRecord, error)
}

// Server wires the monitor cycle and the stored balance-change history
// behind a handful of routes.
type Server struct {
	mon   *monitor.Monitor
	store BalanceChangeLister
	head  ChainHead
	mux   *http.ServeMux
}

// New constructs a Server and registers its routes.
func New(mon *monitor.Monitor, st BalanceChangeLister, head ChainHead) *Server {
	s := &Server{mon: mon, store: st, head: head, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /cycles", s.handleRunCycle)
	s.mux.HandleFunc("GET /accounts/{accountID}/tokens/{tokenID}/balance-changes", s.handleListBalanceChanges)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runCycleRequest struct {
	UpToBlock uint64 `json:"upToBlock"`
}

// handleRunCycle triggers one monitor cycle synchronously, pinning
// upToBlock to the request body's value if given, else the chain's current
// head. Meant for manual operation and smoke testing, not production
// scheduling — the ticker loop in cmd/reconciler owns that.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	var req runCycleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	upToBlock := req.UpToBlock
	if upToBlock == 0 {
		head, err := s.head.LatestBlockHeight(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		upToBlock = head
	}

	result, err := s.mon.RunCycle(r.Context(), upToBlock)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleResultView{
		AccountsVisited: result.AccountsVisited,
		TokensProcessed: result.TokensProcessed,
		Errors:          errorStrings(result.Errors),
	})
}

// cycleResultView is CycleResult reshaped for JSON: error is an interface
// with no exported fields, so it renders as "{}" unless converted to text
// first.
type cycleResultView struct {
	AccountsVisited int      `json:"accountsVisited"`
	TokensProcessed int      `json:"tokensProcessed"`
	Errors          []string `json:"errors"`
}

func errorStrings(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// handleListBalanceChanges returns up to `limit` (default 100) stored
// records for one account/token pair, oldest first.
func (s *Server) handleListBalanceChanges(w http.ResponseWriter, r *http.Request) {
	accountID := r.PathValue("accountID")
	rawToken := r.PathValue("tokenID")
	token := tokenid.Parse(rawToken)

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer, got %q", q))
			return
		}
		limit = n
	}

	recs, err := s.store.ListBalanceChanges(r.Context(), accountID, token.String(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
