/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to ledger.Ledger, subtotal and virtual.

ENDPOINTS:
  Vouchers:
    POST   /api/vouchers              Normalize and save a voucher
    GET    /api/vouchers/{id}         Get one voucher
    PUT    /api/vouchers/{id}         Normalize and replace a voucher
    DELETE /api/vouchers/{id}         Delete one voucher
    POST   /api/vouchers/query        Select vouchers by query tree
    POST   /api/vouchers/delete       Bulk delete by query tree (force for broad queries)

  Legs & reports:
    POST   /api/details/query         Flattened legs
    POST   /api/subtotal              Subtotal tree or text report
    POST   /api/normalize             Dry-run normalization, nothing saved

  Batch:
    POST   /api/batch                 Several mutations in one overlay

  Scenarios:
    GET    /api/scenarios             List demo data sets
    POST   /api/scenarios/load        Load a demo data set

ACTING USER:
  The X-Ledger-User header names the user legs default to. Without it
  the handler's DefaultUser is used.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: malformed query/spec/body, ambiguous normalization, missing rate
  - 404: voucher not found
  - 409: dangerous query without force
  - 500: store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data sets
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/ledger-engine/exchange"
	"github.com/warp/ledger-engine/generic"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/subtotal"
	"github.com/warp/ledger-engine/virtual"
	"go.uber.org/zap"
)

// UserHeader names the acting user of a request.
const UserHeader = "X-Ledger-User"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger      *ledger.Ledger
	Rates       *exchange.Table
	Logger      *zap.Logger
	DefaultUser string
}

// NewHandler creates a new handler over l. rates may be nil when no
// currency equivalence is configured.
func NewHandler(l *ledger.Ledger, rates *exchange.Table, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Ledger: l, Rates: rates, Logger: logger, DefaultUser: "anonymous"}
}

func (h *Handler) requestContext(r *http.Request) ledger.RequestContext {
	user := r.Header.Get(UserHeader)
	if user == "" {
		user = h.DefaultUser
	}
	return ledger.NewRequestContext(user)
}

// =============================================================================
// VOUCHER HANDLERS
// =============================================================================

func (h *Handler) CreateVoucher(w http.ResponseWriter, r *http.Request) {
	var v ledger.Voucher
	if !decode(w, r, &v) {
		return
	}
	saved, err := h.Ledger.Save(r.Context(), v, h.requestContext(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (h *Handler) PutVoucher(w http.ResponseWriter, r *http.Request) {
	var v ledger.Voucher
	if !decode(w, r, &v) {
		return
	}
	v.ID = chi.URLParam(r, "id")
	saved, err := h.Ledger.Save(r.Context(), v, h.requestContext(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	v, err := h.Ledger.Voucher(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) DeleteVoucher(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) QueryVouchers(w http.ResponseWriter, r *http.Request) {
	var req QueryVouchersRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := DecodeVoucherQuery(req.Query)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	vs, err := h.Ledger.Vouchers(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if vs == nil {
		vs = []ledger.Voucher{}
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *Handler) DeleteVouchers(w http.ResponseWriter, r *http.Request) {
	var req DeleteVouchersRequest
	if !decode(w, r, &req) {
		return
	}
	q, err := DecodeVoucherQuery(req.Query)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	n, err := h.Ledger.RemoveWhere(r.Context(), q, req.Force)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteVouchersResponse{Deleted: n})
}

// =============================================================================
// LEGS & REPORTS
// =============================================================================

func (h *Handler) QueryDetails(w http.ResponseWriter, r *http.Request) {
	var req DetailQueryDTO
	if !decode(w, r, &req) {
		return
	}
	q, err := req.DetailQuery()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	legs, err := h.Ledger.Details(r.Context(), q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if legs == nil {
		legs = []ledger.Balance{}
	}
	writeJSON(w, http.StatusOK, legs)
}

func (h *Handler) Subtotal(w http.ResponseWriter, r *http.Request) {
	var req SubtotalRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := EvaluateSubtotal(r.Context(), h.Ledger, h.Rates, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// EvaluateSubtotal reads the legs selected by req through l and returns
// either the result tree or, with Format set, the rendered text.
func EvaluateSubtotal(ctx context.Context, l *ledger.Ledger, rates *exchange.Table, req SubtotalRequest) (*SubtotalResponse, error) {
	q, err := req.Query.DetailQuery()
	if err != nil {
		return nil, err
	}
	spec, err := req.Spec.Spec()
	if err != nil {
		return nil, err
	}
	records, err := subtotal.Fetch(ctx, legSource{l}, q, spec, rates)
	if err != nil {
		return nil, err
	}

	if req.Format != "" {
		text, err := subtotal.Render(spec, records, subtotal.ParseStyle(req.Format))
		if err != nil {
			return nil, err
		}
		return &SubtotalResponse{Text: text}, nil
	}
	root, err := subtotal.Build(spec, records)
	if err != nil {
		return nil, err
	}
	node := NewSubtotalNode(root)
	return &SubtotalResponse{Root: &node}, nil
}

// legSource reads legs through the ledger so queries get validated.
type legSource struct{ l *ledger.Ledger }

func (s legSource) SelectDetails(ctx context.Context, q ledger.DetailQuery) ([]ledger.Balance, error) {
	return s.l.Details(ctx, q)
}

func (h *Handler) Normalize(w http.ResponseWriter, r *http.Request) {
	var v ledger.Voucher
	if !decode(w, r, &v) {
		return
	}
	norm, err := h.Ledger.Normalizer.Normalize(v, h.requestContext(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, norm)
}

// =============================================================================
// BATCH
// =============================================================================

// Batch applies every operation through one overlay, committing only if
// all of them succeed.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	rc := h.requestContext(r)
	resp := BatchResponse{Results: []BatchResult{}}

	err := virtual.Run(ctx, h.Ledger.Store, func(o *virtual.Overlay) error {
		l := h.Ledger.WithStore(o)
		for _, op := range req.Operations {
			res, err := applyOperation(ctx, l, rc, op)
			if err != nil {
				return err
			}
			resp.Results = append(resp.Results, res)
		}
		if req.Preview != nil {
			preview, err := EvaluateSubtotal(ctx, l, h.Rates, *req.Preview)
			if err != nil {
				return err
			}
			resp.Preview = preview
		}
		if req.DryRun {
			return o.Abort()
		}
		return nil
	}, virtual.WithLogger(h.Logger))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp.Committed = !req.DryRun
	writeJSON(w, http.StatusOK, resp)
}

func applyOperation(ctx context.Context, l *ledger.Ledger, rc ledger.RequestContext, op BatchOperation) (BatchResult, error) {
	res := BatchResult{Op: op.Op}
	switch op.Op {
	case OpSave:
		if op.Voucher == nil {
			return res, errBadOperation("save needs a voucher")
		}
		saved, err := l.Save(ctx, *op.Voucher, rc)
		if err != nil {
			return res, err
		}
		res.Voucher = &saved
	case OpRemove:
		if err := l.Remove(ctx, op.ID); err != nil {
			return res, err
		}
	case OpRemoveWhere:
		q, err := DecodeVoucherQuery(op.Query)
		if err != nil {
			return res, err
		}
		if res.Deleted, err = l.RemoveWhere(ctx, q, op.Force); err != nil {
			return res, err
		}
	default:
		return res, errBadOperation("unknown operation " + op.Op)
	}
	return res, nil
}

// badRequest marks errors caused by the request body itself.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func errBadOperation(msg string) error { return &badRequest{msg: msg} }

// =============================================================================
// HELPERS
// =============================================================================

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var bad *badRequest
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", "not_found", err)
	case errors.Is(err, generic.ErrDangerousQuery):
		writeError(w, http.StatusConflict, "Query too broad, retry with force", "dangerous_query", err)
	case errors.Is(err, generic.ErrAmbiguousNormalization):
		writeError(w, http.StatusBadRequest, "Voucher cannot be normalized", "ambiguous_normalization", err)
	case errors.Is(err, generic.ErrNoExchangeRate):
		writeError(w, http.StatusBadRequest, "Missing exchange rate", "no_exchange_rate", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid query", "malformed", err)
	case errors.As(err, &bad):
		writeError(w, http.StatusBadRequest, "Invalid request", "invalid_body", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", "", err)
	}
}
