package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/paybot/internal/auth"
	"github.com/iurnickita/paybot/internal/gzip"
	"github.com/iurnickita/paybot/internal/handler/config"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/logger"
	"github.com/iurnickita/paybot/internal/model"
	"github.com/iurnickita/paybot/internal/reconcile"
	"github.com/iurnickita/paybot/internal/service"
)

const shutdownTimeout = 5 * time.Second

func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, cfg.ServerAddr, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zaplog.Error("http shutdown", zap.Error(err))
		}
	}()

	zaplog.Info("http server started", zap.String("addr", cfg.ServerAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type handler struct {
	auth     auth.Auth
	service  service.Service
	baseaddr string
	zaplog   *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, baseaddr string, zaplog *zap.Logger) *handler {
	return &handler{
		auth:     auth,
		service:  service,
		baseaddr: baseaddr,
		zaplog:   zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.HandleFunc(pattern, gzip.GzipMiddleware(logger.RequestLogMdlw(fn, h.zaplog)))
	}

	handle("POST /api/user/register", h.auth.Register)
	handle("POST /api/user/login", h.auth.Login)
	handle("GET /api/user/balance", h.auth.Middleware(h.GetBalance))
	handle("GET /api/user/pending", h.auth.Middleware(h.GetPending))
	handle("GET /api/user/history", h.auth.Middleware(h.GetHistory))
	handle("POST /api/user/deposit", h.auth.Middleware(h.PostDeposit))
	handle("POST /api/user/withdraw", h.auth.Middleware(h.PostWithdraw))
	handle("POST /api/user/plans/purchase", h.auth.Middleware(h.PostPlanPurchase))
	handle("POST /api/user/plans/upgrade", h.auth.Middleware(h.PostPlanUpgrade))
	handle("GET /api/plans", h.GetPlans)

	handle("POST /api/admin/login", h.auth.AdminLogin)
	handle("POST /api/admin/requests/{kind}/{account}/{id}/approve", h.auth.AdminMiddleware(h.PostApprove))
	handle("POST /api/admin/requests/{kind}/{account}/{id}/reject", h.auth.AdminMiddleware(h.PostReject))
	handle("PUT /api/admin/accounts/{account}/balance", h.auth.AdminMiddleware(h.PutBalance))
	handle("PUT /api/admin/accounts/{account}/ban", h.auth.AdminMiddleware(h.PutBan))
	handle("POST /api/admin/accounts/{account}/notes", h.auth.AdminMiddleware(h.PostNote))
	handle("GET /api/admin/stats", h.auth.AdminMiddleware(h.GetStats))
	handle("GET /api/admin/accounts", h.auth.AdminMiddleware(h.GetAccounts))
	handle("GET /api/admin/accounts/{account}", h.auth.AdminMiddleware(h.GetAccount))
	handle("GET /api/admin/transactions", h.auth.AdminMiddleware(h.GetTransactions))
	handle("POST /api/admin/plans", h.auth.AdminMiddleware(h.PostPlan))
	handle("PUT /api/admin/plans/{id}", h.auth.AdminMiddleware(h.PutPlan))
	handle("DELETE /api/admin/plans/{id}", h.auth.AdminMiddleware(h.DeletePlan))

	return mux
}

// User API

func (h *handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	balance, err := h.service.GetBalance(userCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balance)
}

func (h *handler) GetPending(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	pending, err := h.service.GetPending(userCode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if pending.Len() == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, pending)
}

func (h *handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	history, err := h.service.GetHistory(userCode, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		http.Error(w, "limit must be a non-negative number", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

type PostDepositJSONRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
	Proof  string `json:"proof"`
}

func (h *handler) PostDeposit(w http.ResponseWriter, r *http.Request) {
	var req PostDepositJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	pending, err := h.service.SubmitDeposit(r.Context(), userCode, req.Amount, req.Method, req.Proof)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, pending)
}

type PostWithdrawJSONRequest struct {
	Amount  int64  `json:"amount"`
	Method  string `json:"method"`
	Account string `json:"account"`
}

func (h *handler) PostWithdraw(w http.ResponseWriter, r *http.Request) {
	var req PostWithdrawJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	pending, err := h.service.SubmitWithdrawal(r.Context(), userCode, req.Amount, req.Method, req.Account)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, pending)
}

type PostPlanJSONRequest struct {
	PlanID string `json:"planId"`
}

func (h *handler) PostPlanPurchase(w http.ResponseWriter, r *http.Request) {
	h.postPlan(w, r, h.service.SubmitPlanPurchase)
}

func (h *handler) PostPlanUpgrade(w http.ResponseWriter, r *http.Request) {
	h.postPlan(w, r, h.service.SubmitPlanUpgrade)
}

func (h *handler) postPlan(w http.ResponseWriter, r *http.Request,
	submit func(ctx context.Context, account, planID string) (model.PendingRequest, error)) {
	var req PostPlanJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	userCode := r.Header.Get(auth.HeaderUserCodeKey)

	pending, err := submit(r.Context(), userCode, req.PlanID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, pending)
}

func (h *handler) GetPlans(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.GetPlans())
}

// Admin API

type PostRejectJSONRequest struct {
	Reason string `json:"reason"`
}

func (h *handler) PostApprove(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)
	kind := model.RequestKind(r.PathValue("kind"))

	n, err := h.service.Approve(r.Context(), actor, kind, r.PathValue("account"), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

func (h *handler) PostReject(w http.ResponseWriter, r *http.Request) {
	var req PostRejectJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	actor := r.Header.Get(auth.HeaderUserCodeKey)
	kind := model.RequestKind(r.PathValue("kind"))

	n, err := h.service.Reject(r.Context(), actor, kind, r.PathValue("account"), r.PathValue("id"), req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, n)
}

type PutBalanceJSONRequest struct {
	Balance int64  `json:"balance"`
	Reason  string `json:"reason"`
}

func (h *handler) PutBalance(w http.ResponseWriter, r *http.Request) {
	var req PutBalanceJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	acc, err := h.service.SetBalance(r.Context(), actor, r.PathValue("account"), req.Balance, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accountView(acc))
}

type PutBanJSONRequest struct {
	Banned bool `json:"banned"`
}

func (h *handler) PutBan(w http.ResponseWriter, r *http.Request) {
	var req PutBanJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	acc, err := h.service.SetBanned(r.Context(), actor, r.PathValue("account"), req.Banned)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accountView(acc))
}

type PostNoteJSONRequest struct {
	Note string `json:"note"`
}

func (h *handler) PostNote(w http.ResponseWriter, r *http.Request) {
	var req PostNoteJSONRequest
	if !h.readJSON(w, r, &req) {
		return
	}
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	if err := h.service.AddNote(r.Context(), actor, r.PathValue("account"), req.Note); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	stats, err := h.service.GetStats(actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *handler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	accounts, err := h.service.SearchAccounts(actor, r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(accounts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

func (h *handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetAccount(actor, r.PathValue("account"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

func (h *handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	feed, err := h.service.RecentTransactions(actor, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if len(feed) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, feed)
}

func (h *handler) PostPlan(w http.ResponseWriter, r *http.Request) {
	var plan model.Plan
	if !h.readJSON(w, r, &plan) {
		return
	}
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	if err := h.service.AddPlan(r.Context(), actor, plan); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, plan)
}

func (h *handler) PutPlan(w http.ResponseWriter, r *http.Request) {
	var plan model.Plan
	if !h.readJSON(w, r, &plan) {
		return
	}
	plan.ID = r.PathValue("id")
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	if err := h.service.UpdatePlan(r.Context(), actor, plan); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

func (h *handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	actor := r.Header.Get(auth.HeaderUserCodeKey)

	if err := h.service.DeletePlan(r.Context(), actor, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AccountJSONResponse struct {
	Key      string `json:"key"`
	Balance  int64  `json:"balance"`
	IsBanned bool   `json:"isBanned"`
}

func accountView(acc model.Account) AccountJSONResponse {
	return AccountJSONResponse{Key: acc.Key, Balance: acc.Balance, IsBanned: acc.IsBanned}
}

type ErrorJSONResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeError maps an error to a status code. A request resolved earlier is not a failure.
func (h *handler) writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, reconcile.ErrAlreadyProcessed):
		status = http.StatusOK
	case errors.Is(err, service.ErrInsufficientData), errors.Is(err, service.ErrInvalidData),
		errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, reconcile.ErrInvalidPayload),
		errors.Is(err, reconcile.ErrUnknownKind), errors.Is(err, reconcile.ErrMalformedID):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrAccountBanned), errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, reconcile.ErrRequestNotFound), errors.Is(err, reconcile.ErrPlanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, reconcile.ErrDuplicateRequest), errors.Is(err, reconcile.ErrDuplicateInFlight),
		errors.Is(err, service.ErrAlreadyExists), errors.Is(err, reconcile.ErrStaleUpgrade):
		status = http.StatusConflict
	case errors.Is(err, reconcile.ErrNoActivePlan):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, reconcile.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	default:
		h.zaplog.Error("request failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var d *reconcile.Denial
	reason := err.Error()
	if errors.As(err, &d) {
		reason = d.Reason
	}
	h.writeJSON(w, status, ErrorJSONResponse{Error: err.Error(), Reason: reason})
}

func (h *handler) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if err := json.Unmarshal(buf.Bytes(), v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}
