package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"kedaipos/backend/internal/checkout"
	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/fulfillment"
	"kedaipos/backend/internal/inventory"
	"kedaipos/backend/internal/requestctx"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/voucher"
)

type API struct {
	checkout      *checkout.Engine
	orders        *fulfillment.Machine
	inventory     *inventory.Engine
	vouchers      *voucher.Validator
	repo          store.Repository
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *clientLimiter
	logger        *zap.Logger
}

type Deps struct {
	Checkout  *checkout.Engine
	Orders    *fulfillment.Machine
	Inventory *inventory.Engine
	Vouchers  *voucher.Validator
	Repo      store.Repository
	Auth      *AuthManager
	Logger    *zap.Logger
}

func New(deps Deps, allowedOrigin string) *API {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	vouchers := deps.Vouchers
	if vouchers == nil {
		vouchers = voucher.NewValidator(nil)
	}
	return &API{
		checkout:      deps.Checkout,
		orders:        deps.Orders,
		inventory:     deps.Inventory,
		vouchers:      vouchers,
		repo:          deps.Repo,
		auth:          deps.Auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newClientLimiter(rate.Every(time.Minute/5), 5),
		logger:        logger,
	}
}

// clientLimiter hands every client key its own token bucket.
type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{limit: limit, burst: burst, clients: make(map[string]*rate.Limiter)}
}

func (l *clientLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.clients[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients[key] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	staff := []string{domain.RoleOwner, domain.RoleCashier}
	anyone := []string{domain.RoleOwner, domain.RoleCashier, domain.RoleCustomer}

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("POST /api/v1/orders", a.requireAuth(a.handleCreateOrder, anyone...))
	mux.HandleFunc("GET /api/v1/orders/{id}", a.requireAuth(a.handleGetOrder, staff...))
	mux.HandleFunc("POST /api/v1/orders/{id}/advance", a.requireAuth(a.handleAdvanceOrder, staff...))
	mux.HandleFunc("POST /api/v1/orders/{id}/cancel", a.requireAuth(a.handleCancelOrder, staff...))
	mux.HandleFunc("POST /api/v1/vouchers/validate", a.requireAuth(a.handleValidateVoucher, anyone...))

	mux.HandleFunc("GET /api/v1/materials/{id}/batches", a.requireAuth(a.handleListBatches, domain.RoleOwner))
	mux.HandleFunc("POST /api/v1/materials/{id}/batches", a.requireAuth(a.handleReceiveBatch, domain.RoleOwner))
	mux.HandleFunc("GET /api/v1/materials/{id}/stock", a.requireAuth(a.handleMaterialStock, domain.RoleOwner))
	mux.HandleFunc("POST /api/v1/materials/{id}/deduct", a.requireAuth(a.handleManualDeduct, domain.RoleOwner))
	mux.HandleFunc("PATCH /api/v1/batches/{id}", a.requireAuth(a.handleUpdateBatch, domain.RoleOwner))
	mux.HandleFunc("DELETE /api/v1/batches/{id}", a.requireAuth(a.handleDeleteBatch, domain.RoleOwner))

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token and scopes the request to the
// caller's tenant before running next.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, r, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		ctx := requestctx.WithActor(r.Context(), actor)
		ctx = requestctx.WithTenant(ctx, actor.TenantID)
		log := requestctx.Logger(ctx, a.logger).With(
			zap.String("user_id", actor.UserID),
			zap.String("tenant_id", actor.TenantID))
		ctx = requestctx.WithLogger(ctx, log)
		next(w, r.WithContext(ctx))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		log := a.logger.With(zap.String("method", r.Method), zap.String("path", r.URL.Path))
		r = r.WithContext(requestctx.WithLogger(r.Context(), log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		log.Info("request served",
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeError sends 4xx messages verbatim. 5xx responses get a generic body
// and the real cause goes to the request log.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		requestctx.Logger(r.Context(), a.logger).Error("request failed", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
