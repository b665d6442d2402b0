package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/service"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

// MetricsSource serves the latest dashboard projection.
type MetricsSource interface {
	View() domain.MetricsView
	Ready() bool
}

type Options struct {
	AllowedOrigin string
	Google        *GoogleSignIn
	Metrics       MetricsSource
	Logger        *slog.Logger
}

type API struct {
	service         *service.Service
	auth            *AuthManager
	google          *GoogleSignIn
	metrics         MetricsSource
	allowedOrigin   string
	log             *slog.Logger
	loginLimiter    *attemptLimiter
	registerLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		service:         svc,
		auth:            auth,
		google:          opts.Google,
		metrics:         opts.Metrics,
		allowedOrigin:   opts.AllowedOrigin,
		log:             logger,
		loginLimiter:    newAttemptLimiter(5, time.Minute),
		registerLimiter: newAttemptLimiter(10, time.Hour),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { writeMethodNotAllowed(w) })
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/register-owner", a.handleRegisterOwner)
		r.Get("/auth/google/login", a.handleGoogleLogin)
		r.Get("/auth/google/callback", a.handleGoogleCallback)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/me", a.handleMe)
			r.Patch("/me", a.handleUpdateMe)
			r.Get("/access/check", a.handleAccessCheck)

			r.Get("/products", a.handleListProducts)
			r.With(a.requirePermission(access.ManageProducts)).Post("/products", a.handleCreateProduct)
			r.With(a.requirePermission(access.ManageProducts)).Patch("/products/{id}", a.handleUpdateProduct)
			r.Get("/categories", a.handleCategories)

			r.Route("/stock", func(r chi.Router) {
				r.Use(a.requirePermission(access.ManageStock))
				r.Get("/", a.handleListStock)
				r.Get("/movements", a.handleListMovements)
				r.Post("/movements", a.handleStockMovement)
				r.Post("/reconcile", a.handleReconcileStock)
			})

			r.Get("/orders", a.handleListOrders)
			r.Post("/orders", a.handleCreateOrder)
			r.Get("/orders/{id}", a.handleGetOrder)
			r.With(a.requirePermission(access.ManageOrders)).Post("/orders/{id}/status", a.handleOrderStatus)
			r.Get("/my-orders", a.handleMyOrders)

			r.With(a.requirePermission(access.ViewReports)).Get("/metrics", a.handleMetrics)
			r.Get("/metrics/customer", a.handleCustomerMetrics)

			r.Group(func(r chi.Router) {
				r.Use(a.requirePermission(access.ViewReports))
				r.Get("/cash/today", a.handleCashToday)
				r.Get("/reports/daily", a.handleDailyReports)
				r.Get("/reports/sales", a.handleSalesReport)
			})
			r.With(a.requirePermission(access.CloseDailyCash)).Post("/cash/close", a.handleCloseDay)

			r.Get("/cashback", a.handleListCashback)
			r.With(a.requirePermission(access.ManageCashback)).Post("/cashback", a.handleGrantCashback)
			r.Get("/cashback/balance", a.handleCashbackBalance)
			r.Post("/cashback/{id}/redeem", a.handleRedeemCashback)
			r.Route("/cashback/rules", func(r chi.Router) {
				r.Use(a.requirePermission(access.ManageCashback))
				r.Get("/", a.handleListRules)
				r.Post("/", a.handleCreateRule)
				r.Patch("/{id}", a.handleUpdateRule)
			})

			r.With(a.requirePermission(access.ManageCustomers)).Get("/customers", a.handleCustomers)

			r.Get("/notifications", a.handleNotifications)
			r.Post("/notifications/{id}/read", a.handleNotificationRead)
			r.Delete("/notifications", a.handleClearNotifications)

			r.Post("/sync/offline-actions", a.handleOfflineSync)
		})
	})

	return r
}

func bearerToken(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authorization[len("Bearer "):]), true
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) requirePermission(permission access.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok || !access.HasPermission(actor.Profile(), permission) {
				writeError(w, http.StatusForbidden, errors.New("forbidden: "+string(permission)+" required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin-allow-popups")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(startedAt),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the underlying error.
	msg := err.Error()
	if status >= 500 {
		slog.Error("internal error", "status", status, "error", err)
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
