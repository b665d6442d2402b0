package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/service"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	}
	if a.metrics != nil {
		body["projection_ready"] = a.metrics.Ready()
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.registerLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many registration attempts"))
		return
	}

	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.EnrollmentCode != "" {
		writeError(w, http.StatusBadRequest, errors.New("use register-owner for owner accounts"))
		return
	}

	resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleRegisterOwner accepts either the enrollment code or a bearer token
// of an existing owner.
func (a *API) handleRegisterOwner(w http.ResponseWriter, r *http.Request) {
	if !a.registerLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many registration attempts"))
		return
	}

	var caller *domain.Actor
	if token, ok := bearerToken(r); ok {
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		caller = &actor
	}

	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.RegisterOwner(r.Context(), req, caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if a.google == nil {
		writeError(w, http.StatusNotFound, errors.New("google sign-in is not configured"))
		return
	}
	a.google.handleLogin(w, r)
}

func (a *API) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if a.google == nil {
		writeError(w, http.StatusNotFound, errors.New("google sign-in is not configured"))
		return
	}
	a.google.handleCallback(w, r)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	profile, err := a.auth.Profile(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":     profile,
		"permissions": access.Permissions(&profile),
	})
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req domain.ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile, err := a.service.UpdateProfile(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

func (a *API) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	actor, _ := service.ActorFromContext(r.Context())
	route := strings.TrimSpace(r.URL.Query().Get("route"))
	if route == "" {
		routes := make(map[string]bool)
		for _, mapped := range access.Routes() {
			routes[mapped] = access.CanAccess(actor.Profile(), mapped)
		}
		writeJSON(w, http.StatusOK, map[string]any{"routes": routes})
		return
	}
	body := map[string]any{
		"route":   route,
		"allowed": access.CanAccess(actor.Profile(), route),
	}
	if required, ok := access.RequiredPermission(route); ok {
		body["permission"] = required
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	includeUnavailable := r.URL.Query().Get("include_unavailable") == "true"
	products, err := a.service.ListProducts(r.Context(), includeUnavailable)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListStock(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": items})
}

func (a *API) handleListMovements(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	movements, err := a.service.ListStockMovements(r.Context(), r.URL.Query().Get("product_id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleStockMovement(w http.ResponseWriter, r *http.Request) {
	var req domain.StockMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ApplyStockMovement(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleReconcileStock(w http.ResponseWriter, r *http.Request) {
	correct, _ := strconv.ParseBool(r.URL.Query().Get("correct"))
	resp, err := a.service.ReconcileStock(r.Context(), correct)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseOrderFilter(r *http.Request) (domain.OrderFilter, error) {
	q := r.URL.Query()
	filter := domain.OrderFilter{CustomerID: strings.TrimSpace(q.Get("customer_id"))}
	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return filter, errors.New("unknown order status")
		}
		filter.Status = status
	}
	for name, dest := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New(name + " must be RFC3339")
		}
		*dest = &at
	}
	return filter, nil
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseOrderFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	orders, err := a.service.ListOrders(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.service.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	order, err := a.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := a.service.MyOrders(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("metrics projection is not running"))
		return
	}
	writeJSON(w, http.StatusOK, a.metrics.View())
}

func (a *API) handleCustomerMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := a.service.CustomerMetrics(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (a *API) handleCashToday(w http.ResponseWriter, r *http.Request) {
	status, err := a.service.TodayCloseStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleCloseDay(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.CloseDay(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDailyReports(w http.ResponseWriter, r *http.Request) {
	reports, err := a.service.DailyReports(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		body, err := dailyReportsToCSV(reports)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="fechamentos.csv"`)
		_, _ = w.Write(body)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportsToPrintableHTML(reports)))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	}
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	report, err := a.service.SalesReport(r.Context(), query.Get("from"), query.Get("to"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleListCashback(w http.ResponseWriter, r *http.Request) {
	grants, err := a.service.ListCashback(r.Context(), r.URL.Query().Get("customer_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashbacks": grants})
}

func (a *API) handleGrantCashback(w http.ResponseWriter, r *http.Request) {
	var req domain.CashbackGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	grant, err := a.service.GrantCashback(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cashback": grant})
}

func (a *API) handleRedeemCashback(w http.ResponseWriter, r *http.Request) {
	grant, err := a.service.RedeemCashback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cashback": grant})
}

func (a *API) handleCashbackBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.service.CashbackBalance(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.service.ListCashbackRules(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.CashbackRuleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rule, err := a.service.CreateCashbackRule(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"rule": rule})
}

func (a *API) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, errors.New("active is required"))
		return
	}
	rule, err := a.service.SetCashbackRuleActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule": rule})
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, unread, err := a.service.Notifications(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications, "unread": unread})
}

func (a *API) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := a.service.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearNotifications(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleOfflineSync(w http.ResponseWriter, r *http.Request) {
	var req domain.OfflineSyncRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.SyncOffline(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
