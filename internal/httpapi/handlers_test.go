package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/logging"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/service"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store/memory"
)

const (
	testOwnerEmail     = "dono@barapp.local"
	testOwnerPassword  = "owner-test-pass"
	testClientEmail    = "cliente@barapp.local"
	testClientPassword = "cliente-test-pass"
	testEnrollmentCode = "Balcao-2026-Noite"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, opts ...func(*Options)) *API {
	t.Helper()
	t.Setenv("SEED_OWNER_PASSWORD", testOwnerPassword)
	t.Setenv("SEED_CUSTOMER_PASSWORD", testClientPassword)

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Dependencies{Logger: logging.Discard()}, service.Options{})
	auth := NewAuthManager("test-secret-key", time.Hour, testEnrollmentCode, repo)

	options := Options{AllowedOrigin: "*", Logger: logging.Discard()}
	for _, opt := range opts {
		opt(&options)
	}
	return New(svc, auth, options)
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler, email, password string) domain.LoginResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s failed: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	resp := login(t, api.Handler(), testOwnerEmail, testOwnerPassword)
	if resp.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	if !resp.Profile.IsOwner {
		t.Fatalf("expected owner profile, got %+v", resp.Profile)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Email: testOwnerEmail, Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRegisterThenMe(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Name: "Joana", Email: "Joana@Example.com", Password: "segredo1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.LoginResponse](t, rec)

	me := doJSON(t, h, http.MethodGet, "/api/v1/me", resp.AccessToken, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200 from /me, got %d", me.Code)
	}
	body := decodeBody[struct {
		Profile     domain.UserProfile `json:"profile"`
		Permissions []string           `json:"permissions"`
	}](t, me)
	if body.Profile.Email != "joana@example.com" || body.Profile.IsOwner {
		t.Fatalf("unexpected profile %+v", body.Profile)
	}
	if len(body.Permissions) != 4 {
		t.Fatalf("expected 4 customer permissions, got %v", body.Permissions)
	}

	dup := doJSON(t, h, http.MethodPost, "/api/v1/auth/register", "", domain.RegisterRequest{
		Name: "Outra", Email: "joana@example.com", Password: "segredo2",
	})
	if dup.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", dup.Code)
	}
}

func TestUpdateMeRenamesCaller(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := login(t, h, testClientEmail, testClientPassword).AccessToken

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/me", token, map[string]string{"name": "   "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank name, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/me", token, map[string]string{"name": "  Cliente Novo "})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	updated := decodeBody[struct {
		Profile domain.UserProfile `json:"profile"`
	}](t, rec)
	if updated.Profile.Name != "Cliente Novo" || updated.Profile.Email != testClientEmail {
		t.Fatalf("unexpected profile %+v", updated.Profile)
	}

	me := decodeBody[struct {
		Profile domain.UserProfile `json:"profile"`
	}](t, doJSON(t, h, http.MethodGet, "/api/v1/me", token, nil))
	if me.Profile.Name != "Cliente Novo" || me.Profile.UpdatedAt.IsZero() {
		t.Fatalf("expected renamed profile from /me, got %+v", me.Profile)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/me", token, map[string]any{"name": "X", "is_owner": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when trying to set other fields, got %d", rec.Code)
	}
}

func TestHandleRegisterOwner(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()

	req := domain.RegisterRequest{Name: "Sócia", Email: "socia@barapp.local", Password: "segredo1", EnrollmentCode: "wrong"}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register-owner", "", req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong code, got %d", rec.Code)
	}

	req.EnrollmentCode = testEnrollmentCode
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register-owner", "", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[domain.LoginResponse](t, rec); !resp.Profile.IsOwner {
		t.Fatalf("expected owner profile")
	}

	owner := login(t, h, testOwnerEmail, testOwnerPassword)
	invited := domain.RegisterRequest{Name: "Gerente", Email: "gerente@barapp.local", Password: "segredo1"}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/register-owner", owner.AccessToken, invited); rec.Code != http.StatusCreated {
		t.Fatalf("expected owner to invite without code, got %d", rec.Code)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := login(t, h, testClientEmail, testClientPassword).AccessToken

	rec := doJSON(t, h, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Products []domain.Product `json:"products"`
	}](t, rec)
	if len(body.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestCustomerCannotManageCatalog(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := login(t, h, testClientEmail, testClientPassword).AccessToken

	create := doJSON(t, h, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{
		Name: "Gin Tônica", Category: "drinks", PriceCents: 2800,
	})
	if create.Code != http.StatusForbidden {
		t.Fatalf("expected 403 creating product as customer, got %d", create.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/v1/stock", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing stock as customer, got %d", rec.Code)
	}
}

func TestOwnerCreatesProductWithValidation(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	token := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	bad := doJSON(t, h, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{Name: "G", Category: "drinks", PriceCents: 2800})
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for short name, got %d", bad.Code)
	}

	ok := doJSON(t, h, http.MethodPost, "/api/v1/products", token, domain.ProductCreateRequest{Name: "Gin Tônica", Category: "Drinks", PriceCents: 2800})
	if ok.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", ok.Code, ok.Body.String())
	}
	created := decodeBody[struct {
		Product domain.Product `json:"product"`
	}](t, ok)

	stock := doJSON(t, h, http.MethodGet, "/api/v1/stock", token, nil)
	if stock.Code != http.StatusOK {
		t.Fatalf("expected 200 listing stock, got %d", stock.Code)
	}
	items := decodeBody[struct {
		Stock []domain.StockItem `json:"stock"`
	}](t, stock)
	found := false
	for _, item := range items.Stock {
		if item.ProductID == created.Product.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stock record for new product %s", created.Product.ID)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken
	owner := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orders", customer, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prd-chopp", Quantity: 2}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	order := decodeBody[struct {
		Order domain.Order `json:"order"`
	}](t, rec).Order
	if order.Total() != 1980 {
		t.Fatalf("expected total 1980, got %d", order.Total())
	}

	statusPath := "/api/v1/orders/" + order.ID + "/status"
	if rec := doJSON(t, h, http.MethodPost, statusPath, customer, domain.OrderStatusUpdateRequest{Status: "PREPARING"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer status change, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, statusPath, owner, domain.OrderStatusUpdateRequest{Status: "PREPARING"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, h, http.MethodPost, statusPath, owner, domain.OrderStatusUpdateRequest{Status: "NEW"}); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 moving back to NEW, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, statusPath, owner, domain.OrderStatusUpdateRequest{Status: "SERVED"}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d", rec.Code)
	}

	mine := doJSON(t, h, http.MethodGet, "/api/v1/my-orders", customer, nil)
	orders := decodeBody[struct {
		Orders []domain.Order `json:"orders"`
	}](t, mine).Orders
	if len(orders) != 1 || orders[0].Status != domain.OrderStatusPreparing {
		t.Fatalf("expected one PREPARING order, got %+v", orders)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/v1/orders/ord-missing", owner, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", rec.Code)
	}
}

func TestSalesReportOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken
	owner := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	rec := doJSON(t, h, http.MethodPost, "/api/v1/orders", customer, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prd-chopp", Quantity: 2}, {ProductID: "prd-agua", Quantity: 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	order := decodeBody[struct {
		Order domain.Order `json:"order"`
	}](t, rec).Order
	for _, status := range []string{"PREPARING", "READY", "DELIVERED"} {
		if rec := doJSON(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/status", owner, domain.OrderStatusUpdateRequest{Status: status}); rec.Code != http.StatusOK {
			t.Fatalf("move to %s: %d %s", status, rec.Code, rec.Body.String())
		}
	}
	// An open order stays out of the report.
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/orders", customer, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prd-batata", Quantity: 1}},
	}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/sales", customer, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/sales?from=ontem", owner, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed bound, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/v1/reports/sales?from=2026-02-10&to=2026-02-01", owner, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for inverted range, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/reports/sales", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	report := decodeBody[domain.SalesReport](t, rec)
	if report.TotalOrders != 1 || report.TotalRevenueCents != 2480 || report.TotalItems != 3 || report.AverageOrderCents != 2480 {
		t.Fatalf("unexpected summary %+v", report)
	}
	if len(report.SalesByDay) != 1 || len(report.Products) != 2 || report.Products[0].ProductID != "prd-chopp" {
		t.Fatalf("unexpected breakdown %+v", report)
	}
}

func TestCloseDayAndReportExport(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken
	owner := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	doJSON(t, h, http.MethodPost, "/api/v1/orders", customer, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prd-agua", Quantity: 1}},
	})

	if rec := doJSON(t, h, http.MethodPost, "/api/v1/cash/close", customer, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer close, got %d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/v1/cash/close", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	closed := decodeBody[domain.CloseDayResponse](t, rec)
	if closed.Report.TotalOrders != 1 || closed.Report.TotalRevenueCents != 500 {
		t.Fatalf("unexpected report %+v", closed.Report)
	}
	if len(closed.FailedOrderIDs) != 0 {
		t.Fatalf("expected no failures, got %v", closed.FailedOrderIDs)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/daily?format=csv", nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	csvRec := httptest.NewRecorder()
	h.ServeHTTP(csvRec, req)
	if csvRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for csv export, got %d", csvRec.Code)
	}
	if got := csvRec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	lines := strings.Split(strings.TrimSpace(csvRec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "date,total_orders") {
		t.Fatalf("unexpected csv export:\n%s", csvRec.Body.String())
	}
}

type metricsStub struct{ view domain.MetricsView }

func (m metricsStub) View() domain.MetricsView { return m.view }
func (m metricsStub) Ready() bool              { return true }

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	owner := login(t, api.Handler(), testOwnerEmail, testOwnerPassword).AccessToken
	if rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/metrics", owner, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without projection, got %d", rec.Code)
	}

	view := domain.MetricsView{Metrics: domain.Metrics{TodaySalesCents: 4200, StockStatus: "ok"}}
	api = newTestAPI(t, func(o *Options) { o.Metrics = metricsStub{view: view} })
	h := api.Handler()
	owner = login(t, h, testOwnerEmail, testOwnerPassword).AccessToken
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken

	if rec := doJSON(t, h, http.MethodGet, "/api/v1/metrics", customer, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer metrics, got %d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/v1/metrics", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody[domain.MetricsView](t, rec); got.Metrics.TodaySalesCents != 4200 {
		t.Fatalf("expected projected sales, got %+v", got.Metrics)
	}
}

func TestAccessCheck(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken

	rec := doJSON(t, h, http.MethodGet, "/api/v1/access/check?route=/stock", customer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["allowed"] != false || body["permission"] != "manage_stock" {
		t.Fatalf("unexpected access check %v", body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/v1/access/check", customer, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	all := decodeBody[struct {
		Routes map[string]bool `json:"routes"`
	}](t, rec)
	if !all.Routes["/menu"] || all.Routes["/stock"] {
		t.Fatalf("unexpected route map %v", all.Routes)
	}
}

func TestNotificationsInbox(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken
	owner := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	doJSON(t, h, http.MethodPost, "/api/v1/orders", customer, domain.OrderCreateRequest{
		Items: []domain.OrderItemRequest{{ProductID: "prd-refri", Quantity: 1}},
	})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/notifications", owner, nil)
	inbox := decodeBody[struct {
		Notifications []domain.Notification `json:"notifications"`
		Unread        int                   `json:"unread"`
	}](t, rec)
	if inbox.Unread != 1 || len(inbox.Notifications) != 1 {
		t.Fatalf("expected one unread owner notice, got %+v", inbox)
	}

	read := doJSON(t, h, http.MethodPost, "/api/v1/notifications/"+inbox.Notifications[0].ID+"/read", owner, nil)
	if read.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", read.Code)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/v1/notifications/"+inbox.Notifications[0].ID+"/read", customer, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 reading another audience's notice, got %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/api/v1/notifications", owner, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 clearing inbox, got %d", rec.Code)
	}
}

func TestOfflineSyncOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	customer := login(t, h, testClientEmail, testClientPassword).AccessToken

	envelope := domain.OfflineSyncRequest{
		EnvelopeID: "env-1",
		Actions: []domain.OfflineAction{{
			IdempotencyKey: "k-1",
			Kind:           domain.OfflineCreateOrder,
			CreateOrder: &domain.OrderCreateRequest{
				Items: []domain.OrderItemRequest{{ProductID: "prd-batata", Quantity: 1}},
			},
		}},
	}
	first := decodeBody[domain.OfflineSyncResponse](t, doJSON(t, h, http.MethodPost, "/api/v1/sync/offline-actions", customer, envelope))
	second := decodeBody[domain.OfflineSyncResponse](t, doJSON(t, h, http.MethodPost, "/api/v1/sync/offline-actions", customer, envelope))

	if first.Statuses[0].Status != service.SyncAccepted {
		t.Fatalf("expected accepted, got %+v", first.Statuses[0])
	}
	if second.Statuses[0].Status != service.SyncDuplicate || second.Statuses[0].ResourceID != first.Statuses[0].ResourceID {
		t.Fatalf("expected duplicate of %s, got %+v", first.Statuses[0].ResourceID, second.Statuses[0])
	}
}

func TestCashbackRuleToggle(t *testing.T) {
	api := newTestAPI(t)
	h := api.Handler()
	owner := login(t, h, testOwnerEmail, testOwnerPassword).AccessToken

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/cashback/rules/rule-fidelidade", owner, map[string]bool{"active": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rule := decodeBody[struct {
		Rule domain.CashbackRule `json:"rule"`
	}](t, rec).Rule
	if rule.Active {
		t.Fatalf("expected rule to be inactive")
	}
	if rec := doJSON(t, h, http.MethodPatch, "/api/v1/cashback/rules/rule-fidelidade", owner, map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without active flag, got %d", rec.Code)
	}
}
