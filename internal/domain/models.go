package domain

import (
	"strings"
	"time"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// IsTerminal reports whether no further transition is expected from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// IsActive reports whether an order in status s still needs work.
func (s OrderStatus) IsActive() bool {
	return s == OrderStatusNew || s == OrderStatusPreparing || s == OrderStatusReady
}

func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case OrderStatusNew, OrderStatusPreparing, OrderStatusReady, OrderStatusDelivered, OrderStatusCanceled:
		return status, true
	}
	return "", false
}

type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Quantity   int    `json:"quantity"`
}

type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customer_id"`
	CustomerName string      `json:"customer_name,omitempty"`
	Items        []OrderItem `json:"items"`
	TotalCents   *int64      `json:"total_cents,omitempty"`
	Status       OrderStatus `json:"status"`
	Note         string      `json:"note,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Total returns the stored total, or the item sum for records written
// without one. A negative stored total reads as zero.
func (o Order) Total() int64 {
	if o.TotalCents == nil {
		return SumItems(o.Items)
	}
	if *o.TotalCents < 0 {
		return 0
	}
	return *o.TotalCents
}

func (o Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		if item.Quantity > 0 {
			count += item.Quantity
		}
	}
	return count
}

// SumItems is Σ price*quantity; lines with a negative price or quantity add nothing.
func SumItems(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		if item.PriceCents <= 0 || item.Quantity <= 0 {
			continue
		}
		total += item.PriceCents * int64(item.Quantity)
	}
	return total
}

type OrderItemRequest struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}

type OrderCreateRequest struct {
	Items []OrderItemRequest `json:"items"`
	Note  string             `json:"note,omitempty"`
}

type OrderStatusUpdateRequest struct {
	OrderID string `json:"order_id,omitempty"`
	Status  string `json:"status"`
}

// OrderFilter selects orders; a nil bound is open. From is inclusive, To exclusive.
type OrderFilter struct {
	CustomerID string
	Status     OrderStatus
	From       *time.Time
	To         *time.Time
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"price_cents"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	PriceCents  int64  `json:"price_cents"`
	Available   *bool  `json:"available,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Available   *bool   `json:"available,omitempty"`
}

type Category struct {
	Name         string    `json:"name"`
	ProductCount int       `json:"product_count"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type StockItem struct {
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Category      string    `json:"category"`
	CurrentStock  int       `json:"current_stock"`
	MinStock      int       `json:"min_stock"`
	MaxStock      int       `json:"max_stock"`
	UnitCostCents int64     `json:"unit_cost_cents"`
	LastUpdated   time.Time `json:"last_updated"`
}

// IsLow reports currentStock <= minStock.
func (s StockItem) IsLow() bool {
	return s.CurrentStock <= s.MinStock
}

type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

type StockMovement struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"product_id"`
	Type          MovementType `json:"type"`
	Quantity      int          `json:"quantity"`
	UnitCostCents int64        `json:"unit_cost_cents"`
	Reason        string       `json:"reason,omitempty"`
	UserID        string       `json:"user_id,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

type StockMovementRequest struct {
	ProductID     string `json:"product_id"`
	Type          string `json:"type"`
	Quantity      int    `json:"quantity"`
	UnitCostCents int64  `json:"unit_cost_cents"`
	Reason        string `json:"reason,omitempty"`
}

type StockMovementResponse struct {
	Movement StockMovement `json:"movement"`
	Stock    StockItem     `json:"stock"`
}

type StockDiscrepancy struct {
	ProductID   string `json:"product_id"`
	CachedStock int    `json:"cached_stock"`
	LedgerStock int    `json:"ledger_stock"`
}

type StockReconcileResponse struct {
	Checked       int                `json:"checked"`
	Discrepancies []StockDiscrepancy `json:"discrepancies"`
	Corrected     bool               `json:"corrected"`
}

type CashbackGrant struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id"`
	AmountCents    int64      `json:"amount_cents"`
	Reason         string     `json:"reason"`
	OrderID        string     `json:"order_id,omitempty"`
	RuleID         string     `json:"rule_id,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	IsUsed         bool       `json:"is_used"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type CashbackGrantRequest struct {
	CustomerID     string `json:"customer_id"`
	AmountCents    int64  `json:"amount_cents"`
	Reason         string `json:"reason"`
	OrderID        string `json:"order_id,omitempty"`
	ExpirationDays int    `json:"expiration_days,omitempty"`
}

type CashbackCalculation string

const (
	CashbackPercentage CashbackCalculation = "percentage"
	CashbackFixed      CashbackCalculation = "fixed"
)

type CashbackRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Active           bool                `json:"active"`
	Calculation      CashbackCalculation `json:"calculation"`
	Percent          float64             `json:"percent,omitempty"`
	FixedCents       int64               `json:"fixed_cents,omitempty"`
	MinSpendCents    int64               `json:"min_spend_cents"`
	MaxCashbackCents int64               `json:"max_cashback_cents,omitempty"`
	ExpirationDays   int                 `json:"expiration_days"`
	CreatedAt        time.Time           `json:"created_at"`
}

type CashbackRuleCreateRequest struct {
	Name             string  `json:"name"`
	Calculation      string  `json:"calculation"`
	Percent          float64 `json:"percent,omitempty"`
	FixedCents       int64   `json:"fixed_cents,omitempty"`
	MinSpendCents    int64   `json:"min_spend_cents"`
	MaxCashbackCents int64   `json:"max_cashback_cents,omitempty"`
	ExpirationDays   int     `json:"expiration_days,omitempty"`
}

type CashbackBalance struct {
	CustomerID     string `json:"customer_id"`
	AvailableCents int64  `json:"available_cents"`
	ActiveGrants   int    `json:"active_grants"`
}

type DailyReport struct {
	Date                   string    `json:"date"`
	TotalOrders            int       `json:"total_orders"`
	PendingOrdersProcessed int       `json:"pending_orders_processed"`
	TotalRevenueCents      int64     `json:"total_revenue_cents"`
	TotalItems             int       `json:"total_items"`
	AverageTicketCents     int64     `json:"average_ticket_cents"`
	Timestamp              time.Time `json:"timestamp"`
}

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

type TransitionOutcome struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type CloseDayResponse struct {
	Report         DailyReport         `json:"report"`
	Outcomes       []TransitionOutcome `json:"outcomes"`
	FailedOrderIDs []string            `json:"failed_order_ids"`
}

type TodayCloseStatus struct {
	Date              string `json:"date"`
	TotalOrders       int    `json:"total_orders"`
	PendingOrders     int    `json:"pending_orders"`
	TotalRevenueCents int64  `json:"total_revenue_cents"`
	CanClose          bool   `json:"can_close"`
}

type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsOwner   bool      `json:"is_owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsOwner      bool      `json:"is_owner"`
	Active       bool      `json:"active"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u UserAccount) Profile() UserProfile {
	return UserProfile{ID: u.ID, Name: u.Name, Email: u.Email, IsOwner: u.IsOwner, CreatedAt: u.CreatedAt, UpdatedAt: u.UpdatedAt}
}

// Actor is the authenticated caller, taken from token claims.
type Actor struct {
	UserID  string
	Name    string
	IsOwner bool
}

func (a Actor) Profile() *UserProfile {
	return &UserProfile{ID: a.UserID, Name: a.Name, IsOwner: a.IsOwner}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   string      `json:"expires_at"`
	Profile     UserProfile `json:"profile"`
}

type RegisterRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	EnrollmentCode string `json:"enrollment_code,omitempty"`
}

// ProfileUpdateRequest carries the fields a user may change on their own
// profile. Email and role are fixed.
type ProfileUpdateRequest struct {
	Name string `json:"name"`
}

type DaySales struct {
	Date         string `json:"date"`
	Orders       int    `json:"orders"`
	RevenueCents int64  `json:"revenue_cents"`
}

// SalesReport covers the delivered orders of a period, both ends included.
type SalesReport struct {
	From              time.Time      `json:"from"`
	To                time.Time      `json:"to"`
	TotalOrders       int            `json:"total_orders"`
	TotalRevenueCents int64          `json:"total_revenue_cents"`
	TotalItems        int            `json:"total_items"`
	AverageOrderCents int64          `json:"average_order_cents"`
	SalesByDay        []DaySales     `json:"sales_by_day"`
	Products          []ProductSales `json:"products"`
}

type ProductSales struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
}

type Metrics struct {
	TodaySalesCents    int64          `json:"today_sales_cents"`
	ActiveOrders       int            `json:"active_orders"`
	TotalCustomers     int            `json:"total_customers"`
	LowStockItems      int            `json:"low_stock_items"`
	StockStatus        string         `json:"stock_status"`
	AverageTicketCents int64          `json:"average_ticket_cents"`
	TopProducts        []ProductSales `json:"top_products"`
	RecentActivity     []Order        `json:"recent_activity"`
	ComputedAt         time.Time      `json:"computed_at"`
}

const (
	SourceLoading = "loading"
	SourceReady   = "ready"
	SourceError   = "error"
)

// SourceState separates "no data yet" from "data unavailable" for one feed.
type SourceState struct {
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type MetricsView struct {
	Metrics Metrics                `json:"metrics"`
	Sources map[string]SourceState `json:"sources"`
}

type CustomerMetrics struct {
	CustomerID             string         `json:"customer_id"`
	TotalOrders            int            `json:"total_orders"`
	ActiveOrders           int            `json:"active_orders"`
	TotalSpentCents        int64          `json:"total_spent_cents"`
	AvailableCashbackCents int64          `json:"available_cashback_cents"`
	FavoriteProducts       []ProductSales `json:"favorite_products"`
	RecentOrders           []Order        `json:"recent_orders"`
}

type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	OfflineCreateOrder   = "create_order"
	OfflineUpdateStatus  = "update_order_status"
	OfflineStockMovement = "stock_movement"
)

type OfflineAction struct {
	IdempotencyKey string                    `json:"idempotency_key"`
	Kind           string                    `json:"kind"`
	CreateOrder    *OrderCreateRequest       `json:"create_order,omitempty"`
	StatusUpdate   *OrderStatusUpdateRequest `json:"status_update,omitempty"`
	StockMovement  *StockMovementRequest     `json:"stock_movement,omitempty"`
}

type OfflineSyncRequest struct {
	EnvelopeID string          `json:"envelope_id"`
	Actions    []OfflineAction `json:"actions"`
}

type OfflineSyncStatus struct {
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	ResourceID     string `json:"resource_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type OfflineSyncResponse struct {
	EnvelopeID string              `json:"envelope_id"`
	Statuses   []OfflineSyncStatus `json:"statuses"`
}
