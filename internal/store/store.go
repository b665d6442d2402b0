package store

import (
	"context"
	"errors"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository is the document store behind the service. Writers assign
// server timestamps when the given ones are zero.
type Repository interface {
	ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// CreateProduct stores the product together with its stock record and
	// bumps the product count of its category, creating it if needed.
	CreateProduct(ctx context.Context, product domain.Product, stock domain.StockItem) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	ListStockItems(ctx context.Context) ([]domain.StockItem, error)
	GetStockItem(ctx context.Context, productID string) (*domain.StockItem, error)
	// ApplyStockMovement appends movement to the ledger and updates the
	// cached stock counter in one unit of work.
	ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockItem, error)
	// ListStockMovements returns the ledger oldest first; an empty
	// productID returns every product's movements.
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)
	// CorrectStockFromLedger re-folds one product's ledger and overwrites
	// its cached counter when they differ, in the same unit of work that
	// ApplyStockMovement uses. It returns nil when nothing had to change.
	CorrectStockFromLedger(ctx context.Context, productID string, at time.Time) (*domain.StockDiscrepancy, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	// UpdateOrderStatus moves the order to `to` only if its current status is
	// one of allowedFrom. Otherwise it returns ErrInvalidTransition, or
	// ErrNotFound when the order does not exist.
	UpdateOrderStatus(ctx context.Context, id string, allowedFrom []domain.OrderStatus, to domain.OrderStatus, at time.Time) (*domain.Order, error)

	// CreateCashbackGrant returns ErrConflict when a grant for the same
	// order and rule already exists.
	CreateCashbackGrant(ctx context.Context, grant domain.CashbackGrant) (*domain.CashbackGrant, error)
	GetCashbackGrant(ctx context.Context, id string) (*domain.CashbackGrant, error)
	ListCashbackGrants(ctx context.Context, customerID string) ([]domain.CashbackGrant, error)
	// MarkCashbackUsed returns ErrConflict when the grant is already used.
	MarkCashbackUsed(ctx context.Context, id string, at time.Time) (*domain.CashbackGrant, error)
	CreateCashbackRule(ctx context.Context, rule domain.CashbackRule) (*domain.CashbackRule, error)
	ListCashbackRules(ctx context.Context, activeOnly bool) ([]domain.CashbackRule, error)
	SetCashbackRuleActive(ctx context.Context, id string, active bool) (*domain.CashbackRule, error)

	// CreateUser returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
	UpdateUserName(ctx context.Context, id, name string, at time.Time) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
