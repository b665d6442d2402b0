package inventory

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const (
	DefaultMinStock = 5
	DefaultMaxStock = 100
)

var ErrInvalidMovement = errors.New("invalid stock movement")

// NewItem is the stock record created alongside a product.
func NewItem(product domain.Product) domain.StockItem {
	return domain.StockItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Category:    product.Category,
		MinStock:    DefaultMinStock,
		MaxStock:    DefaultMaxStock,
		LastUpdated: product.CreatedAt,
	}
}

func Validate(m domain.StockMovement) error {
	if m.ProductID == "" {
		return fmt.Errorf("%w: product id required", ErrInvalidMovement)
	}
	if m.Type != domain.MovementIn && m.Type != domain.MovementOut {
		return fmt.Errorf("%w: type must be IN or OUT", ErrInvalidMovement)
	}
	if m.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidMovement)
	}
	if m.UnitCostCents < 0 {
		return fmt.Errorf("%w: unit cost must not be negative", ErrInvalidMovement)
	}
	return nil
}

// Apply returns item after m. OUT never drives stock below zero; the unit
// cost is replaced by the movement's cost.
func Apply(item domain.StockItem, m domain.StockMovement) domain.StockItem {
	item.CurrentStock = applyQty(item.CurrentStock, m)
	item.UnitCostCents = m.UnitCostCents
	if !m.Timestamp.IsZero() {
		item.LastUpdated = m.Timestamp
	}
	return item
}

func applyQty(current int, m domain.StockMovement) int {
	if current < 0 {
		current = 0
	}
	switch m.Type {
	case domain.MovementIn:
		return current + m.Quantity
	case domain.MovementOut:
		if m.Quantity >= current {
			return 0
		}
		return current - m.Quantity
	}
	return current
}

type Balance struct {
	Stock         int
	UnitCostCents int64
	Movements     int
}

// Fold derives per-product balances from the movement ledger, applying
// entries in timestamp order with the same clamp as Apply.
func Fold(movements []domain.StockMovement) map[string]Balance {
	ordered := append([]domain.StockMovement(nil), movements...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	balances := make(map[string]Balance)
	for _, m := range ordered {
		b := balances[m.ProductID]
		b.Stock = applyQty(b.Stock, m)
		b.UnitCostCents = m.UnitCostCents
		b.Movements++
		balances[m.ProductID] = b
	}
	return balances
}

// Reconcile compares cached counters with the ledger fold. A product with
// no movements has a ledger balance of zero.
func Reconcile(items []domain.StockItem, balances map[string]Balance) []domain.StockDiscrepancy {
	out := make([]domain.StockDiscrepancy, 0)
	for _, item := range items {
		ledger := balances[item.ProductID].Stock
		if item.CurrentStock != ledger {
			out = append(out, domain.StockDiscrepancy{
				ProductID:   item.ProductID,
				CachedStock: item.CurrentStock,
				LedgerStock: ledger,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// LowStock counts items at or below their minimum.
func LowStock(items []domain.StockItem) int {
	count := 0
	for _, item := range items {
		if item.IsLow() {
			count++
		}
	}
	return count
}
