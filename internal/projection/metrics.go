package projection

import (
	"fmt"
	"sort"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/closing"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
)

const (
	topProductsLimit    = 5
	recentActivityLimit = 10
	trailingWindowDays  = 30
)

// Compute derives dashboard metrics from full order and stock sets. It is
// pure: the same inputs always give the same result.
func Compute(orders []domain.Order, stock []domain.StockItem, now time.Time, loc *time.Location) domain.Metrics {
	dayStart := closing.StartOfDay(now, loc)
	trailingFrom := now.AddDate(0, 0, -trailingWindowDays)

	m := domain.Metrics{ComputedAt: now}
	customers := make(map[string]struct{})
	var trailingRevenue int64
	var trailingDelivered int
	trailing := make([]domain.Order, 0, len(orders))

	for _, o := range orders {
		if o.CustomerID != "" {
			customers[o.CustomerID] = struct{}{}
		}
		if o.Status.IsActive() {
			m.ActiveOrders++
		}
		if o.Status == domain.OrderStatusDelivered && !o.Timestamp.Before(dayStart) && !o.Timestamp.After(now) {
			m.TodaySalesCents += o.Total()
		}
		if o.Timestamp.Before(trailingFrom) || o.Timestamp.After(now) {
			continue
		}
		if o.Status == domain.OrderStatusDelivered {
			trailingRevenue += o.Total()
			trailingDelivered++
		}
		if o.Status != domain.OrderStatusCanceled {
			trailing = append(trailing, o)
		}
	}

	m.TotalCustomers = len(customers)
	m.LowStockItems = inventory.LowStock(stock)
	m.StockStatus = StockStatus(m.LowStockItems)
	m.AverageTicketCents = closing.AverageCents(trailingRevenue, trailingDelivered)
	m.TopProducts = TopProducts(trailing, topProductsLimit)
	m.RecentActivity = Recent(orders, recentActivityLimit)
	return m
}

func StockStatus(low int) string {
	if low == 0 {
		return "OK"
	}
	return fmt.Sprintf("%d low", low)
}

// TopProducts ranks products by quantity sold across orders, then by
// revenue, then by id so ties resolve the same way every time.
func TopProducts(orders []domain.Order, limit int) []domain.ProductSales {
	byProduct := make(map[string]*domain.ProductSales)
	for _, o := range orders {
		for _, item := range o.Items {
			if item.Quantity <= 0 {
				continue
			}
			key := item.ProductID
			if key == "" {
				key = item.Name
			}
			entry, ok := byProduct[key]
			if !ok {
				entry = &domain.ProductSales{ProductID: item.ProductID, Name: item.Name}
				byProduct[key] = entry
			}
			entry.Quantity += item.Quantity
			if item.PriceCents > 0 {
				entry.RevenueCents += item.PriceCents * int64(item.Quantity)
			}
		}
	}

	out := make([]domain.ProductSales, 0, len(byProduct))
	for _, entry := range byProduct {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if out[i].RevenueCents != out[j].RevenueCents {
			return out[i].RevenueCents > out[j].RevenueCents
		}
		return out[i].ProductID+out[i].Name < out[j].ProductID+out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Recent returns up to limit orders, most recently touched first.
func Recent(orders []domain.Order, limit int) []domain.Order {
	out := append([]domain.Order(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := lastTouched(out[i]), lastTouched(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func lastTouched(o domain.Order) time.Time {
	if o.UpdatedAt.After(o.Timestamp) {
		return o.UpdatedAt
	}
	return o.Timestamp
}
