package projection

import (
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/cashback"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const (
	favoriteProductsLimit = 3
	recentOrdersLimit     = 5
)

// Customer derives the personal dashboard of customerID.
func Customer(orders []domain.Order, grants []domain.CashbackGrant, customerID string, now time.Time) domain.CustomerMetrics {
	m := domain.CustomerMetrics{CustomerID: customerID}
	own := make([]domain.Order, 0)
	for _, o := range orders {
		if o.CustomerID != customerID {
			continue
		}
		own = append(own, o)
		m.TotalOrders++
		if o.Status.IsActive() {
			m.ActiveOrders++
		}
		if o.Status == domain.OrderStatusDelivered {
			m.TotalSpentCents += o.Total()
		}
	}

	m.AvailableCashbackCents = cashback.Available(grants, customerID, now)
	m.FavoriteProducts = TopProducts(own, favoriteProductsLimit)
	m.RecentOrders = Recent(own, recentOrdersLimit)
	return m
}
