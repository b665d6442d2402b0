package projection

import (
	"sort"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/closing"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const dayLayout = "2006-01-02"

// SalesReport summarizes the DELIVERED orders with from <= timestamp <= to.
// Days are bucketed in loc and listed oldest first; products are ranked the
// same way as TopProducts, without a limit.
func SalesReport(orders []domain.Order, from, to time.Time, loc *time.Location) domain.SalesReport {
	if loc == nil {
		loc = time.UTC
	}
	report := domain.SalesReport{
		From:       from,
		To:         to,
		SalesByDay: []domain.DaySales{},
		Products:   []domain.ProductSales{},
	}

	byDay := make(map[string]*domain.DaySales)
	delivered := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status != domain.OrderStatusDelivered || o.Timestamp.Before(from) || o.Timestamp.After(to) {
			continue
		}
		delivered = append(delivered, o)

		total := o.Total()
		report.TotalOrders++
		report.TotalRevenueCents += total
		report.TotalItems += o.ItemCount()

		key := o.Timestamp.In(loc).Format(dayLayout)
		day, ok := byDay[key]
		if !ok {
			day = &domain.DaySales{Date: key}
			byDay[key] = day
		}
		day.Orders++
		day.RevenueCents += total
	}

	for _, day := range byDay {
		report.SalesByDay = append(report.SalesByDay, *day)
	}
	sort.Slice(report.SalesByDay, func(i, j int) bool {
		return report.SalesByDay[i].Date < report.SalesByDay[j].Date
	})
	report.Products = append(report.Products, TopProducts(delivered, 0)...)
	report.AverageOrderCents = closing.AverageCents(report.TotalRevenueCents, report.TotalOrders)
	return report
}
