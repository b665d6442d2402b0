package closing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func cents(v int64) *int64 { return &v }

func TestSummarizeRevenueCoversWholeDay(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 4, 3, 22, 0, 0, 0, loc)
	orders := []domain.Order{
		{ID: "a", Status: domain.OrderStatusReady, TotalCents: cents(1000), Timestamp: now.Add(-3 * time.Hour), Items: []domain.OrderItem{{Quantity: 2}}},
		{ID: "b", Status: domain.OrderStatusDelivered, TotalCents: cents(2000), Timestamp: now.Add(-2 * time.Hour), Items: []domain.OrderItem{{Quantity: 1}}},
		{ID: "c", Status: domain.OrderStatusNew, TotalCents: cents(500), Timestamp: now.Add(-time.Hour), Items: []domain.OrderItem{{Quantity: 3}}},
		{ID: "yesterday", Status: domain.OrderStatusNew, TotalCents: cents(9900), Timestamp: now.AddDate(0, 0, -1)},
	}

	plan := PlanDay(orders, now, loc)
	require.Len(t, plan.Todays, 3)
	require.Len(t, plan.Pending, 2)

	report := Summarize(plan, now)
	assert.Equal(t, "2026-04-03", report.Date)
	assert.Equal(t, 3, report.TotalOrders)
	assert.Equal(t, 2, report.PendingOrdersProcessed)
	assert.Equal(t, int64(3500), report.TotalRevenueCents)
	assert.Equal(t, int64(1167), report.AverageTicketCents)
	assert.Equal(t, 6, report.TotalItems)
	assert.Equal(t, now, report.Timestamp)
}

func TestPlanDayNeverSelectsTerminalOrders(t *testing.T) {
	now := time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{ID: "d", Status: domain.OrderStatusDelivered, Timestamp: now},
		{ID: "x", Status: domain.OrderStatusCanceled, Timestamp: now},
	}
	plan := PlanDay(orders, now, time.UTC)
	assert.Len(t, plan.Todays, 2)
	assert.Empty(t, plan.Pending)
}

func TestWindowUsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 01:30 UTC on the 4th is still the 3rd in BRT.
	now := time.Date(2026, 4, 4, 1, 30, 0, 0, time.UTC)
	day, next := Window(now, loc)
	assert.Equal(t, time.Date(2026, 4, 3, 3, 0, 0, 0, time.UTC), day.UTC())
	assert.Equal(t, day.AddDate(0, 0, 1), next)

	orders := []domain.Order{
		{ID: "late", Status: domain.OrderStatusNew, Timestamp: time.Date(2026, 4, 4, 0, 10, 0, 0, time.UTC)},
		{ID: "boundary", Status: domain.OrderStatusNew, Timestamp: next},
	}
	plan := PlanDay(orders, now, loc)
	require.Len(t, plan.Todays, 1)
	assert.Equal(t, "late", plan.Todays[0].ID)
}

func TestEmptyDay(t *testing.T) {
	now := time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)
	plan := PlanDay(nil, now, time.UTC)
	report := Summarize(plan, now)
	assert.Zero(t, report.TotalOrders)
	assert.Zero(t, report.AverageTicketCents)
	assert.False(t, Status(plan).CanClose)
}

func TestCanCloseOnlyWithOpenOrders(t *testing.T) {
	now := time.Date(2026, 4, 3, 22, 0, 0, 0, time.UTC)
	done := []domain.Order{
		{ID: "a", Status: domain.OrderStatusDelivered, TotalCents: cents(1000), Timestamp: now.Add(-time.Hour)},
		{ID: "b", Status: domain.OrderStatusCanceled, TotalCents: cents(500), Timestamp: now.Add(-2 * time.Hour)},
	}
	status := Status(PlanDay(done, now, time.UTC))
	assert.Equal(t, 2, status.TotalOrders)
	assert.Zero(t, status.PendingOrders)
	assert.False(t, status.CanClose)

	open := append(done, domain.Order{ID: "c", Status: domain.OrderStatusReady, TotalCents: cents(700), Timestamp: now.Add(-time.Minute)})
	status = Status(PlanDay(open, now, time.UTC))
	assert.Equal(t, 1, status.PendingOrders)
	assert.Equal(t, int64(2200), status.TotalRevenueCents)
	assert.True(t, status.CanClose)
}

func TestSummarizeRecomputesMissingTotals(t *testing.T) {
	now := time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)
	orders := []domain.Order{{
		ID:        "legacy",
		Status:    domain.OrderStatusDelivered,
		Timestamp: now,
		Items:     []domain.OrderItem{{PriceCents: 1250, Quantity: 2}, {PriceCents: 300, Quantity: 1}},
	}}
	report := Summarize(PlanDay(orders, now, time.UTC), now)
	assert.Equal(t, int64(2800), report.TotalRevenueCents)
}
