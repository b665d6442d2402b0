package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

func TestSeededStockMatchesLedger(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	items, err := s.ListStockItems(ctx)
	if err != nil {
		t.Fatalf("list stock: %v", err)
	}
	movements, err := s.ListStockMovements(ctx, "", 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if diff := inventory.Reconcile(items, inventory.Fold(movements)); len(diff) != 0 {
		t.Fatalf("expected seeded stock to match ledger, got %+v", diff)
	}

	owner, err := s.GetUserByEmail(ctx, "DONO@barapp.local")
	if err != nil {
		t.Fatalf("get owner: %v", err)
	}
	if !owner.IsOwner || owner.PasswordHash == "" {
		t.Fatalf("expected hashed owner account, got %+v", owner)
	}
}

func TestCorrectStockFromLedger(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if err := s.SetStockLevel("prd-agua", 7); err != nil {
		t.Fatalf("force drift: %v", err)
	}
	diff, err := s.CorrectStockFromLedger(ctx, "prd-agua", time.Time{})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if diff == nil || diff.CachedStock != 7 || diff.LedgerStock != 60 {
		t.Fatalf("expected correction from 7 to 60, got %+v", diff)
	}
	item, _ := s.GetStockItem(ctx, "prd-agua")
	if item.CurrentStock != 60 || item.LastUpdated.IsZero() {
		t.Fatalf("expected restored counter, got %+v", item)
	}

	if diff, err := s.CorrectStockFromLedger(ctx, "prd-agua", time.Time{}); err != nil || diff != nil {
		t.Fatalf("expected consistent counter left alone, got %+v (%v)", diff, err)
	}
	if _, err := s.CorrectStockFromLedger(ctx, "prd-missing", time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateOrderStatusIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		CustomerID: "c1",
		Items:      []domain.OrderItem{{ProductID: "p1", Name: "Chopp", PriceCents: 990, Quantity: 1}},
		Status:     domain.OrderStatusNew,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := s.UpdateOrderStatus(ctx, order.ID, []domain.OrderStatus{domain.OrderStatusPreparing}, domain.OrderStatusReady, time.Time{}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	updated, err := s.UpdateOrderStatus(ctx, order.ID, []domain.OrderStatus{domain.OrderStatusNew}, domain.OrderStatusPreparing, time.Time{})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.OrderStatusPreparing {
		t.Fatalf("expected PREPARING, got %s", updated.Status)
	}
	if _, err := s.UpdateOrderStatus(ctx, "missing", nil, domain.OrderStatusReady, time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListOrdersWindow(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)
	next := day.Add(24 * time.Hour)

	for _, ts := range []time.Time{day.Add(-time.Minute), day, next.Add(-time.Second), next} {
		if _, err := s.CreateOrder(ctx, domain.Order{
			CustomerID: "c1",
			Items:      []domain.OrderItem{{ProductID: "p1", PriceCents: 100, Quantity: 1}},
			Status:     domain.OrderStatusNew,
			Timestamp:  ts,
		}); err != nil {
			t.Fatalf("create order: %v", err)
		}
	}

	orders, err := s.ListOrders(ctx, domain.OrderFilter{From: &day, To: &next})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders in [day, next), got %d", len(orders))
	}
}

func TestProductCategoryCounts(t *testing.T) {
	s := New()
	ctx := context.Background()

	product := domain.Product{Name: "Água", Category: "bebidas", PriceCents: 500, Available: true}
	created, err := s.CreateProduct(ctx, product, inventory.NewItem(product))
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	created.Category = "sem-alcool"
	if _, err := s.UpdateProduct(ctx, *created); err != nil {
		t.Fatalf("update product: %v", err)
	}

	categories, _ := s.ListCategories(ctx)
	counts := map[string]int{}
	for _, c := range categories {
		counts[c.Name] = c.ProductCount
	}
	if counts["bebidas"] != 0 || counts["sem-alcool"] != 1 {
		t.Fatalf("unexpected category counts %+v", counts)
	}
	item, err := s.GetStockItem(ctx, created.ID)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if item.Category != "sem-alcool" || item.MinStock != inventory.DefaultMinStock {
		t.Fatalf("unexpected stock item %+v", item)
	}
}
