package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/xid"
)

func (s *Service) ListStock(ctx context.Context) ([]domain.StockItem, error) {
	if _, err := authorize(ctx, access.ManageStock); err != nil {
		return nil, err
	}
	return s.repo.ListStockItems(ctx)
}

// ApplyStockMovement records an IN or OUT movement and updates the product's
// stock in the same write. OUT movements never drive stock below zero.
func (s *Service) ApplyStockMovement(ctx context.Context, req domain.StockMovementRequest) (domain.StockMovementResponse, error) {
	actor, err := authorize(ctx, access.ManageStock)
	if err != nil {
		return domain.StockMovementResponse{}, err
	}

	movement := domain.StockMovement{
		ID:            xid.New("mov"),
		ProductID:     strings.TrimSpace(req.ProductID),
		Type:          domain.MovementType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Quantity:      req.Quantity,
		UnitCostCents: req.UnitCostCents,
		Reason:        sanitizeText(req.Reason),
		UserID:        actor.UserID,
		Timestamp:     s.clock(),
	}
	if err := inventory.Validate(movement); err != nil {
		return domain.StockMovementResponse{}, invalid("movement", strings.TrimPrefix(err.Error(), inventory.ErrInvalidMovement.Error()+": "))
	}

	ctx, span := s.tracer.Start(ctx, "service.ApplyStockMovement")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", movement.ProductID),
		attribute.String("movement.type", string(movement.Type)),
		attribute.Int("movement.quantity", movement.Quantity),
	)

	item, err := s.repo.ApplyStockMovement(ctx, movement)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.StockMovementResponse{}, invalid("product_id", "unknown product")
		}
		span.RecordError(err)
		return domain.StockMovementResponse{}, fmt.Errorf("apply stock movement: %w", err)
	}

	s.logAudit(ctx, "stock_movement", "product", item.ProductID, fmt.Sprintf("type=%s,qty=%d,stock=%d", movement.Type, movement.Quantity, item.CurrentStock))
	s.publish(ctx, events.Event{
		Type:       events.StockMoved,
		Key:        item.ProductID,
		Attributes: map[string]string{"type": string(movement.Type)},
		Payload:    item,
	})
	if item.IsLow() {
		s.notices.Add(notify.Owners, "stock", "Estoque baixo", fmt.Sprintf("%s: %d unidades", item.ProductName, item.CurrentStock))
	}
	s.changed(ctx, feed.Stock)
	return domain.StockMovementResponse{Movement: movement, Stock: *item}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if _, err := authorize(ctx, access.ManageStock); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, strings.TrimSpace(productID), limit)
}

// ReconcileStock compares every cached stock counter with the level derived
// from the movement ledger. With correct set, each divergent product is
// re-folded and fixed by the store under its stock lock, and the report
// carries what was actually corrected.
func (s *Service) ReconcileStock(ctx context.Context, correct bool) (domain.StockReconcileResponse, error) {
	if _, err := authorize(ctx, access.ManageStock); err != nil {
		return domain.StockReconcileResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "service.ReconcileStock")
	defer span.End()

	items, err := s.repo.ListStockItems(ctx)
	if err != nil {
		return domain.StockReconcileResponse{}, err
	}
	movements, err := s.repo.ListStockMovements(ctx, "", 0)
	if err != nil {
		return domain.StockReconcileResponse{}, err
	}

	diffs := inventory.Reconcile(items, inventory.Fold(movements))
	resp := domain.StockReconcileResponse{Checked: len(items), Discrepancies: diffs}
	span.SetAttributes(attribute.Int("stock.checked", len(items)), attribute.Int("stock.discrepancies", len(diffs)))
	if !correct || len(diffs) == 0 {
		return resp, nil
	}

	now := s.clock()
	fixed := make([]domain.StockDiscrepancy, 0, len(diffs))
	for _, d := range diffs {
		applied, err := s.repo.CorrectStockFromLedger(ctx, d.ProductID, now)
		if err != nil {
			return resp, fmt.Errorf("correct stock of %s: %w", d.ProductID, err)
		}
		if applied == nil {
			continue
		}
		fixed = append(fixed, *applied)
		s.logAudit(ctx, "stock_reconcile", "product", applied.ProductID, fmt.Sprintf("cached=%d,ledger=%d", applied.CachedStock, applied.LedgerStock))
	}
	resp.Discrepancies = fixed
	resp.Corrected = true
	s.changed(ctx, feed.Stock)
	return resp, nil
}
