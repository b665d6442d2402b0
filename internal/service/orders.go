package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/cashback"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/lifecycle"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

const maxOrderLines = 50

// CreateOrder places an order for the calling customer. Item names and
// prices are copied from the current catalog, so later price changes do
// not alter the order.
func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	actor, err := authorize(ctx, access.CreateOrder)
	if err != nil {
		return domain.Order{}, err
	}
	if len(req.Items) == 0 {
		return domain.Order{}, invalid("items", "at least one item required")
	}
	if len(req.Items) > maxOrderLines {
		return domain.Order{}, invalid("items", fmt.Sprintf("at most %d lines", maxOrderLines))
	}
	note := sanitizeText(req.Note)
	if utf8.RuneCountInString(note) > maxDescriptionLen {
		return domain.Order{}, invalid("note", fmt.Sprintf("must have at most %d characters", maxDescriptionLen))
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for i, line := range req.Items {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return domain.Order{}, invalid(fmt.Sprintf("items[%d].product_id", i), "required")
		}
		if line.Quantity <= 0 {
			return domain.Order{}, invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Order{}, invalid(fmt.Sprintf("items[%d].product_id", i), "unknown product")
			}
			return domain.Order{}, err
		}
		if !product.Available {
			return domain.Order{}, invalid(fmt.Sprintf("items[%d].product_id", i), product.Name+" is unavailable")
		}
		items = append(items, domain.OrderItem{
			ProductID:  product.ID,
			Name:       product.Name,
			PriceCents: product.PriceCents,
			Quantity:   line.Quantity,
		})
	}

	now := s.clock()
	total := domain.SumItems(items)
	order := domain.Order{
		CustomerID:   actor.UserID,
		CustomerName: actor.Name,
		Items:        items,
		TotalCents:   &total,
		Status:       domain.OrderStatusNew,
		Note:         note,
		Timestamp:    now,
		UpdatedAt:    now,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logAudit(ctx, "order_create", "order", created.ID, fmt.Sprintf("items=%d,total=%d", created.ItemCount(), created.Total()))
	s.publish(ctx, events.Event{
		Type:       events.OrderCreated,
		Key:        created.ID,
		CustomerID: created.CustomerID,
		Payload:    created,
	})
	s.notices.Add(notify.Owners, "order", "Novo pedido", fmt.Sprintf("%s: %d itens, %s", displayName(created.CustomerName), created.ItemCount(), formatCents(created.Total())))
	s.changed(ctx, feed.Orders)
	return *created, nil
}

// UpdateOrderStatus advances an order one step along the status machine.
func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.OrderStatusUpdateRequest) (domain.Order, error) {
	if _, err := authorize(ctx, access.ManageOrders); err != nil {
		return domain.Order{}, err
	}
	to, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		return domain.Order{}, invalid("status", "unknown status")
	}

	current, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if !lifecycle.CanTransition(current.Status, to) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, to)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, current.ID, []domain.OrderStatus{current.Status}, to, s.clock())
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}

	s.logAudit(ctx, "order_status", "order", updated.ID, fmt.Sprintf("%s->%s", current.Status, to))
	s.publish(ctx, events.Event{
		Type:       events.OrderStatusChanged,
		Key:        updated.ID,
		CustomerID: updated.CustomerID,
		Attributes: map[string]string{"from": string(current.Status), "to": string(to)},
		Payload:    updated,
	})
	if title, body, ok := statusNotice(*updated); ok {
		s.notices.Add(notify.CustomerAudience(updated.CustomerID), "order", title, body)
	}
	s.changed(ctx, feed.Orders)

	if to == domain.OrderStatusDelivered {
		s.issueRuleCashback(ctx, *updated)
	}
	return *updated, nil
}

// ListOrders returns every order matching filter for staff; customers only
// ever see their own.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return nil, err
	}
	if !access.HasPermission(actor.Profile(), access.ManageOrders) {
		filter.CustomerID = actor.UserID
	}
	return s.repo.ListOrders(ctx, filter)
}

func (s *Service) MyOrders(ctx context.Context) ([]domain.Order, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return nil, err
	}
	return s.repo.ListOrders(ctx, domain.OrderFilter{CustomerID: actor.UserID})
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.CustomerID != actor.UserID && !access.HasPermission(actor.Profile(), access.ManageOrders) {
		return domain.Order{}, fmt.Errorf("%w: order belongs to another customer", store.ErrForbidden)
	}
	return *order, nil
}

// issueRuleCashback grants what each active rule pays for a delivered
// order. A rule pays at most once per order.
func (s *Service) issueRuleCashback(ctx context.Context, order domain.Order) {
	rules, err := s.repo.ListCashbackRules(ctx, true)
	if err != nil {
		s.log.WarnContext(ctx, "list cashback rules failed", "order_id", order.ID, "error", err)
		return
	}

	granted := false
	for _, rule := range rules {
		grant, ok := cashback.FromRule(rule, order, s.clock())
		if !ok {
			continue
		}
		created, err := s.repo.CreateCashbackGrant(ctx, grant)
		if err != nil {
			if !errors.Is(err, store.ErrConflict) {
				s.log.WarnContext(ctx, "cashback grant failed", "order_id", order.ID, "rule_id", rule.ID, "error", err)
			}
			continue
		}
		granted = true
		s.publish(ctx, events.Event{
			Type:       events.CashbackGranted,
			Key:        created.ID,
			CustomerID: created.CustomerID,
			Payload:    created,
		})
		s.notices.Add(notify.CustomerAudience(created.CustomerID), "cashback", "Cashback recebido", fmt.Sprintf("Você ganhou %s", formatCents(created.AmountCents)))
	}
	if granted {
		s.changed(ctx, feed.Cashback)
	}
}

func statusNotice(order domain.Order) (string, string, bool) {
	switch order.Status {
	case domain.OrderStatusPreparing:
		return "Pedido em preparo", "Seu pedido está sendo preparado", true
	case domain.OrderStatusReady:
		return "Pedido pronto", "Seu pedido está pronto para retirada", true
	case domain.OrderStatusDelivered:
		return "Pedido entregue", "Bom proveito!", true
	case domain.OrderStatusCanceled:
		return "Pedido cancelado", "Seu pedido foi cancelado", true
	}
	return "", "", false
}

func displayName(name string) string {
	if name == "" {
		return "Cliente"
	}
	return name
}

// formatCents renders cents as Brazilian reais, e.g. 123456 -> "R$ 1234,56".
func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %d,%02d", sign, cents/100, cents%100)
}
