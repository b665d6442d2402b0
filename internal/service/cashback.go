package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/cashback"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

// GrantCashback issues a manual grant to a customer.
func (s *Service) GrantCashback(ctx context.Context, req domain.CashbackGrantRequest) (domain.CashbackGrant, error) {
	if _, err := authorize(ctx, access.ManageCashback); err != nil {
		return domain.CashbackGrant{}, err
	}
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.CashbackGrant{}, invalid("customer_id", "required")
	}
	if req.AmountCents <= 0 {
		return domain.CashbackGrant{}, invalid("amount_cents", "must be greater than zero")
	}
	if req.ExpirationDays < 0 {
		return domain.CashbackGrant{}, invalid("expiration_days", "must not be negative")
	}
	if _, err := s.repo.GetUserByID(ctx, customerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.CashbackGrant{}, invalid("customer_id", "unknown customer")
		}
		return domain.CashbackGrant{}, err
	}

	now := s.clock()
	days := req.ExpirationDays
	if days == 0 {
		days = cashback.DefaultExpirationDays
	}
	expires := now.AddDate(0, 0, days)
	reason := sanitizeText(req.Reason)
	if reason == "" {
		reason = "Cashback manual"
	}

	created, err := s.repo.CreateCashbackGrant(ctx, domain.CashbackGrant{
		CustomerID:     customerID,
		AmountCents:    req.AmountCents,
		Reason:         reason,
		OrderID:        strings.TrimSpace(req.OrderID),
		ExpirationDate: &expires,
		CreatedAt:      now,
	})
	if err != nil {
		return domain.CashbackGrant{}, fmt.Errorf("create cashback grant: %w", err)
	}

	s.logAudit(ctx, "cashback_grant", "cashback", created.ID, fmt.Sprintf("customer=%s,amount=%d", created.CustomerID, created.AmountCents))
	s.publish(ctx, events.Event{Type: events.CashbackGranted, Key: created.ID, CustomerID: created.CustomerID, Payload: created})
	s.notices.Add(notify.CustomerAudience(created.CustomerID), "cashback", "Cashback recebido", fmt.Sprintf("Você ganhou %s", formatCents(created.AmountCents)))
	s.changed(ctx, feed.Cashback)
	return *created, nil
}

// RedeemCashback marks a grant used. A used grant stays used; expired
// grants cannot be redeemed. Customers may only redeem their own grants.
func (s *Service) RedeemCashback(ctx context.Context, id string) (domain.CashbackGrant, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return domain.CashbackGrant{}, err
	}
	grant, err := s.repo.GetCashbackGrant(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.CashbackGrant{}, err
	}
	if grant.CustomerID != actor.UserID && !access.HasPermission(actor.Profile(), access.ManageCashback) {
		return domain.CashbackGrant{}, fmt.Errorf("%w: grant belongs to another customer", store.ErrForbidden)
	}
	if grant.IsUsed {
		return domain.CashbackGrant{}, fmt.Errorf("%w: cashback already used", store.ErrConflict)
	}
	now := s.clock()
	if !cashback.IsAvailable(*grant, now) {
		return domain.CashbackGrant{}, invalid("id", "cashback expired")
	}

	used, err := s.repo.MarkCashbackUsed(ctx, grant.ID, now)
	if err != nil {
		return domain.CashbackGrant{}, fmt.Errorf("redeem cashback: %w", err)
	}
	s.logAudit(ctx, "cashback_redeem", "cashback", used.ID, fmt.Sprintf("amount=%d", used.AmountCents))
	s.changed(ctx, feed.Cashback)
	return *used, nil
}

// ListCashback returns all grants for staff and the caller's own otherwise.
func (s *Service) ListCashback(ctx context.Context, customerID string) ([]domain.CashbackGrant, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return nil, err
	}
	if !access.HasPermission(actor.Profile(), access.ManageCashback) {
		customerID = actor.UserID
	}
	return s.repo.ListCashbackGrants(ctx, strings.TrimSpace(customerID))
}

func (s *Service) CashbackBalance(ctx context.Context) (domain.CashbackBalance, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return domain.CashbackBalance{}, err
	}
	grants, err := s.repo.ListCashbackGrants(ctx, actor.UserID)
	if err != nil {
		return domain.CashbackBalance{}, err
	}
	return cashback.Balance(grants, actor.UserID, s.clock()), nil
}

func (s *Service) CreateCashbackRule(ctx context.Context, req domain.CashbackRuleCreateRequest) (domain.CashbackRule, error) {
	if _, err := authorize(ctx, access.ManageCashback); err != nil {
		return domain.CashbackRule{}, err
	}

	rule := domain.CashbackRule{
		Name:             sanitizeText(req.Name),
		Active:           true,
		Calculation:      domain.CashbackCalculation(strings.ToLower(strings.TrimSpace(req.Calculation))),
		Percent:          req.Percent,
		FixedCents:       req.FixedCents,
		MinSpendCents:    req.MinSpendCents,
		MaxCashbackCents: req.MaxCashbackCents,
		ExpirationDays:   req.ExpirationDays,
		CreatedAt:        s.clock(),
	}
	if len(rule.Name) < 2 {
		return domain.CashbackRule{}, invalid("name", "must have at least 2 characters")
	}
	switch rule.Calculation {
	case domain.CashbackPercentage:
		if rule.Percent <= 0 || rule.Percent > 100 {
			return domain.CashbackRule{}, invalid("percent", "must be in (0, 100]")
		}
	case domain.CashbackFixed:
		if rule.FixedCents <= 0 {
			return domain.CashbackRule{}, invalid("fixed_cents", "must be greater than zero")
		}
	default:
		return domain.CashbackRule{}, invalid("calculation", "must be percentage or fixed")
	}
	if rule.MinSpendCents < 0 || rule.MaxCashbackCents < 0 || rule.ExpirationDays < 0 {
		return domain.CashbackRule{}, invalid("rule", "limits must not be negative")
	}
	if rule.ExpirationDays == 0 {
		rule.ExpirationDays = cashback.DefaultExpirationDays
	}

	created, err := s.repo.CreateCashbackRule(ctx, rule)
	if err != nil {
		return domain.CashbackRule{}, fmt.Errorf("create cashback rule: %w", err)
	}
	s.logAudit(ctx, "cashback_rule_create", "cashback_rule", created.ID, created.Name)
	return *created, nil
}

func (s *Service) ListCashbackRules(ctx context.Context) ([]domain.CashbackRule, error) {
	if _, err := authorize(ctx, access.ManageCashback); err != nil {
		return nil, err
	}
	return s.repo.ListCashbackRules(ctx, false)
}

func (s *Service) SetCashbackRuleActive(ctx context.Context, id string, active bool) (domain.CashbackRule, error) {
	if _, err := authorize(ctx, access.ManageCashback); err != nil {
		return domain.CashbackRule{}, err
	}
	rule, err := s.repo.SetCashbackRuleActive(ctx, strings.TrimSpace(id), active)
	if err != nil {
		return domain.CashbackRule{}, err
	}
	s.logAudit(ctx, "cashback_rule_active", "cashback_rule", rule.ID, fmt.Sprintf("active=%t", active))
	return *rule, nil
}
