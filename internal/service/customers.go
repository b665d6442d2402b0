package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/projection"
)

// ListCustomers returns the profiles of every non-owner account.
func (s *Service) ListCustomers(ctx context.Context) ([]domain.UserProfile, error) {
	if _, err := authorize(ctx, access.ManageCustomers); err != nil {
		return nil, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	customers := make([]domain.UserProfile, 0, len(users))
	for _, u := range users {
		if u.IsOwner {
			continue
		}
		customers = append(customers, u.Profile())
	}
	return customers, nil
}

// CustomerMetrics summarizes the caller's orders and cashback. Staff may
// ask for any customer.
func (s *Service) CustomerMetrics(ctx context.Context, customerID string) (domain.CustomerMetrics, error) {
	actor, err := authorize(ctx, access.ViewMyOrders)
	if err != nil {
		return domain.CustomerMetrics{}, err
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" || !access.HasPermission(actor.Profile(), access.ManageCustomers) {
		customerID = actor.UserID
	}

	orders, err := s.repo.ListOrders(ctx, domain.OrderFilter{CustomerID: customerID})
	if err != nil {
		return domain.CustomerMetrics{}, err
	}
	grants, err := s.repo.ListCashbackGrants(ctx, customerID)
	if err != nil {
		return domain.CustomerMetrics{}, err
	}
	return projection.Customer(orders, grants, customerID, s.clock()), nil
}

// UpdateProfile renames the caller's own account.
func (s *Service) UpdateProfile(ctx context.Context, req domain.ProfileUpdateRequest) (domain.UserProfile, error) {
	actor, err := authorize(ctx, access.ManageProfile)
	if err != nil {
		return domain.UserProfile{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.UserProfile{}, invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return domain.UserProfile{}, invalid("name", "is too long")
	}

	updated, err := s.repo.UpdateUserName(ctx, actor.UserID, name, s.clock())
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("update profile: %w", err)
	}
	s.logAudit(ctx, "profile_update", "user", updated.ID, "name changed")
	return updated.Profile(), nil
}

func audienceOf(actor domain.Actor) string {
	if actor.IsOwner {
		return notify.Owners
	}
	return notify.CustomerAudience(actor.UserID)
}

func (s *Service) Notifications(ctx context.Context) ([]domain.Notification, int, error) {
	actor, err := authorize(ctx, access.ManageProfile)
	if err != nil {
		return nil, 0, err
	}
	audience := audienceOf(actor)
	return s.notices.List(audience), s.notices.Unread(audience), nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, id string) error {
	actor, err := authorize(ctx, access.ManageProfile)
	if err != nil {
		return err
	}
	return s.notices.MarkRead(audienceOf(actor), strings.TrimSpace(id))
}

func (s *Service) ClearNotifications(ctx context.Context) error {
	actor, err := authorize(ctx, access.ManageProfile)
	if err != nil {
		return err
	}
	s.notices.Clear(audienceOf(actor))
	return nil
}
