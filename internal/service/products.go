package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
)

const (
	maxDescriptionLen = 500
	maxNameLen        = 120
)

// sanitizeText trims s and drops angle brackets.
func sanitizeText(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
}

func validateProduct(p domain.Product) error {
	if utf8.RuneCountInString(p.Name) < 2 {
		return invalid("name", "must have at least 2 characters")
	}
	if p.Category == "" {
		return invalid("category", "required")
	}
	if p.PriceCents < 1 {
		return invalid("price_cents", "must be greater than zero")
	}
	if utf8.RuneCountInString(p.Description) > maxDescriptionLen {
		return invalid("description", fmt.Sprintf("must have at most %d characters", maxDescriptionLen))
	}
	return nil
}

// ListProducts returns the menu. Unavailable products are only listed for
// callers who manage products.
func (s *Service) ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error) {
	if includeUnavailable {
		if _, err := authorize(ctx, access.ManageProducts); err != nil {
			return nil, err
		}
	}
	return s.repo.ListProducts(ctx, includeUnavailable)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := authorize(ctx, access.ManageProducts); err != nil {
		return domain.Product{}, err
	}

	now := s.clock()
	product := domain.Product{
		Name:        sanitizeText(req.Name),
		Description: sanitizeText(req.Description),
		Category:    strings.ToLower(sanitizeText(req.Category)),
		PriceCents:  req.PriceCents,
		Available:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Available != nil {
		product.Available = *req.Available
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product, inventory.NewItem(product))
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d", created.Name, created.PriceCents))
	s.changed(ctx, feed.Stock)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := authorize(ctx, access.ManageProducts); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = sanitizeText(*req.Name)
	}
	if req.Description != nil {
		updated.Description = sanitizeText(*req.Description)
	}
	if req.Category != nil {
		updated.Category = strings.ToLower(sanitizeText(*req.Category))
	}
	if req.PriceCents != nil {
		updated.PriceCents = *req.PriceCents
	}
	if req.Available != nil {
		updated.Available = *req.Available
	}
	updated.UpdatedAt = s.clock()
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("available=%t,price=%d", saved.Available, saved.PriceCents))
	s.changed(ctx, feed.Stock)
	return *saved, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}
