package memory

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	categories    map[string]domain.Category
	stock         map[string]domain.StockItem
	movements     []domain.StockMovement
	orders        map[string]domain.Order
	grants        map[string]domain.CashbackGrant
	rules         map[string]domain.CashbackRule
	usersByID     map[string]domain.UserAccount
	userIDByEmail map[string]string
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		categories:    make(map[string]domain.Category),
		stock:         make(map[string]domain.StockItem),
		movements:     make([]domain.StockMovement, 0, 128),
		orders:        make(map[string]domain.Order),
		grants:        make(map[string]domain.CashbackGrant),
		rules:         make(map[string]domain.CashbackRule),
		usersByID:     make(map[string]domain.UserAccount),
		userIDByEmail: make(map[string]string),
	}
}

// seedUsers builds the demo owner and customer. Passwords come from
// SEED_OWNER_PASSWORD and SEED_CUSTOMER_PASSWORD; dev defaults are used
// with a warning when unset. The seeded store is never used when
// DATABASE_URL is set.
func seedUsers(now time.Time) []domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "cliente123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		slog.Warn("memory store using default dev credentials; set SEED_OWNER_PASSWORD and SEED_CUSTOMER_PASSWORD to override")
	}

	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		id, email, name, password string
		owner                     bool
	}{
		{"usr-owner", "dono@barapp.local", "Dono do Bar", ownerPwd, true},
		{"usr-cliente", "cliente@barapp.local", "Cliente Demo", customerPwd, false},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			panic("memory store: hash seed password: " + err.Error())
		}
		users = append(users, domain.UserAccount{
			ID:           u.id,
			Email:        u.email,
			Name:         u.name,
			PasswordHash: string(hash),
			IsOwner:      u.owner,
			Active:       true,
			Provider:     "password",
			CreatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small bar menu, stock received through
// the ledger, and a demo owner and customer.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	ctx := context.Background()

	menu := []struct {
		id, name, category string
		price              int64
		stock              int
		cost               int64
	}{
		{"prd-chopp", "Chopp 300ml", "bebidas", 990, 120, 350},
		{"prd-caipirinha", "Caipirinha de Limão", "drinks", 1800, 40, 520},
		{"prd-agua", "Água Mineral", "bebidas", 500, 60, 150},
		{"prd-refri", "Refrigerante Lata", "bebidas", 700, 48, 300},
		{"prd-batata", "Porção de Batata Frita", "petiscos", 2450, 25, 800},
		{"prd-pastel", "Pastel de Queijo (6un)", "petiscos", 2200, 4, 700},
		{"prd-calabresa", "Calabresa Acebolada", "petiscos", 3200, 12, 1100},
	}
	for _, m := range menu {
		product := domain.Product{ID: m.id, Name: m.name, Category: m.category, PriceCents: m.price, Available: true, CreatedAt: now, UpdatedAt: now}
		if _, err := s.CreateProduct(ctx, product, inventory.NewItem(product)); err != nil {
			panic("memory store: seed product: " + err.Error())
		}
		if _, err := s.ApplyStockMovement(ctx, domain.StockMovement{
			ProductID:     m.id,
			Type:          domain.MovementIn,
			Quantity:      m.stock,
			UnitCostCents: m.cost,
			Reason:        "estoque inicial",
			UserID:        "usr-owner",
			Timestamp:     now,
		}); err != nil {
			panic("memory store: seed stock: " + err.Error())
		}
	}

	for _, u := range seedUsers(now) {
		_ = s.CreateUser(ctx, u)
	}

	_, _ = s.CreateCashbackRule(ctx, domain.CashbackRule{
		ID:             "rule-fidelidade",
		Name:           "Fidelidade 5%",
		Active:         true,
		Calculation:    domain.CashbackPercentage,
		Percent:        5,
		MinSpendCents:  3000,
		ExpirationDays: 30,
		CreatedAt:      now,
	})
	return s
}

func (s *Store) ListProducts(_ context.Context, includeUnavailable bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !includeUnavailable && !p.Available {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, item domain.StockItem) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	s.products[product.ID] = product

	item.ProductID = product.ID
	item.ProductName = product.Name
	item.Category = product.Category
	if item.LastUpdated.IsZero() {
		item.LastUpdated = product.CreatedAt
	}
	s.stock[product.ID] = item

	category, ok := s.categories[product.Category]
	if !ok {
		category = domain.Category{Name: product.Category, Active: true, CreatedAt: product.CreatedAt}
	}
	category.ProductCount++
	s.categories[product.Category] = category

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	product.CreatedAt = existing.CreatedAt
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product

	if existing.Category != product.Category {
		if old, ok := s.categories[existing.Category]; ok && old.ProductCount > 0 {
			old.ProductCount--
			s.categories[existing.Category] = old
		}
		category, ok := s.categories[product.Category]
		if !ok {
			category = domain.Category{Name: product.Category, Active: true, CreatedAt: product.UpdatedAt}
		}
		category.ProductCount++
		s.categories[product.Category] = category
	}
	if item, ok := s.stock[product.ID]; ok {
		item.ProductName = product.Name
		item.Category = product.Category
		s.stock[product.ID] = item
	}

	saved := product
	return &saved, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *Store) ListStockItems(_ context.Context) ([]domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StockItem, 0, len(s.stock))
	for _, item := range s.stock {
		out = append(out, item)
	}
	slices.SortFunc(out, func(a, b domain.StockItem) int { return strings.Compare(a.ProductName, b.ProductName) })
	return out, nil
}

func (s *Store) GetStockItem(_ context.Context, productID string) (*domain.StockItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.stock[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (s *Store) ApplyStockMovement(_ context.Context, movement domain.StockMovement) (*domain.StockItem, error) {
	if err := inventory.Validate(movement); err != nil {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.stock[movement.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.Timestamp.IsZero() {
		movement.Timestamp = time.Now().UTC()
	}

	s.movements = append(s.movements, movement)
	item = inventory.Apply(item, movement)
	s.stock[movement.ProductID] = item
	return &item, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockMovement, 0, len(s.movements))
	for _, m := range s.movements {
		if productID != "" && m.ProductID != productID {
			continue
		}
		out = append(out, m)
	}
	slices.SortStableFunc(out, func(a, b domain.StockMovement) int { return a.Timestamp.Compare(b.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Store) CorrectStockFromLedger(_ context.Context, productID string, at time.Time) (*domain.StockDiscrepancy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.stock[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	ledger := make([]domain.StockMovement, 0, 16)
	for _, m := range s.movements {
		if m.ProductID == productID {
			ledger = append(ledger, m)
		}
	}
	balance := inventory.Fold(ledger)[productID]
	if balance.Stock == item.CurrentStock {
		return nil, nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	diff := &domain.StockDiscrepancy{ProductID: productID, CachedStock: item.CurrentStock, LedgerStock: balance.Stock}
	item.CurrentStock = balance.Stock
	item.LastUpdated = at
	s.stock[productID] = item
	return diff, nil
}

// SetStockLevel overwrites the cached counter without a ledger entry,
// leaving the two out of step. It exists to exercise reconciliation.
func (s *Store) SetStockLevel(productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.stock[productID]
	if !ok {
		return store.ErrNotFound
	}
	item.CurrentStock = max(qty, 0)
	s.stock[productID] = item
	return nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if order.CustomerID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if _, exists := s.orders[order.ID]; exists {
		return nil, store.ErrConflict
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.Timestamp
	}
	order = cloneOrder(order)
	s.orders[order.ID] = order
	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.From != nil && o.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !o.Timestamp.Before(*filter.To) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b domain.Order) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, allowedFrom []domain.OrderStatus, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(allowedFrom, order.Status) {
		return nil, store.ErrInvalidTransition
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	order.Status = to
	order.UpdatedAt = at
	s.orders[id] = order
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) CreateCashbackGrant(_ context.Context, grant domain.CashbackGrant) (*domain.CashbackGrant, error) {
	if grant.CustomerID == "" || grant.AmountCents <= 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if grant.OrderID != "" && grant.RuleID != "" {
		for _, g := range s.grants {
			if g.OrderID == grant.OrderID && g.RuleID == grant.RuleID {
				return nil, store.ErrConflict
			}
		}
	}
	if grant.ID == "" {
		grant.ID = xid.New("cb")
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}
	s.grants[grant.ID] = grant
	created := grant
	return &created, nil
}

func (s *Store) GetCashbackGrant(_ context.Context, id string) (*domain.CashbackGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &g, nil
}

func (s *Store) ListCashbackGrants(_ context.Context, customerID string) ([]domain.CashbackGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CashbackGrant, 0, len(s.grants))
	for _, g := range s.grants {
		if customerID != "" && g.CustomerID != customerID {
			continue
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b domain.CashbackGrant) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) MarkCashbackUsed(_ context.Context, id string, at time.Time) (*domain.CashbackGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if g.IsUsed {
		return nil, store.ErrConflict
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	g.IsUsed = true
	g.UsedAt = &at
	s.grants[id] = g
	return &g, nil
}

func (s *Store) CreateCashbackRule(_ context.Context, rule domain.CashbackRule) (*domain.CashbackRule, error) {
	if rule.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	s.rules[rule.ID] = rule
	created := rule
	return &created, nil
}

func (s *Store) ListCashbackRules(_ context.Context, activeOnly bool) ([]domain.CashbackRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CashbackRule, 0, len(s.rules))
	for _, r := range s.rules {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.CashbackRule) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) SetCashbackRuleActive(_ context.Context, id string, active bool) (*domain.CashbackRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r.Active = active
	s.rules[id] = r
	return &r, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if email == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.userIDByEmail[email]; exists {
		return store.ErrConflict
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if _, exists := s.usersByID[user.ID]; exists {
		return store.ErrConflict
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	user.Email = email
	s.usersByID[user.ID] = user
	s.userIDByEmail[email] = user.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIDByEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := s.usersByID[id]
	return &u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) UpdateUserName(_ context.Context, id, name string, at time.Time) (*domain.UserAccount, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Name = name
	u.UpdatedAt = at
	s.usersByID[id] = u
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int { return strings.Compare(a.Email, b.Email) })
	return out, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.TotalCents != nil {
		total := *o.TotalCents
		o.TotalCents = &total
	}
	return o
}
