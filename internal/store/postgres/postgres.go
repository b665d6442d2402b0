package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/inventory"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/xid"
)

// Channel is the LISTEN/NOTIFY channel carrying the name of the changed
// collection.
const Channel = "barapp_changes"

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates missing tables and indexes. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// notifyChange queues a change notification; inside a transaction it is
// delivered on commit.
func notifyChange(ctx context.Context, q querier, collection string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, collection)
	return err
}

const productColumns = `id, name, description, category, price_cents, available, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.PriceCents, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeUnavailable bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE available = true OR $1
		ORDER BY category, name
	`, includeUnavailable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, item domain.StockItem) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = product.CreatedAt
	}
	if item.LastUpdated.IsZero() {
		item.LastUpdated = product.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := bumpCategory(ctx, tx, product.Category, 1, product.CreatedAt); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Description, product.Category, product.PriceCents, product.Available, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_items (product_id, product_name, category, current_stock, min_stock, max_stock, unit_cost_cents, last_updated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Category, max(item.CurrentStock, 0), item.MinStock, item.MaxStock, item.UnitCostCents, item.LastUpdated)
	if err != nil {
		return nil, err
	}
	if err := notifyChange(ctx, tx, feed.Stock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func bumpCategory(ctx context.Context, q querier, name string, delta int, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (name, product_count, active, created_at)
		VALUES ($1, GREATEST($2, 0), true, $3)
		ON CONFLICT (name)
		DO UPDATE SET product_count = GREATEST(categories.product_count + $2, 0)
	`, name, delta, at)
	return err
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.Category == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldCategory string
	err = tx.QueryRowContext(ctx, `
		SELECT category, created_at FROM products WHERE id = $1 FOR UPDATE
	`, product.ID).Scan(&oldCategory, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()

	if oldCategory != product.Category {
		if err := bumpCategory(ctx, tx, product.Category, 1, product.UpdatedAt); err != nil {
			return nil, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, price_cents = $5, available = $6, updated_at = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Category, product.PriceCents, product.Available, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if oldCategory != product.Category {
		if err := bumpCategory(ctx, tx, oldCategory, -1, product.UpdatedAt); err != nil {
			return nil, err
		}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE stock_items SET product_name = $2, category = $3 WHERE product_id = $1
	`, product.ID, product.Name, product.Category)
	if err != nil {
		return nil, err
	}
	if err := notifyChange(ctx, tx, feed.Stock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	saved := product
	return &saved, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, product_count, active, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.Name, &c.ProductCount, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

const stockColumns = `product_id, product_name, category, current_stock, min_stock, max_stock, unit_cost_cents, last_updated`

func scanStockItem(row rowScanner) (domain.StockItem, error) {
	var item domain.StockItem
	if err := row.Scan(&item.ProductID, &item.ProductName, &item.Category, &item.CurrentStock, &item.MinStock, &item.MaxStock, &item.UnitCostCents, &item.LastUpdated); err != nil {
		return domain.StockItem{}, err
	}
	item.LastUpdated = item.LastUpdated.UTC()
	return item, nil
}

func (s *Store) ListStockItems(ctx context.Context) ([]domain.StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stockColumns+` FROM stock_items ORDER BY product_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, 64)
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetStockItem(ctx context.Context, productID string) (*domain.StockItem, error) {
	item, err := scanStockItem(s.db.QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE product_id = $1`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ApplyStockMovement locks the stock row, appends the movement and writes
// the new counter in one transaction.
func (s *Store) ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockItem, error) {
	if err := inventory.Validate(movement); err != nil {
		return nil, store.ErrInvalidInput
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.Timestamp.IsZero() {
		movement.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := scanStockItem(tx.QueryRowContext(ctx, `
		SELECT `+stockColumns+` FROM stock_items WHERE product_id = $1 FOR UPDATE
	`, movement.ProductID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, type, quantity, unit_cost_cents, reason, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, movement.ID, movement.ProductID, string(movement.Type), movement.Quantity, movement.UnitCostCents, movement.Reason, movement.UserID, movement.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	item = inventory.Apply(item, movement)
	_, err = tx.ExecContext(ctx, `
		UPDATE stock_items
		SET current_stock = $2, unit_cost_cents = $3, last_updated = $4
		WHERE product_id = $1
	`, item.ProductID, item.CurrentStock, item.UnitCostCents, item.LastUpdated)
	if err != nil {
		return nil, err
	}
	if err := notifyChange(ctx, tx, feed.Stock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 100000
	}
	// newest `limit` rows, returned oldest first
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, quantity, unit_cost_cents, reason, user_id, created_at
		FROM (
			SELECT * FROM stock_movements
			WHERE $1 = '' OR product_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMovements(rows)
}

func scanMovements(rows *sql.Rows) ([]domain.StockMovement, error) {
	movements := make([]domain.StockMovement, 0, 64)
	for rows.Next() {
		var m domain.StockMovement
		var movementType string
		if err := rows.Scan(&m.ID, &m.ProductID, &movementType, &m.Quantity, &m.UnitCostCents, &m.Reason, &m.UserID, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Type = domain.MovementType(movementType)
		m.Timestamp = m.Timestamp.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

// CorrectStockFromLedger holds the stock row lock, the same one
// ApplyStockMovement takes, while it folds the product's ledger and writes
// the counter, so a concurrent movement is either fully in the fold or
// applied after the correction.
func (s *Store) CorrectStockFromLedger(ctx context.Context, productID string, at time.Time) (*domain.StockDiscrepancy, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	item, err := scanStockItem(tx.QueryRowContext(ctx, `
		SELECT `+stockColumns+` FROM stock_items WHERE product_id = $1 FOR UPDATE
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, product_id, type, quantity, unit_cost_cents, reason, user_id, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, err
	}
	ledger, err := scanMovements(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	balance := inventory.Fold(ledger)[productID]
	if balance.Stock == item.CurrentStock {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE stock_items SET current_stock = $2, last_updated = $3 WHERE product_id = $1
	`, productID, balance.Stock, at); err != nil {
		return nil, err
	}
	if err := notifyChange(ctx, tx, feed.Stock); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.StockDiscrepancy{ProductID: productID, CachedStock: item.CurrentStock, LedgerStock: balance.Stock}, nil
}

const orderColumns = `id, customer_id, customer_name, items, total_cents, status, note, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		items  []byte
		total  sql.NullInt64
		status string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &items, &total, &status, &o.Note, &o.Timestamp, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode items of order %s: %w", o.ID, err)
	}
	if total.Valid {
		v := total.Int64
		o.TotalCents = &v
	}
	o.Status = domain.OrderStatus(status)
	o.Timestamp = o.Timestamp.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if order.CustomerID == "" || len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.Timestamp
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return nil, err
	}
	var total any
	if order.TotalCents != nil {
		total = *order.TotalCents
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, order.ID, order.CustomerID, order.CustomerName, items, total, string(order.Status), order.Note, order.Timestamp, order.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := notifyChange(ctx, tx, feed.Orders); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("created_at < $%d", *filter.To)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrderStatus is a conditional update: the row changes only while
// its status is still one of allowedFrom.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, allowedFrom []domain.OrderStatus, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	from := make([]string, 0, len(allowedFrom))
	for _, status := range allowedFrom {
		from = append(from, string(status))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	o, err := scanOrder(tx.QueryRowContext(ctx, `
		UPDATE orders
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING `+orderColumns, id, string(to), at, from))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrInvalidTransition
	}
	if err := notifyChange(ctx, tx, feed.Orders); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &o, nil
}

const grantColumns = `id, customer_id, amount_cents, reason, order_id, rule_id, expiration_date, is_used, used_at, created_at`

func scanGrant(row rowScanner) (domain.CashbackGrant, error) {
	var (
		g       domain.CashbackGrant
		orderID sql.NullString
		ruleID  sql.NullString
		expires sql.NullTime
		usedAt  sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.CustomerID, &g.AmountCents, &g.Reason, &orderID, &ruleID, &expires, &g.IsUsed, &usedAt, &g.CreatedAt); err != nil {
		return domain.CashbackGrant{}, err
	}
	g.OrderID = orderID.String
	g.RuleID = ruleID.String
	if expires.Valid {
		t := expires.Time.UTC()
		g.ExpirationDate = &t
	}
	if usedAt.Valid {
		t := usedAt.Time.UTC()
		g.UsedAt = &t
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}

func (s *Store) CreateCashbackGrant(ctx context.Context, grant domain.CashbackGrant) (*domain.CashbackGrant, error) {
	if grant.CustomerID == "" || grant.AmountCents <= 0 {
		return nil, store.ErrInvalidInput
	}
	if grant.ID == "" {
		grant.ID = xid.New("cb")
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashback_grants (`+grantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, grant.ID, grant.CustomerID, grant.AmountCents, grant.Reason, nullIfEmpty(grant.OrderID), nullIfEmpty(grant.RuleID),
		nullTime(grant.ExpirationDate), grant.IsUsed, nullTime(grant.UsedAt), grant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	if err := notifyChange(ctx, s.db, feed.Cashback); err != nil {
		return nil, err
	}

	created := grant
	return &created, nil
}

func (s *Store) GetCashbackGrant(ctx context.Context, id string) (*domain.CashbackGrant, error) {
	g, err := scanGrant(s.db.QueryRowContext(ctx, `SELECT `+grantColumns+` FROM cashback_grants WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (s *Store) ListCashbackGrants(ctx context.Context, customerID string) ([]domain.CashbackGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+grantColumns+`
		FROM cashback_grants
		WHERE $1 = '' OR customer_id = $1
		ORDER BY created_at DESC, id ASC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := make([]domain.CashbackGrant, 0, 32)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grants, nil
}

func (s *Store) MarkCashbackUsed(ctx context.Context, id string, at time.Time) (*domain.CashbackGrant, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	g, err := scanGrant(s.db.QueryRowContext(ctx, `
		UPDATE cashback_grants
		SET is_used = true, used_at = $2
		WHERE id = $1 AND is_used = false
		RETURNING `+grantColumns, id, at))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if _, getErr := s.GetCashbackGrant(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, store.ErrConflict
	}
	if err := notifyChange(ctx, s.db, feed.Cashback); err != nil {
		return nil, err
	}
	return &g, nil
}

const ruleColumns = `id, name, active, calculation, percent, fixed_cents, min_spend_cents, max_cashback_cents, expiration_days, created_at`

func scanRule(row rowScanner) (domain.CashbackRule, error) {
	var r domain.CashbackRule
	var calculation string
	if err := row.Scan(&r.ID, &r.Name, &r.Active, &calculation, &r.Percent, &r.FixedCents, &r.MinSpendCents, &r.MaxCashbackCents, &r.ExpirationDays, &r.CreatedAt); err != nil {
		return domain.CashbackRule{}, err
	}
	r.Calculation = domain.CashbackCalculation(calculation)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func (s *Store) CreateCashbackRule(ctx context.Context, rule domain.CashbackRule) (*domain.CashbackRule, error) {
	if rule.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if rule.ID == "" {
		rule.ID = xid.New("rule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cashback_rules (`+ruleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rule.ID, rule.Name, rule.Active, string(rule.Calculation), rule.Percent, rule.FixedCents, rule.MinSpendCents, rule.MaxCashbackCents, rule.ExpirationDays, rule.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := rule
	return &created, nil
}

func (s *Store) ListCashbackRules(ctx context.Context, activeOnly bool) ([]domain.CashbackRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM cashback_rules
		WHERE active = true OR NOT $1
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.CashbackRule, 0, 8)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) SetCashbackRuleActive(ctx context.Context, id string, active bool) (*domain.CashbackRule, error) {
	r, err := scanRule(s.db.QueryRowContext(ctx, `
		UPDATE cashback_rules SET active = $2 WHERE id = $1
		RETURNING `+ruleColumns, id, active))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

const userColumns = `id, email, name, password_hash, is_owner, active, provider, created_at, updated_at`

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsOwner, &u.Active, &u.Provider, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return domain.UserAccount{}, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" {
		return store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.Provider == "" {
		user.Provider = "password"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, user.ID, user.Email, user.Name, user.PasswordHash, user.IsOwner, user.Active, user.Provider, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM app_users WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) UpdateUserName(ctx context.Context, id, name string, at time.Time) (*domain.UserAccount, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE app_users SET name = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+userColumns, id, name, at))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM app_users ORDER BY email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
