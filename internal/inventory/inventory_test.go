package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func TestApplyClampsOutAtZero(t *testing.T) {
	tests := []struct {
		name    string
		current int
		qty     int
		want    int
	}{
		{"more than stock", 3, 10, 0},
		{"exact stock", 4, 4, 0},
		{"partial", 10, 4, 6},
		{"already empty", 0, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := domain.StockItem{ProductID: "p1", CurrentStock: tt.current}
			got := Apply(item, domain.StockMovement{ProductID: "p1", Type: domain.MovementOut, Quantity: tt.qty})
			assert.Equal(t, tt.want, got.CurrentStock)
			assert.GreaterOrEqual(t, got.CurrentStock, 0)
		})
	}
}

func TestApplyInAddsAndLastCostWins(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	item := domain.StockItem{ProductID: "p1", CurrentStock: 2, UnitCostCents: 500}

	item = Apply(item, domain.StockMovement{ProductID: "p1", Type: domain.MovementIn, Quantity: 8, UnitCostCents: 700, Timestamp: at})
	assert.Equal(t, 10, item.CurrentStock)
	assert.Equal(t, int64(700), item.UnitCostCents)
	assert.Equal(t, at, item.LastUpdated)

	item = Apply(item, domain.StockMovement{ProductID: "p1", Type: domain.MovementOut, Quantity: 1, UnitCostCents: 650})
	assert.Equal(t, int64(650), item.UnitCostCents)
}

func TestValidate(t *testing.T) {
	valid := domain.StockMovement{ProductID: "p1", Type: domain.MovementIn, Quantity: 1}
	require.NoError(t, Validate(valid))

	bad := []domain.StockMovement{
		{Type: domain.MovementIn, Quantity: 1},
		{ProductID: "p1", Type: "MOVE", Quantity: 1},
		{ProductID: "p1", Type: domain.MovementOut, Quantity: 0},
		{ProductID: "p1", Type: domain.MovementOut, Quantity: 1, UnitCostCents: -1},
	}
	for _, m := range bad {
		assert.ErrorIs(t, Validate(m), ErrInvalidMovement)
	}
}

func TestFoldIsChronologicalAndClamped(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	movements := []domain.StockMovement{
		{ProductID: "p1", Type: domain.MovementIn, Quantity: 5, UnitCostCents: 100, Timestamp: base.Add(2 * time.Hour)},
		{ProductID: "p1", Type: domain.MovementOut, Quantity: 3, UnitCostCents: 90, Timestamp: base},
		{ProductID: "p2", Type: domain.MovementIn, Quantity: 7, Timestamp: base},
	}

	balances := Fold(movements)
	// The early OUT clamps at zero before the IN arrives.
	assert.Equal(t, 5, balances["p1"].Stock)
	assert.Equal(t, int64(100), balances["p1"].UnitCostCents)
	assert.Equal(t, 2, balances["p1"].Movements)
	assert.Equal(t, 7, balances["p2"].Stock)
}

func TestReconcileReportsDivergence(t *testing.T) {
	items := []domain.StockItem{
		{ProductID: "p2", CurrentStock: 9},
		{ProductID: "p1", CurrentStock: 5},
		{ProductID: "p3", CurrentStock: 0},
	}
	balances := map[string]Balance{"p1": {Stock: 5}, "p2": {Stock: 7}}

	got := Reconcile(items, balances)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StockDiscrepancy{ProductID: "p2", CachedStock: 9, LedgerStock: 7}, got[0])
}

func TestNewItemDefaults(t *testing.T) {
	item := NewItem(domain.Product{ID: "p1", Name: "Chopp", Category: "bebidas"})
	assert.Equal(t, 0, item.CurrentStock)
	assert.Equal(t, DefaultMinStock, item.MinStock)
	assert.Equal(t, DefaultMaxStock, item.MaxStock)
	assert.Zero(t, item.UnitCostCents)
	assert.True(t, item.IsLow())
}
