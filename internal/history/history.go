// Package history keeps the bounded list of daily close reports.
package history

import (
	"context"
	"sync"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const (
	DefaultLimit = 30
	DefaultKey   = "barapp:daily-reports"
)

// Store keeps at most its limit of reports, dropping the oldest. List
// returns them oldest first.
type Store interface {
	Append(ctx context.Context, report domain.DailyReport) error
	List(ctx context.Context) ([]domain.DailyReport, error)
}

type MemoryStore struct {
	mu      sync.Mutex
	limit   int
	reports []domain.DailyReport
}

func NewMemoryStore(limit int) *MemoryStore {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Append(_ context.Context, report domain.DailyReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	if over := len(m.reports) - m.limit; over > 0 {
		m.reports = append([]domain.DailyReport(nil), m.reports[over:]...)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]domain.DailyReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DailyReport(nil), m.reports...), nil
}
