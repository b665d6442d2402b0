package projection

import (
	"context"
	"sync"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/feed"
)

type ActionType string

const (
	OrdersSnapshot   ActionType = "ORDERS_SNAPSHOT"
	StockSnapshot    ActionType = "STOCK_SNAPSHOT"
	CashbackSnapshot ActionType = "CASHBACK_SNAPSHOT"
	SourceError      ActionType = "SOURCE_ERROR"
)

// Action is the only way state enters a Projector.
type Action struct {
	Type   ActionType
	Source string
	Orders []domain.Order
	Stock  []domain.StockItem
	Grants []domain.CashbackGrant
	Err    error
	At     time.Time
}

type state struct {
	orders  []domain.Order
	stock   []domain.StockItem
	grants  []domain.CashbackGrant
	sources map[string]domain.SourceState
}

// Projector is the read model behind the dashboard. Each feed arrives
// independently; metrics are computed on read from whatever each feed last
// delivered, so the local-day window follows the clock.
type Projector struct {
	loc *time.Location
	now func() time.Time

	mu    sync.RWMutex
	state state
}

func NewProjector(loc *time.Location, now func() time.Time) *Projector {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	p := &Projector{loc: loc, now: now}
	p.state.sources = make(map[string]domain.SourceState)
	for _, c := range feed.Collections() {
		p.state.sources[c] = domain.SourceState{Status: domain.SourceLoading}
	}
	return p
}

func (p *Projector) Dispatch(a Action) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = reduce(p.state, a)
}

func (p *Projector) View() domain.MetricsView {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.project()
}

// Ready reports whether every feed has delivered at least once without error.
func (p *Projector) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.state.sources {
		if s.Status != domain.SourceReady {
			return false
		}
	}
	return true
}

func reduce(s state, a Action) state {
	next := state{orders: s.orders, stock: s.stock, grants: s.grants, sources: make(map[string]domain.SourceState, len(s.sources))}
	for k, v := range s.sources {
		next.sources[k] = v
	}
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	switch a.Type {
	case OrdersSnapshot:
		next.orders = a.Orders
		next.sources[feed.Orders] = domain.SourceState{Status: domain.SourceReady, Count: len(a.Orders), UpdatedAt: at}
	case StockSnapshot:
		next.stock = a.Stock
		next.sources[feed.Stock] = domain.SourceState{Status: domain.SourceReady, Count: len(a.Stock), UpdatedAt: at}
	case CashbackSnapshot:
		next.grants = a.Grants
		next.sources[feed.Cashback] = domain.SourceState{Status: domain.SourceReady, Count: len(a.Grants), UpdatedAt: at}
	case SourceError:
		prev := next.sources[a.Source]
		msg := "unavailable"
		if a.Err != nil {
			msg = a.Err.Error()
		}
		next.sources[a.Source] = domain.SourceState{Status: domain.SourceError, Error: msg, Count: prev.Count, UpdatedAt: at}
	}
	return next
}

func (p *Projector) project() domain.MetricsView {
	sources := make(map[string]domain.SourceState, len(p.state.sources))
	for k, v := range p.state.sources {
		sources[k] = v
	}
	return domain.MetricsView{
		Metrics: Compute(p.state.orders, p.state.stock, p.now(), p.loc),
		Sources: sources,
	}
}

// FromSnapshot turns a feed delivery into an action.
func FromSnapshot(s feed.Snapshot) Action {
	if s.Err != nil {
		return Action{Type: SourceError, Source: s.Collection, Err: s.Err, At: s.At}
	}
	switch s.Collection {
	case feed.Orders:
		return Action{Type: OrdersSnapshot, Source: s.Collection, Orders: s.Orders, At: s.At}
	case feed.Stock:
		return Action{Type: StockSnapshot, Source: s.Collection, Stock: s.Stock, At: s.At}
	default:
		return Action{Type: CashbackSnapshot, Source: s.Collection, Grants: s.Grants, At: s.At}
	}
}

type Subscriber interface {
	Subscribe(ctx context.Context, collection string) (<-chan feed.Snapshot, func(), error)
}

// Run feeds the projector from hub until ctx is done or a feed closes.
func (p *Projector) Run(ctx context.Context, hub Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan feed.Snapshot)
	var wg sync.WaitGroup
	for _, collection := range feed.Collections() {
		ch, unsubscribe, err := hub.Subscribe(ctx, collection)
		if err != nil {
			return err
		}
		defer unsubscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range ch {
				select {
				case merged <- snap:
				case <-ctx.Done():
					return
				}
			}
			cancel()
		}()
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-merged:
			if !ok {
				return ctx.Err()
			}
			p.Dispatch(FromSnapshot(snap))
		}
	}
}
