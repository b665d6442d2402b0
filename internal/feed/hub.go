// Package feed delivers the full current result set of a collection to
// subscribers, once on subscribe and again after every change.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

const (
	Orders   = "orders"
	Stock    = "stock"
	Cashback = "cashbacks"
)

var ErrUnknownCollection = errors.New("unknown collection")

// Collections lists every collection the hub can serve.
func Collections() []string {
	return []string{Orders, Stock, Cashback}
}

// Snapshot is one delivery. Exactly one of the data fields is set for its
// collection unless Err is non-nil.
type Snapshot struct {
	Collection string
	Version    uint64
	Orders     []domain.Order
	Stock      []domain.StockItem
	Grants     []domain.CashbackGrant
	Err        error
	At         time.Time
}

type Source interface {
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	ListStockItems(ctx context.Context) ([]domain.StockItem, error)
	ListCashbackGrants(ctx context.Context, customerID string) ([]domain.CashbackGrant, error)
}

type subscriber struct {
	ch   chan Snapshot
	last uint64
}

type Hub struct {
	source      Source
	log         *slog.Logger
	loadTimeout time.Duration

	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	subs    map[string]map[uint64]*subscriber
	stopped bool
}

func NewHub(source Source, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		source:      source,
		log:         log,
		loadTimeout: 5 * time.Second,
		subs:        make(map[string]map[uint64]*subscriber),
	}
}

// Subscribe registers for collection. The first snapshot arrives as soon as
// it is loaded. A slow subscriber only ever sees the newest snapshot. The
// subscription ends when ctx is done or cancel is called; the channel is
// then closed.
func (h *Hub) Subscribe(ctx context.Context, collection string) (<-chan Snapshot, func(), error) {
	if !known(collection) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, nil, errors.New("feed hub stopped")
	}
	h.nextID++
	id := h.nextID
	sub := &subscriber{ch: make(chan Snapshot, 1)}
	if h.subs[collection] == nil {
		h.subs[collection] = make(map[uint64]*subscriber)
	}
	h.subs[collection][id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[collection][id]; ok {
				delete(h.subs[collection], id)
				close(sub.ch)
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)

	snap := h.load(ctx, collection)
	h.mu.Lock()
	if current, ok := h.subs[collection][id]; ok {
		deliver(current, snap)
	}
	h.mu.Unlock()

	return sub.ch, func() {
		stop()
		cancel()
	}, nil
}

// Notify reloads collection and pushes the result to its subscribers.
func (h *Hub) Notify(ctx context.Context, collection string) {
	if !known(collection) {
		return
	}
	h.mu.Lock()
	empty := len(h.subs[collection]) == 0
	h.mu.Unlock()
	if empty {
		return
	}

	snap := h.load(context.WithoutCancel(ctx), collection)
	if snap.Err != nil {
		h.log.Warn("feed reload failed", "collection", collection, "error", snap.Err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs[collection] {
		deliver(sub, snap)
	}
}

func (h *Hub) Subscribers(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for collection, subs := range h.subs {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(h.subs, collection)
	}
	return nil
}

func (h *Hub) load(ctx context.Context, collection string) Snapshot {
	h.mu.Lock()
	h.seq++
	version := h.seq
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, h.loadTimeout)
	defer cancel()

	snap := Snapshot{Collection: collection, Version: version}
	switch collection {
	case Orders:
		snap.Orders, snap.Err = h.source.ListOrders(ctx, domain.OrderFilter{})
	case Stock:
		snap.Stock, snap.Err = h.source.ListStockItems(ctx)
	case Cashback:
		snap.Grants, snap.Err = h.source.ListCashbackGrants(ctx, "")
	}
	snap.At = time.Now().UTC()
	return snap
}

// deliver must be called with h.mu held. Older loads never overwrite newer ones.
func deliver(sub *subscriber, snap Snapshot) {
	if snap.Version <= sub.last {
		return
	}
	sub.last = snap.Version
	select {
	case sub.ch <- snap:
		return
	default:
	}
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snap:
	default:
	}
}

func known(collection string) bool {
	for _, c := range Collections() {
		if c == collection {
			return true
		}
	}
	return false
}
