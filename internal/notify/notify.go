// Package notify keeps the in-app notification inbox of owners and customers.
package notify

import (
	"sync"
	"time"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/xid"
)

const (
	DefaultLimit = 50
	Owners       = "owners"
)

// CustomerAudience is the inbox key of one customer.
func CustomerAudience(customerID string) string {
	return "customer:" + customerID
}

// Center keeps the newest notifications per audience, newest first.
type Center struct {
	mu    sync.Mutex
	limit int
	now   func() time.Time
	inbox map[string][]domain.Notification
}

func NewCenter(limit int) *Center {
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Center{limit: limit, now: time.Now, inbox: make(map[string][]domain.Notification)}
}

func (c *Center) Add(audience, kind, title, body string) domain.Notification {
	n := domain.Notification{
		ID:        xid.New("ntf"),
		Kind:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: c.now().UTC(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	list := append([]domain.Notification{n}, c.inbox[audience]...)
	if len(list) > c.limit {
		list = list[:c.limit]
	}
	c.inbox[audience] = list
	return n
}

func (c *Center) List(audience string) []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Notification{}, c.inbox[audience]...)
}

func (c *Center) Unread(audience string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, n := range c.inbox[audience] {
		if !n.Read {
			count++
		}
	}
	return count
}

func (c *Center) MarkRead(audience, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.inbox[audience] {
		if c.inbox[audience][i].ID == id {
			c.inbox[audience][i].Read = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (c *Center) Clear(audience string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inbox, audience)
}
