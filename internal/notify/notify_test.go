package notify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

func TestCenterKeepsNewestFifty(t *testing.T) {
	c := NewCenter(0)
	for i := 0; i < 60; i++ {
		c.Add(Owners, "order", fmt.Sprintf("pedido %d", i), "")
	}

	list := c.List(Owners)
	require.Len(t, list, DefaultLimit)
	assert.Equal(t, "pedido 59", list[0].Title)
	assert.Equal(t, "pedido 10", list[len(list)-1].Title)
	assert.Equal(t, DefaultLimit, c.Unread(Owners))
}

func TestMarkReadAndClear(t *testing.T) {
	c := NewCenter(5)
	n := c.Add(CustomerAudience("c1"), "order", "Pedido pronto", "Seu pedido está pronto")
	c.Add(CustomerAudience("c1"), "cashback", "Cashback", "Você ganhou R$ 2,30")

	require.NoError(t, c.MarkRead(CustomerAudience("c1"), n.ID))
	assert.Equal(t, 1, c.Unread(CustomerAudience("c1")))
	assert.ErrorIs(t, c.MarkRead(CustomerAudience("c1"), "missing"), store.ErrNotFound)
	assert.Empty(t, c.List(CustomerAudience("c2")))

	c.Clear(CustomerAudience("c1"))
	assert.Empty(t, c.List(CustomerAudience("c1")))
}
