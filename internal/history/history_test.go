package history

import (
	"context"
	"fmt"
	"testing"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

func TestMemoryStoreKeepsLastThirty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	for i := 1; i <= 35; i++ {
		require.NoError(t, store.Append(ctx, domain.DailyReport{Date: fmt.Sprintf("day-%02d", i)}))
	}

	reports, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, reports, DefaultLimit)
	assert.Equal(t, "day-06", reports[0].Date)
	assert.Equal(t, "day-35", reports[len(reports)-1].Date)
}

func TestMemoryStoreListIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)
	require.NoError(t, store.Append(ctx, domain.DailyReport{Date: "a"}))

	reports, _ := store.List(ctx)
	reports[0].Date = "mutated"

	again, _ := store.List(ctx)
	assert.Equal(t, "a", again[0].Date)
}

func TestRedisStoreDefaults(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "", 0)
	assert.Equal(t, DefaultKey, s.key)
	assert.Equal(t, DefaultLimit, s.limit)

	s = NewRedisStore(client, "bar:test:reports", 7)
	assert.Equal(t, "bar:test:reports", s.key)
	assert.Equal(t, 7, s.limit)
}
