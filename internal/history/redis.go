package history

import (
	"context"
	"encoding/json"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
)

// RedisStore keeps the report list under one key shared by every instance,
// so concurrent operators append to the same history.
type RedisStore struct {
	client redis.Cmdable
	key    string
	limit  int
}

func NewRedisStore(client redis.Cmdable, key string, limit int) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return &RedisStore{client: client, key: key, limit: limit}
}

func (s *RedisStore) Append(ctx context.Context, report domain.DailyReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.key, payload)
		pipe.LTrim(ctx, s.key, int64(-s.limit), -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append report history: %w", err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.DailyReport, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err == redis.Nil {
		return []domain.DailyReport{}, nil
	}
	if err != nil {
		return nil, err
	}

	reports := make([]domain.DailyReport, 0, len(raw))
	for _, entry := range raw {
		var report domain.DailyReport
		if err := json.Unmarshal([]byte(entry), &report); err != nil {
			return nil, fmt.Errorf("decode report history: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}
