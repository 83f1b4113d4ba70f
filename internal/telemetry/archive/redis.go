package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"blaze/internal/telemetry/models"
	dErrors "blaze/pkg/domain-errors"
)

// RedisArchive stores one JSON event per list element so appends do not
// rewrite the whole archive. RPUSH and LTRIM run in one MULTI so the list never
// exceeds the limit.
type RedisArchive struct {
	client redis.Cmdable
	key    string
	limit  int
}

// NewRedisArchive creates an archive under prefix+Key.
func NewRedisArchive(client redis.Cmdable, prefix string, limit int) *RedisArchive {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &RedisArchive{client: client, key: prefix + Key, limit: limit}
}

func (a *RedisArchive) Append(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	values := make([]any, 0, len(events))
	for _, e := range Trim(events, a.limit) {
		raw, err := json.Marshal(e)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistence, "encode archived event")
		}
		values = append(values, raw)
	}

	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, a.key, values...)
		pipe.LTrim(ctx, a.key, int64(-a.limit), -1)
		return nil
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "append archive")
	}
	return nil
}

func (a *RedisArchive) Snapshot(ctx context.Context) ([]models.Event, error) {
	raws, err := a.client.LRange(ctx, a.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", a.key, err)
	}
	events := make([]models.Event, 0, len(raws))
	for _, raw := range raws {
		var e models.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

func (a *RedisArchive) Clear(ctx context.Context) error {
	if err := a.client.Del(ctx, a.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", a.key, err)
	}
	return nil
}
