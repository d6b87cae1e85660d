// Package quota counts free-tier chats per user per UTC day in Redis.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vango-go/resilios/pkg/core/chat"
)

const keyPrefix = "{resilios:chats}:"

// recordScript increments the day counter and pins its expiry to the end of
// the UTC day on first use. Returns the new count.
var recordScript = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('EXPIREAT', KEYS[1], ARGV[1])
	end
	return n
`)

// Counter is a chat.UsageCounter backed by Redis.
type Counter struct {
	client redis.Scripter
	getter interface {
		Get(ctx context.Context, key string) *redis.StringCmd
	}
}

var _ chat.UsageCounter = (*Counter)(nil)

func New(client redis.UniversalClient) *Counter {
	return &Counter{client: client, getter: client}
}

// Open parses a redis:// URL and verifies the server is reachable.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key is the counter key for userID on now's UTC day.
func Key(userID string, now time.Time) string {
	return keyPrefix + userID + ":" + now.UTC().Format("2006-01-02")
}

func (c *Counter) Used(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := c.getter.Get(ctx, Key(userID, now)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read chat count: %w", err)
	}
	return n, nil
}

func (c *Counter) Record(ctx context.Context, userID string, now time.Time) error {
	expireAt := chat.StartOfDayUTC(now).Add(24 * time.Hour).Unix()
	if err := recordScript.Run(ctx, c.client, []string{Key(userID, now)}, expireAt).Err(); err != nil {
		return fmt.Errorf("record chat: %w", err)
	}
	return nil
}
