package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"pricepoint/internal/service/discount/domain"
	"pricepoint/internal/service/discount/domain/port"
)

const cacheKeyPrefix = "pricepoint:campaign:"

// RedisCampaignCache 以 JSON 快照缓存活动配置
type RedisCampaignCache struct {
	client redis.UniversalClient
}

var _ port.CampaignCache = (*RedisCampaignCache)(nil)

func NewRedisCampaignCache(client redis.UniversalClient) *RedisCampaignCache {
	return &RedisCampaignCache{client: client}
}

func (c *RedisCampaignCache) Get(ctx context.Context, key string) (*domain.Campaign, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	var campaign domain.Campaign
	if err := json.Unmarshal(raw, &campaign); err != nil {
		return nil, false, errors.Wrapf(err, "decode cached campaign %s", key)
	}
	return &campaign, true, nil
}

func (c *RedisCampaignCache) Set(ctx context.Context, key string, campaign *domain.Campaign, ttl time.Duration) error {
	raw, err := json.Marshal(campaign)
	if err != nil {
		return errors.Wrap(err, "encode campaign")
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+key, raw, ttl).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (c *RedisCampaignCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, cacheKeyPrefix+k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}
