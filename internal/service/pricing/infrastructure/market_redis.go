package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"pricewise/internal/pkg/redis"
	"pricewise/internal/service/pricing/domain"
)

const marketKeyPrefix = "pricing:market:"

// RedisMarketDataStore 把每个商品的市场快照以 JSON 存在 Redis 中
type RedisMarketDataStore struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewRedisMarketDataStore ttl 为 0 表示不过期
func NewRedisMarketDataStore(client goredis.Cmdable, ttl time.Duration) *RedisMarketDataStore {
	return &RedisMarketDataStore{client: client, ttl: ttl}
}

func (s *RedisMarketDataStore) Get(ctx context.Context, productID string) (*domain.MarketData, error) {
	raw, err := s.client.Get(ctx, marketKeyPrefix+productID).Bytes()
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "get market data for %s", productID)
	}
	var data domain.MarketData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "decode market data for %s", productID)
	}
	return &data, nil
}

func (s *RedisMarketDataStore) Put(ctx context.Context, data *domain.MarketData) error {
	if data == nil || data.ProductID == "" {
		return errors.New("market data requires a productId")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "encode market data")
	}
	if err := s.client.Set(ctx, marketKeyPrefix+data.ProductID, raw, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "put market data for %s", data.ProductID)
	}
	return nil
}
