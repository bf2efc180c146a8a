package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisProvider reads the market snapshot that the feed service maintains in Redis.
//
// Layout:
//
//	<prefix>:price:<ASSET>          decimal string
//	<prefix>:reserve:<FROM>:<TO>    decimal string
type RedisProvider struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisProvider wraps client; prefix defaults to "marketdata"
func NewRedisProvider(client redis.UniversalClient, prefix string) *RedisProvider {
	if prefix == "" {
		prefix = "marketdata"
	}
	return &RedisProvider{client: client, prefix: prefix}
}

func (p *RedisProvider) priceKey(asset string) string {
	return fmt.Sprintf("%s:price:%s", p.prefix, strings.ToUpper(asset))
}

func (p *RedisProvider) reserveKey(from, to string) string {
	return fmt.Sprintf("%s:reserve:%s", p.prefix, pairKey(from, to))
}

func (p *RedisProvider) CurrentPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	return p.getDecimal(ctx, p.priceKey(asset), ErrNoPrice)
}

func (p *RedisProvider) Reserve(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return p.getDecimal(ctx, p.reserveKey(from, to), ErrNoReserve)
}

// SetPrice writes a reference price; used by operators and the feed bridge
func (p *RedisProvider) SetPrice(ctx context.Context, asset string, price decimal.Decimal) error {
	return p.client.Set(ctx, p.priceKey(asset), price.String(), 0).Err()
}

// SetReserve writes a pool depth
func (p *RedisProvider) SetReserve(ctx context.Context, from, to string, reserve decimal.Decimal) error {
	return p.client.Set(ctx, p.reserveKey(from, to), reserve.String(), 0).Err()
}

func (p *RedisProvider) getDecimal(ctx context.Context, key string, missing error) (decimal.Decimal, error) {
	raw, err := p.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, missing
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read %s: %w", key, err)
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed value at %s: %w", key, err)
	}
	return v, nil
}
