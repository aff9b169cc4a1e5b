//go:build !integration

package postgres

import (
	"context"
	"time"

	"directory-billing/internal/domain/model"
	"directory-billing/internal/domain/ports/repository"
	red "directory-billing/internal/infra/redis"
)

// mockInnerDiscountRepo mocks the database repository that the discount decorator wraps.
type mockInnerDiscountRepo struct {
	FindByRefFunc func(ctx context.Context, tx repository.Tx, ref string) (*model.Discount, error)
	RedeemFunc    func(ctx context.Context, tx repository.Tx, id string) (bool, error)
}

func (m *mockInnerDiscountRepo) FindByRef(ctx context.Context, tx repository.Tx, ref string) (*model.Discount, error) {
	return m.FindByRefFunc(ctx, tx, ref)
}
func (m *mockInnerDiscountRepo) Redeem(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	return m.RedeemFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper with a plain map.
type mockRedisClient struct {
	data    map[string]string
	deleted []string
}

var _ red.RedisClient = &mockRedisClient{}

func newMockRedis() *mockRedisClient { return &mockRedisClient{data: map[string]string{}} }

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", red.ErrNil
	}
	return v, nil
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	return nil
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	return true, m.Set(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
		m.deleted = append(m.deleted, k)
	}
	return nil
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
