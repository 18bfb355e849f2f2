package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrTenantRequired is returned when a tenant id is blank.
var ErrTenantRequired = errors.New("tenant: tenant id required")

// Store keeps tenant settings as JSON documents in Redis.
type Store struct {
	redis redis.Cmdable
}

func NewStore(redisClient redis.Cmdable) *Store {
	if redisClient == nil {
		panic("tenant: redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

func (s *Store) key(tenantID string) string {
	return fmt.Sprintf("tenant:settings:%s", tenantID)
}

// Get retrieves tenant settings, returning defaults if none are stored.
func (s *Store) Get(ctx context.Context, tenantID string) (*Settings, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	data, err := s.redis.Get(ctx, s.key(tenantID)).Bytes()
	if err == redis.Nil {
		return DefaultSettings(tenantID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get settings: %w", err)
	}

	var cfg Settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tenant: unmarshal settings: %w", err)
	}
	cfg.TenantID = tenantID
	cfg.Normalize()
	return &cfg, nil
}

// Set saves tenant settings.
func (s *Store) Set(ctx context.Context, cfg *Settings) error {
	if cfg == nil || cfg.TenantID == "" {
		return ErrTenantRequired
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("tenant: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(cfg.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("tenant: set settings: %w", err)
	}
	return nil
}

// LineCredentials returns the LINE channel credentials of a tenant.
func (s *Store) LineCredentials(ctx context.Context, tenantID string) (LineCredentials, error) {
	cfg, err := s.Get(ctx, tenantID)
	if err != nil {
		return LineCredentials{}, err
	}
	return cfg.Line, nil
}
