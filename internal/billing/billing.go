package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Service accumulates provider spend per calendar month (UTC).
type Service interface {
	AddUsage(ctx context.Context, providerID string, costUSD float64) error
	MonthlySpend(ctx context.Context, providerID string, month time.Time) (float64, error)
}

// NoopService discards usage and reports zero spend.
type NoopService struct{}

func NewNoopService() *NoopService {
	return &NoopService{}
}

func (s *NoopService) AddUsage(context.Context, string, float64) error {
	return nil
}

func (s *NoopService) MonthlySpend(context.Context, string, time.Time) (float64, error) {
	return 0, nil
}

// retention keeps two months of counters.
const retention = 60 * 24 * time.Hour

// RedisBillingService keeps running monthly totals in Redis
type RedisBillingService struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewRedisBillingService creates a new billing service
func NewRedisBillingService(client redis.UniversalClient) *RedisBillingService {
	return &RedisBillingService{
		redis: client,
		now:   time.Now,
	}
}

var addUsageScript = redis.NewScript(`
	local total = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
	return total
`)

// AddUsage adds cost to the provider's total for the current month. Zero and
// negative costs are ignored.
func (s *RedisBillingService) AddUsage(ctx context.Context, providerID string, costUSD float64) error {
	if costUSD <= 0 {
		return nil
	}

	key := MonthlyKey(providerID, s.now())
	err := addUsageScript.Run(ctx, s.redis, []string{key}, costUSD, int64(retention.Seconds())).Err()
	if err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}

	return nil
}

// MonthlySpend returns the provider's spend for the month containing month
func (s *RedisBillingService) MonthlySpend(ctx context.Context, providerID string, month time.Time) (float64, error) {
	val, err := s.redis.Get(ctx, MonthlyKey(providerID, month)).Float64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get monthly spending: %w", err)
	}

	return val, nil
}

// ResetMonthlySpend clears the current month's total
func (s *RedisBillingService) ResetMonthlySpend(ctx context.Context, providerID string) error {
	return s.redis.Del(ctx, MonthlyKey(providerID, s.now())).Err()
}

// MonthlyKey is the Redis key holding a provider's spend for a month
func MonthlyKey(providerID string, month time.Time) string {
	month = month.UTC()
	return fmt.Sprintf("spend:%s:%d:%02d", providerID, month.Year(), int(month.Month()))
}

// ParseMonth parses "YYYY-MM". An empty string is the current month.
func ParseMonth(s string, now time.Time) (time.Time, error) {
	if s == "" {
		now = now.UTC()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	month, err := time.Parse("2006-01", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("month must be formatted YYYY-MM")
	}
	return month, nil
}
