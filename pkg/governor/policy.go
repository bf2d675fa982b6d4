// pkg/governor/policy.go

package governor

import (
	"context"
	"errors"
	"math"
	"sync"

	"gorm.io/gorm"
)

// Quota dimensions understood by the governor.
const (
	DimRequestsPerHour = "requests_per_hour"
	DimRequestsPerDay  = "requests_per_day"
	DimTokensPerHour   = "tokens_per_hour"
	DimTokensPerDay    = "tokens_per_day"
	DimMonthlyCost     = "monthly_cost"
)

// QuotaPolicy mirrors the quotas table: per-scope limits overriding the
// configured defaults. ScopeType is "user", "group" or "global".
type QuotaPolicy struct {
	ID               uint   `gorm:"primaryKey"`
	ScopeType        string `gorm:"column:scope_type;uniqueIndex:idx_quota_scope"`
	ScopeID          string `gorm:"column:scope_id;uniqueIndex:idx_quota_scope"`
	RequestsPerHour  int64  `gorm:"column:requests_per_hour"`
	RequestsPerDay   int64  `gorm:"column:requests_per_day"`
	TokensPerHour    int64  `gorm:"column:tokens_per_hour"`
	TokensPerDay     int64  `gorm:"column:tokens_per_day"`
	MonthlyCostLimit float64 `gorm:"column:monthly_cost_limit"`
}

// TableName pins the table name expected by the host schema.
func (QuotaPolicy) TableName() string { return "quotas" }

// LimitFor returns the policy's limit for a dimension; zero means "no
// override, use the default". Cost limits are expressed in integer cents.
func (p *QuotaPolicy) LimitFor(dimension string) int64 {
	switch dimension {
	case DimRequestsPerHour:
		return p.RequestsPerHour
	case DimRequestsPerDay:
		return p.RequestsPerDay
	case DimTokensPerHour:
		return p.TokensPerHour
	case DimTokensPerDay:
		return p.TokensPerDay
	case DimMonthlyCost:
		return CostCents(p.MonthlyCostLimit)
	default:
		return 0
	}
}

// CostCents converts a currency amount to the integer cents the counter
// store tracks.
func CostCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// PolicyStore looks up quota overrides per scope.
type PolicyStore interface {
	Find(ctx context.Context, scopeType, scopeID string) (*QuotaPolicy, error)
	Upsert(ctx context.Context, policy *QuotaPolicy) error
}

// ErrPolicyNotFound signals that no override exists for a scope.
var ErrPolicyNotFound = errors.New("quota policy not found")

// ───────────────────────── GORM policy store ─────────────────────────

type GormPolicyStore struct {
	db *gorm.DB
}

func NewGormPolicyStore(db *gorm.DB) (*GormPolicyStore, error) {
	if err := db.AutoMigrate(&QuotaPolicy{}); err != nil {
		return nil, err
	}
	return &GormPolicyStore{db: db}, nil
}

func (s *GormPolicyStore) Find(ctx context.Context, scopeType, scopeID string) (*QuotaPolicy, error) {
	var policy QuotaPolicy
	err := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ?", scopeType, scopeID).
		First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (s *GormPolicyStore) Upsert(ctx context.Context, policy *QuotaPolicy) error {
	existing, err := s.Find(ctx, policy.ScopeType, policy.ScopeID)
	if errors.Is(err, ErrPolicyNotFound) {
		return s.db.WithContext(ctx).Create(policy).Error
	}
	if err != nil {
		return err
	}
	policy.ID = existing.ID
	return s.db.WithContext(ctx).Save(policy).Error
}

// ───────────────────────── In-memory policy store ─────────────────────────

type MemoryPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*QuotaPolicy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*QuotaPolicy)}
}

func (s *MemoryPolicyStore) Find(ctx context.Context, scopeType, scopeID string) (*QuotaPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[scopeType+"\x00"+scopeID]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	clone := *policy
	return &clone, nil
}

func (s *MemoryPolicyStore) Upsert(ctx context.Context, policy *QuotaPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *policy
	s.policies[policy.ScopeType+"\x00"+policy.ScopeID] = &clone
	return nil
}
