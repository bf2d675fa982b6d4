// pkg/governor/governor.go

package governor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/config"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// CapabilityAll is the umbrella capability that grants everything.
const CapabilityAll = "aegis:all"

// Governor gates requests on permissions and quotas. Query-style checks
// (HasPermission, CheckQuota) return results; only Require-style calls raise.
type Governor struct {
	ident    identity.Provider
	counters CounterStore
	policies PolicyStore
	trail    *audit.Trail
	defaults config.Options

	Clock func() time.Time
}

// New wires a governor. policies may be nil when only configured defaults
// apply.
func New(ident identity.Provider, counters CounterStore, policies PolicyStore,
	trail *audit.Trail, defaults config.Options) *Governor {
	return &Governor{
		ident:    ident,
		counters: counters,
		policies: policies,
		trail:    trail,
		defaults: defaults,
		Clock:    func() time.Time { return time.Now().UTC() },
	}
}

func (g *Governor) actor(ctx context.Context) (*identity.Actor, error) {
	actor, err := g.ident.Current(ctx)
	if err != nil {
		return nil, aegis_err.WrapStorageError(err, "identity resolution")
	}
	if actor == nil {
		return nil, errors.New("identity provider returned no actor")
	}
	return actor, nil
}

// HasPermission resolves a capability for the current actor. Resolution
// order: admin override, umbrella grant, direct grants, group grants; a
// supplied scope context additionally requires scope membership. Denials
// return false, never an error.
func (g *Governor) HasPermission(ctx context.Context, capability, scopeContext string) bool {
	actor, err := g.actor(ctx)
	if err != nil {
		otelzap.Ctx(ctx).Warn("Permission check failed to resolve actor", zap.Error(err))
		return false
	}

	if actor.Admin {
		return true
	}

	// Scope gate applies on top of the capability check for non-admins.
	if scopeContext != "" && !actor.MemberOf(scopeContext) {
		g.trail.AccessDenied(ctx, actor, capability, scopeContext)
		return false
	}

	if actor.HasDirectGrant(CapabilityAll) || actor.HasGroupGrant(CapabilityAll) {
		return true
	}
	if actor.HasDirectGrant(capability) || actor.HasGroupGrant(capability) {
		return true
	}

	g.trail.AccessDenied(ctx, actor, capability, scopeContext)
	return false
}

// RequirePermission raises AccessDenied when the capability is not held.
// Guard-clause call sites use this; everything else uses HasPermission.
func (g *Governor) RequirePermission(ctx context.Context, capability, scopeContext string) error {
	if g.HasPermission(ctx, capability, scopeContext) {
		return nil
	}
	return aegis_err.New(aegis_err.KindAccessDenied,
		fmt.Sprintf("missing capability %s", capability),
		"capability", capability, "scope_context", scopeContext)
}

// limitFor resolves the effective limit for an actor and dimension: the
// first matching quota policy row (user, then the actor's groups, then the
// global row), the configured default otherwise.
func (g *Governor) limitFor(ctx context.Context, actor *identity.Actor, dimension string) int64 {
	if limit := g.policyLimit(ctx, actor, dimension); limit > 0 {
		return limit
	}
	switch dimension {
	case DimRequestsPerHour:
		return int64(g.defaults.DefaultRequestsPerHour)
	case DimRequestsPerDay:
		return int64(g.defaults.DefaultRequestsPerDay)
	case DimTokensPerHour:
		return int64(g.defaults.DefaultTokensPerHour)
	case DimTokensPerDay:
		return int64(g.defaults.DefaultTokensPerDay)
	case DimMonthlyCost:
		return CostCents(g.defaults.DefaultMonthlyCostCap)
	default:
		return 0
	}
}

// policyLimit walks the scope hierarchy. Group names are sorted so the
// lookup order is stable when an actor belongs to several groups.
func (g *Governor) policyLimit(ctx context.Context, actor *identity.Actor, dimension string) int64 {
	if g.policies == nil {
		return 0
	}
	if policy, err := g.policies.Find(ctx, "user", actor.ID); err == nil {
		if limit := policy.LimitFor(dimension); limit > 0 {
			return limit
		}
	}
	groups := make([]string, 0, len(actor.GroupGrants))
	for group := range actor.GroupGrants {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		if policy, err := g.policies.Find(ctx, "group", group); err == nil {
			if limit := policy.LimitFor(dimension); limit > 0 {
				return limit
			}
		}
	}
	if policy, err := g.policies.Find(ctx, "global", ""); err == nil {
		if limit := policy.LimitFor(dimension); limit > 0 {
			return limit
		}
	}
	return 0
}

// CheckQuota reports whether the current actor is under the given limit for
// a dimension. Administrators bypass quotas entirely. A zero or negative
// limit means unlimited.
func (g *Governor) CheckQuota(ctx context.Context, dimension string, limit int64) (bool, error) {
	actor, err := g.actor(ctx)
	if err != nil {
		return false, err
	}
	if actor.Admin {
		return true, nil
	}
	if limit <= 0 {
		return true, nil
	}

	window, _ := windowFor(dimension, g.Clock())
	usage, err := g.counters.Get(ctx, counterKey(actor.ID, dimension, window))
	if err != nil {
		return false, aegis_err.WrapStorageError(err, "quota read")
	}

	if usage >= limit {
		g.trail.QuotaExceeded(ctx, actor, dimension, limit, usage)
		return false, nil
	}
	return true, nil
}

// CheckQuotaDefault is CheckQuota with the effective limit resolved from
// quota policies and configured defaults.
func (g *Governor) CheckQuotaDefault(ctx context.Context, dimension string) (bool, error) {
	actor, err := g.actor(ctx)
	if err != nil {
		return false, err
	}
	return g.CheckQuota(ctx, dimension, g.limitFor(ctx, actor, dimension))
}

// RecordUsage atomically increments the actor's counter for a dimension.
// The TTL equals the window length, so counters reset at window boundaries
// without any sweeper.
func (g *Governor) RecordUsage(ctx context.Context, dimension string, amount int64) error {
	actor, err := g.actor(ctx)
	if err != nil {
		return err
	}
	if actor.Admin {
		return nil
	}

	window, ttl := windowFor(dimension, g.Clock())
	if _, err := g.counters.Incr(ctx, counterKey(actor.ID, dimension, window), amount, ttl); err != nil {
		return aegis_err.WrapStorageError(err, "quota increment")
	}
	return nil
}
