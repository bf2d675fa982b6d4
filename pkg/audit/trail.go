// pkg/audit/trail.go

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/sony/gobreaker"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Trail records security events. Writes go through a circuit breaker so a
// dead sink cannot stall the request path; events at error severity or above
// are always reported on the operational log channel when the sink fails.
type Trail struct {
	store   Store
	breaker *gobreaker.CircuitBreaker

	retentionDays      int
	anonymizeAfterDays int

	// Clock is swappable for tests; defaults to UTC wall time.
	Clock func() time.Time
}

// NewTrail builds the trail. retentionDays must be >= anonymizeAfterDays;
// callers are expected to have validated that via pkg/config.
func NewTrail(store Store, retentionDays, anonymizeAfterDays int) *Trail {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-sink",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Trail{
		store:              store,
		breaker:            breaker,
		retentionDays:      retentionDays,
		anonymizeAfterDays: anonymizeAfterDays,
		Clock:              func() time.Time { return time.Now().UTC() },
	}
}

// emit appends one event. Sink failures never propagate to the caller: the
// request outcome must not depend on audit durability, but security-relevant
// failures are never lost silently either.
func (t *Trail) emit(ctx context.Context, event *Event) {
	event.CreatedAt = t.Clock()

	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.store.Append(ctx, event)
	})
	if err == nil {
		return
	}

	logger := otelzap.Ctx(ctx)
	fields := []zap.Field{
		zap.String("event_type", string(event.EventType)),
		zap.String("severity", string(event.Severity)),
		zap.String("actor_id", event.ActorID),
		zap.String("message", event.Message),
		zap.Error(err),
	}
	if event.Severity.Rank() >= SeverityError.Rank() {
		logger.Error("Audit sink unavailable, event reported on fallback channel", fields...)
	} else {
		logger.Warn("Audit sink unavailable, event dropped (best-effort severity)", fields...)
	}
}

func (t *Trail) event(actor *identity.Actor, eventType EventType, severity Severity, message string, detail map[string]interface{}) *Event {
	e := &Event{
		EventType: eventType,
		Severity:  severity,
		Message:   message,
	}
	if actor != nil {
		e.ActorID = actor.ID
		e.ActorName = actor.Name
		e.SourceAddress = actor.Source
		e.UserAgent = actor.Agent
	}
	if len(detail) > 0 {
		if raw, err := json.Marshal(detail); err == nil {
			e.DetailJSON = string(raw)
		}
	}
	return e
}

// ───────────────────────── Category methods ─────────────────────────

// KeyAccess records a credential retrieval.
func (t *Trail) KeyAccess(ctx context.Context, actor *identity.Actor, provider, scope string) {
	t.emit(ctx, t.event(actor, EventKeyAccess, SeverityInfo,
		fmt.Sprintf("credential retrieved for %s/%s", provider, scope),
		map[string]interface{}{"provider": provider, "scope": scope}))
}

// KeyCreation records a first store of a credential.
func (t *Trail) KeyCreation(ctx context.Context, actor *identity.Actor, provider, scope string) {
	t.emit(ctx, t.event(actor, EventKeyCreation, SeverityNotice,
		fmt.Sprintf("credential created for %s/%s", provider, scope),
		map[string]interface{}{"provider": provider, "scope": scope}))
}

// KeyRotation records a credential rotation.
func (t *Trail) KeyRotation(ctx context.Context, actor *identity.Actor, provider, scope string) {
	t.emit(ctx, t.event(actor, EventKeyRotation, SeverityNotice,
		fmt.Sprintf("credential rotated for %s/%s", provider, scope),
		map[string]interface{}{"provider": provider, "scope": scope}))
}

// KeyDeletion records a credential soft-delete.
func (t *Trail) KeyDeletion(ctx context.Context, actor *identity.Actor, provider, scope string) {
	t.emit(ctx, t.event(actor, EventKeyDeletion, SeverityNotice,
		fmt.Sprintf("credential deleted for %s/%s", provider, scope),
		map[string]interface{}{"provider": provider, "scope": scope}))
}

// Request records outbound-request metadata. RequestMeta carries counts and
// identifiers only; there is no parameter through which prompt text can leak.
func (t *Trail) Request(ctx context.Context, actor *identity.Actor, meta RequestMeta) {
	t.emit(ctx, t.event(actor, EventRequest, SeverityInfo,
		fmt.Sprintf("request to %s/%s", meta.Provider, meta.Model),
		map[string]interface{}{
			"provider":      meta.Provider,
			"model":         meta.Model,
			"prompt_tokens": meta.PromptTokens,
			"prompt_length": meta.PromptLength,
		}))
}

// Response records inbound-response metadata, never completion text.
func (t *Trail) Response(ctx context.Context, actor *identity.Actor, meta ResponseMeta) {
	t.emit(ctx, t.event(actor, EventResponse, SeverityInfo,
		fmt.Sprintf("response from %s/%s", meta.Provider, meta.Model),
		map[string]interface{}{
			"provider":          meta.Provider,
			"model":             meta.Model,
			"completion_tokens": meta.CompletionTokens,
			"content_length":    meta.ContentLength,
			"duration_ms":       meta.Duration.Milliseconds(),
			"status":            meta.Status,
		}))
}

// ProviderError records an upstream provider failure.
func (t *Trail) ProviderError(ctx context.Context, actor *identity.Actor, provider, message string) {
	t.emit(ctx, t.event(actor, EventProviderError, SeverityError,
		message, map[string]interface{}{"provider": provider}))
}

// IntegrityFailure records a decryption integrity failure at error severity.
func (t *Trail) IntegrityFailure(ctx context.Context, actor *identity.Actor, provider, scope string) {
	t.emit(ctx, t.event(actor, EventProviderError, SeverityError,
		fmt.Sprintf("credential integrity check failed for %s/%s", provider, scope),
		map[string]interface{}{"provider": provider, "scope": scope, "reason": "decryption_integrity"}))
}

// ConfigChange records a configuration mutation by name only.
func (t *Trail) ConfigChange(ctx context.Context, actor *identity.Actor, setting string) {
	t.emit(ctx, t.event(actor, EventConfigChange, SeverityNotice,
		fmt.Sprintf("configuration changed: %s", setting),
		map[string]interface{}{"setting": setting}))
}

// AccessDenied records a permission denial.
func (t *Trail) AccessDenied(ctx context.Context, actor *identity.Actor, capability, scopeContext string) {
	t.emit(ctx, t.event(actor, EventAccessDenied, SeverityWarning,
		fmt.Sprintf("access denied for capability %s", capability),
		map[string]interface{}{"capability": capability, "scope_context": scopeContext}))
}

// QuotaExceeded records a quota denial.
func (t *Trail) QuotaExceeded(ctx context.Context, actor *identity.Actor, dimension string, limit, usage int64) {
	t.emit(ctx, t.event(actor, EventQuotaExceeded, SeverityWarning,
		fmt.Sprintf("quota exceeded for %s", dimension),
		map[string]interface{}{"dimension": dimension, "limit": limit, "usage": usage}))
}

// SuspiciousActivity records a blocked injection attempt or similar at
// critical severity. Detail should carry pattern-class codes, never payload.
func (t *Trail) SuspiciousActivity(ctx context.Context, actor *identity.Actor, message string, detail map[string]interface{}) {
	t.emit(ctx, t.event(actor, EventSuspiciousActivity, SeverityCritical, message, detail))
}

// ───────────────────────── Query & retention ─────────────────────────

// Query returns stored events matching the filter, newest first.
func (t *Trail) Query(ctx context.Context, filter Filter) ([]Event, error) {
	events, err := t.store.Query(ctx, filter)
	if err != nil {
		return nil, aegis_err.WrapStorageError(err, "audit query")
	}
	return events, nil
}

// Anonymize clears actor-identifying fields on events older than the
// anonymization threshold. Idempotent: already-anonymized rows are skipped,
// so repeated or concurrent runs touch disjoint sets.
func (t *Trail) Anonymize(ctx context.Context) (int64, error) {
	cutoff := t.Clock().AddDate(0, 0, -t.anonymizeAfterDays)
	count, err := t.store.AnonymizeBefore(ctx, cutoff)
	if err != nil {
		return 0, aegis_err.WrapStorageError(err, "audit anonymize")
	}
	otelzap.Ctx(ctx).Info("Audit events anonymized",
		zap.Int64("count", count),
		zap.Time("cutoff", cutoff))
	return count, nil
}

// Cleanup permanently deletes events older than the retention threshold.
func (t *Trail) Cleanup(ctx context.Context) (int64, error) {
	cutoff := t.Clock().AddDate(0, 0, -t.retentionDays)
	count, err := t.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, aegis_err.WrapStorageError(err, "audit cleanup")
	}
	otelzap.Ctx(ctx).Info("Audit events purged",
		zap.Int64("count", count),
		zap.Time("cutoff", cutoff))
	return count, nil
}
