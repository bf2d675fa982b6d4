// pkg/audit/trail_test.go

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testActor = &identity.Actor{
	ID:     "user-1",
	Name:   "Alex",
	Source: "203.0.113.10",
	Agent:  "test-agent/1.0",
}

func newTestTrail(t *testing.T) (*Trail, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	trail := NewTrail(store, 365, 90)
	return trail, store
}

func TestCategoryMethodsRecordEvents(t *testing.T) {
	trail, store := newTestTrail(t)
	ctx := context.Background()

	trail.KeyCreation(ctx, testActor, "openai", "global")
	trail.KeyAccess(ctx, testActor, "openai", "global")
	trail.KeyRotation(ctx, testActor, "openai", "global")
	trail.KeyDeletion(ctx, testActor, "openai", "global")
	trail.AccessDenied(ctx, testActor, "llm:request", "tenant:7")
	trail.QuotaExceeded(ctx, testActor, "requests_per_hour", 10, 11)
	trail.SuspiciousActivity(ctx, testActor, "prompt injection blocked",
		map[string]interface{}{"pattern_classes": []string{"override"}})

	events, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 7)

	byType := map[EventType]int{}
	for _, e := range events {
		byType[e.EventType]++
		assert.Equal(t, "user-1", e.ActorID)
		assert.False(t, e.CreatedAt.IsZero())
	}
	assert.Equal(t, 1, byType[EventKeyCreation])
	assert.Equal(t, 1, byType[EventKeyRotation])
	assert.Equal(t, 1, byType[EventSuspiciousActivity])
}

func TestRequestResponseCarryMetadataOnly(t *testing.T) {
	trail, store := newTestTrail(t)
	ctx := context.Background()

	trail.Request(ctx, testActor, RequestMeta{
		Provider: "openai", Model: "gpt-4", PromptTokens: 120, PromptLength: 800,
	})
	trail.Response(ctx, testActor, ResponseMeta{
		Provider: "openai", Model: "gpt-4", CompletionTokens: 256,
		ContentLength: 1400, Duration: 2300 * time.Millisecond, Status: "ok",
	})

	events, err := store.Query(ctx, Filter{EventType: EventRequest})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].DetailJSON, `"prompt_tokens":120`)

	events, err = store.Query(ctx, Filter{EventType: EventResponse})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].DetailJSON, `"completion_tokens":256`)
	assert.Contains(t, events[0].DetailJSON, `"duration_ms":2300`)
}

func TestAnonymizeIdempotent(t *testing.T) {
	trail, store := newTestTrail(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	trail.Clock = func() time.Time { return now.AddDate(0, 0, -120) }
	trail.KeyAccess(ctx, testActor, "openai", "global")
	trail.KeyAccess(ctx, testActor, "anthropic", "global")

	trail.Clock = func() time.Time { return now }
	trail.KeyAccess(ctx, testActor, "openai", "global") // recent, must survive untouched

	count, err := trail.Anonymize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// Second pass anonymizes zero additional rows.
	count, err = trail.Anonymize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	events, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)

	var anonymized, intact int
	for _, e := range events {
		if e.Anonymized {
			anonymized++
			assert.Empty(t, e.ActorID)
			assert.Empty(t, e.ActorName)
			assert.Empty(t, e.SourceAddress)
			assert.Empty(t, e.UserAgent)
		} else {
			intact++
			assert.Equal(t, "user-1", e.ActorID)
		}
	}
	assert.Equal(t, 2, anonymized)
	assert.Equal(t, 1, intact)
}

func TestCleanupPurgesOnlyBeyondRetention(t *testing.T) {
	trail, store := newTestTrail(t)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	trail.Clock = func() time.Time { return now.AddDate(0, 0, -400) }
	trail.KeyAccess(ctx, testActor, "openai", "global")

	trail.Clock = func() time.Time { return now.AddDate(0, 0, -100) }
	trail.KeyAccess(ctx, testActor, "openai", "global")

	trail.Clock = func() time.Time { return now }
	count, err := trail.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	events, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// Idempotent.
	count, err = trail.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestQueryFilters(t *testing.T) {
	trail, store := newTestTrail(t)
	ctx := context.Background()

	other := &identity.Actor{ID: "user-2", Name: "Sam"}
	trail.KeyAccess(ctx, testActor, "openai", "global")
	trail.AccessDenied(ctx, other, "secrets:read", "")
	trail.QuotaExceeded(ctx, other, "requests_per_hour", 10, 12)
	_ = store

	events, err := trail.Query(ctx, Filter{ActorID: "user-2"})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = trail.Query(ctx, Filter{Severity: SeverityWarning})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = trail.Query(ctx, Filter{EventType: EventKeyAccess, Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventKeyAccess, events[0].EventType)
}

// failingStore always errors, standing in for an unavailable sink.
type failingStore struct{}

func (failingStore) Append(ctx context.Context, event *Event) error { return errors.New("sink down") }
func (failingStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return nil, errors.New("sink down")
}
func (failingStore) AnonymizeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("sink down")
}
func (failingStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("sink down")
}

func TestSinkFailureNeverPanicsOrPropagates(t *testing.T) {
	trail := NewTrail(failingStore{}, 365, 90)
	ctx := context.Background()

	// High and low severity both survive a dead sink.
	trail.SuspiciousActivity(ctx, testActor, "blocked", nil)
	trail.KeyAccess(ctx, testActor, "openai", "global")

	_, err := trail.Query(ctx, Filter{})
	require.Error(t, err)

	_, err = trail.Cleanup(ctx)
	require.Error(t, err)
}

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, SeverityInfo.Rank(), SeverityNotice.Rank())
	assert.Less(t, SeverityNotice.Rank(), SeverityWarning.Rank())
	assert.Less(t, SeverityWarning.Rank(), SeverityError.Rank())
	assert.Less(t, SeverityError.Rank(), SeverityCritical.Rank())
	assert.Equal(t, 0, Severity("bogus").Rank())
}
