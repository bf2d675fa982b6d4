// pkg/vault/vault_test.go

package vault

import (
	"context"
	"testing"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/crypto"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoot   = "unit-test-root-secret-with-a-generous-amount-of-entropy-padding-0123456789abcdef-0123456789abcdef"
	testPepper = "unit-test-pepper-0123456789abcdef"
	testKey    = "sk-proj-abcdefghijklmnopqrstuvwxyz012345"
)

func newTestVault(t *testing.T) (*Service, *MemoryStore, *audit.MemoryStore) {
	t.Helper()
	records := NewMemoryStore()
	events := audit.NewMemoryStore()
	trail := audit.NewTrail(events, 365, 90)
	ident := &identity.StaticProvider{Actor: &identity.Actor{ID: "op-1", Name: "Operator"}}
	svc := NewService(records, trail, ident, "aegis", testPepper, testRoot, crypto.MinKDFIterations)
	return svc, records, events
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	svc, _, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, map[string]string{"env": "prod"}))

	got, err := svc.Retrieve(ctx, "openai", "global")
	require.NoError(t, err)
	assert.Equal(t, testKey, got)
}

func TestRetrieveNotFound(t *testing.T) {
	svc, _, _ := newTestVault(t)
	_, err := svc.Retrieve(context.Background(), "openai", "global")
	require.Error(t, err)
	assert.True(t, aegis_err.IsNotFound(err))
}

func TestStoreRejectsInvalidFormat(t *testing.T) {
	svc, records, _ := newTestVault(t)
	ctx := context.Background()

	err := svc.Store(ctx, "openai", "global", "not-an-openai-key", nil)
	require.Error(t, err)
	assert.True(t, aegis_err.IsInvalidCredentialFormat(err))

	// Nothing was written.
	exists, err := records.Exists(ctx, "openai", "global")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreRejectsDuplicate(t *testing.T) {
	svc, _, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, nil))
	err := svc.Store(ctx, "openai", "global", testKey, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rotate")
}

func TestContextBinding(t *testing.T) {
	svc, records, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, nil))
	require.NoError(t, svc.Store(ctx, "openai", "tenant:7", "sk-proj-zyxwvutsrqponmlkjihgfedcba543210", nil))

	// Swap ciphertext material between the two scopes: decryption must fail
	// under the other identity's derived key and AAD.
	a, err := records.Get(ctx, "openai", "global")
	require.NoError(t, err)
	b, err := records.Get(ctx, "openai", "tenant:7")
	require.NoError(t, err)

	b.Ciphertext, b.IV, b.Tag = a.Ciphertext, a.IV, a.Tag
	require.NoError(t, records.Update(ctx, b))

	_, err = svc.Retrieve(ctx, "openai", "tenant:7")
	require.Error(t, err)
	assert.True(t, aegis_err.IsDecryptionIntegrity(err))
}

func TestTamperDetectionThroughService(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(*SecretRecord)
	}{
		{"ciphertext bit flip", func(r *SecretRecord) { r.Ciphertext[0] ^= 0x01 }},
		{"iv bit flip", func(r *SecretRecord) { r.IV[0] ^= 0x01 }},
		{"tag bit flip", func(r *SecretRecord) { r.Tag[0] ^= 0x01 }},
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			svc, records, events := newTestVault(t)
			ctx := context.Background()
			require.NoError(t, svc.Store(ctx, "openai", "global", testKey, nil))

			record, err := records.Get(ctx, "openai", "global")
			require.NoError(t, err)
			tt.mutate(record)
			require.NoError(t, records.Update(ctx, record))

			_, err = svc.Retrieve(ctx, "openai", "global")
			require.Error(t, err)
			assert.True(t, aegis_err.IsDecryptionIntegrity(err))

			// Integrity failures are audited at error severity.
			logged, err := events.Query(ctx, audit.Filter{Severity: audit.SeverityError})
			require.NoError(t, err)
			assert.NotEmpty(t, logged)
		})
	}
}

func TestRotateLifecycle(t *testing.T) {
	svc, _, events := newTestVault(t)
	ctx := context.Background()

	const rotated = "sk-proj-0000000000111111111122222222223333"

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, nil))
	require.NoError(t, svc.Rotate(ctx, "openai", "global", rotated))

	got, err := svc.Retrieve(ctx, "openai", "global")
	require.NoError(t, err)
	assert.Equal(t, rotated, got)

	// Exactly one creation and one rotation event for the pair.
	creations, err := events.Query(ctx, audit.Filter{EventType: audit.EventKeyCreation})
	require.NoError(t, err)
	assert.Len(t, creations, 1)

	rotations, err := events.Query(ctx, audit.Filter{EventType: audit.EventKeyRotation})
	require.NoError(t, err)
	assert.Len(t, rotations, 1)

	infos, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.NotNil(t, infos[0].LastRotatedAt)
}

func TestRotateMissingRecord(t *testing.T) {
	svc, _, _ := newTestVault(t)
	err := svc.Rotate(context.Background(), "openai", "global", testKey)
	require.Error(t, err)
	assert.True(t, aegis_err.IsNotFound(err))
}

func TestDeleteThenStoreStartsFresh(t *testing.T) {
	svc, _, events := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, nil))
	require.NoError(t, svc.Delete(ctx, "openai", "global"))

	exists, err := svc.Exists(ctx, "openai", "global")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Retrieve(ctx, "openai", "global")
	assert.True(t, aegis_err.IsNotFound(err))

	deletions, err := events.Query(ctx, audit.Filter{EventType: audit.EventKeyDeletion})
	require.NoError(t, err)
	assert.Len(t, deletions, 1)
}

func TestDeleteMissingRecord(t *testing.T) {
	svc, _, _ := newTestVault(t)
	err := svc.Delete(context.Background(), "openai", "global")
	assert.True(t, aegis_err.IsNotFound(err))
}

func TestListNeverExposesSecretMaterial(t *testing.T) {
	svc, _, _ := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, svc.Store(ctx, "openai", "global", testKey, map[string]string{"owner": "platform"}))
	require.NoError(t, svc.Store(ctx, "custom-llm", "tenant:7", "a-sufficiently-long-opaque-token", nil))

	infos, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, infos, 2)
	for _, info := range infos {
		assert.NotEmpty(t, info.Provider)
	}

	scoped, err := svc.List(ctx, "tenant:7")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "custom-llm", scoped[0].Provider)

	byOwner, err := svc.List(ctx, "global")
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, "platform", byOwner[0].Metadata["owner"])
}
