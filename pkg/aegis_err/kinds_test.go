// pkg/aegis_err/kinds_test.go

package aegis_err

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "secret not found", "provider", "openai", "scope", "global")

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsAccessDenied(err))

	var ce *ClassifiedError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "openai", ce.Detail["provider"])
	assert.Equal(t, "global", ce.Detail["scope"])
}

func TestKindOfWrapped(t *testing.T) {
	inner := Wrap(KindDecryptionIntegrity, errors.New("cipher: message authentication failed"), "secret integrity check failed")
	outer := fmt.Errorf("retrieve openai/global: %w", inner)

	assert.True(t, IsDecryptionIntegrity(outer))

	kind, ok := KindOf(outer)
	require.True(t, ok)
	assert.Equal(t, KindDecryptionIntegrity, kind)
}

func TestKindOfUnclassified(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsNotFound(errors.New("plain")))
	_, ok = KindOf(nil)
	assert.False(t, ok)
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindStorageUnavailable, errors.New("dial tcp: connection refused"), "audit sink write failed")
	assert.Contains(t, err.Error(), "audit sink write failed")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindInvalidCredentialFormat: "invalid_credential_format",
		KindNotFound:                "not_found",
		KindDecryptionIntegrity:     "decryption_integrity",
		KindAccessDenied:            "access_denied",
		KindQuotaExceeded:           "quota_exceeded",
		KindPromptBlocked:           "prompt_blocked",
		KindConfigurationValidation: "configuration_validation",
		KindStorageUnavailable:      "storage_unavailable",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
