// pkg/vault/providers_test.go

package vault

import (
	"testing"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/stretchr/testify/assert"
)

func TestValidateFormat(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		secret   string
		ok       bool
	}{
		{"openai valid", "openai", "sk-proj-abcdefghijklmnopqrstuvwxyz", true},
		{"openai missing prefix", "openai", "proj-abcdefghijklmnopqrstuvwxyz", false},
		{"openai too short", "openai", "sk-short", false},
		{"anthropic valid", "anthropic", "sk-ant-REDACTED", true},
		{"anthropic plain sk rejected", "anthropic", "sk-abcdefghijklmnopqrstuvwxyz", false},
		{"google valid", "google", "AIzaAbCdEfGhIjKlMnOpQrStUvWxYz0123456789", true},
		{"azure valid", "azure", "0123456789abcdef0123456789abcdef", true},
		{"azure wrong length", "azure", "0123456789abcdef", false},
		{"groq valid", "groq", "gsk_abcdefghijklmnopqrstuvwxyz", true},
		{"unknown provider long enough", "local-llm", "an-opaque-token-value", true},
		{"unknown provider too short", "local-llm", "short", false},
		{"unknown provider control chars", "local-llm", "aaaaaaaa\x07aaaaaaaaaa", false},
		{"leading whitespace", "openai", " sk-proj-abcdefghijklmnopqrstuvwxyz", false},
		{"empty", "openai", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFormat(tt.provider, tt.secret)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.True(t, aegis_err.IsInvalidCredentialFormat(err))
			}
		})
	}
}

func TestValidateFormatErrorOmitsSecret(t *testing.T) {
	err := ValidateFormat("openai", "sk-this-should-never-appear-in-errors-000")
	assert.Error(t, err)
	assert.NotContains(t, err.Error(), "sk-this-should-never")
}
