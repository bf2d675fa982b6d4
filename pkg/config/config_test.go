// pkg/config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	opts := Defaults()
	opts.RootSecretSource = "env:AEGIS_ROOT_SECRET"
	opts.Pepper = "unit-test-pepper-0123456789abcdef"
	return opts
}

func TestValidateDefaults(t *testing.T) {
	opts := validOptions()
	require.NoError(t, opts.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing root secret source", func(o *Options) { o.RootSecretSource = "" }},
		{"bad root secret scheme", func(o *Options) { o.RootSecretSource = "keychain:foo" }},
		{"short pepper", func(o *Options) { o.Pepper = "tiny" }},
		{"weak kdf iterations", func(o *Options) { o.KDFIterations = 50000 }},
		{"zero max prompt length", func(o *Options) { o.MaxPromptLength = 0 }},
		{"retention below anonymize threshold", func(o *Options) {
			o.RetentionDays = 30
			o.AnonymizeAfterDays = 90
		}},
		{"negative quota default", func(o *Options) { o.DefaultRequestsPerHour = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, aegis_err.IsConfigurationValidation(err),
				"expected configuration_validation kind, got %v", err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aegis.yaml")
	content := `
namespace: testns
root_secret_source: "env:AEGIS_ROOT_SECRET"
pepper: "file-loaded-pepper-0123456789"
kdf_iterations: 150000
max_prompt_length: 1000
retention_days: 180
anonymize_after_days: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	opts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "testns", opts.Namespace)
	assert.Equal(t, 150000, opts.KDFIterations)
	assert.Equal(t, 1000, opts.MaxPromptLength)
	// Unset fields keep documented defaults.
	assert.Equal(t, Defaults().MaxResponseLength, opts.MaxResponseLength)
	assert.True(t, opts.InjectionFilterEnabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/aegis.yaml")
	require.Error(t, err)
	assert.True(t, aegis_err.IsConfigurationValidation(err))
}

func TestRedactSource(t *testing.T) {
	assert.Equal(t, "file:...", redactSource("file:/etc/aegis/root-secret"))
	assert.Equal(t, "(no scheme)", redactSource("bare-value"))
}
