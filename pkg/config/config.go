// pkg/config/config.go

// Package config defines the validated option surface for the credential and
// content-safety layer. Every knob is a named, typed field with a documented
// default; nothing is read from ambient framework state.
package config

import (
	"strconv"
	"strings"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Options is the full configuration surface. Zero values are never used
// directly; construct via Defaults() or Load().
type Options struct {
	// Namespace prefixes every key-derivation context so two deployments
	// sharing a database cannot decrypt each other's secrets.
	Namespace string `mapstructure:"namespace" validate:"required"`

	// RootSecretSource locates the vault root secret: "env:VAR",
	// "file:/path", or "vault:mount/path#field".
	RootSecretSource string `mapstructure:"root_secret_source" validate:"required"`

	// Pepper is mixed into key derivation salts. Configured separately from
	// the root secret so the database plus one of the two is not enough.
	Pepper string `mapstructure:"pepper" validate:"required,min=16"`

	// KDFIterations for PBKDF2-SHA256. 100k minimum is enforced.
	KDFIterations int `mapstructure:"kdf_iterations" validate:"gte=100000"`

	// Prompt guard.
	InjectionFilterEnabled bool `mapstructure:"injection_filter_enabled"`
	InjectionBlockOnMatch  bool `mapstructure:"injection_block_on_match"`
	MaxPromptLength        int  `mapstructure:"max_prompt_length" validate:"gt=0"`
	PIIDetectionEnabled    bool `mapstructure:"pii_detection_enabled"`

	// Response guard.
	AllowHTML         bool `mapstructure:"allow_html"`
	AllowMarkdown     bool `mapstructure:"allow_markdown"`
	AllowLinks        bool `mapstructure:"allow_links"`
	MaxResponseLength int  `mapstructure:"max_response_length" validate:"gt=0"`

	// Audit retention. RetentionDays must be at least AnonymizeAfterDays so
	// events are anonymized before they are ever purged.
	RetentionDays      int `mapstructure:"retention_days" validate:"gt=0"`
	AnonymizeAfterDays int `mapstructure:"anonymize_after_days" validate:"gt=0"`

	// Per-dimension quota defaults, applied when no quota policy row exists.
	DefaultRequestsPerHour int     `mapstructure:"default_requests_per_hour" validate:"gte=0"`
	DefaultRequestsPerDay  int     `mapstructure:"default_requests_per_day" validate:"gte=0"`
	DefaultTokensPerHour   int     `mapstructure:"default_tokens_per_hour" validate:"gte=0"`
	DefaultTokensPerDay    int     `mapstructure:"default_tokens_per_day" validate:"gte=0"`
	DefaultMonthlyCostCap  float64 `mapstructure:"default_monthly_cost_limit" validate:"gte=0"`

	// Collaborator endpoints. Empty values select the in-memory stores,
	// which are suitable for development and tests only.
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisURL    string `mapstructure:"redis_url"`
}

// Defaults returns Options with documented default values. Root secret,
// pepper and namespace have no safe defaults and must be supplied.
func Defaults() Options {
	return Options{
		Namespace:              "aegis",
		KDFIterations:          100000,
		InjectionFilterEnabled: true,
		InjectionBlockOnMatch:  true,
		MaxPromptLength:        32000,
		PIIDetectionEnabled:    true,
		AllowHTML:              true,
		AllowMarkdown:          true,
		AllowLinks:             true,
		MaxResponseLength:      65536,
		RetentionDays:          365,
		AnonymizeAfterDays:     90,
		DefaultRequestsPerHour: 100,
		DefaultRequestsPerDay:  1000,
		DefaultTokensPerHour:   100000,
		DefaultTokensPerDay:    500000,
		DefaultMonthlyCostCap:  100.0,
	}
}

var validate = validator.New()

// Validate checks field constraints plus the cross-field retention rule.
func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return aegis_err.WrapValidationError(err)
	}
	if o.RetentionDays < o.AnonymizeAfterDays {
		return aegis_err.New(aegis_err.KindConfigurationValidation,
			"retention_days must be >= anonymize_after_days",
			"retention_days", strconv.Itoa(o.RetentionDays),
			"anonymize_after_days", strconv.Itoa(o.AnonymizeAfterDays))
	}
	if !validRootSecretSource(o.RootSecretSource) {
		return aegis_err.New(aegis_err.KindConfigurationValidation,
			"root_secret_source must use env:, file: or vault: scheme",
			"root_secret_source", redactSource(o.RootSecretSource))
	}
	return nil
}

// Load reads configuration from an optional file plus AEGIS_* environment
// variables, applies defaults, and validates.
func Load(path string) (*Options, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AEGIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("namespace", defaults.Namespace)
	v.SetDefault("kdf_iterations", defaults.KDFIterations)
	v.SetDefault("injection_filter_enabled", defaults.InjectionFilterEnabled)
	v.SetDefault("injection_block_on_match", defaults.InjectionBlockOnMatch)
	v.SetDefault("max_prompt_length", defaults.MaxPromptLength)
	v.SetDefault("pii_detection_enabled", defaults.PIIDetectionEnabled)
	v.SetDefault("allow_html", defaults.AllowHTML)
	v.SetDefault("allow_markdown", defaults.AllowMarkdown)
	v.SetDefault("allow_links", defaults.AllowLinks)
	v.SetDefault("max_response_length", defaults.MaxResponseLength)
	v.SetDefault("retention_days", defaults.RetentionDays)
	v.SetDefault("anonymize_after_days", defaults.AnonymizeAfterDays)
	v.SetDefault("default_requests_per_hour", defaults.DefaultRequestsPerHour)
	v.SetDefault("default_requests_per_day", defaults.DefaultRequestsPerDay)
	v.SetDefault("default_tokens_per_hour", defaults.DefaultTokensPerHour)
	v.SetDefault("default_tokens_per_day", defaults.DefaultTokensPerDay)
	v.SetDefault("default_monthly_cost_limit", defaults.DefaultMonthlyCostCap)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, aegis_err.Wrap(aegis_err.KindConfigurationValidation, err,
				"failed to read configuration file")
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return nil, aegis_err.Wrap(aegis_err.KindConfigurationValidation, err,
			"failed to decode configuration")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

func validRootSecretSource(s string) bool {
	return strings.HasPrefix(s, "env:") ||
		strings.HasPrefix(s, "file:") ||
		strings.HasPrefix(s, "vault:")
}

// redactSource keeps only the scheme so validation errors never leak paths.
func redactSource(s string) string {
	if i := strings.Index(s, ":"); i > 0 {
		return s[:i+1] + "..."
	}
	return "(no scheme)"
}
