// pkg/promptguard/guard.go

package promptguard

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/config"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Warning describes one sanitization finding, ordered as detected.
type Warning struct {
	Code    string
	Message string
	Detail  string
}

// Verdict is the transient result of a sanitization pass. Never persisted;
// the caller consumes it immediately.
type Verdict struct {
	Original  string
	Sanitized string
	Warnings  []Warning
	Blocked   bool
}

func (v *Verdict) warn(code, message, detail string) {
	v.Warnings = append(v.Warnings, Warning{Code: code, Message: message, Detail: detail})
}

// Options select per-call behavior for SanitizePrompt.
type Options struct {
	// Truncate cuts over-length prompts instead of blocking them.
	Truncate bool
	// MaskPII replaces detected PII values in the sanitized output.
	MaskPII bool
}

// Guard is the prompt-side sanitizer.
type Guard struct {
	cfg   config.Options
	trail *audit.Trail
	ident identity.Provider
}

// New wires a prompt guard.
func New(cfg config.Options, trail *audit.Trail, ident identity.Provider) *Guard {
	return &Guard{cfg: cfg, trail: trail, ident: ident}
}

func (g *Guard) actor(ctx context.Context) *identity.Actor {
	if g.ident == nil {
		return nil
	}
	actor, err := g.ident.Current(ctx)
	if err != nil {
		return nil
	}
	return actor
}

// SanitizePrompt checks an outbound user prompt. Blocking is an expected
// control-flow outcome surfaced on the verdict, not an error.
func (g *Guard) SanitizePrompt(ctx context.Context, text string, opts Options) *Verdict {
	verdict := &Verdict{Original: text, Sanitized: text}

	g.enforceLength(verdict, opts.Truncate)

	if g.cfg.InjectionFilterEnabled {
		matched := scanInjection(verdict.Sanitized)
		for _, code := range matched {
			verdict.warn(code, "possible prompt injection", "pattern class "+code)
		}
		if len(matched) > 0 && g.cfg.InjectionBlockOnMatch {
			verdict.Blocked = true
			g.auditBlock(ctx, "prompt injection attempt blocked", matched, len(text))
		}
	}

	if g.cfg.PIIDetectionEnabled {
		for _, code := range detectPII(verdict.Sanitized) {
			verdict.warn("pii_"+code, "detected "+code, "")
		}
		if opts.MaskPII {
			verdict.Sanitized = maskPII(verdict.Sanitized)
		}
	}

	return verdict
}

// SanitizeSystemPrompt is the strict variant: a system prompt must never
// contain user-controlled role markers, so any delimiter match is an
// automatic block regardless of the injection-block flag.
func (g *Guard) SanitizeSystemPrompt(ctx context.Context, text string) *Verdict {
	verdict := &Verdict{Original: text, Sanitized: text}

	g.enforceLength(verdict, false)

	if scanDelimiters(text) {
		verdict.warn(ClassDelimiter, "role delimiter in system prompt", "")
		verdict.Blocked = true
		g.auditBlock(ctx, "role delimiter in system prompt blocked", []string{ClassDelimiter}, len(text))
		return verdict
	}

	if g.cfg.InjectionFilterEnabled {
		matched := scanInjection(text)
		for _, code := range matched {
			verdict.warn(code, "possible prompt injection", "pattern class "+code)
		}
		if len(matched) > 0 && g.cfg.InjectionBlockOnMatch {
			verdict.Blocked = true
			g.auditBlock(ctx, "system prompt injection attempt blocked", matched, len(text))
		}
	}

	return verdict
}

func (g *Guard) enforceLength(verdict *Verdict, truncate bool) {
	if len(verdict.Sanitized) <= g.cfg.MaxPromptLength {
		return
	}
	if truncate {
		verdict.Sanitized = truncateAtRune(verdict.Sanitized, g.cfg.MaxPromptLength)
		verdict.warn("truncated",
			fmt.Sprintf("prompt truncated to %d characters", g.cfg.MaxPromptLength), "")
		return
	}
	verdict.Blocked = true
	verdict.warn("too_long",
		fmt.Sprintf("prompt exceeds maximum length of %d characters", g.cfg.MaxPromptLength), "")
}

// truncateAtRune cuts at max bytes, backing up to a rune boundary so the
// result is always valid UTF-8.
func truncateAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// auditBlock records the attempt with pattern-class codes only; neither the
// prompt nor any decoded payload leaves the guard.
func (g *Guard) auditBlock(ctx context.Context, message string, classes []string, promptLen int) {
	g.trail.SuspiciousActivity(ctx, g.actor(ctx), message, map[string]interface{}{
		"pattern_classes": classes,
		"prompt_length":   promptLen,
	})
	otelzap.Ctx(ctx).Warn("Prompt blocked",
		zap.Strings("pattern_classes", classes),
		zap.Int("prompt_length", promptLen))
}

// ───────────────────────── Model config validation ─────────────────────────

// ModelConfig carries the numeric sampling parameters a caller may set.
type ModelConfig struct {
	Temperature      float64
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	MaxTokens        int
}

// Documented parameter bounds.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 128000
)

// ValidateModelConfig range-checks every parameter. Strict validation, not
// clamping: a caller never silently receives a different value than it
// requested.
func ValidateModelConfig(cfg ModelConfig) error {
	type bound struct {
		name     string
		value    float64
		min, max float64
	}
	bounds := []bound{
		{"temperature", cfg.Temperature, MinTemperature, MaxTemperature},
		{"top_p", cfg.TopP, MinTopP, MaxTopP},
		{"frequency_penalty", cfg.FrequencyPenalty, MinPenalty, MaxPenalty},
		{"presence_penalty", cfg.PresencePenalty, MinPenalty, MaxPenalty},
		{"max_tokens", float64(cfg.MaxTokens), MinMaxTokens, MaxMaxTokens},
	}

	var violations []string
	for _, b := range bounds {
		if b.value < b.min || b.value > b.max {
			violations = append(violations,
				fmt.Sprintf("%s=%v outside [%v, %v]", b.name, b.value, b.min, b.max))
		}
	}
	if len(violations) > 0 {
		return aegis_err.New(aegis_err.KindConfigurationValidation,
			"model parameters out of range: "+strings.Join(violations, "; "))
	}
	return nil
}
