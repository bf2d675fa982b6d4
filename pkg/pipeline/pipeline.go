// Package pipeline composes the full request path: permission and quota
// gates, prompt sanitization on the way out, response sanitization on the
// way back, with audit and usage records on both sides.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/aegis-security/aegis/pkg/aegis_err"
	"github.com/aegis-security/aegis/pkg/audit"
	"github.com/aegis-security/aegis/pkg/governor"
	"github.com/aegis-security/aegis/pkg/identity"
	"github.com/aegis-security/aegis/pkg/promptguard"
	"github.com/aegis-security/aegis/pkg/responseguard"
	"github.com/aegis-security/aegis/pkg/usage"
	"github.com/aegis-security/aegis/pkg/vault"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// CapabilityRequest gates the LLM request path.
const CapabilityRequest = "llm:request"

// Request is what a caller wants to send to a provider.
type Request struct {
	Provider     string
	Model        string
	Scope        string
	SystemPrompt string
	Prompt       string
	Config       promptguard.ModelConfig
	// EstimatedTokens feeds the token quota check before the provider call.
	EstimatedTokens int
}

// PreparedRequest is the sanitized, credentialed request ready for dispatch.
type PreparedRequest struct {
	ID              string
	Provider        string
	Model           string
	Scope           string
	SystemPrompt    string
	Prompt          string
	Credential      string
	Warnings        []promptguard.Warning
	ActorID         string
	EstimatedTokens int
	StartedAt       time.Time
}

// Response is the raw provider completion handed to After.
type Response struct {
	Content          string
	Format           string
	CompletionTokens int
	EstimatedCost    float64
	Err              error
}

// Pipeline wires the gates and guards around a provider call.
type Pipeline struct {
	vault     *vault.Service
	governor  *governor.Governor
	prompts   *promptguard.Guard
	responses *responseguard.Sanitizer
	trail     *audit.Trail
	usage     usage.Recorder
	ident     identity.Provider

	Clock func() time.Time
}

func New(v *vault.Service, g *governor.Governor, p *promptguard.Guard,
	r *responseguard.Sanitizer, trail *audit.Trail, rec usage.Recorder,
	ident identity.Provider) *Pipeline {
	return &Pipeline{
		vault:     v,
		governor:  g,
		prompts:   p,
		responses: r,
		trail:     trail,
		usage:     rec,
		ident:     ident,
		Clock:     func() time.Time { return time.Now().UTC() },
	}
}

func (p *Pipeline) actor(ctx context.Context) *identity.Actor {
	actor, err := p.ident.Current(ctx)
	if err != nil {
		return nil
	}
	return actor
}

// Before runs every outbound gate in order: permission, quotas, model
// parameters, system prompt, user prompt, credential retrieval. The first
// failing gate stops the request; usage is recorded only for requests that
// clear every gate.
func (p *Pipeline) Before(ctx context.Context, req Request) (*PreparedRequest, error) {
	if err := p.governor.RequirePermission(ctx, CapabilityRequest, req.Scope); err != nil {
		return nil, err
	}

	ok, err := p.governor.CheckQuotaDefault(ctx, governor.DimRequestsPerHour)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, aegis_err.New(aegis_err.KindQuotaExceeded,
			"hourly request quota exceeded", "dimension", governor.DimRequestsPerHour)
	}
	ok, err = p.governor.CheckQuotaDefault(ctx, governor.DimTokensPerHour)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, aegis_err.New(aegis_err.KindQuotaExceeded,
			"hourly token quota exceeded", "dimension", governor.DimTokensPerHour)
	}
	ok, err = p.governor.CheckQuotaDefault(ctx, governor.DimMonthlyCost)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, aegis_err.New(aegis_err.KindQuotaExceeded,
			"monthly cost cap exceeded", "dimension", governor.DimMonthlyCost)
	}

	if err := promptguard.ValidateModelConfig(req.Config); err != nil {
		return nil, err
	}

	if req.SystemPrompt != "" {
		verdict := p.prompts.SanitizeSystemPrompt(ctx, req.SystemPrompt)
		if verdict.Blocked {
			return nil, blockedErr(verdict)
		}
		req.SystemPrompt = verdict.Sanitized
	}

	verdict := p.prompts.SanitizePrompt(ctx, req.Prompt, promptguard.Options{MaskPII: true})
	if verdict.Blocked {
		return nil, blockedErr(verdict)
	}

	credential, err := p.vault.Retrieve(ctx, req.Provider, req.Scope)
	if err != nil {
		return nil, err
	}

	if err := p.governor.RecordUsage(ctx, governor.DimRequestsPerHour, 1); err != nil {
		return nil, err
	}

	prepared := &PreparedRequest{
		ID:              uuid.New().String(),
		Provider:        req.Provider,
		Model:           req.Model,
		Scope:           req.Scope,
		SystemPrompt:    req.SystemPrompt,
		Prompt:          verdict.Sanitized,
		Credential:      credential,
		Warnings:        verdict.Warnings,
		EstimatedTokens: req.EstimatedTokens,
		StartedAt:       p.Clock(),
	}
	if actor := p.actor(ctx); actor != nil {
		prepared.ActorID = actor.ID
	}

	p.trail.Request(ctx, p.actor(ctx), audit.RequestMeta{
		Provider:     req.Provider,
		Model:        req.Model,
		PromptTokens: req.EstimatedTokens,
		PromptLength: len(verdict.Sanitized),
	})
	otelzap.Ctx(ctx).Info("Request prepared",
		zap.String("request_id", prepared.ID),
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("warnings", len(prepared.Warnings)))

	return prepared, nil
}

// After sanitizes the completion, audits the exchange and records usage.
// It is called for failed provider calls too, so errors are attributed.
func (p *Pipeline) After(ctx context.Context, prepared *PreparedRequest, resp Response) (string, error) {
	actor := p.actor(ctx)
	duration := p.Clock().Sub(prepared.StartedAt)

	status := usage.StatusSuccess
	errMessage := ""
	sanitized := ""
	if resp.Err != nil {
		status = usage.StatusError
		errMessage = resp.Err.Error()
		p.trail.ProviderError(ctx, actor, prepared.Provider, errMessage)
	} else {
		sanitized = p.responses.SanitizeResponse(resp.Content, resp.Format)
	}

	p.trail.Response(ctx, actor, audit.ResponseMeta{
		Provider:         prepared.Provider,
		Model:            prepared.Model,
		CompletionTokens: resp.CompletionTokens,
		ContentLength:    len(sanitized),
		Duration:         duration,
		Status:           status,
	})

	if resp.Err == nil && resp.CompletionTokens > 0 {
		if err := p.governor.RecordUsage(ctx, governor.DimTokensPerHour,
			int64(prepared.EstimatedTokens+resp.CompletionTokens)); err != nil {
			otelzap.Ctx(ctx).Warn("Token usage recording failed", zap.Error(err))
		}
	}
	if resp.Err == nil && resp.EstimatedCost > 0 {
		if err := p.governor.RecordUsage(ctx, governor.DimMonthlyCost,
			governor.CostCents(resp.EstimatedCost)); err != nil {
			otelzap.Ctx(ctx).Warn("Cost usage recording failed", zap.Error(err))
		}
	}

	record := &usage.Record{
		ActorID:          prepared.ActorID,
		ScopeID:          prepared.Scope,
		Provider:         prepared.Provider,
		Model:            prepared.Model,
		PromptTokens:     prepared.EstimatedTokens,
		CompletionTokens: resp.CompletionTokens,
		EstimatedCost:    resp.EstimatedCost,
		DurationSeconds:  duration.Seconds(),
		Status:           status,
		ErrorMessage:     errMessage,
		CreatedAt:        p.Clock(),
	}
	if err := p.usage.Record(ctx, record); err != nil {
		otelzap.Ctx(ctx).Warn("Usage recording failed",
			zap.String("request_id", prepared.ID), zap.Error(err))
	}

	if resp.Err != nil {
		return "", resp.Err
	}
	return sanitized, nil
}

func blockedErr(verdict *promptguard.Verdict) error {
	codes := make([]string, 0, len(verdict.Warnings))
	for _, w := range verdict.Warnings {
		codes = append(codes, w.Code)
	}
	return aegis_err.New(aegis_err.KindPromptBlocked, "prompt rejected by content policy",
		"warning_codes", strings.Join(codes, ","))
}
