package draft

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/pkg/anthropic"
)

const polishSystemPrompt = "You are a legal drafting assistant for Indian health insurance grievances. " +
	"Polish the rebuttal email you are given for tone and clarity. Keep every factual claim, " +
	"regulatory citation, date, name and policy number exactly as written. Return only the email body."

// ClaudeDrafter composes the deterministic template rebuttal and then polishes
// it through the Anthropic Messages API. API failures surface as *DraftError
// so the workflow's retry policy applies.
type ClaudeDrafter struct {
	client    anthropic.Client
	template  *TemplateDrafter
	model     string
	maxTokens int64
}

// NewClaudeDrafter creates a ClaudeDrafter using the given model.
func NewClaudeDrafter(client anthropic.Client, modelName string, maxTokens int64) *ClaudeDrafter {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &ClaudeDrafter{
		client:    client,
		template:  NewTemplateDrafter(),
		model:     modelName,
		maxTokens: maxTokens,
	}
}

func (d *ClaudeDrafter) Draft(ctx context.Context, verdict model.MoratoriumVerdict, evidence *model.ClaimEvidence, meta Meta) (string, error) {
	base, err := d.template.Draft(ctx, verdict, evidence, meta)
	if err != nil {
		return "", err
	}

	temp := 0.2
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       d.model,
		MaxTokens:   d.maxTokens,
		System:      polishSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: base}},
		Temperature: &temp,
	})
	if err != nil {
		return "", &DraftError{Err: err}
	}

	polished := strings.TrimSpace(resp.FirstText())
	if polished == "" {
		return "", &DraftError{Err: eris.New("model returned empty draft")}
	}

	resp.Usage.LogUsage(d.model, "draft_rebuttal")
	zap.L().Debug("rebuttal polished", zap.String("model", d.model))
	return polished, nil
}
