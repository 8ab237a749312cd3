// Package enhancement implements the enhancement Domain Service adapter: it
// rewrites a parsed résumé's weak phrasing into stronger, quantified
// achievement statements via Gemini.
package enhancement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
)

// Payload is the expected shape of an enhancement job's Job.Payload.
type Payload struct {
	RawText      string   `json:"raw_text"`
	TargetRole   string   `json:"target_role,omitempty"`
	FocusAreas   []string `json:"focus_areas,omitempty"` // e.g. "impact", "clarity", "keywords"
}

// Result is the enhanced résumé content.
type Result struct {
	EnhancedText string   `json:"enhanced_text"`
	Changes      []string `json:"changes"` // human-readable summary of what was improved
}

const schemaHint = `{"enhanced_text": "string", "changes": ["string"]}`

// Service implements interfaces.DomainService for résumé enhancement.
type Service struct {
	gemini interfaces.GeminiClient
	logger *common.Logger
}

// New creates a new enhancement Service.
func New(gemini interfaces.GeminiClient, logger *common.Logger) *Service {
	return &Service{gemini: gemini, logger: logger}
}

// Name identifies the adapter for logging.
func (s *Service) Name() string { return "enhancement" }

// Process asks Gemini to rewrite the résumé text with stronger, quantified
// language, optionally targeted at a specific role.
func (s *Service) Process(ctx context.Context, payload any, progress func(pct int, step string)) (any, error) {
	var p Payload
	if err := common.DecodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.RawText == "" {
		return nil, common.New(common.ErrKindValidation, "enhancement.Service.Process", "raw_text is required")
	}

	progress(20, "building_prompt")
	prompt := buildPrompt(p)

	progress(40, "calling_model")
	raw, err := s.gemini.GenerateStructured(ctx, prompt, schemaHint)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "enhancement.Service.Process", err)
	}

	progress(80, "parsing_response")
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "enhancement.Service.Process", fmt.Errorf("unparseable model response: %w", err))
	}

	progress(100, "done")
	return &result, nil
}

func buildPrompt(p Payload) string {
	prompt := "Rewrite the following résumé content to use stronger, quantified, achievement-oriented language. " +
		"Preserve factual claims; do not invent metrics that aren't implied by the original text.\n\n"
	if p.TargetRole != "" {
		prompt += fmt.Sprintf("Target role: %s\n\n", p.TargetRole)
	}
	if len(p.FocusAreas) > 0 {
		prompt += fmt.Sprintf("Focus on: %v\n\n", p.FocusAreas)
	}
	prompt += "Résumé content:\n" + p.RawText
	return prompt
}

var _ interfaces.DomainService = (*Service)(nil)
