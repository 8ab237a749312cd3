// Package evaluation implements the evaluation Domain Service adapter: it
// scores a résumé against a target job description via Gemini.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
)

// Payload is the expected shape of an evaluation job's Job.Payload.
type Payload struct {
	RawText         string `json:"raw_text"`
	JobDescription  string `json:"job_description"`
}

// Result is the évaluation's structured verdict.
type Result struct {
	OverallScore    int            `json:"overall_score"` // 0-100
	CategoryScores  map[string]int `json:"category_scores"`
	Strengths       []string       `json:"strengths"`
	Gaps            []string       `json:"gaps"`
	Recommendations []string       `json:"recommendations"`
}

const schemaHint = `{"overall_score": 0, "category_scores": {"keywords": 0, "experience": 0, "formatting": 0}, "strengths": ["string"], "gaps": ["string"], "recommendations": ["string"]}`

// Service implements interfaces.DomainService for résumé evaluation.
type Service struct {
	gemini interfaces.GeminiClient
	logger *common.Logger
}

// New creates a new evaluation Service.
func New(gemini interfaces.GeminiClient, logger *common.Logger) *Service {
	return &Service{gemini: gemini, logger: logger}
}

// Name identifies the adapter for logging.
func (s *Service) Name() string { return "evaluation" }

// Process asks Gemini to score the résumé against the job description and
// return structured strengths, gaps, and recommendations.
func (s *Service) Process(ctx context.Context, payload any, progress func(pct int, step string)) (any, error) {
	var p Payload
	if err := common.DecodePayload(payload, &p); err != nil {
		return nil, err
	}
	if p.RawText == "" || p.JobDescription == "" {
		return nil, common.New(common.ErrKindValidation, "evaluation.Service.Process", "raw_text and job_description are required")
	}

	progress(20, "building_prompt")
	prompt := fmt.Sprintf(
		"Evaluate how well the following résumé matches the job description. "+
			"Score 0-100 overall and per category (keywords, experience, formatting). "+
			"List concrete strengths, gaps, and actionable recommendations.\n\n"+
			"Job description:\n%s\n\nRésumé:\n%s",
		p.JobDescription, p.RawText,
	)

	progress(40, "calling_model")
	raw, err := s.gemini.GenerateStructured(ctx, prompt, schemaHint)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "evaluation.Service.Process", err)
	}

	progress(80, "parsing_response")
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "evaluation.Service.Process", fmt.Errorf("unparseable model response: %w", err))
	}
	if result.OverallScore < 0 {
		result.OverallScore = 0
	}
	if result.OverallScore > 100 {
		result.OverallScore = 100
	}

	progress(100, "done")
	return &result, nil
}

var _ interfaces.DomainService = (*Service)(nil)
