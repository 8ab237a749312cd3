package parsing

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
)

// Payload is the expected shape of a parsing job's Job.Payload.
type Payload struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	DataBase64  string `json:"data_base64"`
}

// Result is the parsed résumé returned by Service.Process, persisted as the
// job's Domain Record result.
type Result struct {
	RawText  string   `json:"raw_text"`
	Sections []string `json:"sections"`
	Emails   []string `json:"emails,omitempty"`
	Phones   []string `json:"phones,omitempty"`
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\-\s().]{7,}\d`)
	sectionRegex = regexp.MustCompile(`(?mi)^\s*(experience|education|skills|summary|projects|certifications)\s*:?\s*$`)
)

// Service implements interfaces.DomainService for résumé parsing.
type Service struct {
	extractor interfaces.DocumentTextExtractor
	logger    *common.Logger
}

// New creates a new parsing Service.
func New(extractor interfaces.DocumentTextExtractor, logger *common.Logger) *Service {
	return &Service{extractor: extractor, logger: logger}
}

// Name identifies the adapter for logging.
func (s *Service) Name() string { return "parsing" }

// Process decodes and extracts text from the uploaded résumé file, then
// performs a best-effort section and contact-info breakdown.
func (s *Service) Process(ctx context.Context, payload any, progress func(pct int, step string)) (any, error) {
	var p Payload
	if err := common.DecodePayload(payload, &p); err != nil {
		return nil, err
	}

	progress(10, "decoding")
	data, err := base64.StdEncoding.DecodeString(p.DataBase64)
	if err != nil {
		return nil, common.New(common.ErrKindValidation, "parsing.Service.Process", "invalid base64 file data")
	}

	progress(30, "extracting_text")
	text, err := s.extractor.ExtractText(ctx, data, p.ContentType)
	if err != nil {
		return nil, common.Wrap(common.ErrKindTransient, "parsing.Service.Process", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, common.New(common.ErrKindValidation, "parsing.Service.Process", "no extractable text in uploaded file")
	}

	progress(70, "segmenting")
	result := &Result{
		RawText:  text,
		Sections: sectionRegex.FindAllString(text, -1),
		Emails:   dedupe(emailPattern.FindAllString(text, -1)),
		Phones:   dedupe(phonePattern.FindAllString(text, -1)),
	}

	progress(100, "done")
	return result, nil
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

var _ interfaces.DomainService = (*Service)(nil)
