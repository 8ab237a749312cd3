// Package parsing implements the parsing Domain Service adapter: it turns an
// uploaded résumé file into extracted plain text and a best-effort section
// breakdown.
package parsing

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
	"github.com/ledongthuc/pdf"
)

// maxExtractedChars caps extracted text to keep downstream Gemini prompts
// within the configured content size budget.
const maxExtractedChars = 50000

// PDFExtractor implements interfaces.DocumentTextExtractor using
// github.com/ledongthuc/pdf.
type PDFExtractor struct {
	logger *common.Logger
}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor(logger *common.Logger) *PDFExtractor {
	return &PDFExtractor{logger: logger}
}

// ExtractText extracts plain text from data. "application/pdf" is parsed
// page by page; any other content type is treated as already-plain text.
func (e *PDFExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (text string, err error) {
	if contentType != "application/pdf" {
		return string(data), nil
	}

	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	reader := bytes.NewReader(data)
	r, readErr := pdf.NewReader(reader, int64(len(data)))
	if readErr != nil {
		return "", fmt.Errorf("failed to open PDF: %w", readErr)
	}

	var sb strings.Builder
	totalPages := r.NumPage()

	for i := 1; i <= totalPages; i++ {
		select {
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		default:
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")

		if sb.Len() > maxExtractedChars {
			break
		}
	}

	result := sb.String()
	if len(result) > maxExtractedChars {
		result = result[:maxExtractedChars]
	}
	return result, nil
}

var _ interfaces.DocumentTextExtractor = (*PDFExtractor)(nil)
