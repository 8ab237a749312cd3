package interfaces

import "context"

// GeminiClient provides access to the Gemini API, used by the enhancement
// and evaluation Domain Service adapters.
type GeminiClient interface {
	// GenerateContent generates AI content from a prompt.
	GenerateContent(ctx context.Context, prompt string) (string, error)

	// GenerateStructured generates content and asks the model to return JSON
	// matching the given schema hint, used when enhancement/evaluation need
	// a parseable result rather than free text.
	GenerateStructured(ctx context.Context, prompt string, schemaHint string) (string, error)
}

// DocumentTextExtractor pulls plain text out of an uploaded résumé file, used
// by the parsing Domain Service adapter.
type DocumentTextExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
