package enhancement

import (
	"context"
	"testing"

	"github.com/careerforge/backend/internal/common"
)

type fakeGemini struct {
	structured string
	err        error
	lastPrompt string
}

func (f *fakeGemini) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (f *fakeGemini) GenerateStructured(ctx context.Context, prompt string, schemaHint string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.structured, nil
}

func TestProcess_HappyPath(t *testing.T) {
	gemini := &fakeGemini{structured: `{"enhanced_text": "Led a team of 5 to deliver...", "changes": ["quantified impact"]}`}
	svc := New(gemini, common.NewSilentLogger())

	var pcts []int
	result, err := svc.Process(context.Background(), Payload{RawText: "Worked on a team project", TargetRole: "Staff Engineer"}, func(pct int, step string) { pcts = append(pcts, pct) })
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	r := result.(*Result)
	if r.EnhancedText == "" {
		t.Error("expected non-empty enhanced text")
	}
	if len(r.Changes) != 1 {
		t.Errorf("expected 1 change summary, got %v", r.Changes)
	}
	if len(pcts) != 4 {
		t.Errorf("expected 4 progress callbacks, got %d", len(pcts))
	}
	if !contains(gemini.lastPrompt, "Staff Engineer") {
		t.Error("expected the target role to be included in the prompt")
	}
}

func TestProcess_MissingRawTextIsValidationError(t *testing.T) {
	svc := New(&fakeGemini{}, common.NewSilentLogger())
	_, err := svc.Process(context.Background(), Payload{}, func(int, string) {})
	if err == nil {
		t.Fatal("expected an error when raw_text is empty")
	}
}

func TestProcess_GeminiErrorPropagates(t *testing.T) {
	svc := New(&fakeGemini{err: context.DeadlineExceeded}, common.NewSilentLogger())
	_, err := svc.Process(context.Background(), Payload{RawText: "some text"}, func(int, string) {})
	if err == nil {
		t.Fatal("expected the Gemini client's error to propagate")
	}
}

func TestProcess_UnparseableModelResponse(t *testing.T) {
	svc := New(&fakeGemini{structured: "not json"}, common.NewSilentLogger())
	_, err := svc.Process(context.Background(), Payload{RawText: "some text"}, func(int, string) {})
	if err == nil {
		t.Fatal("expected an error for an unparseable model response")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
