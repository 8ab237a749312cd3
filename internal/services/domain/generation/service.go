// Package generation implements the generation Domain Service adapter: it
// renders a visual score summary for an evaluated résumé.
package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/careerforge/backend/internal/common"
	"github.com/careerforge/backend/internal/interfaces"
)

// Payload is the expected shape of a generation job's Job.Payload.
type Payload struct {
	OverallScore   int            `json:"overall_score"`
	CategoryScores map[string]int `json:"category_scores"`
}

// Result carries the rendered PNG summary chart, base64-encoded for
// embedding directly in a JSON response.
type Result struct {
	ImagePNGBase64 string `json:"image_png_base64"`
}

// Service implements interfaces.DomainService for résumé score visualization.
type Service struct {
	logger *common.Logger
}

// New creates a new generation Service.
func New(logger *common.Logger) *Service {
	return &Service{logger: logger}
}

// Name identifies the adapter for logging.
func (s *Service) Name() string { return "generation" }

// Process renders a bar chart of category scores plus the overall score.
func (s *Service) Process(ctx context.Context, payload any, progress func(pct int, step string)) (any, error) {
	var p Payload
	if err := common.DecodePayload(payload, &p); err != nil {
		return nil, err
	}
	if len(p.CategoryScores) == 0 {
		return nil, common.New(common.ErrKindValidation, "generation.Service.Process", "category_scores is required")
	}

	progress(30, "rendering_chart")
	png, err := renderScoreChart(p.OverallScore, p.CategoryScores)
	if err != nil {
		return nil, common.Wrap(common.ErrKindFatal, "generation.Service.Process", err)
	}

	progress(100, "done")
	return &Result{ImagePNGBase64: base64.StdEncoding.EncodeToString(png)}, nil
}

func renderScoreChart(overall int, categories map[string]int) ([]byte, error) {
	keys := make([]string, 0, len(categories))
	for k := range categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	bars := make([]chart.Value, 0, len(keys)+1)
	bars = append(bars, chart.Value{
		Label: "overall",
		Value: float64(overall),
		Style: chart.Style{FillColor: drawing.ColorFromHex("2563eb"), StrokeColor: drawing.ColorFromHex("2563eb")},
	})
	for _, k := range keys {
		bars = append(bars, chart.Value{
			Label: k,
			Value: float64(categories[k]),
			Style: chart.Style{FillColor: drawing.ColorFromHex("16a34a"), StrokeColor: drawing.ColorFromHex("16a34a")},
		})
	}

	graph := chart.BarChart{
		Title:  "Résumé Score Summary",
		Width:  800,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

var _ interfaces.DomainService = (*Service)(nil)
