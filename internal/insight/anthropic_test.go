package insight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/pkg/anthropic"
)

type mockClient struct {
	lastReq anthropic.MessageRequest
	resp    *anthropic.MessageResponse
	err     error
}

func (m *mockClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.lastReq = req
	return m.resp, m.err
}

func testSnapshot() *model.ReportingSnapshot {
	date, _ := time.Parse("2006-01-02", "2024-06-30")
	stance := model.StanceRestrictive
	health := 37.4
	risk := model.RiskLow
	return &model.ReportingSnapshot{
		SnapshotDate: date,
		Indicators: map[string]float64{
			model.IndicatorGDPGrowth: 1.2,
			model.IndicatorInflation: 5.1,
			model.IndicatorPrimeRate: 11.75,
		},
		Trends: map[string]model.Trend{
			model.IndicatorGDPGrowth: model.TrendImproving,
		},
		PolicyStance:      &stance,
		HealthScore:       &health,
		RiskLevel:         &risk,
		MissingIndicators: []string{model.IndicatorPMI},
	}
}

func TestAnnotate_Success(t *testing.T) {
	client := &mockClient{
		resp: &anthropic.MessageResponse{
			Model: "claude-sonnet-4-5-20250929",
			Content: []anthropic.ContentBlock{
				{Type: "text", Text: "Growth is recovering while policy stays tight."},
			},
		},
	}

	provider := NewAnthropicProvider(client, "claude-sonnet-4-5-20250929", 512)
	annotation, err := provider.Annotate(context.Background(), testSnapshot())
	require.NoError(t, err)
	require.NotNil(t, annotation)

	assert.Equal(t, "Growth is recovering while policy stays tight.", annotation.Narrative)
	assert.Equal(t, "anthropic:claude-sonnet-4-5-20250929", annotation.Provider)
	assert.InDelta(t, 0.85, annotation.Confidence, 0.001)
	assert.Equal(t, testSnapshot().SnapshotDate, annotation.SnapshotDate)

	assert.Equal(t, "claude-sonnet-4-5-20250929", client.lastReq.Model)
	assert.Equal(t, int64(512), client.lastReq.MaxTokens)
	assert.Equal(t, systemPrompt, client.lastReq.System)
}

func TestAnnotate_PromptContents(t *testing.T) {
	client := &mockClient{
		resp: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: "ok"}},
		},
	}

	provider := NewAnthropicProvider(client, "m", 0)
	_, err := provider.Annotate(context.Background(), testSnapshot())
	require.NoError(t, err)

	require.Len(t, client.lastReq.Messages, 1)
	prompt := client.lastReq.Messages[0].Content

	assert.Contains(t, prompt, "2024-06-30")
	assert.Contains(t, prompt, "GDP_Growth_Rate: 1.20 (IMPROVING)")
	assert.Contains(t, prompt, "Prime_Interest_Rate: 11.75")
	assert.Contains(t, prompt, "Policy stance: RESTRICTIVE")
	assert.Contains(t, prompt, "Composite health score: 37.4/100")
	assert.Contains(t, prompt, "Risk level: LOW")
	assert.Contains(t, prompt, "No data available for: Manufacturing_PMI")
	// Indicators with no data must not be rendered as values.
	assert.NotContains(t, prompt, "Manufacturing_PMI: ")
}

func TestAnnotate_ClientError(t *testing.T) {
	client := &mockClient{err: errors.New("api unavailable")}

	provider := NewAnthropicProvider(client, "m", 256)
	annotation, err := provider.Annotate(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Nil(t, annotation)
	assert.Contains(t, err.Error(), "annotate snapshot")
}

func TestAnnotate_EmptyResponse(t *testing.T) {
	client := &mockClient{
		resp: &anthropic.MessageResponse{
			Content: []anthropic.ContentBlock{{Type: "text", Text: "   "}},
		},
	}

	provider := NewAnthropicProvider(client, "m", 256)
	_, err := provider.Annotate(context.Background(), testSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestNullProvider(t *testing.T) {
	annotation, err := NullProvider{}.Annotate(context.Background(), testSnapshot())
	assert.NoError(t, err)
	assert.Nil(t, annotation)
}
