package insight

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/pkg/anthropic"
)

const systemPrompt = "You are a senior economist at the South African Reserve Bank. " +
	"Write concise, professional commentary on the indicators you are given. " +
	"Do not invent figures that are not in the input."

// AnthropicProvider generates snapshot commentary via the Anthropic API.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider creates a provider using the given client and model.
func NewAnthropicProvider(client anthropic.Client, model string, maxTokens int64) *AnthropicProvider {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens}
}

// Annotate asks the model for a short narrative over the snapshot's
// indicator values and composite scores.
func (p *AnthropicProvider) Annotate(ctx context.Context, snap *model.ReportingSnapshot) (*model.InsightAnnotation, error) {
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(snap)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "insight: annotate snapshot")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.New("insight: empty response from model")
	}

	return &model.InsightAnnotation{
		SnapshotDate: snap.SnapshotDate,
		Narrative:    text,
		Provider:     "anthropic:" + resp.Model,
		Confidence:   0.85,
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// buildPrompt renders the snapshot into the analysis request. Only values
// actually present in the snapshot are mentioned.
func buildPrompt(snap *model.ReportingSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Latest indicator readings as of %s:\n", snap.SnapshotDate.Format("2006-01-02"))

	for _, name := range model.TrackedIndicators {
		v, ok := snap.Indicators[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %.2f", name, v)
		if t, ok := snap.Trends[name]; ok {
			fmt.Fprintf(&b, " (%s)", t)
		}
		b.WriteString("\n")
	}

	if snap.PolicyStance != nil {
		fmt.Fprintf(&b, "Policy stance: %s\n", *snap.PolicyStance)
	}
	if snap.HealthScore != nil {
		fmt.Fprintf(&b, "Composite health score: %.1f/100\n", *snap.HealthScore)
	}
	if snap.RiskLevel != nil {
		fmt.Fprintf(&b, "Risk level: %s\n", *snap.RiskLevel)
	}
	if len(snap.MissingIndicators) > 0 {
		fmt.Fprintf(&b, "No data available for: %s\n", strings.Join(snap.MissingIndicators, ", "))
	}

	b.WriteString("\nProvide a four-part assessment (executive summary, policy assessment, " +
		"risk analysis, market outlook), around 50 words per part.")
	return b.String()
}
