// File path: internal/answerer/answerer_test.go
package answerer

import (
	"context"
	"strings"
	"testing"

	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/llm"
	"github.com/codeproof/codeproof/internal/retriever"
)

type scriptedProvider struct {
	responses []string
	calls     int
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, maxTokens int) (*llm.Generation, error) {
	text := ""
	if p.calls < len(p.responses) {
		text = p.responses[p.calls]
	}
	p.calls++
	return &llm.Generation{Text: text, Usage: llm.Usage{InputTokens: 100, OutputTokens: 50}}, nil
}

func (p *scriptedProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	return nil, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func testSources(n int) []retriever.Source {
	files := []string{
		"app/Http/Middleware/Authenticate.php",
		"app/Http/Kernel.php",
		"app/Http/Middleware/EnsureUserIsActive.php",
		"app/Services/TokenService.php",
	}
	var sources []retriever.Source
	for i := 0; i < n; i++ {
		sources = append(sources, retriever.Source{
			SourceIndex: i + 1,
			FilePath:    files[i%len(files)],
			StartLine:   1,
			EndLine:     25,
			Content:     "class Something {}",
			Score:       0.9,
			SourceType:  retriever.SourceTrigram,
		})
	}
	return sources
}

func newTestAnswerer(responses ...string) (*Answerer, *scriptedProvider) {
	provider := &scriptedProvider{responses: responses}
	return New(provider, config.AnswererConfig{}), provider
}

func TestHighConfidenceAnswer(t *testing.T) {
	a, _ := newTestAnswerer(`{
		"sections": [
			{"text": "Requests pass through the Authenticate middleware.", "source_ids": [1]},
			{"text": "The api group registers auth before the controllers run.", "source_ids": [2]},
			{"text": "Inactive users are rejected by EnsureUserIsActive.", "source_ids": [3]}
		],
		"unknowns": []
	}`)
	answer, err := a.Answer(context.Background(), "How does authentication work?", testSources(3))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.ConfidenceTier != ConfidenceHigh {
		t.Errorf("tier = %q, factors = %+v", answer.ConfidenceTier, answer.ConfidenceFactors)
	}
	if len(answer.Sections) != 3 {
		t.Errorf("sections = %d", len(answer.Sections))
	}
	for _, ref := range []string{"[1]", "[2]", "[3]"} {
		if !strings.Contains(answer.Text, ref) {
			t.Errorf("rendered text missing %s: %q", ref, answer.Text)
		}
	}
	if !answer.ValidationPassed {
		t.Errorf("validation errors: %v", answer.ValidationErrors)
	}
	if len(answer.Citations) != 3 {
		t.Errorf("citations = %d", len(answer.Citations))
	}
}

func TestInvalidSourceIDsDropped(t *testing.T) {
	a, _ := newTestAnswerer(`{
		"sections": [
			{"text": "Claim with one bogus citation.", "source_ids": [1, 99]},
			{"text": "Claim with only bogus citations.", "source_ids": [42]}
		],
		"unknowns": []
	}`)
	answer, err := a.Answer(context.Background(), "q", testSources(2))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(answer.Sections) != 1 {
		t.Fatalf("sections = %d, want 1", len(answer.Sections))
	}
	if len(answer.Sections[0].SourceIDs) != 1 || answer.Sections[0].SourceIDs[0] != 1 {
		t.Errorf("surviving ids = %v", answer.Sections[0].SourceIDs)
	}
	if answer.ValidationPassed {
		t.Errorf("validation should record errors")
	}
	if answer.ConfidenceTier != ConfidenceLow {
		t.Errorf("tier = %q", answer.ConfidenceTier)
	}
}

func TestEmptySectionsYieldNone(t *testing.T) {
	a, _ := newTestAnswerer(`{"sections": [], "unknowns": ["nothing found"]}`)
	answer, err := a.Answer(context.Background(), "q", testSources(2))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if answer.ConfidenceTier != ConfidenceNone {
		t.Errorf("tier = %q", answer.ConfidenceTier)
	}
}

func TestParseRetryOnGarbage(t *testing.T) {
	a, provider := newTestAnswerer(
		"definitely not json",
		`Sure! Here is the answer: {"sections": [{"text": "ok", "source_ids": [1]}], "unknowns": []} hope that helps`,
	)
	answer, err := a.Answer(context.Background(), "q", testSources(1))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("calls = %d, want retry", provider.calls)
	}
	if answer.ConfidenceTier != ConfidenceLow {
		t.Errorf("tier = %q", answer.ConfidenceTier)
	}
}

func TestParseFailureTwiceDegradesToNone(t *testing.T) {
	a, provider := newTestAnswerer("garbage one", "garbage two")
	answer, err := a.Answer(context.Background(), "q", testSources(1))
	if err != nil {
		t.Fatalf("parse failure must degrade, not raise: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("calls = %d", provider.calls)
	}
	if answer.ConfidenceTier != ConfidenceNone {
		t.Errorf("tier = %q", answer.ConfidenceTier)
	}
	if len(answer.ValidationErrors) == 0 {
		t.Errorf("expected recorded validation errors")
	}
}

func TestZeroEvidenceSkipsModel(t *testing.T) {
	a, provider := newTestAnswerer(`{"sections": [], "unknowns": []}`)
	answer, err := a.Answer(context.Background(), "Where is the billing code?", nil)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("model must not be called with zero sources")
	}
	if answer.ConfidenceTier != ConfidenceNone {
		t.Errorf("tier = %q", answer.ConfidenceTier)
	}
	if len(answer.Unknowns) != 1 || answer.Unknowns[0] != "Where is the billing code?" {
		t.Errorf("unknowns = %v", answer.Unknowns)
	}
}

func TestUnknownsRendered(t *testing.T) {
	a, _ := newTestAnswerer(`{
		"sections": [{"text": "Partial answer.", "source_ids": [1]}],
		"unknowns": ["Could not locate the password reset flow"]
	}`)
	answer, err := a.Answer(context.Background(), "q", testSources(1))
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.Contains(answer.Text, "Could not determine:") {
		t.Errorf("unknowns block missing: %q", answer.Text)
	}
}

func TestBalancedBraces(t *testing.T) {
	cases := []struct{ in, want string }{
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"nested": {"b": 2}} trailing {ignored}`, `{"nested": {"b": 2}}`},
		{`{"s": "quote } inside"}`, `{"s": "quote } inside"}`},
		{`no braces`, ``},
		{`{"unclosed": true`, ``},
	}
	for _, tc := range cases {
		if got := balancedBraces(tc.in); got != tc.want {
			t.Errorf("balancedBraces(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPromptContainsNumberedSources(t *testing.T) {
	sources := testSources(2)
	formatted := formatSources(sources)
	if !strings.Contains(formatted, "[Source 1] app/Http/Middleware/Authenticate.php:1-25") {
		t.Errorf("formatted sources = %q", formatted)
	}
	if !strings.Contains(formatted, "```") {
		t.Errorf("sources must be fenced")
	}
}
