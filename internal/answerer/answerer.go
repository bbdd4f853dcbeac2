// File path: internal/answerer/answerer.go
package answerer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/codeproof/codeproof/internal/common"
	"github.com/codeproof/codeproof/internal/config"
	"github.com/codeproof/codeproof/internal/llm"
	"github.com/codeproof/codeproof/internal/retriever"
)

// ConfidenceTier is the discrete evidence-coverage label of an answer.
type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "high"   // >= 3 citations from >= 2 files
	ConfidenceMedium ConfidenceTier = "medium" // >= 2 citations
	ConfidenceLow    ConfidenceTier = "low"    // exactly 1 citation
	ConfidenceNone   ConfidenceTier = "none"   // no usable evidence
)

// Section is one validated answer passage with the sources it cites.
type Section struct {
	Text      string `json:"text"`
	SourceIDs []int  `json:"source_ids"`
}

// Citation binds a cited source index back to its evidence tuple.
type Citation struct {
	SourceIndex int    `json:"source_index"`
	FilePath    string `json:"file_path"`
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Snippet     string `json:"snippet"`
	SymbolName  string `json:"symbol_name,omitempty"`
}

// Answer is the validated, citation-backed result of one question.
type Answer struct {
	Text              string         `json:"text"`
	Sections          []Section      `json:"sections"`
	Unknowns          []string       `json:"unknowns"`
	ConfidenceTier    ConfidenceTier `json:"confidence_tier"`
	ConfidenceFactors map[string]any `json:"confidence_factors"`
	ValidationPassed  bool           `json:"validation_passed"`
	ValidationErrors  []string       `json:"validation_errors,omitempty"`
	Citations         []Citation     `json:"citations"`
	Usage             llm.Usage      `json:"usage"`
}

// HasSufficientEvidence reports whether the answer cleared the none tier.
func (a *Answer) HasSufficientEvidence() bool {
	return a.ConfidenceTier != ConfidenceNone
}

const answerPrompt = `You are a code analysis assistant. Answer the question based ONLY on the provided sources.

CRITICAL RULES:
1. You MUST output valid JSON matching the schema below
2. Every claim MUST reference at least one source_id
3. If you cannot answer part of the question, put it in "unknowns"
4. Do NOT invent file paths or line numbers
5. Do NOT make claims without source evidence

OUTPUT SCHEMA:
{
    "sections": [
        {"text": "The authentication flow starts in...", "source_ids": [1, 3]},
        {"text": "Passwords are hashed using bcrypt...", "source_ids": [2]}
    ],
    "unknowns": [
        "I could not find where password reset emails are sent"
    ]
}

SOURCES:
%s

QUESTION: %s

Respond with ONLY the JSON object, no other text:`

// Answerer phrases retrieved evidence through a language model and validates
// every citation the model emits. The model never detects facts: sources are
// the ground truth, and sections citing nothing the retriever supplied are
// dropped.
type Answerer struct {
	provider llm.Provider
	cfg      config.AnswererConfig
}

// New builds an answerer over the given provider.
func New(provider llm.Provider, cfg config.AnswererConfig) *Answerer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.RetryOnParseFailure <= 0 {
		cfg.RetryOnParseFailure = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Answerer{provider: provider, cfg: cfg}
}

// Answer runs the full phrase-and-validate pass for a question. With no
// sources the model is never called.
func (a *Answerer) Answer(ctx context.Context, question string, sources []retriever.Source) (*Answer, error) {
	if len(sources) == 0 {
		return noEvidenceAnswer(question), nil
	}
	logger := common.Logger()

	prompt := fmt.Sprintf(answerPrompt, formatSources(sources), question)
	var usage llm.Usage
	parsed, callUsage, err := a.generateParsed(ctx, prompt)
	usage = callUsage
	if err != nil {
		return nil, err
	}
	for attempt := 0; parsed == nil && attempt < a.cfg.RetryOnParseFailure; attempt++ {
		logger.Warn("answerer: structured output parse failed, retrying", "attempt", attempt+1)
		retried, retryUsage, err := a.generateParsed(ctx, prompt+"\n\nRemember: Output ONLY valid JSON.")
		if err != nil {
			return nil, err
		}
		usage = retryUsage
		parsed = retried
	}
	if parsed == nil {
		answer := noEvidenceAnswer(question)
		answer.Unknowns = []string{"Failed to generate structured answer"}
		answer.ValidationErrors = []string{"JSON parsing failed"}
		answer.Usage = usage
		answer.Text = renderText(answer.Sections, answer.Unknowns)
		return answer, nil
	}

	answer := a.validate(parsed, sources)
	answer.Usage = usage
	answer.Text = renderText(answer.Sections, answer.Unknowns)
	return answer, nil
}

// rawAnswer is the schema the model must produce.
type rawAnswer struct {
	Sections []struct {
		Text      string `json:"text"`
		SourceIDs []int  `json:"source_ids"`
	} `json:"sections"`
	Unknowns []string `json:"unknowns"`
}

func (a *Answerer) generateParsed(ctx context.Context, prompt string) (*rawAnswer, llm.Usage, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()
	generation, err := a.provider.Generate(callCtx, prompt, a.cfg.MaxTokens)
	if err != nil {
		if ctx.Err() != nil {
			// cancelled at the request boundary; discard without retry
			return nil, llm.Usage{}, ctx.Err()
		}
		return nil, llm.Usage{}, fmt.Errorf("answerer: model call failed: %w", err)
	}
	return parseAnswerJSON(generation.Text), generation.Usage, nil
}

// parseAnswerJSON parses model output; on failure it strips the response to
// its first balanced-brace span and retries the parse.
func parseAnswerJSON(response string) *rawAnswer {
	var parsed rawAnswer
	if err := json.Unmarshal([]byte(response), &parsed); err == nil {
		return &parsed
	}
	stripped := balancedBraces(response)
	if stripped == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(stripped), &parsed); err == nil {
		return &parsed
	}
	return nil
}

// balancedBraces returns the first top-level {...} span of a string,
// respecting string literals and escapes.
func balancedBraces(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// validate drops sections with empty text, strips citation ids the retriever
// never issued, and drops sections left with no valid citation. Validation
// errors are recorded but only an empty survivor set fails the answer.
func (a *Answerer) validate(parsed *rawAnswer, sources []retriever.Source) *Answer {
	valid := make(map[int]retriever.Source, len(sources))
	for _, s := range sources {
		valid[s.SourceIndex] = s
	}

	var errors []string
	var sections []Section
	for i, raw := range parsed.Sections {
		text := strings.TrimSpace(raw.Text)
		if text == "" {
			errors = append(errors, fmt.Sprintf("section %d has no text", i))
			continue
		}
		if len(raw.SourceIDs) == 0 {
			errors = append(errors, fmt.Sprintf("section %d has no source_ids", i))
			continue
		}
		var ids []int
		for _, id := range raw.SourceIDs {
			if _, ok := valid[id]; ok {
				ids = append(ids, id)
			} else {
				errors = append(errors, fmt.Sprintf("section %d cites unknown source %d", i, id))
			}
		}
		if len(ids) == 0 {
			continue
		}
		sections = append(sections, Section{Text: text, SourceIDs: ids})
	}

	tier, factors := confidence(sections, sources)
	answer := &Answer{
		Sections:          sections,
		Unknowns:          parsed.Unknowns,
		ConfidenceTier:    tier,
		ConfidenceFactors: factors,
		ValidationPassed:  len(errors) == 0,
		ValidationErrors:  errors,
		Citations:         buildCitations(sections, valid),
	}
	return answer
}

// confidence computes the discrete tier from distinct citations and files.
func confidence(sections []Section, sources []retriever.Source) (ConfidenceTier, map[string]any) {
	cited := make(map[int]struct{})
	for _, section := range sections {
		for _, id := range section.SourceIDs {
			cited[id] = struct{}{}
		}
	}
	files := make(map[string]struct{})
	hasEntrypoints := false
	for _, s := range sources {
		if _, ok := cited[s.SourceIndex]; !ok {
			continue
		}
		files[s.FilePath] = struct{}{}
		lower := strings.ToLower(s.FilePath)
		if strings.Contains(lower, "controller") || strings.Contains(lower, "route") {
			hasEntrypoints = true
		}
	}
	factors := map[string]any{
		"citation_count":  len(cited),
		"unique_files":    len(files),
		"has_entrypoints": hasEntrypoints,
		"section_count":   len(sections),
	}
	switch {
	case len(sections) == 0 || len(cited) == 0:
		return ConfidenceNone, factors
	case len(cited) >= 3 && len(files) >= 2:
		return ConfidenceHigh, factors
	case len(cited) >= 2:
		return ConfidenceMedium, factors
	default:
		return ConfidenceLow, factors
	}
}

func buildCitations(sections []Section, valid map[int]retriever.Source) []Citation {
	cited := make(map[int]struct{})
	for _, section := range sections {
		for _, id := range section.SourceIDs {
			cited[id] = struct{}{}
		}
	}
	var citations []Citation
	for index := 1; index <= len(valid); index++ {
		if _, ok := cited[index]; !ok {
			continue
		}
		s := valid[index]
		citations = append(citations, Citation{
			SourceIndex: s.SourceIndex,
			FilePath:    s.FilePath,
			StartLine:   s.StartLine,
			EndLine:     s.EndLine,
			Snippet:     s.Content,
			SymbolName:  s.SymbolName,
		})
	}
	return citations
}

// formatSources renders the numbered source blocks of the prompt contract.
func formatSources(sources []retriever.Source) string {
	blocks := make([]string, 0, len(sources))
	for _, s := range sources {
		header := fmt.Sprintf("[Source %d] %s:%d-%d", s.SourceIndex, s.FilePath, s.StartLine, s.EndLine)
		if s.SymbolName != "" {
			header += fmt.Sprintf(" (%s)", s.SymbolName)
		}
		blocks = append(blocks, fmt.Sprintf("%s\n```\n%s\n```", header, s.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// renderText concatenates section texts with bracketed source references,
// then the unknowns block.
func renderText(sections []Section, unknowns []string) string {
	var parts []string
	for _, section := range sections {
		refs := make([]string, 0, len(section.SourceIDs))
		for _, id := range section.SourceIDs {
			refs = append(refs, fmt.Sprintf("[%d]", id))
		}
		parts = append(parts, section.Text+" "+strings.Join(refs, ", "))
	}
	if len(unknowns) > 0 {
		block := []string{"**Could not determine:**"}
		for _, unknown := range unknowns {
			block = append(block, "- "+unknown)
		}
		parts = append(parts, strings.Join(block, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// noEvidenceAnswer is the typed "insufficient evidence" result; it is a
// first-class value, not an error.
func noEvidenceAnswer(question string) *Answer {
	return &Answer{
		Text: fmt.Sprintf("I could not find enough evidence in the codebase to answer: %q\n\n"+
			"Try asking about specific class or function names.", question),
		Unknowns:          []string{question},
		ConfidenceTier:    ConfidenceNone,
		ConfidenceFactors: map[string]any{"reason": "no_sources"},
		ValidationPassed:  false,
	}
}
