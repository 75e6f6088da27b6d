// Package summarize produces the per-bulletin summary, with a
// deterministic fallback when no generation backend can be used.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TobiSchelling/BulletinWatch/internal/llm"
)

// Outcome says how a summary was produced.
type Outcome string

const (
	Summarized  Outcome = "summarized"
	Fallback    Outcome = "fallback"
	Unavailable Outcome = "unavailable"
)

const (
	maxPromptText   = 10000
	maxFallbackText = 1500
)

const summaryPrompt = `
Você é editor científico para médicos e gestores do SUS. Resuma o boletim em até 8 bullets, com:
(1) tema/escopo; (2) período e fonte dos dados; (3) 3–5 achados quantitativos;
(4) recomendações/implicações assistenciais e de vigilância; (5) limitações;
(6) o que acompanhar nas próximas semanas.
Use números e taxas quando existirem. Evite jargão.
Título: %s
Texto:
%s
`

// Summarizer builds summaries through an optional LLM provider.
type Summarizer struct {
	provider  llm.Provider
	maxTokens int
	timeout   time.Duration
}

// NewSummarizer creates a Summarizer. A nil provider always yields the
// fallback summary.
func NewSummarizer(provider llm.Provider, maxTokens int, timeout time.Duration) *Summarizer {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Summarizer{provider: provider, maxTokens: maxTokens, timeout: timeout}
}

// Summarize returns the summary of a bulletin. It never fails.
func (s *Summarizer) Summarize(ctx context.Context, title string, text *string) string {
	summary, _ := s.SummarizeOutcome(ctx, title, text)
	return summary
}

// SummarizeOutcome is Summarize that also reports which path produced the
// summary.
func (s *Summarizer) SummarizeOutcome(ctx context.Context, title string, text *string) (string, Outcome) {
	if text == nil || strings.TrimSpace(*text) == "" {
		return UnavailableSummary(title), Unavailable
	}

	prompt := BuildPrompt(title, *text)

	if s.provider != nil {
		genCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			genCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		out, err := s.provider.Generate(genCtx, prompt, s.maxTokens)
		switch {
		case err != nil:
			slog.Warn("summary generation failed, using fallback", "title", title, "error", err)
		case strings.TrimSpace(out) == "":
			slog.Warn("summary generation returned nothing, using fallback", "title", title)
		default:
			if cleaned := llm.CleanResponse(out); cleaned != "" {
				return cleaned, Summarized
			}
		}
	}

	return FallbackSummary(prompt), Fallback
}

// UnavailableSummary is the summary used when no document text exists.
func UnavailableSummary(title string) string {
	return fmt.Sprintf("%s: resumo indisponível (PDF sem texto extraível ou ausente).", title)
}

// BuildPrompt renders the summary request over the leading part of text.
func BuildPrompt(title, text string) string {
	return fmt.Sprintf(summaryPrompt, title, truncate(text, maxPromptText))
}

// FallbackSummary is the head of the prompt followed by an ellipsis.
func FallbackSummary(prompt string) string {
	return truncate(prompt, maxFallbackText) + "..."
}

// truncate keeps at most n characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
