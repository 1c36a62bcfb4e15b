package search

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

const answerTemplate = `
You are 'Geostrata AI'. Answer the question based ONLY on the context below.

CITATION RULES (CRITICAL):
1. You have access to the [Title] and (URL) for every source.
2. When you use information, you MUST cite it using Markdown links.
3. Format: "According to [Article Title](URL)..." or at the end "Source: [Article Title](URL)".
4. Do not make up URLs. Use exactly what is provided in the Context.

Context:
{{.context}}

Question: {{.question}}

Answer:`

// PromptBuilder fills the answer-generation template with a context block and question.
type PromptBuilder struct {
	template prompts.PromptTemplate
}

// NewPromptBuilder returns a builder for the citation-aware answer prompt.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{template: prompts.NewPromptTemplate(answerTemplate, []string{"context", "question"})}
}

// Build renders the prompt.
func (b *PromptBuilder) Build(contextBlock, question string) (string, error) {
	out, err := b.template.Format(map[string]any{
		"context":  contextBlock,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return out, nil
}
