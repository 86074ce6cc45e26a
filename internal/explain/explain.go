// Package explain turns a question and the agreement excerpts ranked for it
// into a plain-language answer by way of a text-generation model.
package explain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shepardc348-cloud/Freshwater-Vault/pkg/config"
)

// ErrEmptyAnswer is returned when a model replies with nothing but whitespace.
var ErrEmptyAnswer = errors.New("explainer returned an empty answer")

// Excerpt is one section of the agreement offered to the model as grounding.
type Excerpt struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// Explainer answers question using only the given excerpts.
type Explainer interface {
	Explain(ctx context.Context, question string, excerpts []Excerpt) (string, error)
}

const systemPrompt = "You explain a service agreement to the client who signed it. " +
	"Answer in plain language using only the excerpts provided. " +
	"Name the section you relied on. " +
	"If the excerpts do not answer the question, say that the agreement does not address it " +
	"and suggest contacting the office."

// BuildPrompt renders the user message sent alongside systemPrompt.
func BuildPrompt(question string, excerpts []Excerpt) string {
	var b strings.Builder
	b.WriteString("Agreement excerpts:\n\n")
	for i, ex := range excerpts {
		fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, ex.Heading, ex.Text)
	}
	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n")
	return b.String()
}

// New builds the Explainer named by cfg.Provider.
func New(cfg config.ExplainConfig) (Explainer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.Host, cfg.Token, cfg.Model)
	case "ollama":
		return NewOllama(cfg.Host, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown explain provider %q", cfg.Provider)
	}
}

// Static answers every question with a fixed reply or error.
type Static struct {
	Answer string
	Err    error

	Calls int
	Last  []Excerpt
}

func (s *Static) Explain(_ context.Context, _ string, excerpts []Excerpt) (string, error) {
	s.Calls++
	s.Last = excerpts
	if s.Err != nil {
		return "", s.Err
	}
	return s.Answer, nil
}
