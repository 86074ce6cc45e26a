package explain

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// Ollama explains through a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama targets host, or OLLAMA_HOST when host is empty.
func NewOllama(host, model string) (*Ollama, error) {
	base := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parsing ollama host %q: %w", host, err)
		}
		base = u
	}
	return &Ollama{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
	}, nil
}

func (o *Ollama) Explain(ctx context.Context, question string, excerpts []Excerpt) (string, error) {
	stream := false
	req := api.GenerateRequest{
		Model:  o.model,
		System: systemPrompt,
		Prompt: BuildPrompt(question, excerpts),
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": 0.1,
			"num_predict": 700,
		},
	}
	var answer strings.Builder
	err := o.client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := answer.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("generating explanation: %w", err)
	}
	return answer.String(), nil
}
