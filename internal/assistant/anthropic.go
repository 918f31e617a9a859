package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

// Anthropic speaks the Messages API.
type Anthropic struct {
	http      *resty.Client
	model     string
	maxTokens int
}

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg Config) *Anthropic {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.anthropic.com"
	}
	c := newClient(base, cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", anthropicVersion)
	return &Anthropic{http: c, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
}

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	body := anthropicRequest{Model: a.model, MaxTokens: req.MaxTokens, System: req.System}
	if body.MaxTokens == 0 {
		body.MaxTokens = a.maxTokens
	}
	for _, m := range req.Messages {
		msg := anthropicMessage{Role: string(m.Role)}
		for _, img := range m.Images {
			msg.Content = append(msg.Content, anthropicBlock{
				Type:   "image",
				Source: &anthropicSource{Type: "base64", MediaType: img.MediaType, Data: img.Data},
			})
		}
		msg.Content = append(msg.Content, anthropicBlock{Type: "text", Text: m.Content})
		body.Messages = append(body.Messages, msg)
	}

	var out anthropicResponse
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/messages")
	if err != nil {
		return "", fmt.Errorf("assistant: anthropic: %w", err)
	}
	if resp.IsError() {
		return "", statusError(ProviderAnthropic, resp)
	}
	var b strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("assistant: anthropic: empty response")
	}
	return b.String(), nil
}
