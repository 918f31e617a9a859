package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// OpenAI speaks the chat completions API shared by OpenAI-compatible servers.
type OpenAI struct {
	http      *resty.Client
	model     string
	maxTokens int
}

// NewOpenAI creates an OpenAI-compatible provider.
func NewOpenAI(cfg Config) *OpenAI {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	c := newClient(base, cfg.Timeout)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &OpenAI{http: c, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string       `json:"role"`
	Content []openAIPart `json:"content"`
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	body := openAIRequest{Model: o.model, MaxTokens: req.MaxTokens}
	if body.MaxTokens == 0 {
		body.MaxTokens = o.maxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, openAIMessage{
			Role:    "system",
			Content: []openAIPart{{Type: "text", Text: req.System}},
		})
	}
	for _, m := range req.Messages {
		msg := openAIMessage{Role: string(m.Role)}
		for _, img := range m.Images {
			msg.Content = append(msg.Content, openAIPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)},
			})
		}
		msg.Content = append(msg.Content, openAIPart{Type: "text", Text: m.Content})
		body.Messages = append(body.Messages, msg)
	}

	var out openAIResponse
	resp, err := o.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("assistant: openai: %w", err)
	}
	if resp.IsError() {
		return "", statusError(ProviderOpenAI, resp)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("assistant: openai: empty response")
	}
	return out.Choices[0].Message.Content, nil
}
