// Package assistant calls the chat model that turns free text and photos
// into replies carrying command markers.
package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline picture, base64 encoded without a data: prefix.
type Image struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Message is one chat turn.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"`
}

// Request is one completion request.
type Request struct {
	System    string
	Messages  []Message
	MaxTokens int
}

// Provider completes a chat and returns the model's text.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a Provider.
type Config struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultMaxTokens = 2048
)

// NewProvider builds the configured Provider.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	}
	return nil, fmt.Errorf("assistant: unknown provider %q", cfg.Provider)
}

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func statusError(provider string, resp *resty.Response) error {
	return fmt.Errorf("assistant: %s: status %d: %s", provider, resp.StatusCode(), resp.String())
}
