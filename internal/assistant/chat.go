package assistant

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/bitacora/internal/dispatch"
)

// Applier applies an assistant reply to the records.
type Applier interface {
	ApplyText(ctx context.Context, text string) (dispatch.Report, error)
}

// Reply is the model's raw text and what became of its commands.
type Reply struct {
	Raw    string
	Report dispatch.Report
}

// Chat sends user turns to a Provider and applies the commands in each reply.
type Chat struct {
	provider Provider
	applier  Applier
	now      func() time.Time
	log      *slog.Logger
}

// NewChat creates a Chat.
func NewChat(p Provider, a Applier, log *slog.Logger) *Chat {
	if log == nil {
		log = slog.Default()
	}
	return &Chat{provider: p, applier: a, now: time.Now, log: log}
}

// Send completes history plus msg and applies the reply. The raw reply is
// returned even when applying fails.
func (c *Chat) Send(ctx context.Context, history []Message, msg Message) (Reply, error) {
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	req := Request{
		System:   SystemPrompt(c.now()),
		Messages: append(append([]Message{}, history...), msg),
	}
	text, err := c.provider.Complete(ctx, req)
	if err != nil {
		c.log.Error("assistant completion failed", slog.String("error", err.Error()))
		return Reply{}, err
	}
	rep, err := c.applier.ApplyText(ctx, text)
	c.log.Info("assistant reply applied",
		slog.Int("commands", len(rep.Outcomes)),
		slog.Int("applied", rep.Applied()),
		slog.Int("images", len(msg.Images)))
	return Reply{Raw: text, Report: rep}, err
}
