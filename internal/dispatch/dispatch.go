// Package dispatch validates extracted commands and applies them to the
// record store, one command at a time, in the order they were issued.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bitacora/internal/apperr"
	"github.com/starford/bitacora/internal/command"
	"github.com/starford/bitacora/internal/store"
)

// Store is the subset of the record store the dispatcher writes through.
type Store interface {
	Add(ctx context.Context, coll string, doc any) (int64, error)
	Update(ctx context.Context, coll string, id int64, fields map[string]any) error
	First(ctx context.Context, coll string, q store.Query) (store.Record, bool, error)
	Query(ctx context.Context, coll string, q store.Query) iter.Seq2[store.Record, error]
	InTx(ctx context.Context, fn func(*store.Tx) error) error
}

// ChangeKind says what happened to a record.
type ChangeKind string

const (
	Created ChangeKind = "created"
	Updated ChangeKind = "updated"
	Deleted ChangeKind = "deleted"
	// Merged is an update produced by folding a command into an existing
	// record, such as a second bitácora entry for the same day.
	Merged ChangeKind = "merged"
)

// Change describes one committed mutation.
type Change struct {
	Kind       ChangeKind `json:"kind"`
	Collection string     `json:"collection"`
	ID         int64      `json:"id"`
}

// Outcome is the result of one command. Err is an *apperr.ExtractionError,
// an *apperr.ValidationError, or a storage failure.
type Outcome struct {
	Tag        command.Tag `json:"tag"`
	Offset     int         `json:"offset"`
	Collection string      `json:"collection,omitempty"`
	ID         int64       `json:"id,omitempty"`
	Merged     bool        `json:"merged,omitempty"`
	// Number is the generated invoice or quote number.
	Number string `json:"number,omitempty"`
	Err    error  `json:"-"`
}

// OK reports whether the command was applied.
func (o Outcome) OK() bool { return o.Err == nil }

// MarshalJSON adds the error text and, for rejected payloads, the failing
// fields.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type plain Outcome
	out := struct {
		plain
		Error  string            `json:"error,omitempty"`
		Fields map[string]string `json:"fields,omitempty"`
	}{plain: plain(o)}
	if o.Err != nil {
		out.Error = o.Err.Error()
		var ve *apperr.ValidationError
		if errors.As(o.Err, &ve) {
			out.Fields = ve.Fields
		}
	}
	return json.Marshal(out)
}

// Report is the combined result of ApplyText.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
	Message  string    `json:"message"`
}

// Applied counts successful outcomes.
func (r Report) Applied() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithNotifier registers fn to receive every committed change.
func WithNotifier(fn func(Change)) Option {
	return func(d *Dispatcher) { d.notify = fn }
}

// Dispatcher applies commands to a Store.
type Dispatcher struct {
	mu     sync.Mutex
	store  Store
	now    func() time.Time
	log    *slog.Logger
	notify func(Change)
}

// New creates a Dispatcher over s.
func New(s Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		now:    time.Now,
		log:    slog.Default(),
		notify: func(Change) {},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ApplyText extracts the commands in text and applies them.
func (d *Dispatcher) ApplyText(ctx context.Context, text string) (Report, error) {
	res := command.Extract(text)
	outs, err := d.Apply(ctx, res.Commands)
	return Report{Outcomes: outs, Message: res.Message}, err
}

// Apply runs cmds in order. A rejected command never stops the batch and
// earlier commands stay committed; a storage failure stops it and is
// returned along with the outcomes gathered so far.
func (d *Dispatcher) Apply(ctx context.Context, cmds []command.Command) ([]Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	outs := make([]Outcome, 0, len(cmds))
	for _, cmd := range cmds {
		if cmd.Tag == command.NoCommand {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outs, err
		}
		out := d.applyOne(ctx, cmd)
		outs = append(outs, out)
		if out.Err != nil && apperr.IsStorage(out.Err) {
			d.log.Error("dispatch stopped on storage failure", "tag", cmd.Tag, "error", out.Err)
			return outs, out.Err
		}
	}
	return outs, nil
}

func (d *Dispatcher) applyOne(ctx context.Context, cmd command.Command) Outcome {
	out := Outcome{Tag: cmd.Tag, Offset: cmd.Offset}
	if cmd.Err != nil {
		d.log.Warn("command not extracted", "tag", cmd.Tag, "offset", cmd.Offset, "error", cmd.Err)
		out.Err = cmd.Err
		return out
	}
	if cmd.Payload == nil {
		out.Err = &apperr.ExtractionError{Tag: string(cmd.Tag), Offset: cmd.Offset, Err: errors.New("empty payload")}
		return out
	}
	if err := ValidatePayload(cmd.Tag, cmd.Payload); err != nil {
		d.log.Warn("command rejected", "tag", cmd.Tag, "error", err)
		out.Err = err
		return out
	}

	var err error
	switch p := cmd.Payload.(type) {
	case *command.EventPayload:
		err = d.saveEvent(ctx, p, &out)
	case *command.ClientPayload:
		err = d.saveClient(ctx, p, &out)
	case *command.NotePayload:
		err = d.saveNote(ctx, p, &out)
	case *command.AppointmentPayload:
		err = d.saveAppointment(ctx, p, &out)
	case *command.ReminderPayload:
		err = d.saveReminder(ctx, p, &out)
	case *command.InvoicePayload:
		err = d.saveInvoice(ctx, p, &out)
	case *command.PhotoPayload:
		err = d.savePhoto(ctx, p, &out)
	case *command.BitacoraPayload:
		err = d.saveBitacora(ctx, p, &out)
	case *command.WarrantyPayload:
		err = d.saveWarranty(ctx, p, &out)
	default:
		err = &apperr.ExtractionError{Tag: string(cmd.Tag), Offset: cmd.Offset, Err: errors.New("unsupported payload")}
	}
	if err != nil {
		out.Err = err
		return out
	}

	kind := Created
	if out.Merged {
		kind = Merged
	}
	d.log.Info("command applied", "tag", cmd.Tag, "collection", out.Collection, "id", out.ID, "merged", out.Merged)
	d.notify(Change{Kind: kind, Collection: out.Collection, ID: out.ID})
	return out
}

// ValidatePayload checks p and reports failures as *apperr.ValidationError.
func ValidatePayload(tag command.Tag, p command.Payload) error {
	return validationError(tag, p.Validate())
}

// validationError converts ozzo field errors into an *apperr.ValidationError.
func validationError(tag command.Tag, err error) error {
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for name, e := range verrs {
			if e != nil {
				fields[name] = e.Error()
			}
		}
	} else {
		fields["payload"] = err.Error()
	}
	return &apperr.ValidationError{Tag: string(tag), Fields: fields}
}
