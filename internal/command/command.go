// Package command extracts the TAG:{json} markers an assistant embeds in
// its replies into typed commands, leaving the prose for the user.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/bitacora/internal/apperr"
)

// Tag names a command kind.
type Tag string

const (
	SaveEvent       Tag = "SAVE_EVENT"
	SaveClient      Tag = "SAVE_CLIENT"
	SaveNote        Tag = "SAVE_NOTE"
	SaveAppointment Tag = "SAVE_APPOINTMENT"
	SaveReminder    Tag = "SAVE_REMINDER"
	SaveInvoice     Tag = "SAVE_INVOICE"
	SavePhoto       Tag = "SAVE_PHOTO"
	SaveBitacora    Tag = "SAVE_BITACORA"
	SaveWarranty    Tag = "SAVE_WARRANTY"

	// NoCommand is the single result for text that carries no marker.
	NoCommand Tag = "NO_COMMAND"
)

// Tags lists every marker the extractor recognizes, in contract order.
var Tags = []Tag{
	SaveEvent, SaveClient, SaveNote, SaveAppointment, SaveReminder,
	SaveInvoice, SavePhoto, SaveBitacora, SaveWarranty,
}

var (
	markerRe    = regexp.MustCompile(`\b(` + tagAlternation() + `):`)
	emptyFence  = regexp.MustCompile("```[A-Za-z]*[ \t\r\n]*```")
	blankLines  = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)
	trailingSpc = regexp.MustCompile(`[ \t]+\n`)

	errNoPayload  = errors.New("marker is not followed by a JSON object")
	errUnbalanced = errors.New("unbalanced braces in payload")
)

func tagAlternation() string {
	names := make([]string, len(Tags))
	for i, t := range Tags {
		names[i] = string(t)
	}
	return strings.Join(names, "|")
}

// Command is one extracted marker. Exactly one of Payload and Err is set,
// except for NoCommand which carries only Text.
type Command struct {
	Tag     Tag
	Offset  int
	Raw     string
	Payload Payload
	Text    string
	Err     error
}

// OK reports whether the command decoded cleanly.
func (c Command) OK() bool { return c.Err == nil }

// Result is the outcome of one extraction.
type Result struct {
	Commands []Command
	// Message is the prose left once markers and their payloads are cut.
	Message string
}

// Extract scans text for command markers. Each marker is decoded
// independently; a bad payload is reported on its own command and never
// stops the scan. Commands keep the order they appear in text.
func Extract(text string) Result {
	var (
		cmds  []Command
		spans [][2]int
		pos   int
	)
	for pos < len(text) {
		loc := markerRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		start, markEnd := pos+loc[0], pos+loc[1]
		tag := Tag(text[pos+loc[2] : pos+loc[3]])

		open, fenced := payloadStart(text, markEnd)
		if open < 0 {
			cmds = append(cmds, failed(tag, start, "", errNoPayload))
			spans = append(spans, [2]int{start, markEnd})
			pos = markEnd
			continue
		}
		end, ok := MatchBrace(text, open)
		if !ok {
			cmds = append(cmds, failed(tag, start, text[open:], errUnbalanced))
			spans = append(spans, [2]int{start, len(text)})
			break
		}
		raw := text[open : end+1]
		spanEnd := end + 1
		if fenced {
			spanEnd = fenceClose(text, spanEnd)
		}
		spans = append(spans, [2]int{start, spanEnd})
		pos = spanEnd

		payload, err := Decode(tag, []byte(raw))
		if err != nil {
			cmds = append(cmds, failed(tag, start, raw, err))
			continue
		}
		cmds = append(cmds, Command{Tag: tag, Offset: start, Raw: raw, Payload: payload})
	}

	msg := cleanMessage(cut(text, spans))
	if len(cmds) == 0 {
		return Result{
			Commands: []Command{{Tag: NoCommand, Text: msg}},
			Message:  msg,
		}
	}
	return Result{Commands: cmds, Message: msg}
}

// Decode parses raw as the payload for tag. Unknown fields are ignored.
func Decode(tag Tag, raw []byte) (Payload, error) {
	p := newPayload(tag)
	if p == nil {
		return nil, fmt.Errorf("unknown tag %q", tag)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", tag, err)
	}
	if n, ok := p.(normalizer); ok {
		n.normalize()
	}
	return p, nil
}

func failed(tag Tag, offset int, raw string, err error) Command {
	return Command{
		Tag:    tag,
		Offset: offset,
		Raw:    raw,
		Err:    &apperr.ExtractionError{Tag: string(tag), Offset: offset, Err: err},
	}
}

func cut(text string, spans [][2]int) string {
	if len(spans) == 0 {
		return text
	}
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(text[prev:sp[0]])
		prev = sp[1]
	}
	b.WriteString(text[prev:])
	return b.String()
}

func cleanMessage(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = emptyFence.ReplaceAllString(s, "")
	s = trailingSpc.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
