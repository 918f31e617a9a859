package command

import (
	"errors"
	"math"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bitacora/internal/apperr"
)

func TestMatchBrace_IgnoresBracesInStrings(t *testing.T) {
	s := `{"note":"ignore } and { here","n":1} tail`
	end, ok := MatchBrace(s, 0)
	if !ok {
		t.Fatal("expected a match")
	}
	if s[:end+1] != `{"note":"ignore } and { here","n":1}` {
		t.Errorf("matched %q", s[:end+1])
	}
}

func TestMatchBrace_Escapes(t *testing.T) {
	s := `{"a":"quote \" } still string \\","b":{"c":2}}`
	end, ok := MatchBrace(s, 0)
	if !ok || end != len(s)-1 {
		t.Errorf("end = %d ok = %v, want %d", end, ok, len(s)-1)
	}
}

func TestMatchBrace_Unbalanced(t *testing.T) {
	if _, ok := MatchBrace(`{"a":{"b":1}`, 0); ok {
		t.Error("expected no match")
	}
	if _, ok := MatchBrace(`x{}`, 0); ok {
		t.Error("expected no match when open is not a brace")
	}
}

func TestExtract_MultipleEventsThenProse(t *testing.T) {
	text := `SAVE_EVENT:{"type":"expense","amount":45.5,"category":"materials","vendor":"Home Depot"}
SAVE_EVENT:{"type":"expense","amount":"12.30","category":"food","vendor":"Home Depot","expense_type":"personal"}
Listo, registré los dos gastos del recibo.`

	r := Extract(text)
	if len(r.Commands) != 2 {
		t.Fatalf("len(commands) = %d, want 2", len(r.Commands))
	}
	first, ok := r.Commands[0].Payload.(*EventPayload)
	if !ok || first.Category != "materials" || first.Amount.Float() != 45.5 {
		t.Errorf("first = %+v", r.Commands[0])
	}
	second, ok := r.Commands[1].Payload.(*EventPayload)
	if !ok || second.Category != "food" || second.Amount.Float() != 12.3 {
		t.Errorf("second = %+v", r.Commands[1])
	}
	if r.Commands[0].Offset >= r.Commands[1].Offset {
		t.Error("commands out of order")
	}
	if r.Message != "Listo, registré los dos gastos del recibo." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_BraceInsideNote(t *testing.T) {
	text := `Anotado. SAVE_NOTE:{"content":"cliente dijo: usar {modelo nuevo} } no el viejo"} Gracias.`
	r := Extract(text)
	if len(r.Commands) != 1 || !r.Commands[0].OK() {
		t.Fatalf("commands = %+v", r.Commands)
	}
	note := r.Commands[0].Payload.(*NotePayload)
	if note.Content != "cliente dijo: usar {modelo nuevo} } no el viejo" {
		t.Errorf("content = %q", note.Content)
	}
	if r.Message != "Anotado.  Gracias." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_BadJSONDoesNotBlockSiblings(t *testing.T) {
	text := `SAVE_CLIENT:{"first_name": "Ana",, }
SAVE_REMINDER:{"text":"llamar a Ana","due_date":"2026-10-20"}
Hecho.`
	r := Extract(text)
	if len(r.Commands) != 2 {
		t.Fatalf("len(commands) = %d", len(r.Commands))
	}
	var ee *apperr.ExtractionError
	if !errors.As(r.Commands[0].Err, &ee) || ee.Tag != string(SaveClient) {
		t.Errorf("first err = %v", r.Commands[0].Err)
	}
	if r.Commands[0].Payload != nil {
		t.Error("failed command should carry no payload")
	}
	if !r.Commands[1].OK() || r.Commands[1].Tag != SaveReminder {
		t.Errorf("second = %+v", r.Commands[1])
	}
	if r.Message != "Hecho." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_UnbalancedConsumesRest(t *testing.T) {
	r := Extract(`Ok. SAVE_EVENT:{"type":"expense","amount":3 SAVE_NOTE:{"content":"x"}`)
	if len(r.Commands) != 1 || r.Commands[0].Err == nil {
		t.Fatalf("commands = %+v", r.Commands)
	}
	if r.Message != "Ok." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_MarkerWithoutPayload(t *testing.T) {
	r := Extract("Use SAVE_EVENT: to log expenses.")
	if len(r.Commands) != 1 || r.Commands[0].Err == nil {
		t.Fatalf("commands = %+v", r.Commands)
	}
	if r.Message != "Use  to log expenses." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_CodeFence(t *testing.T) {
	text := "Guardado:\n\nSAVE_BITACORA: ```json\n{\"date\":\"2026-10-18\",\"jobs_count\":2,\"tags\":\"hvac, repair\"}\n```\n\n\n\nBuen día."
	r := Extract(text)
	if len(r.Commands) != 1 || !r.Commands[0].OK() {
		t.Fatalf("commands = %+v", r.Commands)
	}
	b := r.Commands[0].Payload.(*BitacoraPayload)
	if b.JobsCount.Int() != 2 || len(b.Tags) != 2 || b.Tags[1] != "repair" {
		t.Errorf("payload = %+v", b)
	}
	if r.Message != "Guardado:\n\nBuen día." {
		t.Errorf("message = %q", r.Message)
	}
}

func TestExtract_NoCommand(t *testing.T) {
	r := Extract("  ¿Cuánto cobraste por la instalación?  ")
	if len(r.Commands) != 1 || r.Commands[0].Tag != NoCommand {
		t.Fatalf("commands = %+v", r.Commands)
	}
	if r.Commands[0].Text != "¿Cuánto cobraste por la instalación?" {
		t.Errorf("text = %q", r.Commands[0].Text)
	}
}

func TestExtract_Pure(t *testing.T) {
	text := `SAVE_NOTE:{"content":"a"} SAVE_NOTE:{"content":"b"} fin`
	a, b := Extract(text), Extract(text)
	if len(a.Commands) != len(b.Commands) || a.Message != b.Message {
		t.Fatal("extraction is not deterministic")
	}
	for i := range a.Commands {
		if a.Commands[i].Raw != b.Commands[i].Raw || a.Commands[i].Offset != b.Commands[i].Offset {
			t.Errorf("command %d differs", i)
		}
	}
}

func TestWarrantyPayload_MissingVendor(t *testing.T) {
	p, err := Decode(SaveWarranty, []byte(`{"equipment_type":"minisplit","client_name":"Ana","warranty_months":12}`))
	if err != nil {
		t.Fatal(err)
	}
	err = p.Validate()
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("err = %v, want validation.Errors", err)
	}
	if _, ok := verrs["vendor"]; !ok || len(verrs) != 1 {
		t.Errorf("errors = %v, want only vendor", verrs)
	}
}

func TestPhotoPayload_RejectsReceipt(t *testing.T) {
	p, _ := Decode(SavePhoto, []byte(`{"client_name":"Ana","image":"data:image/png;base64,AA==","category":"Receipt"}`))
	var verrs validation.Errors
	if !errors.As(p.Validate(), &verrs) || verrs["category"] == nil {
		t.Errorf("expected category error, got %v", p.Validate())
	}

	p, _ = Decode(SavePhoto, []byte(`{"image":"data:image/png;base64,AA=="}`))
	if !errors.As(p.Validate(), &verrs) || verrs["client_name"] == nil {
		t.Errorf("expected missing context error, got %v", p.Validate())
	}
}

func TestClientPayload_SplitsName(t *testing.T) {
	p, _ := Decode(SaveClient, []byte(`{"name":"María José López","phone":"555"}`))
	c := p.(*ClientPayload)
	if c.FirstName != "María" || c.LastName != "José López" {
		t.Errorf("name = %q %q", c.FirstName, c.LastName)
	}
	if err := c.Validate(); err != nil {
		t.Error(err)
	}
}

func TestInvoicePayload_ItemDefaults(t *testing.T) {
	p, _ := Decode(SaveInvoice, []byte(`{"client_name":"Ana","items":[{"description":"Servicio","unit_price":"1,200"}]}`))
	inv := p.(*InvoicePayload)
	if inv.Items[0].Quantity.Float() != 1 || inv.Items[0].UnitPrice.Float() != 1200 {
		t.Errorf("item = %+v", inv.Items[0])
	}
	if err := inv.Validate(); err != nil {
		t.Error(err)
	}

	p, _ = Decode(SaveInvoice, []byte(`{"client_name":"Ana","items":[{"quantity":1}]}`))
	if err := p.Validate(); err == nil {
		t.Error("expected item validation error")
	}
}

func TestNumber_Loose(t *testing.T) {
	p, err := Decode(SaveEvent, []byte(`{"type":"Income","amount":"$1,250.50","category":"service"}`))
	if err != nil {
		t.Fatal(err)
	}
	ev := p.(*EventPayload)
	if ev.Amount.Float() != 1250.5 || ev.Type != "income" {
		t.Errorf("event = %+v", ev)
	}

	for _, amount := range []string{`"mucho"`, `"NaN"`, `"nan"`, `"Inf"`, `"-Infinity"`, `"+inf"`} {
		if _, err := Decode(SaveEvent, []byte(`{"type":"expense","amount":`+amount+`}`)); err == nil {
			t.Errorf("amount %s: expected error", amount)
		}
	}
}

func TestCheckNumber_NonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		n := Number(f)
		if err := checkNumber(&n, false); err != errNotFinite {
			t.Errorf("checkNumber(%v) = %v, want %v", f, err, errNotFinite)
		}
	}
}

func TestExtract_NonFiniteNumberIsExtractionError(t *testing.T) {
	res := Extract(`SAVE_EVENT:{"type":"expense","amount":"NaN","category":"gas"} SAVE_NOTE:{"content":"ok"}`)
	if len(res.Commands) != 2 {
		t.Fatalf("commands = %+v", res.Commands)
	}
	var xe *apperr.ExtractionError
	if !errors.As(res.Commands[0].Err, &xe) {
		t.Errorf("err = %v, want ExtractionError", res.Commands[0].Err)
	}
	if !res.Commands[1].OK() {
		t.Errorf("sibling failed: %v", res.Commands[1].Err)
	}
}
