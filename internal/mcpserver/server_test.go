package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
	"github.com/starford/bitacora/internal/testutil"
)

// pngPixel is a 1x1 transparent PNG.
const pngPixel = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	s := testutil.TestStore(t)
	return New(s, dispatch.New(s)), s
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are
	// invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "apply_reply":
		result, err = srv.applyReply(ctx, req)
	case "extract_commands":
		result, err = srv.extractCommands(ctx, req)
	case "get_command_contract":
		result, err = srv.getCommandContract(ctx, req)
	case "list_records":
		result, err = srv.listRecords(ctx, req)
	case "get_record":
		result, err = srv.getRecord(ctx, req)
	case "get_bitacora":
		result, err = srv.getBitacora(ctx, req)
	case "attach_receipt":
		result, err = srv.attachReceipt(ctx, req)
	case "search_records":
		result, err = srv.searchRecords(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestApplyReplyAndRead(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "apply_reply", map[string]any{
		"text": `SAVE_BITACORA:{"date":"2026-10-18","jobs_count":2,"tags":["hvac"]}` + "\nListo.",
	})
	if r.IsError {
		t.Fatalf("apply error: %s", resultText(r))
	}
	var rep dispatch.Report
	if err := json.Unmarshal([]byte(resultText(r)), &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Outcomes) != 1 || rep.Outcomes[0].ID == 0 || rep.Message != "Listo." {
		t.Errorf("report = %s", resultText(r))
	}

	r = callTool(t, srv, "get_bitacora", map[string]any{"date": "2026-10-18"})
	if r.IsError || !strings.Contains(resultText(r), `"jobs_count": 2`) {
		t.Errorf("bitacora = %s", resultText(r))
	}

	r = callTool(t, srv, "get_record", map[string]any{"collection": "bitacora", "id": float64(rep.Outcomes[0].ID)})
	if r.IsError {
		t.Errorf("get_record error: %s", resultText(r))
	}
}

func TestExtractCommands_DryRun(t *testing.T) {
	srv, s := testServer(t)

	r := callTool(t, srv, "extract_commands", map[string]any{
		"text": `SAVE_NOTE:{"content":"ok"} SAVE_WARRANTY:{"equipment_type":"minisplit","client_name":"Ana","warranty_months":12} SAVE_EVENT:{bad}`,
	})
	var out struct {
		Commands []struct {
			Valid  bool              `json:"valid"`
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		} `json:"commands"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(out.Commands) != 3 {
		t.Fatalf("commands = %s", resultText(r))
	}
	if !out.Commands[0].Valid {
		t.Errorf("note should be valid: %+v", out.Commands[0])
	}
	if out.Commands[1].Valid || out.Commands[1].Fields["vendor"] == "" {
		t.Errorf("warranty should miss vendor: %+v", out.Commands[1])
	}
	if out.Commands[2].Valid || out.Commands[2].Error == "" {
		t.Errorf("bad json should fail: %+v", out.Commands[2])
	}

	if n, _ := s.Count(context.Background(), records.Notes, store.Query{}); n != 0 {
		t.Errorf("dry run stored %d notes", n)
	}
}

func TestListRecords(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "apply_reply", map[string]any{
		"text": `SAVE_CLIENT:{"first_name":"Ana"} SAVE_CLIENT:{"first_name":"Beto"}`,
	})

	r := callTool(t, srv, "list_records", map[string]any{"collection": "clients", "index": "first_name", "eq": "Beto"})
	var docs []records.Client
	_ = json.Unmarshal([]byte(resultText(r)), &docs)
	if len(docs) != 1 || docs[0].FirstName != "Beto" {
		t.Errorf("list = %s", resultText(r))
	}

	r = callTool(t, srv, "list_records", map[string]any{"collection": "nope"})
	if !r.IsError {
		t.Error("expected error for unknown collection")
	}
}

func TestGetRecordMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_record", map[string]any{"collection": "notes", "id": float64(9)})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("result = %s", resultText(r))
	}
}

func TestGetCommandContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_command_contract", map[string]any{})
	if !strings.Contains(resultText(r), "SAVE_BITACORA") {
		t.Error("contract should list the markers")
	}
}

func TestAttachReceipt_DataURI(t *testing.T) {
	srv, s := testServer(t)
	callTool(t, srv, "apply_reply", map[string]any{
		"text": `SAVE_EVENT:{"type":"expense","amount":12,"category":"materials"}`,
	})

	r := callTool(t, srv, "attach_receipt", map[string]any{
		"event_id": float64(1),
		"url":      "data:image/png;base64," + pngPixel,
	})
	if r.IsError {
		t.Fatalf("attach error: %s", resultText(r))
	}
	var ev records.Event
	if err := s.Get(context.Background(), records.Events, 1, &ev); err != nil {
		t.Fatal(err)
	}
	if len(ev.ReceiptPhotos) != 1 || !strings.HasPrefix(ev.ReceiptPhotos[0], "data:image/png;base64,") {
		t.Errorf("receipts = %v", ev.ReceiptPhotos)
	}
}

func TestAttachReceipt_Rejects(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "apply_reply", map[string]any{
		"text": `SAVE_EVENT:{"type":"expense","amount":12,"category":"materials"}`,
	})
	text := base64.StdEncoding.EncodeToString([]byte("just some text"))

	cases := map[string]map[string]any{
		"not an image":  {"event_id": float64(1), "url": "data:image/png;base64," + text},
		"missing event": {"event_id": float64(7), "url": "data:image/png;base64," + pngPixel},
		"type mismatch": {"event_id": float64(1), "url": "data:image/jpeg;base64," + pngPixel},
		"loopback":      {"event_id": float64(1), "url": "http://127.0.0.1/receipt.png"},
		"bad scheme":    {"event_id": float64(1), "url": "file:///etc/passwd"},
	}
	for name, args := range cases {
		if r := callTool(t, srv, "attach_receipt", args); !r.IsError {
			t.Errorf("%s: expected error, got %s", name, resultText(r))
		}
	}
}

func TestSearchRecords(t *testing.T) {
	s := testutil.TestStore(t)
	idx, err := index.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	srv := New(s, dispatch.New(s), WithSearcher(idx))

	callTool(t, srv, "apply_reply", map[string]any{
		"text": `SAVE_BITACORA:{"date":"2026-10-18","raw_text":"instalación de minisplit en bodega"}`,
	})
	if err := index.Sync(context.Background(), idx, s, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "search_records", map[string]any{"query": "bodega"})
	var hits []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if len(hits) != 1 || hits[0].Collection != records.Bitacora {
		t.Errorf("hits = %s", resultText(r))
	}
}
