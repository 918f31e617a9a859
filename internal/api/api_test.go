package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/bitacora/internal/backup"
	"github.com/starford/bitacora/internal/dispatch"
	"github.com/starford/bitacora/internal/index"
	"github.com/starford/bitacora/internal/pingate"
	"github.com/starford/bitacora/internal/records"
	"github.com/starford/bitacora/internal/store"
	"github.com/starford/bitacora/internal/testutil"
)

var testNow = time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC)

type env struct {
	store    *store.Store
	router   http.Handler
	changes  *[]dispatch.Change
	restored *int
	index    *index.DB
}

// testEnv builds a router over a temp store. A non-empty pin enables the
// PIN gate.
func testEnv(t *testing.T, pin string) env {
	t.Helper()
	s := testutil.TestStore(t)
	clock := testutil.Clock(testNow)

	changes := &[]dispatch.Change{}
	notify := func(c dispatch.Change) { *changes = append(*changes, c) }

	var gate *pingate.Gate
	if pin != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		gate = pingate.New(string(h), 0)
	}

	restored := new(int)
	engine := backup.NewEngine(s, backup.NewMemory(), backup.WithClock(clock))

	// Minimal SSE handler stub: writes headers and blocks until context done.
	events := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		<-r.Context().Done()
	})

	idx, err := index.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	router, err := NewRouter(Deps{
		Service:   NewService(s, clock, notify),
		Applier:   dispatch.New(s, dispatch.WithClock(clock), dispatch.WithNotifier(notify)),
		Backup:    backup.NewSession(engine, nil, ""),
		Gate:      gate,
		Search:    idx,
		Events:    events,
		OnRestore: func() { *restored++ },
	})
	if err != nil {
		t.Fatal(err)
	}
	return env{store: s, router: router, changes: changes, restored: restored, index: idx}
}

func (e env) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestApplyReply(t *testing.T) {
	e := testEnv(t, "")

	text := `SAVE_EVENT:{"type":"expense","amount":45.5,"category":"materials"}
SAVE_WARRANTY:{"equipment_type":"minisplit","client_name":"Ana","warranty_months":12}
Listo.`
	w := e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: text}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var rep struct {
		Outcomes []struct {
			Tag    string            `json:"tag"`
			ID     int64             `json:"id"`
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		} `json:"outcomes"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if len(rep.Outcomes) != 2 || rep.Message != "Listo." {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Outcomes[0].ID == 0 || rep.Outcomes[0].Error != "" {
		t.Errorf("event outcome = %+v", rep.Outcomes[0])
	}
	if _, ok := rep.Outcomes[1].Fields["vendor"]; !ok {
		t.Errorf("warranty outcome should name vendor: %+v", rep.Outcomes[1])
	}
	if len(*e.changes) != 1 {
		t.Errorf("changes = %+v", *e.changes)
	}
}

func TestRecords_ListGetPatchDelete(t *testing.T) {
	e := testEnv(t, "")
	ctx := context.Background()
	id, err := e.store.Add(ctx, records.Clients, records.Client{FirstName: "Ana", Type: records.ClientResidential, Active: true, CreatedAt: 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.Add(ctx, records.Clients, records.Client{FirstName: "Beto", Active: false}); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, "/records/clients?index=active&eq=true", nil, "")
	var list RecordListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || list.Total != 1 {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodPatch, "/records/clients/1", map[string]any{"phone": "555", "created_at": 99}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", w.Code, w.Body.String())
	}
	var c records.Client
	_ = e.store.Get(ctx, records.Clients, id, &c)
	if c.Phone != "555" || c.CreatedAt != 1 || c.UpdatedAt != testNow.UnixMilli() {
		t.Errorf("client after patch = %+v", c)
	}

	if w := e.do(t, http.MethodGet, "/records/clients/1", nil, ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"phone":"555"`) {
		t.Errorf("get = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodDelete, "/records/clients/1", nil, ""); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/records/clients/1", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}

	kinds := []dispatch.ChangeKind{}
	for _, ch := range *e.changes {
		kinds = append(kinds, ch.Kind)
	}
	if len(kinds) != 2 || kinds[0] != dispatch.Updated || kinds[1] != dispatch.Deleted {
		t.Errorf("changes = %v", kinds)
	}
}

func TestRecords_BadRequests(t *testing.T) {
	e := testEnv(t, "")
	cases := []struct {
		path string
		want int
	}{
		{"/records/nope", http.StatusNotFound},
		{"/records/clients?eq=x", http.StatusBadRequest},
		{"/records/clients?index=phone&eq=x", http.StatusBadRequest},
		{"/records/clients/abc", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := e.do(t, http.MethodGet, tc.path, nil, ""); w.Code != tc.want {
			t.Errorf("GET %s = %d, want %d", tc.path, w.Code, tc.want)
		}
	}
}

func TestPatchWarranty_RecomputesExpiration(t *testing.T) {
	e := testEnv(t, "")
	text := `SAVE_WARRANTY:{"equipment_type":"minisplit","vendor":"Climas","client_name":"Ana","warranty_months":12,"purchase_date":"2026-02-09"}`
	if w := e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: text}, ""); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w := e.do(t, http.MethodPatch, "/records/warranties/1", map[string]any{"warranty_months": 6, "purchase_date": "2025-08-31"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("patch = %d %s", w.Code, w.Body.String())
	}
	var got records.Warranty
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.ExpirationDate != "2026-02-28" || got.Status != records.WarrantyExpired {
		t.Errorf("warranty = %+v", got)
	}

	w = e.do(t, http.MethodPatch, "/records/warranties/1", map[string]any{"purchase_date": "31/08/2025"}, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date patch = %d, want 422", w.Code)
	}
	var after records.Warranty
	_ = e.store.Get(context.Background(), records.Warranties, 1, &after)
	if after.PurchaseDate != "2025-08-31" {
		t.Errorf("failed patch should roll back, purchase_date = %q", after.PurchaseDate)
	}
}

func TestPatch_RejectsBrokenRecords(t *testing.T) {
	e := testEnv(t, "")
	ctx := context.Background()
	text := `SAVE_EVENT:{"type":"expense","amount":45.5,"category":"materials"}
SAVE_CLIENT:{"first_name":"Ana"}`
	if w := e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: text}, ""); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	applied := len(*e.changes)

	w := e.do(t, http.MethodPatch, "/records/events/1", map[string]any{"amount": -50, "type": nil, "status": "whatever"}, "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("patch = %d %s, want 422", w.Code, w.Body.String())
	}
	for _, field := range []string{"amount", "type", "status"} {
		if !strings.Contains(w.Body.String(), field) {
			t.Errorf("body %s does not name %s", w.Body.String(), field)
		}
	}
	var ev records.Event
	_ = e.store.Get(ctx, records.Events, 1, &ev)
	if ev.Amount != 45.5 || ev.Type != records.EventExpense || ev.Status != records.StatusCompleted {
		t.Errorf("event after rejected patch = %+v", ev)
	}

	if w := e.do(t, http.MethodPatch, "/records/clients/1", map[string]any{"first_name": ""}, ""); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("client patch = %d, want 422", w.Code)
	}
	if len(*e.changes) != applied {
		t.Errorf("rejected patches published changes: %v", (*e.changes)[applied:])
	}
}

func TestExpiringWarranties(t *testing.T) {
	e := testEnv(t, "")
	ctx := context.Background()
	docs := []records.Warranty{
		{EquipmentType: "a", ExpirationDate: "2026-10-25", Status: records.WarrantyActive},
		{EquipmentType: "b", ExpirationDate: "2026-12-25", Status: records.WarrantyActive},
		{EquipmentType: "c", ExpirationDate: "2026-10-20", Status: records.WarrantyClaimed},
		{EquipmentType: "d", ExpirationDate: "2026-10-01", Status: records.WarrantyActive},
	}
	for _, d := range docs {
		if _, err := e.store.Add(ctx, records.Warranties, d); err != nil {
			t.Fatal(err)
		}
	}

	w := e.do(t, http.MethodGet, "/warranties/expiring?days=30", nil, "")
	var resp WarrantyListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Warranties) != 1 || resp.Warranties[0].EquipmentType != "a" || resp.Warranties[0].DaysLeft != 7 {
		t.Errorf("expiring = %s", w.Body.String())
	}
}

func TestWarranties_ExpireOnRead(t *testing.T) {
	e := testEnv(t, "")
	ctx := context.Background()
	expired, err := e.store.Add(ctx, records.Warranties, records.Warranty{
		EquipmentType: "minisplit", ExpirationDate: "2026-01-01", Status: records.WarrantyActive,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.store.Add(ctx, records.Warranties, records.Warranty{
		EquipmentType: "boiler", ExpirationDate: "2027-01-01", Status: records.WarrantyActive,
	}); err != nil {
		t.Fatal(err)
	}

	w := e.do(t, http.MethodGet, fmt.Sprintf("/records/warranties/%d", expired), nil, "")
	var got records.Warranty
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if w.Code != http.StatusOK || got.Status != records.WarrantyExpired {
		t.Errorf("get = %d %s, want status expired", w.Code, w.Body.String())
	}

	for status, want := range map[string]string{"active": "boiler", "expired": "minisplit"} {
		w := e.do(t, http.MethodGet, "/records/warranties?index=status&eq="+status, nil, "")
		var resp RecordListResponse
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
		if len(resp.Records) != 1 || !strings.Contains(string(resp.Records[0]), want) {
			t.Errorf("status=%s: %s, want only %s", status, w.Body.String(), want)
		}
	}

	// The stored document keeps its last written status.
	var stored records.Warranty
	_ = e.store.Get(ctx, records.Warranties, expired, &stored)
	if stored.Status != records.WarrantyActive {
		t.Errorf("stored status = %q", stored.Status)
	}
}

func TestGetBitacora(t *testing.T) {
	e := testEnv(t, "")
	text := `SAVE_BITACORA:{"date":"2026-10-18","jobs_count":2,"tags":["hvac"]}`
	e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: text}, "")

	w := e.do(t, http.MethodGet, "/bitacora/2026-10-18", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"jobs_count":2`) {
		t.Errorf("get = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/bitacora/2026-10-19", nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("missing day = %d, want 404", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/bitacora/ayer", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad date = %d, want 400", w.Code)
	}
}

func TestBackup_PushRestore(t *testing.T) {
	e := testEnv(t, "")
	e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: `SAVE_NOTE:{"content":"x"}`}, "")

	w := e.do(t, http.MethodPost, "/backup/push", nil, "")
	var snap BackupResponse
	_ = json.Unmarshal(w.Body.Bytes(), &snap)
	if w.Code != http.StatusOK || snap.Records != 1 || !snap.LastSync.Equal(testNow) {
		t.Fatalf("push = %d %s", w.Code, w.Body.String())
	}

	e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{Text: `SAVE_NOTE:{"content":"y"}`}, "")
	if w := e.do(t, http.MethodPost, "/backup/restore", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("restore = %d %s", w.Code, w.Body.String())
	}
	n, _ := e.store.Count(context.Background(), records.Notes, store.Query{})
	if n != 1 || *e.restored != 1 {
		t.Errorf("notes = %d, restored = %d", n, *e.restored)
	}
}

func TestBackup_RefreshNotConnected(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPost, "/backup/refresh", nil, "")
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), `"kind":"not_connected"`) {
		t.Errorf("refresh = %d %s", w.Code, w.Body.String())
	}
}

func TestChat_NotConfigured(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPost, "/assistant/chat", ChatRequest{Message: "hola"}, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("chat = %d, want 503", w.Code)
	}
}

func TestPINGate(t *testing.T) {
	e := testEnv(t, "4321")

	if w := e.do(t, http.MethodGet, "/records/notes", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/auth/pin", UnlockRequest{PIN: "0000"}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong pin = %d, want 401", w.Code)
	}

	w := e.do(t, http.MethodPost, "/auth/pin", UnlockRequest{PIN: "4321"}, "")
	var unlock UnlockResponse
	_ = json.Unmarshal(w.Body.Bytes(), &unlock)
	if w.Code != http.StatusOK || unlock.Token == "" {
		t.Fatalf("unlock = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodGet, "/records/notes", nil, unlock.Token); w.Code != http.StatusOK {
		t.Errorf("with token = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/records/notes", nil, "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	e.do(t, http.MethodPost, "/auth/lock", nil, unlock.Token)
	if w := e.do(t, http.MethodGet, "/records/notes", nil, unlock.Token); w.Code != http.StatusUnauthorized {
		t.Errorf("after lock = %d, want 401", w.Code)
	}
}

func TestSSEEvents_TokenInQuery(t *testing.T) {
	e := testEnv(t, "4321")
	if w := e.do(t, http.MethodGet, "/events", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	w := e.do(t, http.MethodPost, "/auth/pin", UnlockRequest{PIN: "4321"}, "")
	var unlock UnlockResponse
	_ = json.Unmarshal(w.Body.Bytes(), &unlock)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events?token="+unlock.Token, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("SSE with query token = %d, want 200", rec.Code)
	}
}

func TestPINGate_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(t, http.MethodGet, "/records/notes", nil, ""); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
	if w := e.do(t, http.MethodPost, "/auth/pin", UnlockRequest{PIN: "1"}, ""); w.Code != http.StatusNotFound {
		t.Errorf("pin with gate disabled = %d, want 404", w.Code)
	}
}

func TestSearch(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(t, http.MethodPost, "/assistant/reply", ApplyRequest{
		Text: `SAVE_NOTE:{"content":"el cliente pide revisar el termostato"}`,
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("apply = %d", w.Code)
	}
	if err := index.Sync(context.Background(), e.index, e.store, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatal(err)
	}

	w = e.do(t, http.MethodGet, "/search?q=termostato", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Collection != records.Notes {
		t.Errorf("results = %+v", resp.Results)
	}

	if w := e.do(t, http.MethodGet, "/search", nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}
