//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/johpaz/smart-calendar-assistant/internal/domain"
	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

func TestListEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"single date", "?date=2025-03-10", http.StatusOK, 2},
		{"range", "?start=2025-03-01&end=2025-03-31", http.StatusOK, 2},
		{"empty range", "?start=2025-04-01&end=2025-04-02", http.StatusOK, 0},
		{"missing dates", "", http.StatusBadRequest, 0},
		{"bad format", "?date=10/03/2025", http.StatusBadRequest, 0},
		{"reversed", "?start=2025-03-15&end=2025-03-10", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, "/api/events"+tt.query, "", nil)
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got eventsResponse
			decode(t, resp, &got)
			if len(got.Events) != tt.count {
				t.Fatalf("Expected %d events, got %d", tt.count, len(got.Events))
			}
		})
	}
}

func TestListEventsStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Events = brokenStore{store.NewMemory()} })
	resp := env.do(t, http.MethodGet, "/api/events?date=2025-03-10", "", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestCreateEvent(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/events", "",
		strings.NewReader(`{"name":"Demo","date":"2025-03-12","start_time":"09:00","duration_hours":2}`))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var created domain.Event
	decode(t, resp, &created)
	if created.ID == 0 || created.End != (domain.Clock{Hour: 11}) {
		t.Fatalf("unexpected event: %+v", created)
	}

	resp = env.do(t, http.MethodPost, "/api/events", "",
		strings.NewReader(`{"name":"Choque","date":"2025-03-10","start_time":"14:00"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
	var conflict conflictResponse
	decode(t, resp, &conflict)
	if conflict.Conflict.Name != "Llamada con cliente" {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}

	for _, body := range []string{
		`{"name":"Sin hora","date":"2025-03-12"}`,
		`{"name":"","date":"2025-03-12","start_time":"09:00"}`,
		`{"name":"Al revés","date":"2025-03-12","start_time":"10:00","end_time":"09:00"}`,
		`{"name":"Fecha","date":"12-03-2025","start_time":"10:00"}`,
	} {
		resp = env.do(t, http.MethodPost, "/api/events", "", strings.NewReader(body))
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}
}

func TestGetUpdateDeleteEvent(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/events/1", "", nil)
	var ev domain.Event
	decode(t, resp, &ev)
	if resp.StatusCode != http.StatusOK || ev.Name != "Llamada con cliente" {
		t.Fatalf("unexpected get: %d %+v", resp.StatusCode, ev)
	}

	resp = env.do(t, http.MethodPut, "/api/events/1", "", strings.NewReader(`{"start_time":"12:00","end_time":"13:00"}`))
	decode(t, resp, &ev)
	if resp.StatusCode != http.StatusOK || ev.Start != (domain.Clock{Hour: 12}) {
		t.Fatalf("unexpected update: %d %+v", resp.StatusCode, ev)
	}

	resp = env.do(t, http.MethodPut, "/api/events/1", "", strings.NewReader(`{"start_time":"15:30","end_time":"16:30"}`))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, "/api/events/1", "", strings.NewReader(`{}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 for empty patch, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodPut, "/api/events/99", "", strings.NewReader(`{"name":"x"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodDelete, "/api/events/1", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/events/1", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 after delete, got %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/events/abc", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestSearchEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/events/search?name=revisi%C3%B3n", "", nil)
	var got struct {
		Events []domain.Event `json:"events"`
	}
	decode(t, resp, &got)
	if len(got.Events) != 1 || got.Events[0].ID != 2 {
		t.Fatalf("unexpected search result: %+v", got.Events)
	}

	resp = env.do(t, http.MethodGet, "/api/events/search", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestExportEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/events.ics?date=2025-03-10", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if n := strings.Count(string(body), "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("Expected 2 VEVENTs, got %d", n)
	}
	if !strings.Contains(string(body), "SUMMARY:Llamada con cliente") {
		t.Fatalf("missing summary in %q", body)
	}

	resp = env.do(t, http.MethodGet, "/api/events.ics?date=2025-05-01", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for empty range, got %d", resp.StatusCode)
	}
}

const importICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Test//Test//ES\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:a@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Dentista\r\n" +
	"DTSTART:20250320T090000Z\r\n" +
	"DTEND:20250320T100000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:b@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Solapada\r\n" +
	"DTSTART:20250310T140000Z\r\n" +
	"DTEND:20250310T150000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:c@test\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"SUMMARY:Feriado\r\n" +
	"DTSTART;VALUE=DATE:20250321\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImportEvents(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/events/import", "", strings.NewReader(importICS))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var got ImportResponse
	decode(t, resp, &got)
	if len(got.Created) != 1 || got.Created[0].Name != "Dentista" {
		t.Fatalf("unexpected created: %+v", got.Created)
	}
	if got.Conflicts != 1 || len(got.Skipped) != 1 {
		t.Fatalf("unexpected summary: %+v", got)
	}

	events, err := env.events.QueryRange(context.Background(),
		domain.Date{Year: 2025, Month: 3, Day: 20}, domain.Date{Year: 2025, Month: 3, Day: 20})
	if err != nil || len(events) != 1 {
		t.Fatalf("imported event not stored: %v %+v", err, events)
	}
}
