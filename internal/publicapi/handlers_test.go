package publicapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"incident-platform/internal/clientinfo"
	"incident-platform/internal/oplog"
	"incident-platform/internal/records"
)

func newFixture(t *testing.T) (*gin.Engine, *records.Store, *oplog.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.Local)
	rec, err := records.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("records store: %v", err)
	}
	ops, err := oplog.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("oplog store: %v", err)
	}
	ops.WithClock(func() time.Time { return now })

	h := NewHandlers(rec, ops)
	h.WithClock(func() time.Time { return now })

	r := gin.New()
	r.GET("/api/stats", h.GetStats)
	r.GET("/api/cases", h.ListCases)
	r.GET("/api/cases/:id", h.GetCase)
	r.GET("/api/logs", h.GetLogs)
	return r, rec, ops
}

func seed(t *testing.T, rec *records.Store, day time.Time, eventType string) string {
	t.Helper()
	rec.WithClock(func() time.Time { return day })
	id, err := rec.Save(records.Record{
		EventType: eventType,
		Location:  "圖書館",
		Room:      "3 樓",
		Message:   "緊急事件通報",
		Reporter:  clientinfo.Info{IP: "203.0.113.9"},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return id
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestListCases_DefaultsToToday(t *testing.T) {
	r, rec, _ := newFixture(t)
	seed(t, rec, time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), "OHCA")
	seed(t, rec, time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local), "OHCA")

	w := get(t, r, "/api/cases")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Fatalf("expected only today's case, got %d", body.Total)
	}
}

func TestListCases_MalformedDateRejected(t *testing.T) {
	r, _, _ := newFixture(t)
	if w := get(t, r, "/api/cases?from=03-05-2024"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListCases_OmittedToCollapsesToFromDay(t *testing.T) {
	r, rec, _ := newFixture(t)
	seed(t, rec, time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local), "OHCA")
	seed(t, rec, time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), "OHCA")

	w := get(t, r, "/api/cases?from=2024-03-04")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 {
		t.Fatalf("expected the range to collapse to the from day, got %d cases", body.Total)
	}
}

func TestGetLogs_DefaultLimitBounded(t *testing.T) {
	r, _, ops := newFixture(t)
	for i := 0; i < 60; i++ {
		ops.Info("entry")
	}

	w := get(t, r, "/api/logs")
	if w.Code != http.StatusOK {
		t.Fatalf("logs: %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 50 {
		t.Fatalf("expected default limit of 50 entries, got %d", body.Total)
	}
}

func TestGetCase_NotFound(t *testing.T) {
	r, _, _ := newFixture(t)
	if w := get(t, r, "/api/cases/20240305_100000_deadbeef"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetStats_CountsSeededCases(t *testing.T) {
	r, rec, _ := newFixture(t)
	seed(t, rec, time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), "OHCA")
	seed(t, rec, time.Date(2024, 3, 5, 11, 0, 0, 0, time.Local), "內科")

	w := get(t, r, "/api/stats?from=2024-03-05&to=2024-03-05")
	if w.Code != http.StatusOK {
		t.Fatalf("stats: %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Stats records.Stats `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Stats.TotalCases != 2 || body.Stats.OHCACases != 1 || body.Stats.InternalCases != 1 {
		t.Fatalf("unexpected stats: %+v", body.Stats)
	}
}
