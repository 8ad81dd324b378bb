package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"incident-platform/internal/audit"
	"incident-platform/internal/auth"
	"incident-platform/internal/broadcast"
	"incident-platform/internal/clientinfo"
	"incident-platform/internal/config"
	"incident-platform/internal/oplog"
	"incident-platform/internal/rbac"
	"incident-platform/internal/records"
)

type stubLine struct{}

func (stubLine) Push(context.Context, string) error { return nil }

type stubDiscord struct{}

func (stubDiscord) Send(context.Context, string) (string, error) { return "777", nil }
func (stubDiscord) Edit(context.Context, string, string) error   { return nil }

type noopScheduler struct{}

func (noopScheduler) After(time.Duration, func()) {}

type fixture struct {
	router  *gin.Engine
	records *records.Store
	repo    *audit.MemoryRepo
	token   string
	t       *testing.T
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	am, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	rec, err := records.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("records store: %v", err)
	}
	ops, err := oplog.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("oplog store: %v", err)
	}

	repo := audit.NewMemoryRepo()
	bc := broadcast.NewService(stubLine{}, stubDiscord{}, noopScheduler{}, time.Hour)
	h := NewHandlers(am, rec, ops, bc, audit.NewService(repo), "hunter2")

	r := gin.New()
	r.POST("/admin/login", h.Login)
	sec := r.Group("/admin", auth.RequireAccessToken(am))
	{
		sec.GET("/records", rbac.RequireAnyRole(rbac.RoleViewer), h.ListRecords)
		sec.GET("/records/:id", rbac.RequireAnyRole(rbac.RoleViewer), h.GetRecord)
		sec.POST("/records/export", rbac.RequireAnyRole(rbac.RoleViewer), h.ExportRecords)
		sec.POST("/records/clear", rbac.RequireAnyRole(rbac.RoleAdmin), h.ClearRecords)
		sec.GET("/stats", rbac.RequireAnyRole(rbac.RoleViewer), h.GetStats)
		sec.GET("/logs/files", rbac.RequireAnyRole(rbac.RoleViewer), h.ListLogFiles)
		sec.POST("/logs", rbac.RequireAnyRole(rbac.RoleViewer), h.FilterLogs)
		sec.POST("/logs/clear", rbac.RequireAnyRole(rbac.RoleAdmin), h.ClearLogs)
		sec.POST("/test/line", rbac.RequireAnyRole(rbac.RoleAdmin), h.TestLine)
		sec.POST("/test/discord", rbac.RequireAnyRole(rbac.RoleAdmin), h.TestDiscord)
		sec.POST("/announcement", rbac.RequireAnyRole(rbac.RoleAdmin), h.PublishAnnouncement)
		sec.GET("/broadcast/control", rbac.RequireAnyRole(rbac.RoleViewer), h.GetBroadcastControl)
		sec.POST("/broadcast/control", rbac.RequireAnyRole(rbac.RoleAdmin), h.SetBroadcastControl)
	}

	f := &fixture{router: r, records: rec, repo: repo, t: t}
	f.token = f.login("hunter2")
	return f
}

func (f *fixture) login(password string) string {
	f.t.Helper()
	w := f.doRaw(http.MethodPost, "/admin/login", map[string]any{"username": "admin", "password": password}, "")
	if w.Code != http.StatusOK {
		return ""
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		f.t.Fatalf("decode login: %v", err)
	}
	return body.AccessToken
}

func (f *fixture) doRaw(method, path string, body any, token string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("encode body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	return f.doRaw(method, path, body, f.token)
}

func (f *fixture) seedRecord(day time.Time, eventType string) {
	f.t.Helper()
	f.records.WithClock(func() time.Time { return day })
	_, err := f.records.Save(records.Record{
		EventType: eventType,
		Location:  "圖書館",
		Room:      "3 樓",
		Message:   "緊急事件通報",
		Reporter:  clientinfo.Info{IP: "203.0.113.9"},
	})
	if err != nil {
		f.t.Fatalf("seed record: %v", err)
	}
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	f := newFixture(t)
	w := f.doRaw(http.MethodPost, "/admin/login", map[string]any{"username": "admin", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	if w := f.doRaw(http.MethodGet, "/admin/stats", nil, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestListRecords_TypeFilter(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local)
	f.seedRecord(day, "OHCA")
	f.seedRecord(day, "內科")

	w := f.do(http.MethodGet, "/admin/records?from=2024-03-05&to=2024-03-05&type=OHCA", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Total   int               `json:"total"`
		Records []records.Summary `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || body.Records[0].EventType != "OHCA" {
		t.Fatalf("unexpected filtered listing: %+v", body)
	}
}

func TestListRecords_OmittedToCollapsesToFromDay(t *testing.T) {
	f := newFixture(t)
	f.seedRecord(time.Date(2024, 3, 4, 10, 0, 0, 0, time.Local), "OHCA")
	f.seedRecord(time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), "OHCA")

	w := f.do(http.MethodGet, "/admin/records?from=2024-03-04", nil)
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
		t.Fatalf("expected the range to collapse to the from day, got %d records", body.Total)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/admin/records/20240305_100000_deadbeef", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestClearRecords_AppendsAuditEvent(t *testing.T) {
	f := newFixture(t)
	f.seedRecord(time.Date(2024, 3, 5, 10, 0, 0, 0, time.Local), "內科")

	w := f.do(http.MethodPost, "/admin/records/clear", map[string]any{"from": "2024-03-05", "to": "2024-03-05"})
	if w.Code != http.StatusOK {
		t.Fatalf("clear: %d: %s", w.Code, w.Body.String())
	}

	var found bool
	for _, ev := range f.repo.Events() {
		if ev.Type == audit.EventTypeRecordsClear {
			found = true
			if ev.Actor != "admin" {
				t.Fatalf("expected actor captured: %+v", ev)
			}
		}
	}
	if !found {
		t.Fatal("expected a records_clear audit event")
	}
}

func TestFilterLogs_MalformedDateRejected(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/admin/logs", map[string]any{"level": "all", "from": "05-03-2024", "to": "2024-03-05"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnnouncement_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/admin/announcement", map[string]any{"content": "", "platforms": []string{"line"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty content, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/admin/announcement", map[string]any{"content": "演習通知", "platforms": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for no platforms, got %d", w.Code)
	}

	w = f.do(http.MethodPost, "/admin/announcement", map[string]any{"content": "演習通知", "platforms": []string{"line", "discord"}})
	if w.Code != http.StatusOK {
		t.Fatalf("announce: %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("expected success envelope: %s", w.Body.String())
	}
}

func TestBroadcastControl_RoundTrip(t *testing.T) {
	f := newFixture(t)

	off := false
	w := f.do(http.MethodPost, "/admin/broadcast/control", map[string]any{"line": off})
	if w.Code != http.StatusOK {
		t.Fatalf("set control: %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodGet, "/admin/broadcast/control", nil)
	var body struct {
		Line    bool `json:"line"`
		Discord bool `json:"discord"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Line || !body.Discord {
		t.Fatalf("unexpected control state: %+v", body)
	}
}

func TestSystemTests_ReportSuccess(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/admin/test/discord", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"message_id":"777"`) {
		t.Fatalf("discord test: %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodPost, "/admin/test/line", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("line test: %d: %s", w.Code, w.Body.String())
	}
}
