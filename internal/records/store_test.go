package records

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"incident-platform/internal/clientinfo"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s.WithClock(func() time.Time { return now })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func sampleRecord() Record {
	return Record{
		EventType: "內科",
		Location:  "圖書館",
		Room:      "3 樓",
		Content:   "Patient unconscious",
		Message:   "緊急事件通報\n案件分類： 內科\n案件地點： 圖書館\n案件位置： 3 樓\n案件補充：\n\tPatient unconscious\n通報時間： 2024年03月05日 14時30分09秒",
		Reporter:  clientinfo.Info{IP: "203.0.113.9", Country: "TW", City: "Taichung", UserAgent: "Mozilla/5.0"},
	}
}

func TestSaveAndRead_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 30, 9, 0, time.Local)
	s := newTestStore(t, now)

	in := sampleRecord()
	in.DiscordSuccess = true
	in.DiscordMessageID = "112233"

	id, err := s.Save(in)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(id, "20240305_143009_") {
		t.Fatalf("unexpected id shape: %q", id)
	}

	out, err := s.Read(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.EventType != in.EventType || out.Location != in.Location || out.Room != in.Room || out.Content != in.Content {
		t.Fatalf("field mismatch: %+v", out)
	}
	if out.Message != in.Message {
		t.Fatalf("message not byte-identical:\n%q\n%q", out.Message, in.Message)
	}
	if !out.DiscordSuccess || out.DiscordMessageID != "112233" {
		t.Fatalf("broadcast flags lost: %+v", out)
	}
}

func TestSave_IDsDoNotCollideWithinOneSecond(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 30, 9, 0, time.Local)
	s := newTestStore(t, now)

	id1, err := s.Save(sampleRecord())
	if err != nil {
		t.Fatalf("save 1: %v", err)
	}
	id2, err := s.Save(sampleRecord())
	if err != nil {
		t.Fatalf("save 2: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids for same-second submissions, got %q twice", id1)
	}
}

func TestRead_NotFoundDistinctFromDecodeFailure(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.Read("20240305_143009_deadbeef"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "case_20240305_143009_deadbeef.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.Read("20240305_143009_deadbeef"); err == nil || err == ErrNotFound {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestList_FiltersByDateRangeSortedDescending(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, d := range []int{1, 2, 3} {
		now := time.Date(2024, 1, d, 8, 0, 0, 0, time.Local)
		s.WithClock(func() time.Time { return now })
		if _, err := s.Save(sampleRecord()); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	list, err := s.List(day(2024, 1, 1), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(list))
	}
	if list[0].ID < list[1].ID {
		t.Fatalf("expected id-descending order: %+v", list)
	}
}

func TestList_SkipsUndecodableFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.Local)
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.WithClock(func() time.Time { return now })

	if _, err := s.Save(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "case_20240102_090000_aaaaaaaa.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	list, err := s.List(day(2024, 1, 2), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected broken file skipped, got %d entries", len(list))
	}
}

func TestClear_ExactRangeAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	var keptID string
	for _, d := range []int{1, 2, 5} {
		now := time.Date(2024, 1, d, 8, 0, 0, 0, time.Local)
		s.WithClock(func() time.Time { return now })
		id, err := s.Save(sampleRecord())
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if d == 5 {
			keptID = id
		}
	}

	cleared, err := s.Clear(day(2024, 1, 1), day(2024, 1, 3))
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared, got %v", cleared)
	}
	if _, err := s.Read(keptID); err != nil {
		t.Fatalf("record outside range must survive: %v", err)
	}

	again, err := s.Clear(day(2024, 1, 1), day(2024, 1, 3))
	if err != nil {
		t.Fatalf("clear again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected idempotent clear, got %v", again)
	}
}

func TestStats_CountsByCategoryLocationHourDate(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	add := func(d, hour int, eventType, location string) {
		now := time.Date(2024, 1, d, hour, 0, 0, 0, time.Local)
		s.WithClock(func() time.Time { return now })
		r := sampleRecord()
		r.EventType = eventType
		r.Location = location
		if _, err := s.Save(r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	add(1, 8, "OHCA", "體育館")
	add(1, 8, "內科", "圖書館")
	add(2, 14, "內科", "圖書館")

	stats, err := s.Stats(day(2024, 1, 1), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalCases != 3 || stats.OHCACases != 1 || stats.InternalCases != 2 || stats.SurgicalCases != 0 {
		t.Fatalf("unexpected category counts: %+v", stats)
	}
	if stats.ByLocation["圖書館"] != 2 || stats.ByLocation["體育館"] != 1 {
		t.Fatalf("unexpected location counts: %+v", stats.ByLocation)
	}
	if stats.ByHour[8] != 2 || stats.ByHour[14] != 1 {
		t.Fatalf("unexpected hour counts: %+v", stats.ByHour)
	}
	if stats.ByDate["2024-01-01"] != 2 || stats.ByDate["2024-01-02"] != 1 {
		t.Fatalf("unexpected date counts: %+v", stats.ByDate)
	}
}

func TestFormat_ContainsAllSections(t *testing.T) {
	r := sampleRecord()
	r.ID = "20240305_143009_deadbeef"
	r.CreatedAt = time.Date(2024, 3, 5, 14, 30, 9, 0, time.Local)
	r.LineSuccess = true

	text := Format(r)
	for _, want := range []string{
		"案件紀錄 / Case Record",
		"案件資訊 / Case Information:",
		"- 案件分類 / Case Type: 內科",
		"- 案件地點 / Location: 圖書館",
		"通報者資訊 / Reporter Information:",
		"- IP 地址 / IP Address: 203.0.113.9",
		"廣播結果 / Broadcast Results:",
		"- LINE 發送 / LINE Send: true",
		"- Discord 訊息 ID / Discord Message ID: None",
		"完整訊息內容 / Complete Message:",
		"案件補充：",
		"系統資訊 / System Information:",
		"- 案件編號 / Case ID: 20240305_143009_deadbeef",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted record missing %q:\n%s", want, text)
		}
	}
}

func TestExport_ContainsHeaderAndRecords(t *testing.T) {
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.Local)
	s := newTestStore(t, now)
	if _, err := s.Save(sampleRecord()); err != nil {
		t.Fatalf("save: %v", err)
	}

	blob, err := s.Export(day(2024, 1, 2), day(2024, 1, 2))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{"Case Records Export", "案件總數 / Total Cases: 1", "案件檔案 / Case File: case_20240102_080000_"} {
		if !strings.Contains(blob, want) {
			t.Fatalf("export missing %q:\n%s", want, blob)
		}
	}
}

func TestListAndClear_RejectInvalidRange(t *testing.T) {
	s := newTestStore(t, time.Now())
	if _, err := s.List(day(2024, 1, 5), day(2024, 1, 1)); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange from List, got %v", err)
	}
	if _, err := s.Clear(day(2024, 1, 5), day(2024, 1, 1)); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange from Clear, got %v", err)
	}
}
