package oplog

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"incident-platform/internal/clientinfo"
)

var ErrInvalidRange = errors.New("oplog: invalid date range")

const (
	entryTimeLayout = "2006-01-02 15:04:05"
	fileDateLayout  = "20060102"
	filePrefix      = "app_"
	fileSuffix      = ".log"
)

const (
	LevelInfo  = "INFO"
	LevelError = "ERROR"
)

// Entry is one parsed log line.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// FileInfo describes one date-partitioned log file.
type FileInfo struct {
	Name     string    `json:"filename"`
	Date     string    `json:"date"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Store appends operational log lines to one file per calendar date and
// answers filtered scans over them. Appends to the same file are serialized
// by a per-file mutex so concurrent requests never interleave partial lines.
type Store struct {
	dir   string
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("oplog: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("oplog: create dir: %w", err)
	}
	return &Store{dir: dir, clock: time.Now, locks: map[string]*sync.Mutex{}}, nil
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

func (s *Store) fileName(date time.Time) string {
	return filePrefix + date.Format(fileDateLayout) + fileSuffix
}

func (s *Store) fileLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Info appends an INFO line to today's file.
func (s *Store) Info(msg string) { s.append(LevelInfo, msg) }

// Error appends an ERROR line to today's file.
func (s *Store) Error(msg string) { s.append(LevelError, msg) }

// UserAction records a reporter or staff action with its origin.
func (s *Store) UserAction(action, details string, who clientinfo.Info) {
	msg := "User Action: " + action
	if details != "" {
		msg += " | Details: " + details
	}
	msg += fmt.Sprintf(" | IP: %s | Country: %s | City: %s", who.IP, who.Country, who.City)
	s.append(LevelInfo, msg)
}

// Request records one handled HTTP request.
func (s *Store) Request(method, path string, status int, who clientinfo.Info) {
	msg := fmt.Sprintf("Request: %s %s | Status: %d | IP: %s | Country: %s | City: %s",
		method, path, status, who.IP, who.Country, who.City)
	s.append(LevelInfo, msg)
}

// append is best-effort: a failed write is reported to the process log and
// never surfaces to the request that triggered it.
func (s *Store) append(level, msg string) {
	now := s.clock()
	// One entry per line; embedded newlines would break the scan format.
	msg = strings.ReplaceAll(msg, "\n", " ")
	line := fmt.Sprintf("%s [%s] %s\n", now.Format(entryTimeLayout), level, msg)

	name := s.fileName(now)
	lock := s.fileLock(name)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("oplog open failed", "file", name, "err", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		slog.Error("oplog write failed", "file", name, "err", err)
	}
}

// ListFiles returns all log files sorted by date descending.
func (s *Store) ListFiles() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oplog: read dir: %w", err)
	}

	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if _, err := time.ParseInLocation(fileDateLayout, dateStr, time.Local); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: name, Date: dateStr, Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Filter scans all files in the inclusive date range and returns matching
// entries sorted by timestamp descending. level "" or "all" matches every
// level; substring filters on the message text (used for IP filtering).
// Lines that do not match the bracket structure are silently dropped.
func (s *Store) Filter(level string, from, to time.Time, substring string, limit int) ([]Entry, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		lines, err := s.readLines(s.fileName(day))
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			e, ok := parseLine(line)
			if !ok {
				continue
			}
			if level != "" && level != "all" && !strings.EqualFold(e.Level, level) {
				continue
			}
			if substring != "" && !strings.Contains(e.Message, substring) {
				continue
			}
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Export collects the raw lines of every file in range under a small header.
func (s *Store) Export(from, to time.Time) (string, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("日誌匯出 / Log Export\n")
	fmt.Fprintf(&b, "日期範圍 / Date Range: %s ~ %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Fprintf(&b, "匯出時間 / Export Time: %s\n", s.clock().Format(entryTimeLayout))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		lines, err := s.readLines(s.fileName(day))
		if err != nil {
			return "", err
		}
		for _, line := range lines {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Clear deletes every log file in the inclusive date range and returns the
// deleted file names. Re-running over the same range deletes nothing.
func (s *Store) Clear(from, to time.Time) ([]string, error) {
	from, to, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}

	cleared := []string{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		name := s.fileName(day)
		err := os.Remove(filepath.Join(s.dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cleared, fmt.Errorf("oplog: remove %s: %w", name, err)
		}
		cleared = append(cleared, name)
	}
	return cleared, nil
}

func (s *Store) readLines(name string) ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("oplog: open %s: %w", name, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("oplog: scan %s: %w", name, err)
	}
	return lines, nil
}

// parseLine splits "2006-01-02 15:04:05 [LEVEL] message" on the first
// bracket pair. Anything else is not an entry.
func parseLine(line string) (Entry, bool) {
	i := strings.Index(line, " [")
	if i < 0 {
		return Entry{}, false
	}
	rest := line[i+2:]
	j := strings.Index(rest, "] ")
	if j < 0 {
		return Entry{}, false
	}
	ts, err := time.ParseInLocation(entryTimeLayout, line[:i], time.Local)
	if err != nil {
		return Entry{}, false
	}
	return Entry{
		Timestamp: ts,
		Level:     strings.TrimSpace(rest[:j]),
		Message:   strings.TrimSpace(rest[j+2:]),
	}, true
}

func normalizeRange(from, to time.Time) (time.Time, time.Time, error) {
	if from.IsZero() || to.IsZero() {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	from = truncateToDay(from)
	to = truncateToDay(to)
	if from.After(to) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return from, to, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
