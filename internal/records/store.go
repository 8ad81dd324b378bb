package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"incident-platform/internal/clientinfo"
)

var (
	ErrNotFound     = errors.New("records: not found")
	ErrInvalidRange = errors.New("records: invalid date range")
)

const (
	idTimeLayout = "20060102_150405"
	idDateLayout = "20060102"
	filePrefix   = "case_"
	fileSuffix   = ".json"
)

// Record is one submitted incident report. Records are immutable: written
// once at submission time, deleted only by an explicit administrative clear.
type Record struct {
	ID        string `json:"case_id"`
	EventType string `json:"event_type"`
	Location  string `json:"location"`
	Room      string `json:"room"`
	Content   string `json:"content"`

	// Message is the verbatim outbound alert body.
	Message string `json:"message"`

	Reporter clientinfo.Info `json:"reporter"`

	LineSuccess      bool   `json:"line_success"`
	DiscordSuccess   bool   `json:"discord_success"`
	LineError        string `json:"line_error,omitempty"`
	DiscordError     string `json:"discord_error,omitempty"`
	DiscordMessageID string `json:"discord_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Summary is the lightweight listing shape: enough to filter and display
// without carrying the full message body.
type Summary struct {
	ID             string    `json:"case_id"`
	EventType      string    `json:"event_type"`
	Location       string    `json:"location"`
	Room           string    `json:"room"`
	LineSuccess    bool      `json:"line_success"`
	DiscordSuccess bool      `json:"discord_success"`
	CreatedAt      time.Time `json:"created_at"`
	Size           int64     `json:"size"`
}

// Stats are recomputed by scanning matching records on every call; there is
// no persisted aggregate to drift out of sync.
type Stats struct {
	TotalCases    int            `json:"total_cases"`
	OHCACases     int            `json:"ohca_cases"`
	InternalCases int            `json:"internal_cases"`
	SurgicalCases int            `json:"surgical_cases"`
	ByLocation    map[string]int `json:"by_location"`
	ByHour        map[int]int    `json:"by_hour"`
	ByDate        map[string]int `json:"by_date"`
}

// Store persists one JSON file per case under dir. The case id doubles as
// the sort key: a second-resolution timestamp plus a random suffix, so ids
// from the same second never collide and lexicographic order is
// chronological order.
type Store struct {
	dir   string
	clock func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("records: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("records: create dir: %w", err)
	}
	return &Store{dir: dir, clock: time.Now}, nil
}

// WithClock overrides the time source. Tests only.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// NewID builds a case id for the given submission time.
func NewID(at time.Time) string {
	return at.Format(idTimeLayout) + "_" + uuid.NewString()[:8]
}

// Save assigns the record its id and timestamp and writes it as one
// immutable file. Returns the new case id.
func (s *Store) Save(r Record) (string, error) {
	now := s.clock()
	r.ID = NewID(now)
	r.CreatedAt = now

	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("records: encode: %w", err)
	}

	path := filepath.Join(s.dir, filePrefix+r.ID+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("records: create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(raw); err != nil {
		return "", fmt.Errorf("records: write %s: %w", path, err)
	}
	return r.ID, nil
}

// Read loads one record. ErrNotFound is distinct from a decode failure.
func (s *Store) Read(id string) (Record, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, filePrefix+id+fileSuffix))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("records: read %s: %w", id, err)
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("records: decode %s: %w", id, err)
	}
	return r, nil
}

// List returns summaries of all records whose id date component falls in the
// inclusive range, sorted by id descending (reverse chronological).
// Undecodable files are skipped with a warning.
func (s *Store) List(from, to time.Time) ([]Summary, error) {
	ids, err := s.idsInRange(from, to)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		r, err := s.Read(id)
		if err != nil {
			slog.Warn("skipping unreadable case record", "case_id", id, "err", err)
			continue
		}
		info, _ := os.Stat(filepath.Join(s.dir, filePrefix+id+fileSuffix))
		var size int64
		if info != nil {
			size = info.Size()
		}
		out = append(out, Summary{
			ID:             r.ID,
			EventType:      r.EventType,
			Location:       r.Location,
			Room:           r.Room,
			LineSuccess:    r.LineSuccess,
			DiscordSuccess: r.DiscordSuccess,
			CreatedAt:      r.CreatedAt,
			Size:           size,
		})
	}
	return out, nil
}

// Clear deletes every record in the inclusive date range and returns the
// deleted ids. A second run over the same range deletes nothing.
func (s *Store) Clear(from, to time.Time) ([]string, error) {
	ids, err := s.idsInRange(from, to)
	if err != nil {
		return nil, err
	}

	cleared := []string{}
	for _, id := range ids {
		err := os.Remove(filepath.Join(s.dir, filePrefix+id+fileSuffix))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return cleared, fmt.Errorf("records: remove %s: %w", id, err)
		}
		cleared = append(cleared, id)
	}
	return cleared, nil
}

// Stats counts matching records by category, location, hour of day and
// calendar date. Unparsable records are skipped, never fatal.
func (s *Store) Stats(from, to time.Time) (Stats, error) {
	ids, err := s.idsInRange(from, to)
	if err != nil {
		return Stats{}, err
	}

	out := Stats{ByLocation: map[string]int{}, ByHour: map[int]int{}, ByDate: map[string]int{}}
	for _, id := range ids {
		r, err := s.Read(id)
		if err != nil {
			slog.Warn("skipping unreadable case record in stats", "case_id", id, "err", err)
			continue
		}
		out.TotalCases++
		switch r.EventType {
		case "OHCA":
			out.OHCACases++
		case "內科":
			out.InternalCases++
		case "外科":
			out.SurgicalCases++
		}
		out.ByLocation[r.Location]++
		if at, ok := idTime(id); ok {
			out.ByHour[at.Hour()]++
			out.ByDate[at.Format("2006-01-02")]++
		}
	}
	return out, nil
}

// Export renders every matching record as the bilingual human-readable text,
// separated by rulers, under a small header.
func (s *Store) Export(from, to time.Time) (string, error) {
	ids, err := s.idsInRange(from, to)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("案件紀錄匯出 / Case Records Export\n")
	fmt.Fprintf(&b, "日期範圍 / Date Range: %s ~ %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Fprintf(&b, "匯出時間 / Export Time: %s\n", s.clock().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "案件總數 / Total Cases: %d\n", len(ids))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, id := range ids {
		r, err := s.Read(id)
		if err != nil {
			slog.Warn("skipping unreadable case record in export", "case_id", id, "err", err)
			continue
		}
		fmt.Fprintf(&b, "案件檔案 / Case File: %s\n", filePrefix+id+fileSuffix)
		b.WriteString(strings.Repeat("-", 30) + "\n")
		b.WriteString(Format(r))
		b.WriteString("\n" + strings.Repeat("=", 50) + "\n\n")
	}
	return b.String(), nil
}

// idsInRange enumerates record ids whose date component falls in the
// inclusive range, sorted descending. Files with foreign names are ignored.
func (s *Store) idsInRange(from, to time.Time) ([]string, error) {
	fromStr, toStr, err := normalizeRange(from, to)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("records: read dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if _, ok := idTime(id); !ok {
			continue
		}
		day := id[:len(idDateLayout)]
		if day < fromStr || day > toStr {
			continue
		}
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

func idTime(id string) (time.Time, bool) {
	if len(id) < len(idTimeLayout) {
		return time.Time{}, false
	}
	at, err := time.ParseInLocation(idTimeLayout, id[:len(idTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

func normalizeRange(from, to time.Time) (string, string, error) {
	if from.IsZero() || to.IsZero() || from.After(to) {
		return "", "", ErrInvalidRange
	}
	return from.Format(idDateLayout), to.Format(idDateLayout), nil
}
