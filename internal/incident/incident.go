package incident

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the numeric case category chosen on the first wizard step.
type EventType int

const (
	EventOHCA     EventType = 1
	EventInternal EventType = 2
	EventSurgical EventType = 3
)

var eventNames = map[EventType]string{
	EventOHCA:     "OHCA",
	EventInternal: "內科",
	EventSurgical: "外科",
}

func (e EventType) Valid() bool {
	_, ok := eventNames[e]
	return ok
}

// Name returns the display name used in broadcast messages and records.
func (e EventType) Name() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return "Unknown"
}

// CustomLocationID is the sentinel under which a reporter-typed location name
// is stored in the per-session overlay. It never appears in the default table.
const CustomLocationID = 99

// defaultLocations is the campus building table. It is immutable at process
// scope; sessions that add a custom location get their own overlay entry and
// must never write here.
var defaultLocations = map[int]string{
	1:  "行政大樓",
	2:  "行政二館",
	3:  "丘逢甲紀念館",
	4:  "圖書館",
	5:  "科學與航太館",
	6:  "商學大樓",
	7:  "忠勤樓",
	8:  "建築館",
	9:  "語文大樓",
	10: "工學大樓",
	11: "人言大樓",
	12: "資訊電機館",
	13: "人文社會館",
	14: "電子通訊館",
	15: "育樂館",
	16: "土木水利館",
	17: "理學大樓",
	18: "學思樓",
	19: "體育館",
	20: "文創中心",
	21: "共善樓",
}

// DefaultLocations returns a copy of the default building table.
func DefaultLocations() map[int]string {
	out := make(map[int]string, len(defaultLocations))
	for k, v := range defaultLocations {
		out[k] = v
	}
	return out
}

// IsDefaultLocation reports whether id is one of the fixed campus buildings.
func IsDefaultLocation(id int) bool {
	_, ok := defaultLocations[id]
	return ok
}

// LocationName resolves a location id, consulting the session overlay before
// the default table.
func LocationName(id int, overlay map[int]string) string {
	if overlay != nil {
		if n, ok := overlay[id]; ok {
			return n
		}
	}
	if n, ok := defaultLocations[id]; ok {
		return n
	}
	return "Unknown"
}

// NormalizeRoom suffixes a single-character room input with the floor marker.
// "3" means the third floor, not room 3.
func NormalizeRoom(room string) string {
	if len([]rune(room)) == 1 {
		return room + " 樓"
	}
	return room
}

// TimestampLayout is the reporter-facing time format used in broadcast
// messages (通報時間).
const TimestampLayout = "2006年01月02日 15時04分05秒"

// ComposeMessage builds the outbound alert from the four user-supplied fields
// and the server timestamp. Content newlines continue on an indented line so
// multi-line descriptions stay visually attached to the 案件補充 label.
func ComposeMessage(event EventType, location, room, content string, at time.Time) string {
	indented := strings.ReplaceAll(content, "\n", "\n\t")
	return fmt.Sprintf(
		"緊急事件通報\n"+
			"案件分類： %s\n"+
			"案件地點： %s\n"+
			"案件位置： %s\n"+
			"案件補充：\n\t%s\n"+
			"通報時間： %s",
		event.Name(), location, room, indented, at.Format(TimestampLayout),
	)
}
