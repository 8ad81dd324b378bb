package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeLine struct {
	mu     sync.Mutex
	pushed []string
	err    error
}

func (f *fakeLine) Push(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, text)
	return nil
}

type fakeDiscord struct {
	mu      sync.Mutex
	sent    []string
	edits   map[string]string
	nextID  string
	sendErr error
	editErr error
}

func (f *fakeDiscord) Send(_ context.Context, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, content)
	if f.nextID == "" {
		f.nextID = "9001"
	}
	return f.nextID, nil
}

func (f *fakeDiscord) Edit(_ context.Context, messageID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	if f.edits == nil {
		f.edits = map[string]string{}
	}
	f.edits[messageID] = content
	return nil
}

type fakeScheduler struct {
	delay time.Duration
	fn    func()
}

func (f *fakeScheduler) After(d time.Duration, fn func()) {
	f.delay = d
	f.fn = fn
}

func newTestService(line *fakeLine, discord *fakeDiscord, sched Scheduler) *Service {
	return NewService(line, discord, sched, time.Hour)
}

func TestSendCase_DeliversToBothChannels(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{nextID: "42"}
	sched := &fakeScheduler{}
	svc := newTestService(line, discord, sched)

	msg := "緊急事件通報\n案件分類： 內科"
	res := svc.SendCase(context.Background(), msg)

	if !res.LineSuccess || !res.DiscordSuccess {
		t.Fatalf("expected both channels to succeed: %+v", res)
	}
	if res.DiscordMessageID != "42" {
		t.Fatalf("expected message id captured, got %q", res.DiscordMessageID)
	}
	if line.pushed[0] != msg {
		t.Fatalf("line message must be verbatim, got %q", line.pushed[0])
	}
	if want := msg + callToAction; discord.sent[0] != want {
		t.Fatalf("discord message must carry the call to action:\n%q", discord.sent[0])
	}
}

func TestSendCase_SchedulesSuffixStrippingEdit(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{nextID: "42"}
	sched := &fakeScheduler{}
	svc := NewService(line, discord, sched, 30*time.Minute)

	msg := "緊急事件通報"
	svc.SendCase(context.Background(), msg)

	if sched.fn == nil {
		t.Fatal("expected an edit to be scheduled")
	}
	if sched.delay != 30*time.Minute {
		t.Fatalf("expected configured delay, got %v", sched.delay)
	}

	sched.fn()
	if got := discord.edits["42"]; got != msg {
		t.Fatalf("edit must rewrite the message without the suffix, got %q", got)
	}
}

func TestSendCase_DiscordFailureSkipsEditAndKeepsLine(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{sendErr: errors.New("webhook down")}
	sched := &fakeScheduler{}
	svc := newTestService(line, discord, sched)

	res := svc.SendCase(context.Background(), "msg")
	if !res.LineSuccess {
		t.Fatalf("line must still be attempted: %+v", res)
	}
	if res.DiscordSuccess || res.DiscordError == "" {
		t.Fatalf("expected discord failure recorded: %+v", res)
	}
	if sched.fn != nil {
		t.Fatal("no edit may be scheduled after a failed send")
	}
}

func TestSendCase_LineFailureDoesNotSuppressDiscord(t *testing.T) {
	line := &fakeLine{err: errors.New("line down")}
	discord := &fakeDiscord{nextID: "7"}
	svc := newTestService(line, discord, &fakeScheduler{})

	res := svc.SendCase(context.Background(), "msg")
	if res.LineSuccess || res.LineError == "" {
		t.Fatalf("expected line failure recorded: %+v", res)
	}
	if !res.DiscordSuccess {
		t.Fatalf("discord must still be attempted: %+v", res)
	}
}

func TestSetControl_DisabledChannelIsSkipped(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{}
	svc := newTestService(line, discord, &fakeScheduler{})

	off := false
	svc.SetControl(&off, nil)

	res := svc.Send(context.Background(), "msg")
	if res.LineSuccess || res.LineError != "" {
		t.Fatalf("disabled channel must be skipped silently: %+v", res)
	}
	if !res.DiscordSuccess {
		t.Fatalf("untouched channel must stay enabled: %+v", res)
	}
	if len(line.pushed) != 0 {
		t.Fatalf("no push may reach a disabled channel: %v", line.pushed)
	}

	lineOn, discordOn := svc.Status()
	if lineOn || !discordOn {
		t.Fatalf("unexpected status: line=%v discord=%v", lineOn, discordOn)
	}
}

func TestAnnounce_TargetsSelectedPlatformsOnly(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{}
	svc := newTestService(line, discord, &fakeScheduler{})
	svc.WithClock(func() time.Time { return time.Date(2024, 3, 5, 14, 30, 9, 0, time.Local) })

	res := svc.Announce(context.Background(), "演習通知", []string{"line"})
	if !res.LineSuccess || res.DiscordSuccess {
		t.Fatalf("only line was selected: %+v", res)
	}
	if len(discord.sent) != 0 {
		t.Fatalf("discord must not receive unselected announcements: %v", discord.sent)
	}
	if !strings.Contains(line.pushed[0], "系統公告 / System Announcement") || !strings.Contains(line.pushed[0], "演習通知") {
		t.Fatalf("announcement body malformed:\n%s", line.pushed[0])
	}
}

func TestTestMessages_ContainConnectivityMarkers(t *testing.T) {
	line := &fakeLine{}
	discord := &fakeDiscord{}
	svc := newTestService(line, discord, &fakeScheduler{})
	svc.WithClock(func() time.Time { return time.Date(2024, 3, 5, 14, 30, 9, 0, time.Local) })

	if err := svc.TestLine(context.Background()); err != nil {
		t.Fatalf("test line: %v", err)
	}
	if !strings.Contains(line.pushed[0], "LINE Bot Connection OK") {
		t.Fatalf("line test message malformed:\n%s", line.pushed[0])
	}

	id, err := svc.TestDiscord(context.Background())
	if err != nil {
		t.Fatalf("test discord: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id from the discord test")
	}
	if !strings.Contains(discord.sent[0], "Discord Webhook Connection OK") {
		t.Fatalf("discord test message malformed:\n%s", discord.sent[0])
	}
}
