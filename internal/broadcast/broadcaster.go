package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Result is the per-channel outcome of one broadcast. Both channels are
// always attempted independently; a failure on one never suppresses the
// attempt on the other.
type Result struct {
	LineSuccess      bool   `json:"line_success"`
	DiscordSuccess   bool   `json:"discord_success"`
	LineError        string `json:"line_error,omitempty"`
	DiscordError     string `json:"discord_error,omitempty"`
	DiscordMessageID string `json:"discord_message_id,omitempty"`
}

// LineSender pushes a text message to the fixed response group.
type LineSender interface {
	Push(ctx context.Context, text string) error
}

// DiscordSender posts to the webhook and can later edit a sent message.
type DiscordSender interface {
	Send(ctx context.Context, content string) (messageID string, err error)
	Edit(ctx context.Context, messageID, content string) error
}

// Scheduler runs a function once after a delay, off the request path.
// Scheduled work is non-durable: it is lost on restart and never retried.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// callToAction is appended to case alerts on Discord only; the deferred
// edit strips it again once the response window has passed.
const callToAction = "\n@everyone\n# [事件回覆](https://forms.gle/dww4orwk2RHSbVV2A)"

// sendTimeout bounds each outbound call so a slow provider cannot hang the
// reporter's request.
const sendTimeout = 10 * time.Second

// Service fans one message out to LINE and Discord. It has no idempotency:
// every call dispatches to both enabled channels, so callers invoke it
// exactly once per submission.
type Service struct {
	line    LineSender
	discord DiscordSender
	sched   Scheduler

	editDelay time.Duration
	clock     func() time.Time

	mu             sync.Mutex
	lineEnabled    bool
	discordEnabled bool
}

func NewService(line LineSender, discord DiscordSender, sched Scheduler, editDelay time.Duration) *Service {
	if editDelay <= 0 {
		editDelay = time.Hour
	}
	if sched == nil {
		sched = TimerScheduler{}
	}
	return &Service{
		line:           line,
		discord:        discord,
		sched:          sched,
		editDelay:      editDelay,
		clock:          time.Now,
		lineEnabled:    true,
		discordEnabled: true,
	}
}

// WithClock overrides the time source. Tests only.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Send delivers message verbatim to both enabled channels.
func (s *Service) Send(ctx context.Context, message string) Result {
	return s.send(ctx, message, message, false)
}

// SendCase delivers a case alert: LINE receives the message verbatim while
// Discord gets the call-to-action suffix appended. On Discord success a
// deferred edit is scheduled that rewrites the message without the suffix.
func (s *Service) SendCase(ctx context.Context, message string) Result {
	return s.send(ctx, message, message+callToAction, true)
}

func (s *Service) send(ctx context.Context, lineMsg, discordMsg string, scheduleEdit bool) Result {
	lineOn, discordOn := s.Status()
	res := Result{}

	if lineOn && s.line != nil {
		lineCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err := s.line.Push(lineCtx, lineMsg)
		cancel()
		if err != nil {
			res.LineError = err.Error()
		} else {
			res.LineSuccess = true
		}
	}

	if discordOn && s.discord != nil {
		discordCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		id, err := s.discord.Send(discordCtx, discordMsg)
		cancel()
		if err != nil {
			res.DiscordError = err.Error()
		} else {
			res.DiscordSuccess = true
			res.DiscordMessageID = id
			if scheduleEdit {
				s.scheduleStrip(id, lineMsg)
			}
		}
	}

	return res
}

// scheduleStrip queues the best-effort cosmetic edit. The edit runs with its
// own context; a failure is silently dropped.
func (s *Service) scheduleStrip(messageID, plainMessage string) {
	s.sched.After(s.editDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		_ = s.discord.Edit(ctx, messageID, plainMessage)
	})
}

// TestLine pushes a connectivity test message to the LINE group.
func (s *Service) TestLine(ctx context.Context) error {
	if s.line == nil {
		return fmt.Errorf("broadcast: line channel not configured")
	}
	msg := fmt.Sprintf(
		"🧪 系統測試訊息 / System Test Message\n時間 / Time: %s\n狀態 / Status: LINE Bot 連線正常 / LINE Bot Connection OK",
		s.clock().Format("2006-01-02 15:04:05"),
	)
	testCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.line.Push(testCtx, msg)
}

// TestDiscord posts a connectivity test message to the webhook and returns
// the created message id.
func (s *Service) TestDiscord(ctx context.Context) (string, error) {
	if s.discord == nil {
		return "", fmt.Errorf("broadcast: discord channel not configured")
	}
	msg := fmt.Sprintf(
		"🧪 **系統測試訊息 / System Test Message**\n時間 / Time: %s\n狀態 / Status: Discord Webhook 連線正常 / Discord Webhook Connection OK",
		s.clock().Format("2006-01-02 15:04:05"),
	)
	testCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return s.discord.Send(testCtx, msg)
}

// Announce formats a staff announcement and delivers it to the selected
// platforms ("line", "discord"). Unknown platform names are ignored.
func (s *Service) Announce(ctx context.Context, content string, platforms []string) Result {
	msg := fmt.Sprintf(
		"📢 系統公告 / System Announcement\n\n%s\n\n發布時間 / Published Time: %s\n發布者 / Publisher: 系統管理員 / System Administrator",
		content, s.clock().Format("2006-01-02 15:04:05"),
	)

	res := Result{}
	for _, p := range platforms {
		switch p {
		case "line":
			if s.line == nil {
				res.LineError = "line channel not configured"
				continue
			}
			lineCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := s.line.Push(lineCtx, msg)
			cancel()
			if err != nil {
				res.LineError = err.Error()
			} else {
				res.LineSuccess = true
			}
		case "discord":
			if s.discord == nil {
				res.DiscordError = "discord channel not configured"
				continue
			}
			discordCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			id, err := s.discord.Send(discordCtx, msg)
			cancel()
			if err != nil {
				res.DiscordError = err.Error()
			} else {
				res.DiscordSuccess = true
				res.DiscordMessageID = id
			}
		}
	}
	return res
}

// SetControl toggles channels. A nil pointer leaves the flag untouched.
func (s *Service) SetControl(line, discord *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if line != nil {
		s.lineEnabled = *line
	}
	if discord != nil {
		s.discordEnabled = *discord
	}
}

// Status reports the current per-channel enable flags.
func (s *Service) Status() (lineEnabled, discordEnabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineEnabled, s.discordEnabled
}
