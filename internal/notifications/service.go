package notifications

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"mediaferry/internal/config"
)

const userAgent = "mediaferry/0.1.0"

// Event identifies a pipeline milestone.
type Event string

const (
	EventRunStarted     Event = "run_started"
	EventStageCompleted Event = "stage_completed"
	EventRunCompleted   Event = "run_completed"
	EventRunError       Event = "run_error"
	EventTest           Event = "test"
)

// Payload carries event fields. Recognized keys:
//
//	stages     []string       run_started
//	stage      string         stage_completed, run_error
//	success    bool           stage_completed, run_completed
//	duration   time.Duration  stage_completed, run_completed
//	processed  int            stage_completed, run_completed
//	failed     int            stage_completed, run_completed
//	bytesSaved int64          run_completed
//	error      string         run_error
type Payload map[string]any

// Service publishes pipeline events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type sender interface {
	send(ctx context.Context, msg message) error
}

// Option customizes the service built by NewService.
type Option func(*options)

type options struct {
	telegramBase string
	client       *http.Client
}

// WithTelegramEndpoint overrides the Telegram Bot API base URL.
func WithTelegramEndpoint(base string) Option {
	return func(o *options) { o.telegramBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client used by the transports.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// NewService builds the notifier for the configured provider. Events disabled
// in configuration are dropped before they reach the transport.
func NewService(cfg *config.Config, opts ...Option) Service {
	if cfg == nil {
		return noopService{}
	}
	n := cfg.Notifications
	o := options{telegramBase: defaultTelegramBase}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		timeout := time.Duration(n.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		o.client = &http.Client{Timeout: timeout}
	}

	var transport sender
	switch n.Provider {
	case config.NotifyProviderNtfy:
		if strings.TrimSpace(n.NtfyTopic) == "" {
			return noopService{}
		}
		transport = &ntfySender{endpoint: n.NtfyTopic, client: o.client}
	case config.NotifyProviderTelegram:
		if n.TelegramToken == "" || n.TelegramChatID == "" {
			return noopService{}
		}
		transport = &telegramSender{base: o.telegramBase, token: n.TelegramToken, chatID: n.TelegramChatID, client: o.client}
	default:
		return noopService{}
	}

	return &service{
		transport: transport,
		enabled: map[Event]bool{
			EventRunStarted:     n.RunStart,
			EventStageCompleted: n.StageComplete,
			EventRunCompleted:   n.RunComplete,
			EventRunError:       n.Errors,
			EventTest:           true,
		},
	}
}

type service struct {
	transport sender
	enabled   map[Event]bool
}

func (s *service) Publish(ctx context.Context, event Event, payload Payload) error {
	if !s.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return s.transport.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		stages := payload.list("stages")
		return message{
			title: "mediaferry - Run Started",
			body:  fmt.Sprintf("Run started: %s", strings.Join(stages, ", ")),
			tags:  []string{"mediaferry", "run", "started"},
		}, true
	case EventStageCompleted:
		stage := payload.text("stage")
		summary := fmt.Sprintf("%s: %d processed, %d failed in %s",
			stage, payload.count("processed"), payload.count("failed"), durationText(payload.elapsed("duration")))
		if payload.flag("success") {
			return message{
				title: "mediaferry - Stage Complete",
				body:  summary,
				tags:  []string{"mediaferry", "stage", "completed"},
			}, true
		}
		return message{
			title:    "mediaferry - Stage Failed",
			body:     summary,
			tags:     []string{"mediaferry", "stage", "failed"},
			priority: "high",
		}, true
	case EventRunCompleted:
		title := "mediaferry - Run Complete"
		if !payload.flag("success") {
			title = "mediaferry - Run Complete (with errors)"
		}
		body := fmt.Sprintf("%d processed, %d failed in %s",
			payload.count("processed"), payload.count("failed"), durationText(payload.elapsed("duration")))
		if saved := payload.count64("bytesSaved"); saved > 0 {
			body += fmt.Sprintf("\nSpace saved: %s", humanize.IBytes(uint64(saved)))
		}
		return message{title: title, body: body, tags: []string{"mediaferry", "run", "completed"}}, true
	case EventRunError:
		var b strings.Builder
		b.WriteString("Error")
		if stage := payload.text("stage"); stage != "" {
			b.WriteString(" in ")
			b.WriteString(stage)
		}
		b.WriteString(": ")
		if text := payload.text("error"); text != "" {
			b.WriteString(text)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "mediaferry - Error",
			body:     b.String(),
			tags:     []string{"mediaferry", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "mediaferry - Test",
			body:     "Notification system test",
			tags:     []string{"mediaferry", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func durationText(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func (p Payload) list(key string) []string {
	v, _ := p[key].([]string)
	return v
}

func (p Payload) count(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (p Payload) count64(key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (p Payload) flag(key string) bool {
	v, _ := p[key].(bool)
	return v
}

func (p Payload) elapsed(key string) time.Duration {
	v, _ := p[key].(time.Duration)
	return v
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
