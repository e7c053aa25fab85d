package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const defaultTelegramBase = "https://api.telegram.org"

type telegramSender struct {
	base   string
	token  string
	chatID string
	client *http.Client
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *telegramSender) send(ctx context.Context, msg message) error {
	text := msg.body
	if msg.title != "" {
		text = msg.title + "\n\n" + msg.body
	}
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	if msg.priority == "low" {
		form.Set("disable_notification", "true")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// The request URL embeds the bot token; keep it out of logs.
		return fmt.Errorf("send telegram notification: %w", redact(err, t.token))
	}
	defer resp.Body.Close()

	var decoded telegramResponse
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(body, &decoded)
	if resp.StatusCode >= 300 || !decoded.OK {
		detail := decoded.Description
		if detail == "" {
			detail = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("telegram returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
