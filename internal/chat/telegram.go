// Package chat talks to Telegram and routes user commands and approvals.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	// MaxMessageLength is the Telegram limit for one message, in characters
	MaxMessageLength = 4096

	pollTimeout  = 30 * time.Second
	pollBackoff  = 3 * time.Second
	pollBatchMax = 100
)

// ErrTelegram wraps an API response with ok=false or a non-2xx status
var ErrTelegram = errors.New("telegram API error")

// Update is one incoming event from getUpdates
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the subset of a Telegram message the bot reads
type Message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From *struct {
		FirstName string `json:"first_name"`
		Username  string `json:"username"`
	} `json:"from,omitempty"`
	Text string `json:"text"`
}

type apiResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	Description string `json:"description"`
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Telegram is a Bot API client
type Telegram struct {
	http    *resty.Client
	baseURL string
}

// NewTelegram creates a client for the bot token against apiURL (usually https://api.telegram.org)
func NewTelegram(apiURL, token string, timeout time.Duration, retries int) *Telegram {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// long polls hold the connection for pollTimeout
	if timeout < pollTimeout+10*time.Second {
		timeout = pollTimeout + 10*time.Second
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(shouldRetry).
		SetHeader("User-Agent", "LinkedIn-Content-Bot/1.0")
	return &Telegram{
		http:    rc,
		baseURL: strings.TrimRight(apiURL, "/") + "/bot" + token,
	}
}

// shouldRetry retries polls on errors, 429 and 5xx. Sends are only retried on 429
// so a reply that was delivered is never sent twice.
func shouldRetry(r *resty.Response, err error) bool {
	if r == nil {
		return err != nil
	}
	if r.Request != nil && r.Request.Method == http.MethodPost {
		return err == nil && r.StatusCode() == http.StatusTooManyRequests
	}
	return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
}

func decode[T any](resp *resty.Response, out *apiResponse[T], method string) error {
	if resp.IsError() || !out.OK {
		desc := out.Description
		if desc == "" {
			desc = resp.Status()
		}
		return fmt.Errorf("%s: %w: %s", method, ErrTelegram, desc)
	}
	return nil
}

// GetUpdates long-polls for updates after offset
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]Update, error) {
	var out apiResponse[[]Update]
	resp, err := t.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":          strconv.FormatInt(offset, 10),
			"timeout":         strconv.Itoa(int(wait.Seconds())),
			"limit":           strconv.Itoa(pollBatchMax),
			"allowed_updates": `["message"]`,
		}).
		SetResult(&out).
		SetError(&out).
		Get(t.baseURL + "/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("failed to get updates: %w", err)
	}
	if err := decode(resp, &out, "getUpdates"); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// SendMessage sends text to a chat, split into several messages when it is too long
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, part := range SplitMessage(text, MaxMessageLength) {
		if err := t.send(ctx, chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) error {
	start := time.Now()
	var out apiResponse[Message]
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{ChatID: chatID, Text: text, DisableWebPagePreview: true}).
		SetResult(&out).
		SetError(&out).
		Post(t.baseURL + "/sendMessage")
	metrics.ObserveExternal("telegram", start, err)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return decode(resp, &out, "sendMessage")
}

// Poll feeds updates to handle until ctx is cancelled. Failed polls are retried after a pause.
func (t *Telegram) Poll(ctx context.Context, handle func(context.Context, Update)) {
	var offset int64
	for {
		updates, err := t.GetUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logrus.Warnf("Telegram poll failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			handle(ctx, u)
		}
	}
}

// SplitMessage cuts text into parts of at most limit characters, preferring line breaks
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
