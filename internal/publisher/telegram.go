package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTelegramAPIURL = "https://api.telegram.org"

// maxRetryAfter bounds the flood wait the client sits out before giving up.
const maxRetryAfter = 30 * time.Second

// TelegramClient is a minimal Bot API client covering what the sink needs.
type TelegramClient struct {
	client  *resty.Client
	baseURL string
	wait    func(ctx context.Context, d time.Duration) error
}

// APIError is a Bot API error reply. RetryAfter is the flood wait in
// seconds, zero when the reply carried none.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type message struct {
	MessageID int64 `json:"message_id"`
}

func NewTelegramClient(client *resty.Client, baseURL, token string) *TelegramClient {
	if baseURL == "" {
		baseURL = DefaultTelegramAPIURL
	}
	return &TelegramClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/") + "/bot" + token,
		wait:    sleepContext,
	}
}

// SendMessage posts an HTML text message and returns its message id.
func (c *TelegramClient) SendMessage(ctx context.Context, chatID, text string) (int64, error) {
	return c.sendForMessage(ctx, "sendMessage", func(req *resty.Request) {
		req.SetBody(map[string]any{
			"chat_id":    chatID,
			"text":       text,
			"parse_mode": "HTML",
		})
	})
}

// SendPhoto uploads a JPEG with an HTML caption and returns the message id.
func (c *TelegramClient) SendPhoto(ctx context.Context, chatID string, photo []byte, caption string) (int64, error) {
	return c.sendForMessage(ctx, "sendPhoto", func(req *resty.Request) {
		req.SetMultipartFormData(map[string]string{
			"chat_id":    chatID,
			"caption":    caption,
			"parse_mode": "HTML",
		}).SetFileReader("photo", "image.jpg", bytes.NewReader(photo))
	})
}

// EditMessageText replaces the text of a text message.
func (c *TelegramClient) EditMessageText(ctx context.Context, chatID string, messageID int64, text string) error {
	_, err := c.call(ctx, "editMessageText", func(req *resty.Request) {
		req.SetBody(map[string]any{
			"chat_id":    chatID,
			"message_id": messageID,
			"text":       text,
			"parse_mode": "HTML",
		})
	})
	return err
}

// EditMessageCaption replaces the caption of a media message.
func (c *TelegramClient) EditMessageCaption(ctx context.Context, chatID string, messageID int64, caption string) error {
	_, err := c.call(ctx, "editMessageCaption", func(req *resty.Request) {
		req.SetBody(map[string]any{
			"chat_id":    chatID,
			"message_id": messageID,
			"caption":    caption,
			"parse_mode": "HTML",
		})
	})
	return err
}

// DeleteMessage removes a message from the chat.
func (c *TelegramClient) DeleteMessage(ctx context.Context, chatID string, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", func(req *resty.Request) {
		req.SetBody(map[string]any{
			"chat_id":    chatID,
			"message_id": messageID,
		})
	})
	return err
}

func (c *TelegramClient) sendForMessage(ctx context.Context, method string, build func(*resty.Request)) (int64, error) {
	raw, err := c.call(ctx, method, build)
	if err != nil {
		return 0, err
	}
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	if msg.MessageID == 0 {
		return 0, fmt.Errorf("telegram %s: no message id in result", method)
	}
	return msg.MessageID, nil
}

// call performs the request and, when the Bot API answers with a flood
// wait of at most maxRetryAfter, waits it out and sends the request once more.
func (c *TelegramClient) call(ctx context.Context, method string, build func(*resty.Request)) (json.RawMessage, error) {
	raw, err := c.do(ctx, method, build)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return raw, err
	}
	delay := time.Duration(apiErr.RetryAfter) * time.Second
	if delay > maxRetryAfter {
		return nil, err
	}
	if werr := c.wait(ctx, delay); werr != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, werr)
	}
	return c.do(ctx, method, build)
}

func (c *TelegramClient) do(ctx context.Context, method string, build func(*resty.Request)) (json.RawMessage, error) {
	var out apiResponse
	req := c.client.R().SetContext(ctx)
	build(req)
	resp, err := req.
		SetResult(&out).
		SetError(&out).
		Post(c.baseURL + "/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}

	if !out.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        out.ErrorCode,
			Description: out.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if out.Parameters != nil {
			apiErr.RetryAfter = out.Parameters.RetryAfter
		}
		return nil, apiErr
	}
	return out.Result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
