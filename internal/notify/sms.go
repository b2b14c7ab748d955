package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSChannel posts messages to an HTTP SMS gateway as
// {"to": "+972...", "text": "..."} with an optional bearer token.
type SMSChannel struct {
	url    string
	token  string
	client *http.Client
}

func NewSMSChannel(url, token string) *SMSChannel {
	return &SMSChannel{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SMSChannel) Name() string  { return "sms" }
func (c *SMSChannel) Enabled() bool { return c.url != "" }

func (c *SMSChannel) Send(ctx context.Context, msg Message) error {
	if msg.To.Phone == "" {
		return ErrNoAddress
	}
	return c.SendText(ctx, msg.To.Phone, msg.Text)
}

// SendText delivers a raw text, used for login codes and invitations.
func (c *SMSChannel) SendText(ctx context.Context, phone, text string) error {
	body, err := json.Marshal(map[string]string{"to": phone, "text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
