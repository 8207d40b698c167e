package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

const whatsappAPIVersion = "v18.0"

var htmlTagRe = regexp.MustCompile(`</?[a-z]+>`)

// WhatsAppClient sends text messages through the Meta Cloud API.
type WhatsAppClient struct {
	phoneNumberID string
	accessToken   string
	httpClient    *http.Client
}

func NewWhatsAppClient(phoneNumberID, accessToken string) *WhatsAppClient {
	return &WhatsAppClient{
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether credentials are present. Delivery to WhatsApp
// recipients is skipped entirely when they are not.
func (c *WhatsAppClient) Configured() bool {
	return c.phoneNumberID != "" && c.accessToken != ""
}

// SendMessage sends one plain-text message. Telegram-flavoured HTML tags in
// the shared templates are stripped before sending.
func (c *WhatsAppClient) SendMessage(ctx context.Context, to, message string) error {
	body, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": htmlTagRe.ReplaceAllString(message, "")},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("https://graph.facebook.com/%s/%s/messages", whatsappAPIVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
