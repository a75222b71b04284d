package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ignite/sequence-engine/internal/pkg/httpretry"
	"github.com/ignite/sequence-engine/internal/service/sequence"
)

const defaultResendURL = "https://api.resend.com"

// ResendConfig configures a ResendSender.
type ResendConfig struct {
	APIKey  string
	BaseURL string
	From    string
	Timeout time.Duration
	Retries int
}

// ResendSender sends through the Resend HTTP API.
type ResendSender struct {
	apiKey  string
	baseURL string
	from    string
	client  httpretry.Doer
}

// NewResendSender builds a sender over a retrying HTTP client.
func NewResendSender(cfg ResendConfig) *ResendSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultResendURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &ResendSender{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		from:    cfg.From,
		client:  httpretry.New(&http.Client{Timeout: cfg.Timeout}, cfg.Retries),
	}
}

// WithClient replaces the HTTP client. Intended for tests.
func (s *ResendSender) WithClient(c httpretry.Doer) *ResendSender {
	s.client = c
	return s
}

type resendTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type resendRequest struct {
	From    string      `json:"from"`
	To      []string    `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html,omitempty"`
	Text    string      `json:"text,omitempty"`
	Tags    []resendTag `json:"tags,omitempty"`
}

type resendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *ResendSender) Send(ctx context.Context, msg *sequence.Message) (string, error) {
	if s.apiKey == "" {
		return "", &SendError{Provider: "resend", Message: "api key not configured"}
	}

	body := resendRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTMLContent,
		Text:    msg.TextContent,
	}
	for k, v := range msg.Tags {
		body.Tags = append(body.Tags, resendTag{Name: k, Value: v})
	}
	sort.Slice(body.Tags, func(i, j int) bool { return body.Tags[i].Name < body.Tags[j].Name })

	data, err := json.Marshal(body)
	if err != nil {
		return "", &SendError{Provider: "resend", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/emails", bytes.NewReader(data))
	if err != nil {
		return "", &SendError{Provider: "resend", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if msg.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", msg.IdempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &SendError{Provider: "resend", Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out resendResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		detail := out.Message
		if detail == "" {
			detail = strings.TrimSpace(string(raw))
		}
		return "", &SendError{
			Provider:  "resend",
			Status:    resp.StatusCode,
			Message:   detail,
			Transient: transientStatus(resp.StatusCode),
		}
	}
	if out.ID == "" {
		return "", &SendError{Provider: "resend", Status: resp.StatusCode, Message: fmt.Sprintf("response without id: %s", raw), Transient: true}
	}
	return out.ID, nil
}

// transientStatus reports whether a failed status is worth retrying. Only
// 400 and 422 reject the message itself; credential and account errors
// are fixed by an operator and retried.
func transientStatus(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return false
	}
	return true
}
