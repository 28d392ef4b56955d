// Package notify delivers status-change mail through an HTTP mail gateway.
// Delivery is fire-and-forget from the workflow's point of view: callers log
// failures and never let them fail the primary mutation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kestrel-dcr/config"
)

// Template kinds the gateway knows how to render.
const (
	TemplateInvestigationSubmitted = "case_investigation_submitted"
	TemplateVerdictRecorded        = "case_verdict_recorded"
	TemplateAppealSubmitted        = "case_appeal_submitted"
	TemplateAppealResolved         = "case_appeal_resolved"
	TemplateIncidentClosed         = "incident_closed"
)

type Message struct {
	To       []string          `json:"to"`
	Template string            `json:"template"`
	Subject  string            `json:"subject"`
	Payload  map[string]string `json:"payload,omitempty"`
}

type Dispatcher interface {
	Notify(ctx context.Context, msg Message) error
}

// HTTPMailSender posts messages as JSON to the configured mail-gateway URL.
type HTTPMailSender struct {
	client  *http.Client
	baseURL string
	from    string
}

func NewHTTPMailSender(cfg config.NotifyConfig) *HTTPMailSender {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPMailSender{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.GatewayURL, "/"),
		from:    cfg.From,
	}
}

func (s *HTTPMailSender) Notify(ctx context.Context, msg Message) error {
	if s.baseURL == "" {
		return errors.New("mail gateway url missing")
	}
	if len(msg.To) == 0 || strings.TrimSpace(msg.Template) == "" {
		return errors.New("mail recipient or template missing")
	}
	body := map[string]any{
		"from":     s.from,
		"to":       msg.To,
		"template": msg.Template,
		"subject":  msg.Subject,
		"payload":  msg.Payload,
	}
	raw, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("mail gateway status %d", resp.StatusCode)
}

// NopDispatcher swallows every message; used when notifications are disabled.
type NopDispatcher struct{}

func (NopDispatcher) Notify(context.Context, Message) error { return nil }
