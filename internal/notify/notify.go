// Package notify sends transactional email through the Resend API.
// Delivery is best effort throughout the engine: callers log failures
// and move on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.resend.com"

type Notifier struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	from       string
	enabled    bool
}

func NewNotifier(apiKey, from string) *Notifier {
	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		from:       from,
		enabled:    apiKey != "" && from != "",
	}
}

func (n *Notifier) Enabled() bool { return n.enabled }

// Send delivers one HTML email. Disabled notifiers return nil so
// callers need no special casing.
func (n *Notifier) Send(ctx context.Context, to, subject, html string) error {
	if !n.enabled {
		return nil
	}

	payload, err := json.Marshal(map[string]any{
		"from":    n.from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notify: resend status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SendPenaltyNotice tells the user what their slacking just bought
// them.
func (n *Notifier) SendPenaltyNotice(ctx context.Context, to, name, symbol string, qty int, amount float64, amo bool) error {
	subject := fmt.Sprintf("Penalty executed: %d x %s", qty, symbol)
	tmpl := penaltyTemplates[rand.Intn(len(penaltyTemplates))]
	body := renderPenalty(tmpl, name, symbol, qty, amount, amo)
	return n.Send(ctx, to, subject, body)
}

// SendReminder nudges a user who has not solved anything yet today.
func (n *Notifier) SendReminder(ctx context.Context, to, name string, links []string) error {
	return n.Send(ctx, to, "Your problems are waiting", renderReminder(name, links))
}
