package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

// DefaultSendGridURL is the SendGrid v3 API root.
const DefaultSendGridURL = "https://api.sendgrid.com"

// SendGridNotifier sends email through the SendGrid v3 mail API.
type SendGridNotifier struct {
	APIKey  string
	To      []string
	From    string
	BaseURL string
	client  *http.Client
}

// NewSendGridNotifier creates a notifier from the email settings. The
// recipient may list several addresses separated by commas.
func NewSendGridNotifier(cfg config.Email) *SendGridNotifier {
	var to []string
	for _, addr := range strings.Split(cfg.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return &SendGridNotifier{
		APIKey:  cfg.SendGridAPIKey,
		To:      to,
		From:    cfg.From,
		BaseURL: DefaultSendGridURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Channel implements Notifier.
func (n *SendGridNotifier) Channel() string { return "email" }

// IsConfigured reports whether an API key and a recipient are set.
func (n *SendGridNotifier) IsConfigured() bool {
	return n.APIKey != "" && len(n.To) > 0
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMessage struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Deliver implements Notifier. It makes one attempt and never retries.
func (n *SendGridNotifier) Deliver(ctx context.Context, subject, htmlBody string) (Status, error) {
	if !n.IsConfigured() {
		slog.Info("SendGrid API key or recipient missing, skipping email")
		return StatusSkipped, nil
	}

	to := make([]sgAddress, len(n.To))
	for i, addr := range n.To {
		to[i] = sgAddress{Email: addr}
	}
	msg := sgMessage{
		Personalizations: []sgPersonalization{{To: to}},
		From:             sgAddress{Email: n.From},
		Subject:          subject,
		Content:          []sgContent{{Type: "text/html", Value: htmlBody}},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return StatusError, fmt.Errorf("%w: marshaling message: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(n.BaseURL, "/")+"/v3/mail/send", bytes.NewReader(data))
	if err != nil {
		return StatusError, fmt.Errorf("%w: creating request: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.APIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return StatusError, fmt.Errorf("%w: SendGrid request: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return StatusError, fmt.Errorf("%w: SendGrid returned %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	slog.Info("email sent", "subject", subject, "recipients", len(n.To))
	return StatusSent, nil
}
