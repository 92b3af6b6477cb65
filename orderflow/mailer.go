package orderflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RESTMailer sends mail through an HTTP mail provider API (SendGrid-shaped:
// JSON body, bearer-token auth, 2xx on acceptance).
type RESTMailer struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewRESTMailer creates a mailer for the given provider endpoint and API key.
func NewRESTMailer(endpoint, apiKey string) *RESTMailer {
	return &RESTMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

var _ Mailer = (*RESTMailer)(nil)

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailRequest struct {
	From    mailAddress   `json:"from"`
	To      []mailAddress `json:"to"`
	Subject string        `json:"subject"`
	HTML    string        `json:"html"`
}

func (m *RESTMailer) Send(ctx context.Context, mail Mail) error {
	body, err := json.Marshal(mailRequest{
		From:    mailAddress{Email: mail.FromAddress, Name: mail.FromName},
		To:      []mailAddress{{Email: mail.ToAddress, Name: mail.ToName}},
		Subject: mail.Subject,
		HTML:    mail.HTMLBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("mail provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
