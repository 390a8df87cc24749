package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

const activationSubject = "Your activation code"

type mailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// MailAPISender は外部のメール API に JSON を POST してコードを配送します。
type MailAPISender struct {
	endpoint string
	client   *http.Client
}

// NewMailAPISender は MailAPISender を生成します。client が nil の場合は timeout 付きのクライアントを使います。
func NewMailAPISender(endpoint string, timeout time.Duration, client *http.Client) *MailAPISender {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &MailAPISender{endpoint: endpoint, client: client}
}

// Send はコードを一度だけ送信します。2xx 以外の応答は ErrDeliveryFailed になります。
func (s *MailAPISender) Send(ctx context.Context, n registration.Notification) error {
	payload, err := json.Marshal(mailRequest{
		To:      n.Address,
		Subject: activationSubject,
		Body:    activationBody(n),
	})
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", registration.ErrDeliveryFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", registration.ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", registration.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: mail api responded %d", registration.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

func activationBody(n registration.Notification) string {
	return fmt.Sprintf("Your activation code is: %s\nIt expires at %s.", n.Code, n.ExpiresAt.UTC().Format(time.RFC3339))
}
