package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dradenvandewind/registration-api/internal/core/registration"
)

func TestMailAPISender_Send(t *testing.T) {
	var got mailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	expires := time.Date(2025, 1, 1, 12, 1, 0, 0, time.UTC)
	sender := NewMailAPISender(srv.URL, time.Second, nil)

	err := sender.Send(context.Background(), registration.Notification{Address: "a@x.com", Code: "4821", ExpiresAt: expires})
	require.NoError(t, err)

	assert.Equal(t, "a@x.com", got.To)
	assert.Equal(t, activationSubject, got.Subject)
	assert.Contains(t, got.Body, "4821")
	assert.Contains(t, got.Body, "2025-01-01T12:01:00Z")
}

func TestMailAPISender_NonSuccessStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewMailAPISender(srv.URL, time.Second, nil).Send(context.Background(), registration.Notification{Address: "a@x.com", Code: "4821"})
	assert.ErrorIs(t, err, registration.ErrDeliveryFailed)
	assert.Equal(t, 1, calls, "delivery must not be retried")
}

func TestMailAPISender_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewMailAPISender(url, 200*time.Millisecond, nil).Send(context.Background(), registration.Notification{Address: "a@x.com", Code: "4821"})
	assert.ErrorIs(t, err, registration.ErrDeliveryFailed)
}
