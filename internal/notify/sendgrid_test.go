package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

func newNotifier(srv *httptest.Server, cfg config.Email) *SendGridNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	n := NewSendGridNotifier(cfg)
	if srv != nil {
		n.BaseURL = srv.URL
	}
	return n
}

func TestDeliver_SkippedWithoutCredentials(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  config.Email
	}{
		{"no key", config.Email{To: "ops@example.org"}},
		{"no recipient", config.Email{SendGridAPIKey: "SG.key"}},
		{"blank recipient", config.Email{SendGridAPIKey: "SG.key", To: " , "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, err := newNotifier(srv, tt.cfg).Deliver(context.Background(), "s", "<p>b</p>")
			require.NoError(t, err)
			assert.Equal(t, StatusSkipped, status)
		})
	}
	assert.Zero(t, hits.Load(), "no request is made when skipped")
}

func TestDeliver_Sent(t *testing.T) {
	var got map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := newNotifier(srv, config.Email{
		SendGridAPIKey: "SG.key",
		To:             "a@example.org, b@example.org",
		From:           "noreply@example.org",
	})
	status, err := n.Deliver(context.Background(), "[MS] Boletim 12", "<h1>x</h1>")

	require.NoError(t, err)
	assert.Equal(t, StatusSent, status)
	assert.Equal(t, "Bearer SG.key", auth)
	assert.Equal(t, "/v3/mail/send", path)
	assert.Equal(t, "[MS] Boletim 12", got["subject"])
	assert.Equal(t, map[string]any{"email": "noreply@example.org"}, got["from"])

	pers := got["personalizations"].([]any)
	require.Len(t, pers, 1)
	to := pers[0].(map[string]any)["to"].([]any)
	assert.Len(t, to, 2)

	content := got["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "text/html", content["type"])
	assert.Equal(t, "<h1>x</h1>", content["value"])
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := newNotifier(srv, config.Email{SendGridAPIKey: "SG.bad", To: "ops@example.org"})
	status, err := n.Deliver(context.Background(), "s", "b")

	assert.Equal(t, StatusError, status)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDelivery))
	assert.Contains(t, err.Error(), "401")
}

func TestDeliver_RedirectStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusMultipleChoices)
	}))
	defer srv.Close()

	n := newNotifier(srv, config.Email{SendGridAPIKey: "SG.key", To: "ops@example.org"})
	status, err := n.Deliver(context.Background(), "s", "b")

	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestDeliver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	n := newNotifier(srv, config.Email{SendGridAPIKey: "SG.key", To: "ops@example.org"})
	status, err := n.Deliver(context.Background(), "s", "b")

	assert.Equal(t, StatusError, status)
	assert.ErrorIs(t, err, ErrDelivery)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "email", newNotifier(nil, config.Email{}).Channel())
}
