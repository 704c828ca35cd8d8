package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/academy-api/pkg/config"
)

func TestNewSelectsBackend(t *testing.T) {
	assert.IsType(t, &LogMailer{}, New(config.NotificationConfig{AppName: "Academy"}, nil))
	assert.IsType(t, &SendGridMailer{}, New(config.NotificationConfig{SendGridAPIKey: "key", FromEmail: "a@b.c"}, nil))
}

func TestLogMailerSend(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewLogMailer("Academy", zap.New(core))

	err := m.Send(context.Background(), Message{To: mail.Address{Name: "Sam", Address: "sam@example.com"}, Subject: "Payment verified", Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "[Academy] Payment verified", logs.All()[0].ContextMap()["subject"])

	assert.ErrorIs(t, m.Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestSendGridMailerPostsV3Payload(t *testing.T) {
	var payload struct {
		From struct {
			Email string `json:"email"`
		} `json:"from"`
		Personalizations []struct {
			Subject string `json:"subject"`
			To      []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendGridMailer("sg-key", "Academy", "", "no-reply@academy.test")
	m.host = srv.URL

	err := m.Send(context.Background(), Message{To: mail.Address{Address: "sam@example.com"}, Subject: "Payment received", Text: "body"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sg-key", auth)
	assert.Equal(t, "no-reply@academy.test", payload.From.Email)
	require.Len(t, payload.Personalizations, 1)
	assert.Equal(t, "[Academy] Payment received", payload.Personalizations[0].Subject)
	assert.Equal(t, "sam@example.com", payload.Personalizations[0].To[0].Email)
}

func TestSendGridMailerReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewSendGridMailer("bad", "Academy", "Academy", "no-reply@academy.test")
	m.host = srv.URL

	err := m.Send(context.Background(), Message{To: mail.Address{Address: "sam@example.com"}, Subject: "x", Text: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
