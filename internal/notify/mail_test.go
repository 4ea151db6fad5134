package notify

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/you/go-jobsity-booking/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMailer(t *testing.T, host string) (*Mailer, *[]*mail.Msg) {
	t.Helper()
	cfg := &config.Config{
		SMTPHost:     host,
		SMTPPort:     587,
		SMTPUsername: "booker@example.com",
		SMTPPassword: "pw",
		SMTPTimeout:  time.Second,
	}
	m, err := NewMailer(cfg, discardLogger())
	require.NoError(t, err)
	var sent []*mail.Msg
	m.send = func(_ context.Context, msg *mail.Msg) error {
		sent = append(sent, msg)
		return nil
	}
	m.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return m, &sent
}

func TestSend_BuildsPlainTextMessage(t *testing.T) {
	m, sent := newTestMailer(t, "smtp.example.com")

	err := m.Send(context.Background(), "ana@example.com", "Booking ABC123", "Hello\nSeats: 12A")
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	msg := (*sent)[0]
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, rcpts)
	require.Len(t, msg.GetFrom(), 1)
	assert.Equal(t, "booker@example.com", msg.GetFrom()[0].Address)
	assert.Equal(t, []string{"Booking ABC123"}, msg.GetGenHeader(mail.HeaderSubject))

	var raw bytes.Buffer
	_, err = msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "text/plain")
	assert.Contains(t, raw.String(), "Seats: 12A")
}

func TestSend_Disabled(t *testing.T) {
	m, sent := newTestMailer(t, "")
	assert.False(t, m.Enabled())
	require.NoError(t, m.Send(context.Background(), "ana@example.com", "s", "b"))
	assert.Empty(t, *sent)
}

func TestSend_RejectsBadRecipient(t *testing.T) {
	m, sent := newTestMailer(t, "smtp.example.com")
	err := m.Send(context.Background(), "not an address", "s", "b")
	require.Error(t, err)
	assert.Empty(t, *sent)
}

func TestSend_WrapsFailure(t *testing.T) {
	m, _ := newTestMailer(t, "smtp.example.com")
	cause := errors.New("535 authentication failed")
	m.send = func(context.Context, *mail.Msg) error { return cause }

	err := m.Send(context.Background(), "ana@example.com", "s", "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "failed to send email")
}

// A server that accepts the connection but never sends its greeting must
// not hold Send past the caller's deadline.
func TestSend_SilentServerHonorsDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				<-done
				conn.Close()
			}()
		}
	}()

	cfg := &config.Config{
		SMTPHost:    "127.0.0.1",
		SMTPPort:    ln.Addr().(*net.TCPAddr).Port,
		SMTPFrom:    "booker@example.com",
		SMTPTimeout: 30 * time.Second,
	}
	m, err := NewMailer(cfg, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.Send(ctx, "ana@example.com", "s", "b")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, err.Error(), "failed to send email to ana@example.com")
}
