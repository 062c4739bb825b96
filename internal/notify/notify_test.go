package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-booking-core/internal/logging"
)

type fakeMailClient struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeMailClient) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, email)
	return &rest.Response{StatusCode: f.status}, nil
}

func testConfig() SendGridConfig {
	return SendGridConfig{
		APIKey:    "key",
		FromEmail: "bookings@example.com",
		Templates: map[string]string{TemplateBookingConfirmed: "d-123"},
	}
}

func TestNewSendGridNotifierWithoutKey(t *testing.T) {
	assert.Nil(t, NewSendGridNotifier(SendGridConfig{}, nil))
}

func TestSendGridNotifierBuildsDynamicTemplateMessage(t *testing.T) {
	client := &fakeMailClient{status: 202}
	n := newSendGridNotifierWithClient(client, testConfig(), nil)

	err := n.Notify(context.Background(), Notification{
		TemplateID: TemplateBookingConfirmed,
		To:         "ada@example.com",
		ToName:     "Ada",
		Data:       map[string]any{"date": "2025-12-01", "start_time": "09:00"},
	})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.Equal(t, "d-123", msg.TemplateID)
	assert.Equal(t, "Bookings", msg.From.Name)
	require.Len(t, msg.Personalizations, 1)
	assert.Equal(t, "ada@example.com", msg.Personalizations[0].To[0].Address)
	assert.Equal(t, "09:00", msg.Personalizations[0].DynamicTemplateData["start_time"])
}

func TestSendGridNotifierErrors(t *testing.T) {
	ctx := context.Background()

	unmapped := newSendGridNotifierWithClient(&fakeMailClient{status: 202}, testConfig(), nil)
	err := unmapped.Notify(ctx, Notification{TemplateID: TemplateBookingCancelled, To: "a@example.com"})
	assert.Error(t, err)

	err = unmapped.Notify(ctx, Notification{TemplateID: TemplateBookingConfirmed})
	assert.Error(t, err)

	rejected := newSendGridNotifierWithClient(&fakeMailClient{status: 400}, testConfig(), nil)
	err = rejected.Notify(ctx, Notification{TemplateID: TemplateBookingConfirmed, To: "a@example.com"})
	assert.Error(t, err)

	failing := newSendGridNotifierWithClient(&fakeMailClient{err: errors.New("dial tcp")}, testConfig(), nil)
	err = failing.Notify(ctx, Notification{TemplateID: TemplateBookingConfirmed, To: "a@example.com"})
	assert.ErrorContains(t, err, "dial tcp")

	var nilNotifier *SendGridNotifier
	assert.Error(t, nilNotifier.Notify(ctx, Notification{}))
}

func TestLogNotifierNeverFails(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(logging.NewWithWriter("info", &buf))

	err := n.Notify(context.Background(), Notification{TemplateID: TemplateBookingConfirmed, To: "a@example.com"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), TemplateBookingConfirmed)
}
