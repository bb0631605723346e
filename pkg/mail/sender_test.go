package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRecipient(t *testing.T) {
	t.Parallel()

	to, redirected := resolveRecipient("info@acme.com", "")
	assert.Equal(t, "info@acme.com", to)
	assert.False(t, redirected)

	to, redirected = resolveRecipient("info@acme.com", "demo@sells.group")
	assert.Equal(t, "demo@sells.group", to)
	assert.True(t, redirected)

	// No pointless redirect when the demo address is already the recipient.
	to, redirected = resolveRecipient("demo@sells.group", "demo@sells.group")
	assert.Equal(t, "demo@sells.group", to)
	assert.False(t, redirected)
}

func TestNewSMTPSender(t *testing.T) {
	t.Parallel()

	s, err := NewSMTPSender(SMTPConfig{
		Host:      "smtp.example.com",
		Port:      587,
		Username:  "mailer",
		Password:  "secret",
		FromEmail: "sales@sells.group",
		FromName:  "Sells Group",
	})
	require.NoError(t, err)
	assert.Equal(t, "sales@sells.group", s.fromEmail)
}

func TestRecordingSender(t *testing.T) {
	t.Parallel()

	var r RecordingSender
	require.NoError(t, r.Send(context.Background(), Email{To: "a@b.com", Subject: "hi"}))
	require.NoError(t, r.Send(context.Background(), Email{To: "c@d.com", Subject: "yo"}))

	sent := r.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "a@b.com", sent[0].To)

	r.Err = errors.New("boom")
	assert.Error(t, r.Send(context.Background(), Email{To: "e@f.com"}))
	assert.Len(t, r.Sent(), 2)
}
