package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAtDeterministic(t *testing.T) {
	s := NewWebhookSigner("topsecret")
	body := []byte(`{"id":"a1"}`)

	h1 := s.HeadersAt(body, 1700000000)
	h2 := s.HeadersAt(body, 1700000000)
	require.Equal(t, h1, h2)
	assert.Equal(t, "1700000000", h1[HeaderTimestamp])
	assert.Len(t, h1[HeaderSignature], 64) // hex sha256
}

func TestVerifyRoundTrip(t *testing.T) {
	s := NewWebhookSigner("topsecret")
	body := []byte(`{"id":"a1"}`)
	h := s.HeadersAt(body, 1700000000)

	assert.True(t, Verify("topsecret", body, h[HeaderTimestamp], h[HeaderSignature]))
	assert.False(t, Verify("wrong", body, h[HeaderTimestamp], h[HeaderSignature]))
	assert.False(t, Verify("topsecret", []byte("tampered"), h[HeaderTimestamp], h[HeaderSignature]))
	assert.False(t, Verify("topsecret", body, "1700000001", h[HeaderSignature]))
}

func TestSignatureBindsTimestamp(t *testing.T) {
	s := NewWebhookSigner("topsecret")
	body := []byte(`{"id":"a1"}`)

	h1 := s.HeadersAt(body, 1700000000)
	h2 := s.HeadersAt(body, 1700000060)
	assert.NotEqual(t, h1[HeaderSignature], h2[HeaderSignature])
}
