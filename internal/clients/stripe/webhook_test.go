package stripe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func signedHeader(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, SignPayload(ts, payload, testSecret))
}

func TestConstructEvent(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "checkout.session.completed", "data": {"object": {"id": "cs_1"}}}`)
	now := time.Now()

	event, err := constructEvent(payload, signedHeader(t, payload, now), testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, "checkout.session.completed", event.Type)
	assert.JSONEq(t, `{"id": "cs_1"}`, string(event.Data.Object))
}

func TestConstructEventRejectsTampering(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "checkout.session.completed", "data": {"object": {}}}`)
	now := time.Now()
	header := signedHeader(t, payload, now)

	tampered := []byte(`{"id": "evt_999", "type": "checkout.session.completed", "data": {"object": {}}}`)
	_, err := constructEvent(tampered, header, testSecret, now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "x", "data": {"object": {}}}`)
	now := time.Now()
	header := signedHeader(t, payload, now)

	_, err := constructEvent(payload, header, "whsec_other", now)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestConstructEventRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "x", "data": {"object": {}}}`)
	signedAt := time.Now()

	_, err := constructEvent(payload, signedHeader(t, payload, signedAt), testSecret, signedAt.Add(6*time.Minute))
	assert.ErrorIs(t, err, ErrStaleTimestamp)
}

func TestConstructEventAcceptsAnyValidV1(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "x", "data": {"object": {}}}`)
	now := time.Now()
	ts := now.Unix()

	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", ts, SignPayload(ts, payload, testSecret))
	event, err := constructEvent(payload, header, testSecret, now)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
}

func TestConstructEventRejectsMalformedHeaders(t *testing.T) {
	payload := []byte(`{"id": "evt_123", "type": "x", "data": {"object": {}}}`)

	for _, header := range []string{"", "t=notanumber,v1=abc", "v1=abc", "t=123"} {
		_, err := constructEvent(payload, header, testSecret, time.Now())
		assert.Error(t, err, "header %q", header)
	}
}
