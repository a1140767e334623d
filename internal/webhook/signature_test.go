package webhook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func signedHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, Sign([]byte(secret), ts, body))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment_succeeded"}`)
	now := time.Now()

	v := NewVerifier(testSecret, false)
	v.now = func() time.Time { return now }

	testCases := []struct {
		name    string
		header  string
		wantErr error
	}{
		{
			name:   "valid signature",
			header: signedHeader(testSecret, now.Unix(), body),
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: ErrMissingSignature,
		},
		{
			name:    "wrong secret",
			header:  signedHeader("whsec_other", now.Unix(), body),
			wantErr: ErrBadSignature,
		},
		{
			name:    "tampered body",
			header:  signedHeader(testSecret, now.Unix(), []byte(`{"id":"evt_2"}`)),
			wantErr: ErrBadSignature,
		},
		{
			name:    "timestamp too old",
			header:  signedHeader(testSecret, now.Add(-6*time.Minute).Unix(), body),
			wantErr: ErrStaleTimestamp,
		},
		{
			name:    "timestamp in the future",
			header:  signedHeader(testSecret, now.Add(6*time.Minute).Unix(), body),
			wantErr: ErrStaleTimestamp,
		},
		{
			name:   "timestamp just inside tolerance",
			header: signedHeader(testSecret, now.Add(-4*time.Minute).Unix(), body),
		},
		{
			name:    "garbage header",
			header:  "not-a-signature",
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "missing v1 part",
			header:  fmt.Sprintf("t=%d", now.Unix()),
			wantErr: ErrMalformedSignature,
		},
		{
			name:    "non-numeric timestamp",
			header:  "t=abc,v1=deadbeef",
			wantErr: ErrMalformedSignature,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Verify(body, tc.header)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifyUnsignedModes(t *testing.T) {
	body := []byte(`{}`)

	t.Run("no secret, unsigned allowed", func(t *testing.T) {
		v := NewVerifier("", true)
		assert.NoError(t, v.Verify(body, ""))
	})

	t.Run("no secret, unsigned not allowed", func(t *testing.T) {
		v := NewVerifier("", false)
		assert.ErrorIs(t, v.Verify(body, ""), ErrBadSignature)
	})

	t.Run("secret configured overrides the dev flag", func(t *testing.T) {
		v := NewVerifier(testSecret, true)
		assert.ErrorIs(t, v.Verify(body, ""), ErrMissingSignature)
	})
}

func TestSignatureFor(t *testing.T) {
	body := []byte(`{"id":"evt_9"}`)
	v := NewVerifier(testSecret, false)
	assert.NoError(t, v.Verify(body, SignatureFor(testSecret, body)))
}
