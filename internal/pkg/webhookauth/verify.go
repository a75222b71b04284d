// Package webhookauth checks provider webhook signatures with the Svix
// SDK. Signatures arrive in the svix-id, svix-timestamp and svix-signature
// headers and are accepted within a five minute window.
package webhookauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

const secretPrefix = "whsec_"

// ErrInvalidSecret is returned by New for secrets that are not
// "whsec_<base64>".
var ErrInvalidSecret = errors.New("webhook signing secret must be whsec_<base64>")

// Verifier checks request signatures against one signing secret.
type Verifier struct {
	wh *svix.Webhook
}

// New builds a Verifier for a "whsec_<base64>" secret.
func New(secret string) (*Verifier, error) {
	if !strings.HasPrefix(secret, secretPrefix) {
		return nil, ErrInvalidSecret
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return &Verifier{wh: wh}, nil
}

// Verify checks the signature headers of a request against body.
func (v *Verifier) Verify(body []byte, header http.Header) error {
	return v.wh.Verify(body, header)
}

// Sign returns the svix-signature header value for a message. Used by
// tests and tooling.
func (v *Verifier) Sign(id string, at time.Time, body []byte) (string, error) {
	return v.wh.Sign(id, at, body)
}

// Headers returns a complete set of signature headers for body.
func (v *Verifier) Headers(id string, at time.Time, body []byte) (http.Header, error) {
	sig, err := v.Sign(id, at, body)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set(HeaderID, id)
	h.Set(HeaderTimestamp, fmt.Sprintf("%d", at.Unix()))
	h.Set(HeaderSignature, sig)
	return h, nil
}
