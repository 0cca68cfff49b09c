// Package webhook signs, verifies and delivers state-change notifications to
// agent-supplied callback URLs.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	SignatureHeader = "X-HumanPages-Signature"
	EventHeader     = "X-HumanPages-Event"
	DeliveryHeader  = "X-HumanPages-Delivery"

	signaturePrefix = "sha256="
	maxBodyBytes    = 1 << 20
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// Sign returns the signature header value for body: sha256=<hex hmac>.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the HMAC over body and compares it with signature in
// constant time. The sha256= prefix is optional.
func Verify(secret string, body []byte, signature string) bool {
	if secret == "" {
		return false
	}
	got := strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	gotRaw, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(gotRaw, mac.Sum(nil))
}

// VerifyRequest reads and checks an incoming webhook. It returns the raw body
// and restores r.Body so handlers can decode it again.
func VerifyRequest(r *http.Request, secret string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !Verify(secret, body, r.Header.Get(SignatureHeader)) {
		return nil, ErrBadSignature
	}
	return body, nil
}
