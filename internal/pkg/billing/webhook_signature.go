package billing

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
)

// CanonicalJSON re-serializes a JSON document with object keys sorted at every
// nesting level. Number literals are kept verbatim.
func CanonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("canonical json: trailing data after document")
	}

	// encoding/json writes map keys in sorted order, which covers nested objects.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// SignIPN returns the lowercase hex HMAC-SHA512 of the canonical body.
func SignIPN(body []byte, secret string) (string, error) {
	canonical, err := CanonicalJSON(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyIPNSignature checks the x-nowpayments-sig header against the body.
// It never succeeds without a secret.
func VerifyIPNSignature(body []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}

	canonical, err := CanonicalJSON(body)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(canonical)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// Verifier applies the environment policy on top of VerifyIPNSignature.
type Verifier struct {
	Secret     string
	Production bool
}

// Verify returns nil when the body may be processed. Outside production a
// missing secret is tolerated so local testing works without gateway access.
func (v Verifier) Verify(body []byte, signatureHeader string) error {
	if strings.TrimSpace(v.Secret) == "" {
		if !v.Production {
			log.Warn("[Webhook] NOWPAYMENTS_IPN_SECRET is empty, skipping signature check outside production")
			return nil
		}
		return ErrSecretNotConfigured
	}
	if !VerifyIPNSignature(body, signatureHeader, v.Secret) {
		return ErrInvalidSignature
	}
	return nil
}
