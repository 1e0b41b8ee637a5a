package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	// SignatureHeader carries the HMAC-SHA256 signature of a delivery.
	SignatureHeader = "X-Hub-Signature-256"
	// EventHeader carries the delivery's event type.
	EventHeader = "X-GitHub-Event"

	signaturePrefixConstant         = "sha256="
	signatureMissingMessageConstant = "webhook signature missing"
	signatureInvalidMessageConstant = "webhook signature mismatch"
)

var (
	// ErrSignatureMissing indicates a delivery without a signature while a secret is configured.
	ErrSignatureMissing = errors.New(signatureMissingMessageConstant)
	// ErrSignatureInvalid indicates a signature that does not match the payload.
	ErrSignatureInvalid = errors.New(signatureInvalidMessageConstant)
)

// VerifySignature checks signatureHeader against the HMAC-SHA256 of payload. An empty secret
// disables verification.
func VerifySignature(secret string, payload []byte, signatureHeader string) error {
	if len(secret) == 0 {
		return nil
	}
	trimmedHeader := strings.TrimSpace(signatureHeader)
	if len(trimmedHeader) == 0 {
		return ErrSignatureMissing
	}
	if !strings.HasPrefix(trimmedHeader, signaturePrefixConstant) {
		return ErrSignatureInvalid
	}
	providedSignature, decodeError := hex.DecodeString(strings.TrimPrefix(trimmedHeader, signaturePrefixConstant))
	if decodeError != nil {
		return ErrSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), providedSignature) {
		return ErrSignatureInvalid
	}
	return nil
}

// Sign returns the signature header value for payload.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefixConstant + hex.EncodeToString(mac.Sum(nil))
}
