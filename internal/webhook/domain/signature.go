package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const signaturePrefix = "sha256="

// ValidateSignature checks an HMAC-SHA256 of rawBody. The header is either
// "sha256=<hex>" or bare hex. A mismatch or undecodable hex is (false, nil);
// errors are reserved for calls that cannot be validated at all.
func ValidateSignature(rawBody []byte, header, secret string) (bool, error) {
	if secret == "" {
		return false, errors.New("webhook secret is empty")
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return false, errors.New("signature header is empty")
	}

	if len(header) >= len(signaturePrefix) && strings.EqualFold(header[:len(signaturePrefix)], signaturePrefix) {
		header = header[len(signaturePrefix):]
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(got, mac.Sum(nil)), nil
}

// Sign returns the header value a sender would attach for rawBody.
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
