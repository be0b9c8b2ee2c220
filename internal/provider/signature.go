package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// FreshnessPolicy bounds how old or futuristic a signed timestamp may be.
// Zero values fall back to the defaults (5 minute window, 60s future skew).
type FreshnessPolicy struct {
	MaxAge        time.Duration
	MaxFutureSkew time.Duration
}

func (p FreshnessPolicy) maxAge() time.Duration {
	if p.MaxAge <= 0 {
		return 5 * time.Minute
	}
	return p.MaxAge
}

func (p FreshnessPolicy) maxFutureSkew() time.Duration {
	if p.MaxFutureSkew <= 0 {
		return 60 * time.Second
	}
	return p.MaxFutureSkew
}

// CheckFreshness validates a unix-seconds timestamp header value against the
// policy. An unparsable value is a stale timestamp, not an internal error.
func (p FreshnessPolicy) CheckFreshness(tsValue string, now time.Time) error {
	secs, err := strconv.ParseInt(tsValue, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparsable timestamp", ErrStaleTimestamp)
	}
	ts := time.Unix(secs, 0)
	if now.Sub(ts) > p.maxAge() {
		return ErrStaleTimestamp
	}
	if ts.Sub(now) > p.maxFutureSkew() {
		return ErrFutureTimestamp
	}
	return nil
}

// hmacSHA256 computes the raw HMAC-SHA256 of msg under secret.
func hmacSHA256(secret string, msg []byte) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(msg)
	return h.Sum(nil)
}

// verifyHMACHex checks a hex-encoded HMAC-SHA256 signature over msg.
// Decoding failures and length mismatches report an invalid signature.
func verifyHMACHex(secret, signature string, msg []byte) error {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, hmacSHA256(secret, msg)) {
		return ErrInvalidSignature
	}
	return nil
}

// verifyHMACBase64 checks a base64-encoded HMAC-SHA256 signature over msg.
func verifyHMACBase64(secret, signature string, msg []byte) error {
	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, hmacSHA256(secret, msg)) {
		return ErrInvalidSignature
	}
	return nil
}

// verifyStaticToken compares a pre-shared token in constant time.
func verifyStaticToken(expected, presented string) error {
	if expected == "" || presented == "" {
		return ErrMissingSignature
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
