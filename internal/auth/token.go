package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
	ErrTokenSID    = errors.New("session id mismatch")
	ErrNoSecret    = errors.New("bridge token secret not configured")
)

// GenerateBridgeToken builds the bearer token a playback bridge presents.
// Format: base64url(session_id + "." + exp_unix + "." + hex(hmac_sha256(secret, session_id+"."+exp)))
func GenerateBridgeToken(secret, sessionID string, expUnix int64) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return "", ErrTokenFormat
	}
	msg := sessionID + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// IssueBridgeToken is GenerateBridgeToken with an expiry ttl after now.
func IssueBridgeToken(secret, sessionID string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl).UTC().Truncate(time.Second)
	tok, err := GenerateBridgeToken(secret, sessionID, exp.Unix())
	return tok, exp, err
}

// ValidateBridgeToken parses and validates the token.
// Returns the embedded sessionID and exp. A token is accepted up to
// skewSeconds after exp.
func ValidateBridgeToken(secret, token, expectSessionID string, now time.Time, skewSeconds int) (string, int64, error) {
	if secret == "" {
		return "", 0, ErrNoSecret
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", 0, ErrTokenFormat
	}
	sid, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	if expectSessionID != "" && sid != expectSessionID {
		return "", 0, ErrTokenSID
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	want, _ := hex.DecodeString(sign(secret, sid+"."+expStr))
	// constant-time compare
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return sid, exp, nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}
