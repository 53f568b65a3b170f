// Package apperr holds the error taxonomy shared by the orchestrator and its
// remote collaborators. Decode failures live in package audio.
package apperr

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a remote call that exceeded its deadline.
var ErrTimeout = errors.New("remote call timed out")

// RemoteServiceError is a failed LLM/TTS/STT call. It aborts the current turn only.
type RemoteServiceError struct {
	Service    string // "llm", "tts", "stt"
	Op         string
	StatusCode int // 0 for transport errors
	Err        error
}

func (e *RemoteServiceError) Error() string {
	msg := e.Service + " " + e.Op
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// Remote builds a RemoteServiceError.
func Remote(service, op string, status int, err error) *RemoteServiceError {
	return &RemoteServiceError{Service: service, Op: op, StatusCode: status, Err: err}
}

// ProtocolError is an unrecognized command, speaker or mismatched turn kind.
// It is logged and ignored.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Reason }

// Protocolf builds a ProtocolError.
func Protocolf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError is a missing or invalid startup parameter. Fatal.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return "config: " + e.Key + " is required"
	}
	return "config: " + e.Key + ": " + e.Reason
}

// MissingConfig reports a required key that was not set.
func MissingConfig(key string) *ConfigurationError {
	return &ConfigurationError{Key: key}
}

// IsRemote reports whether err is (or wraps) a RemoteServiceError.
func IsRemote(err error) bool {
	var re *RemoteServiceError
	return errors.As(err, &re)
}
