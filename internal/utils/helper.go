package utils

import (
	"log/slog"
	"os"
	"regexp"
)

// API keys travel in query parameters and Authorization headers; both forms
// leak easily through wrapped transport errors. Compiled once.
var (
	keyPattern    = regexp.MustCompile(`([?&])(api[_\-]?[kK]ey|key)=([^&\s"]+)`)
	bearerPattern = regexp.MustCompile(`Bearer\s+([A-Za-z0-9_\-\.]+)`)
)

// MaskSensitiveData masks API keys and bearer tokens in strings so error
// messages and URLs can be logged safely.
func MaskSensitiveData(s string) string {
	if s == "" {
		return s
	}
	s = keyPattern.ReplaceAllString(s, `${1}${2}=***MASKED***`)
	s = bearerPattern.ReplaceAllString(s, `Bearer ***MASKED***`)
	return s
}

// MaskSensitiveError wraps an error so sensitive data is masked when the
// error is rendered to a string. The original error stays reachable through
// Unwrap.
func MaskSensitiveError(err error) error {
	if err == nil {
		return nil
	}
	return &maskedError{err: err}
}

type maskedError struct {
	err error
}

func (e *maskedError) Error() string {
	return MaskSensitiveData(e.err.Error())
}

func (e *maskedError) Unwrap() error {
	return e.err
}

// ExitOnError logs the (masked) error and terminates the process.
func ExitOnError(msg string, err error) {
	slog.Error(msg, "err", MaskSensitiveError(err))
	os.Exit(1)
}
