// Package serial splits device serial numbers into a model prefix and a numeric suffix.
package serial

import (
	"strconv"
	"strings"

	"warranty/internal/apperr"
)

// Parse returns the longest leading non-digit run as prefix and the remaining
// digits as number. The prefix may be empty; the number may not.
func Parse(s string) (string, int64, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if i < 0 {
		return "", 0, apperr.ErrInvalidSerialNumber
	}
	prefix, digits := s[:i], s[i:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", 0, apperr.ErrInvalidSerialNumber
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", 0, apperr.ErrInvalidSerialNumber
	}
	return prefix, n, nil
}

// ValidPrefix reports whether p can ever be produced by Parse.
func ValidPrefix(p string) bool {
	if p != strings.TrimSpace(p) {
		return false
	}
	return !strings.ContainsAny(p, "0123456789")
}
