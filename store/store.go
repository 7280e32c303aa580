// Package store persists the client session as fixed logical keys mapped to
// pre-serialized string values. Expiry is a value checked by the caller; no
// implementation enforces a TTL.
package store

import (
	"context"
	"strconv"
	"time"
)

// Key is a namespaced logical storage key.
type Key string

const (
	KeyUser         Key = "@dentalization/user"
	KeyToken        Key = "@dentalization/token"
	KeyRefreshToken Key = "@dentalization/refreshToken"
	KeyRememberMe   Key = "@dentalization/rememberMe"
	KeyLastLogin    Key = "@dentalization/lastLogin"
	KeyTokenExpiry  Key = "@dentalization/tokenExpiry"
)

// SessionKeys lists every key owned by a session.
var SessionKeys = []Key{KeyUser, KeyToken, KeyRefreshToken, KeyRememberMe, KeyLastLogin, KeyTokenExpiry}

// Store is a batched key/value store that survives process restarts.
//
// Write is best effort: an implementation may apply part of a batch before
// failing and does not roll back. ReadAll returns a nil value for a missing key
// rather than an error. Clear is idempotent.
type Store interface {
	Write(ctx context.Context, entries map[Key]string) error
	ReadAll(ctx context.Context, keys []Key) (map[Key]*string, error)
	Clear(ctx context.Context, keys []Key) error
	Close() error
}

// ISO-8601 with millisecond precision, the format the mobile client writes.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime serializes t as a UTC ISO-8601 timestamp.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime parses a timestamp written by FormatTime or any RFC 3339 value.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func FormatBool(b bool) string {
	return strconv.FormatBool(b)
}

// ParseBool treats anything but "true" as false.
func ParseBool(s *string) bool {
	return s != nil && *s == "true"
}
