// Package pagination implements opaque keyset cursors for the visit and
// alert listing endpoints. Results are ordered newest-first, so a cursor
// pins the (timestamp, id) pair of the last row the client has seen.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for any cursor the server did not mint.
// The message is deliberately uniform so callers can pass it straight
// through to the API response.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded position in a result set. The ID breaks ties
// between rows sharing a timestamp.
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// Encode packs a (timestamp, id) pair into an opaque URL-safe token.
func Encode(ts time.Time, id string) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(ts.UnixNano(), 10) + "|" + id))
}

// Decode unpacks a cursor token. An empty token decodes to nil, meaning
// the first page.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosStr, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Timestamp: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// ComputePage trims a limit+1 fetch down to the page the client asked
// for. When an extra row came back, the returned cursor points at the
// last row kept and hasMore is true.
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	ts, id := extractKey(items[len(items)-1])
	return items, Encode(ts, id), true
}
