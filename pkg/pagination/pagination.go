// Package pagination implements keyset paging over (timestamp, id) ordered
// event lists.
package pagination

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// cursorLen is 8 bytes of unix nanoseconds followed by the 16 id bytes.
const cursorLen = 8 + 16

var ErrInvalidCursor = errors.New("invalid cursor")

type Params struct {
	Limit  int
	Cursor string
}

// Cursor is the position of the last row on a page.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

type Page[T any] struct {
	Items      []T
	NextCursor string
}

// NormalizeLimit clamps limit into (0, MaxLimit], substituting DefaultLimit
// for non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so one extra row signals a
// further page.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

// BuildPage cuts rows fetched with LimitWithBuffer to the page size. When a
// row was cut, NextCursor points at the last kept row.
func BuildPage[T any](rows []T, limit int, cursorOf func(T) Cursor) Page[T] {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return Page[T]{Items: rows}
	}
	rows = rows[:size]
	return Page[T]{Items: rows, NextCursor: EncodeCursor(cursorOf(rows[size-1]))}
}

func EncodeCursor(c Cursor) string {
	buf := make([]byte, cursorLen)
	binary.BigEndian.PutUint64(buf, uint64(c.At.UnixNano()))
	copy(buf[8:], c.ID[:])
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ParseCursor returns nil for an empty value.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if len(raw) != cursorLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidCursor, len(raw))
	}
	c := &Cursor{At: time.Unix(0, int64(binary.BigEndian.Uint64(raw))).UTC()}
	copy(c.ID[:], raw[8:])
	return c, nil
}
