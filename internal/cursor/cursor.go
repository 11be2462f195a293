// Package cursor encodes opaque pagination cursors and implements the
// fetch-one-extra page protocol shared by list endpoints.
package cursor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/gofrs/uuid/v5"
)

// Page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Position identifies the last item a client has seen.
type Position struct {
	LastID uuid.UUID `json:"last_id"`
}

// Encode returns the opaque cursor for p.
func Encode(p Position) string {
	b, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses s. It never fails loudly: anything undecodable yields false.
// Padded input is accepted for clients that re-pad the cursor.
func Decode(s string) (Position, bool) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if s == "" {
		return Position{}, false
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Position{}, false
	}
	var p Position
	if err := json.Unmarshal(raw, &p); err != nil || p.LastID.IsNil() {
		return Position{}, false
	}
	return p, true
}

// ClampPageSize maps a requested size into 1..maxSize, using def when n is not positive.
func ClampPageSize(n, def, maxSize int) int {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if def <= 0 || def > maxSize {
		def = min(DefaultPageSize, maxSize)
	}
	switch {
	case n <= 0:
		return def
	case n > maxSize:
		return maxSize
	}
	return n
}

// Page is one slice of a listing. NextCursor is nil on the last page.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor"`
}

// FetchFunc loads up to limit items strictly after the given id (from the start when nil).
type FetchFunc[T any] func(ctx context.Context, after *uuid.UUID, limit int) ([]T, error)

// Paginate runs the page protocol: decode raw, fetch pageSize+1 items, trim the
// extra one and derive the next cursor from the last returned item's id.
// An undecodable cursor starts from the beginning.
func Paginate[T any](ctx context.Context, pageSize int, raw string, fetch FetchFunc[T], id func(T) uuid.UUID) (Page[T], error) {
	var after *uuid.UUID
	if p, ok := Decode(raw); ok {
		after = &p.LastID
	}
	items, err := fetch(ctx, after, pageSize+1)
	if err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Items: items}
	if len(items) > pageSize {
		page.Items = items[:pageSize]
		next := Encode(Position{LastID: id(page.Items[pageSize-1])})
		page.NextCursor = &next
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}
