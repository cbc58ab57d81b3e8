package repository

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"chronograph-backend/internal/domain"
)

// Pagination represents cursor-based pagination parameters.
type Pagination struct {
	Limit  int    `json:"limit"`
	Cursor string `json:"cursor,omitempty"`
}

// Constants for pagination
const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
)

// Validate checks if pagination parameters are valid.
func (p Pagination) Validate() error {
	if p.Limit < 0 {
		return NewInvalidQuery("Limit", "cannot be negative")
	}
	if p.Limit > MaxPageSize {
		return NewInvalidQuery("Limit", fmt.Sprintf("cannot exceed %d", MaxPageSize))
	}
	return nil
}

// GetEffectiveLimit returns the limit to use, with a default if not specified.
func (p Pagination) GetEffectiveLimit() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		return MaxPageSize
	}
	return p.Limit
}

// HasCursor returns true if cursor-based pagination is being used.
func (p Pagination) HasCursor() bool {
	return p.Cursor != ""
}

// PaginatedResult represents a paginated response with metadata.
type PaginatedResult[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// EntityPage represents a paginated list of entities.
type EntityPage = PaginatedResult[*domain.Entity]

// CursorData is the decoded form of a pagination cursor: the last key the
// previous page ended on, in store-specific terms.
type CursorData struct {
	LastKey   string `json:"last_key"`
	Timestamp int64  `json:"timestamp"`
}

// EncodeCursor creates an opaque base64 cursor from the last evaluated key.
func EncodeCursor(lastKey string) string {
	if lastKey == "" {
		return ""
	}
	data, err := json.Marshal(CursorData{
		LastKey:   lastKey,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes an opaque cursor back to the last evaluated key.
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	data, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid cursor format: %w", err)
	}
	var cd CursorData
	if err := json.Unmarshal(data, &cd); err != nil {
		return "", fmt.Errorf("invalid cursor data: %w", err)
	}
	return cd.LastKey, nil
}
