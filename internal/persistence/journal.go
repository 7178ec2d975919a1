// Package persistence records actuation changes so they can be listed later.
package persistence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/moodsync/internal/domain"
)

// Sources of a journal entry.
const (
	SourceManual = "manual"
)

// ErrInvalidCursor is returned for a page token that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid cursor")

// Entry is one applied environment change.
type Entry struct {
	ID         string                   `json:"id"`
	State      domain.MentalState       `json:"mentalState"`
	Confidence float64                  `json:"confidence"`
	Source     string                   `json:"source"`
	Annotation string                   `json:"annotation,omitempty"`
	Reasoning  string                   `json:"reasoning,omitempty"`
	Reading    *domain.Reading          `json:"reading,omitempty"`
	Settings   domain.ActuationSettings `json:"settings"`
	RecordedAt time.Time                `json:"recordedAt"`
}

// Cursor marks the last entry of a page. Pages run newest first.
type Cursor struct {
	RecordedAt time.Time
	ID         string
}

// Journal stores entries and lists them newest first.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, cursor *Cursor, limit int) ([]Entry, *Cursor, error)
}

// EncodeCursor serialises the cursor to a string token.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	raw := fmt.Sprintf("%s|%s", c.RecordedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token is a nil cursor.
func DecodeCursor(token string) (*Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, ErrInvalidCursor
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{RecordedAt: ts, ID: parts[1]}, nil
}

// Before reports whether e sorts after the cursor in newest-first order.
func (c *Cursor) Before(e Entry) bool {
	if c == nil {
		return true
	}
	if e.RecordedAt.Equal(c.RecordedAt) {
		return e.ID < c.ID
	}
	return e.RecordedAt.Before(c.RecordedAt)
}
