// Package storage is the local durable key-value layer. Values are opaque
// bytes; typed access goes through a Codec.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrNotFound      = errors.New("storage: key not found")
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// ── Keys ────────────────────────────────────────────────

const (
	progressPrefix = "progress:"

	// QueueKey holds the persisted offline operation queue.
	QueueKey = "sync:queue"
)

// ProgressKey is the composite key of one user × course record. Components are
// escaped so ids containing ':' stay unambiguous.
func ProgressKey(userID, courseID string) string {
	return progressPrefix + url.QueryEscape(userID) + ":" + url.QueryEscape(courseID)
}

// ProgressPrefix lists every record key of a user.
func ProgressPrefix(userID string) string {
	return progressPrefix + url.QueryEscape(userID) + ":"
}

func ParseProgressKey(key string) (userID, courseID string, err error) {
	rest, ok := strings.CutPrefix(key, progressPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a progress key: %q", key)
	}
	u, c, ok := strings.Cut(rest, ":")
	if !ok || u == "" || c == "" {
		return "", "", fmt.Errorf("malformed progress key: %q", key)
	}
	if userID, err = url.QueryUnescape(u); err != nil {
		return "", "", fmt.Errorf("unescape user id: %w", err)
	}
	if courseID, err = url.QueryUnescape(c); err != nil {
		return "", "", fmt.Errorf("unescape course id: %w", err)
	}
	return userID, courseID, nil
}
