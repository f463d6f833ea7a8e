// Package remote holds the clients for the system-of-record store. Every
// failure is reported as ErrNotFound, ErrOffline or ErrRejected so callers
// can tell "try later" from "server said no".
package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/medmentor/backend/internal/models"
)

var (
	ErrNotFound = errors.New("remote: record not found")
	ErrOffline  = errors.New("remote: unreachable")
	ErrRejected = errors.New("remote: request rejected")
)

type Store interface {
	Get(ctx context.Context, key string) (*models.ProgressRecord, error)
	Put(ctx context.Context, key string, rec *models.ProgressRecord) error
	Ping(ctx context.Context) error
}

// AchievementLister is implemented by stores that keep a per-user ledger of
// unlocked achievements.
type AchievementLister interface {
	ListAchievements(ctx context.Context, userID string) ([]models.EarnedAchievement, error)
}

// Preparer is implemented by stores that need one-time setup, such as schema
// migrations, before they accept writes. Prepare is safe to call repeatedly and
// returns an ErrOffline-wrapped error while setup cannot complete.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// IsOffline reports whether err means the remote could not be reached.
func IsOffline(err error) bool { return errors.Is(err, ErrOffline) }

// transportKind maps transport-level failures to ErrOffline. It returns nil
// when err does not look like a connectivity problem.
func transportKind(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &ne):
		return ErrOffline
	}
	return nil
}
