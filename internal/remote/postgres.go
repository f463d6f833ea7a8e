package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/storage"
)

// PostgresStore keeps one JSONB payload per progress key and mirrors unlocked
// achievements into user_achievements.
type PostgresStore struct {
	db    *sql.DB
	codec storage.Codec

	migrate  func(*sql.DB) error
	prepMu   sync.Mutex
	prepared bool
}

func NewPostgresStore(db *sql.DB, codec storage.Codec) *PostgresStore {
	return &PostgresStore{db: db, codec: codec}
}

// WithMigrator makes Prepare run fn until it first succeeds.
func (s *PostgresStore) WithMigrator(fn func(*sql.DB) error) *PostgresStore {
	s.migrate = fn
	return s
}

// Prepare brings the schema up to date. After one success it is a no-op.
func (s *PostgresStore) Prepare(ctx context.Context) error {
	s.prepMu.Lock()
	defer s.prepMu.Unlock()
	if s.prepared || s.migrate == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	if err := s.migrate(s.db); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrOffline, err)
	}
	s.prepared = true
	return nil
}

// ── Progress Records ────────────────────────────────────

func (s *PostgresStore) Get(ctx context.Context, key string) (*models.ProgressRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM progress_records WHERE key = $1`,
		key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get progress %s: %w", pgKind(err), key, err)
	}

	rec, err := s.codec.DecodeProgress(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, rec *models.ProgressRecord) error {
	payload, err := s.codec.EncodeProgress(rec)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin put %s: %w", pgKind(err), key, err)
	}
	defer tx.Rollback()

	// Older snapshots never overwrite newer ones.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO progress_records (key, user_id, course_id, payload, total_xp, level, streak, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO UPDATE SET
		    payload = EXCLUDED.payload,
		    total_xp = EXCLUDED.total_xp,
		    level = EXCLUDED.level,
		    streak = EXCLUDED.streak,
		    updated_at = EXCLUDED.updated_at
		 WHERE progress_records.updated_at <= EXCLUDED.updated_at`,
		key, rec.UserID, rec.CourseID, string(payload), rec.TotalXP, rec.Level, rec.Streak, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert progress %s: %w", pgKind(err), key, err)
	}

	for _, id := range rec.Achievements {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_achievements (user_id, course_id, achievement, earned_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, course_id, achievement) DO NOTHING`,
			rec.UserID, rec.CourseID, id, updatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: award %s: %w", pgKind(err), id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit put %s: %w", pgKind(err), key, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return nil
}

// ── Achievements ────────────────────────────────────────

func (s *PostgresStore) ListAchievements(ctx context.Context, userID string) ([]models.EarnedAchievement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT course_id, achievement, earned_at FROM user_achievements
		 WHERE user_id = $1 ORDER BY earned_at, achievement`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list achievements: %w", pgKind(err), err)
	}
	defer rows.Close()

	earned := []models.EarnedAchievement{}
	for rows.Next() {
		var e models.EarnedAchievement
		if err := rows.Scan(&e.CourseID, &e.AchievementID, &e.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		earned = append(earned, e)
	}
	return earned, rows.Err()
}

// pgKind classifies a driver error. Connection exceptions (class 08),
// operator intervention (57) and resource exhaustion (53) are worth retrying.
func pgKind(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return ErrOffline
		}
		return ErrRejected
	}
	if kind := transportKind(err); kind != nil {
		return kind
	}
	return ErrRejected
}
