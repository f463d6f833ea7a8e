package remote

import (
	"context"
	"sort"
	"sync"

	"github.com/medmentor/backend/internal/models"
)

// MemoryStore is an in-process remote used by tests and the dev server. It can
// be switched offline and scripted to fail upcoming calls.
type MemoryStore struct {
	mu       sync.Mutex
	data     map[string]*models.ProgressRecord
	offline  bool
	failures []error
	puts     []string

	// BeforePut, when set, runs before every Put outside the lock.
	BeforePut func(ctx context.Context, key string)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*models.ProgressRecord)}
}

func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	m.offline = offline
	m.mu.Unlock()
}

// FailNext makes the next len(errs) Get/Put calls return these errors in order.
func (m *MemoryStore) FailNext(errs ...error) {
	m.mu.Lock()
	m.failures = append(m.failures, errs...)
	m.mu.Unlock()
}

// Puts returns the keys of successful writes in order.
func (m *MemoryStore) Puts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.puts...)
}

// Record returns a copy of what is stored under key, or nil.
func (m *MemoryStore) Record(key string) *models.ProgressRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key].Clone()
}

func (m *MemoryStore) Get(ctx context.Context, key string) (*models.ProgressRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failLocked(); err != nil {
		return nil, err
	}
	rec, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, rec *models.ProgressRecord) error {
	if m.BeforePut != nil {
		m.BeforePut(ctx, key)
	}
	if err := ctx.Err(); err != nil {
		return ErrOffline
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failLocked(); err != nil {
		return err
	}
	m.data[key] = rec.Clone()
	m.puts = append(m.puts, key)
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return ErrOffline
	}
	return nil
}

func (m *MemoryStore) ListAchievements(ctx context.Context, userID string) ([]models.EarnedAchievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return nil, ErrOffline
	}
	earned := []models.EarnedAchievement{}
	for _, rec := range m.data {
		if rec.UserID != userID {
			continue
		}
		for _, id := range rec.Achievements {
			earned = append(earned, models.EarnedAchievement{CourseID: rec.CourseID, AchievementID: id, EarnedAt: rec.UpdatedAt})
		}
	}
	sort.Slice(earned, func(i, j int) bool {
		if earned[i].CourseID != earned[j].CourseID {
			return earned[i].CourseID < earned[j].CourseID
		}
		return earned[i].AchievementID < earned[j].AchievementID
	})
	return earned, nil
}

func (m *MemoryStore) failLocked() error {
	if m.offline {
		return ErrOffline
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	return nil
}
