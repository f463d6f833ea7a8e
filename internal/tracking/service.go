// Package tracking is the sync coordinator between the UI, the local store
// and the remote store. Writes land locally first; remote writes that cannot
// happen now are queued and drained when connectivity returns.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medmentor/backend/internal/clock"
	"github.com/medmentor/backend/internal/connectivity"
	"github.com/medmentor/backend/internal/models"
	"github.com/medmentor/backend/internal/platform/logger"
	"github.com/medmentor/backend/internal/progress"
	"github.com/medmentor/backend/internal/remote"
	"github.com/medmentor/backend/internal/storage"
)

const (
	DefaultMaxRetries = 3
	DefaultOpTimeout  = 10 * time.Second

	MinDailyGoal = 5
	MaxDailyGoal = 600
)

// ErrNoLedger is returned by ListEarned when the remote store keeps no
// per-user achievement ledger.
var ErrNoLedger = errors.New("remote store keeps no achievement ledger")

type CourseSource interface {
	Course(id string) (*models.Course, bool)
}

type Deps struct {
	Local        storage.Store
	Remote       remote.Store
	Engine       *progress.Engine
	Connectivity connectivity.Signal
	Clock        clock.Clock
	Courses      CourseSource
	Log          *logger.Logger
}

type Options struct {
	Codec            storage.Codec
	Window           StudyWindow
	MaxRetries       int
	OpTimeout        time.Duration
	DefaultDailyGoal int

	// OnPermanentFailure is called for every operation dropped after the
	// retry ceiling. It runs on the draining goroutine.
	OnPermanentFailure func(*PermanentSyncError)
}

type Service struct {
	local   storage.Store
	remote  remote.Store
	engine  *progress.Engine
	conn    connectivity.Signal
	clock   clock.Clock
	courses CourseSource
	log     *logger.Logger
	opts    Options

	queue    *queue
	keyLocks sync.Map
	draining atomic.Bool

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	lifeMu      sync.Mutex
	closed      bool

	statusMu sync.Mutex
	dropped  int
	users    map[string]*userSync
}

// userSync is the part of the sync status that belongs to one user.
type userSync struct {
	lastSyncAt *time.Time
	lastError  string
	dropped    int
}

func NewService(d Deps, o Options) *Service {
	if d.Clock == nil {
		d.Clock = clock.System{Location: o.Codec.Location}
	}
	if d.Engine == nil {
		d.Engine = progress.NewEngine(nil, d.Clock, 0)
	}
	if d.Connectivity == nil {
		d.Connectivity = connectivity.NewManual(true)
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = DefaultOpTimeout
	}
	if o.Window == (StudyWindow{}) {
		o.Window = DefaultStudyWindow()
	}
	log := d.Log.With("component", "tracking")

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		local:   d.Local,
		remote:  d.Remote,
		engine:  d.Engine,
		conn:    d.Connectivity,
		clock:   d.Clock,
		courses: d.Courses,
		log:     log,
		opts:    o,
		queue:   newQueue(d.Local, o.Codec, log),
		ctx:     ctx,
		cancel:  cancel,
		users:   map[string]*userSync{},
	}
}

// ── Lifecycle ───────────────────────────────────────────

// Start restores the persisted queue and begins draining on every offline to
// online transition. A queue that cannot be read is logged and left empty.
func (s *Service) Start(ctx context.Context) {
	if err := s.queue.restore(ctx); err != nil {
		s.log.Error("failed to restore offline queue", "error", err)
	} else if n := s.queue.len(); n > 0 {
		s.log.Info("restored offline queue", "pending", n)
	}

	s.unsubscribe = s.conn.Subscribe(func(online bool) {
		if online {
			s.drainAsync()
		}
	})
	if s.conn.Online() && s.queue.len() > 0 {
		s.drainAsync()
	}
}

// Close stops reacting to connectivity and waits for running drains. A
// transition delivered after Close starts nothing.
func (s *Service) Close() {
	s.lifeMu.Lock()
	s.closed = true
	s.lifeMu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
}

// drainAsync starts a background drain and reports whether it did.
func (s *Service) drainAsync() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.Drain(s.ctx)
		if !res.Skipped && res.Attempted > 0 {
			s.log.Info("offline queue drained",
				"synced", res.Synced, "retried", res.Retried, "dropped", res.Dropped, "deferred", res.Deferred)
		}
	}()
	return true
}

// ── Progress ────────────────────────────────────────────

// SaveProgress applies one UI event to the record. The local write happens
// before anything remote; remote failures are queued, not returned.
func (s *Service) SaveProgress(ctx context.Context, upd models.ProgressUpdate) (*models.SaveProgressResponse, error) {
	if err := validateIdentity(upd.UserID, upd.CourseID); err != nil {
		return nil, err
	}
	if err := required("lesson_id", upd.LessonID); err != nil {
		return nil, err
	}

	var unlocked []models.UnlockedAchievement
	rec, queued := s.apply(ctx, models.OpSaveProgress, upd.UserID, upd.CourseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			unlocked = s.applyUpdate(rec, course, upd)
			return true
		})
	return &models.SaveProgressResponse{Record: rec, AchievementsUnlocked: unlocked, Queued: queued}, nil
}

func (s *Service) applyUpdate(rec *models.ProgressRecord, course *models.Course, upd models.ProgressUpdate) []models.UnlockedAchievement {
	now := s.clock.Now()
	unlocked := []models.UnlockedAchievement{}
	add := func(u *models.UnlockedAchievement) {
		if u != nil {
			unlocked = append(unlocked, *u)
		}
	}

	minutes := max(upd.MinutesWatched, 0)
	rec.TimeSpent += minutes

	if upd.PositionSeconds > 0 || upd.DurationSeconds > 0 {
		if rec.LessonPositions == nil {
			rec.LessonPositions = map[string]models.LessonPosition{}
		}
		rec.LessonPositions[upd.LessonID] = models.LessonPosition{
			PositionSeconds: max(upd.PositionSeconds, 0),
			DurationSeconds: max(upd.DurationSeconds, 0),
			UpdatedAt:       now,
		}
	}
	if upd.SessionMinutes > 0 {
		if rec.TotalSessionMinutes == 0 && rec.SessionCount > 0 {
			// Records written before the total was kept.
			rec.TotalSessionMinutes = rec.AverageSessionDuration * rec.SessionCount
		}
		rec.TotalSessionMinutes += upd.SessionMinutes
		rec.SessionCount++
		rec.AverageSessionDuration = int(math.Round(float64(rec.TotalSessionMinutes) / float64(rec.SessionCount)))
	}
	rec.NotesCount += max(upd.NotesAdded, 0)
	rec.BookmarksCount += max(upd.BookmarksAdded, 0)

	if upd.PlaybackSpeed > 0 {
		rec.PreferredSpeed = upd.PlaybackSpeed
		add(s.engine.TriggerSpeedAchievement(rec, upd.PlaybackSpeed))
	}

	today := s.engine.Today(rec)
	lessons := today.LessonsCompletedThatDay
	if upd.Completed {
		if res := s.engine.MarkLessonCompleted(rec, upd.LessonID, course); !res.AlreadyCompleted {
			lessons++
		}
	}
	if minutes > 0 || lessons != today.LessonsCompletedThatDay {
		s.engine.UpdateDailyProgress(rec, today.MinutesWatched+minutes, lessons)
	}

	if minutes > 0 || upd.Completed {
		if s.opts.Window.IsLate(now) {
			add(s.engine.TriggerLateStudy(rec))
		}
		if s.opts.Window.IsEarly(now) {
			add(s.engine.TriggerEarlyStudy(rec))
		}
	}
	add(s.engine.TriggerPerfectWeek(rec))
	return append(unlocked, s.engine.CheckAchievements(rec, course)...)
}

// LoadProgress prefers the remote copy when online and nothing is queued for
// the key, and falls back to the local cache, then to a fresh default record.
// The streak is recomputed against today on every load.
func (s *Service) LoadProgress(ctx context.Context, userID, courseID string) (*models.ProgressRecord, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}
	key := storage.ProgressKey(userID, courseID)
	unlock := s.lock(key)
	defer unlock()

	rec := s.read(ctx, key, userID, courseID)
	s.engine.RefreshStreak(rec)
	return rec, nil
}

func (s *Service) read(ctx context.Context, key, userID, courseID string) *models.ProgressRecord {
	// Queued writes are newer than whatever the remote holds.
	if s.conn.Online() && !s.queue.pendingFor(key) {
		if rec, err := s.getRemote(ctx, key); err == nil {
			s.saveLocal(ctx, key, rec)
			return rec
		}
	}
	if rec, ok := s.loadLocal(ctx, key); ok {
		return rec
	}
	return s.newRecord(userID, courseID)
}

// ListProgress returns every record of the user held in the local store,
// ordered by key. Streaks are recomputed as in LoadProgress.
func (s *Service) ListProgress(ctx context.Context, userID string) ([]*models.ProgressRecord, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	prefix := storage.ProgressPrefix(userID)
	keys, err := s.local.Keys(ctx, prefix)
	if err != nil {
		return nil, &LocalStorageError{Op: "list", Key: prefix, Err: err}
	}

	recs := make([]*models.ProgressRecord, 0, len(keys))
	for _, key := range keys {
		unlock := s.lock(key)
		rec, ok := s.loadLocal(ctx, key)
		unlock()
		if !ok {
			continue
		}
		s.engine.RefreshStreak(rec)
		recs = append(recs, rec)
	}
	return recs, nil
}

// current returns the record a write should start from: local first, then
// remote for a device that has never seen the course.
func (s *Service) current(ctx context.Context, key, userID, courseID string) *models.ProgressRecord {
	if rec, ok := s.loadLocal(ctx, key); ok {
		return rec
	}
	if s.conn.Online() {
		if rec, err := s.getRemote(ctx, key); err == nil {
			return rec
		}
	}
	return s.newRecord(userID, courseID)
}

// MarkLessonCompleted completes a lesson, derives modules and counts it
// toward today's entry.
func (s *Service) MarkLessonCompleted(ctx context.Context, userID, courseID, lessonID string) (*models.LessonCompleteResponse, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}
	if err := required("lesson_id", lessonID); err != nil {
		return nil, err
	}

	resp := &models.LessonCompleteResponse{ModulesCompleted: []string{}, AchievementsUnlocked: []models.UnlockedAchievement{}}
	rec, _ := s.apply(ctx, models.OpMarkCompleted, userID, courseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			today := s.engine.Today(rec)
			res := s.engine.MarkLessonCompleted(rec, lessonID, course)
			if res.AlreadyCompleted {
				return false
			}
			s.engine.UpdateDailyProgress(rec, today.MinutesWatched, today.LessonsCompletedThatDay+1)
			resp.XPAwarded = res.XPAwarded
			resp.ModulesCompleted = res.ModulesCompleted
			resp.AchievementsUnlocked = s.engine.CheckAchievements(rec, course)
			return true
		})
	resp.Record = rec
	return resp, nil
}

// UpdateDailyProgress sets today's totals (not increments) and re-evaluates
// streak based achievements.
func (s *Service) UpdateDailyProgress(ctx context.Context, userID, courseID string, req models.DailyProgressRequest) (*models.SaveProgressResponse, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}

	unlocked := []models.UnlockedAchievement{}
	rec, queued := s.apply(ctx, models.OpSaveProgress, userID, courseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			s.engine.UpdateDailyProgress(rec, req.MinutesWatched, req.LessonsCompleted)
			if u := s.engine.TriggerPerfectWeek(rec); u != nil {
				unlocked = append(unlocked, *u)
			}
			unlocked = append(unlocked, s.engine.CheckAchievements(rec, course)...)
			return true
		})
	return &models.SaveProgressResponse{Record: rec, AchievementsUnlocked: unlocked, Queued: queued}, nil
}

// SetDailyGoal changes the daily target and re-evaluates today's GoalMet.
func (s *Service) SetDailyGoal(ctx context.Context, userID, courseID string, target int) (*models.ProgressRecord, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}
	if target < MinDailyGoal || target > MaxDailyGoal {
		return nil, &ValidationError{Field: "target", Message: fmt.Sprintf("must be between %d and %d minutes", MinDailyGoal, MaxDailyGoal)}
	}

	rec, _ := s.apply(ctx, models.OpSaveProgress, userID, courseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			if rec.DailyGoal == target {
				return false
			}
			rec.DailyGoal = target
			today := s.engine.Today(rec)
			if today.MinutesWatched > 0 || today.LessonsCompletedThatDay > 0 {
				s.engine.UpdateDailyProgress(rec, today.MinutesWatched, today.LessonsCompletedThatDay)
			}
			return true
		})
	return rec, nil
}

// ── Achievements ────────────────────────────────────────

func (s *Service) CheckAchievements(ctx context.Context, userID, courseID string) (*models.AchievementsResponse, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}

	var unlocked []models.UnlockedAchievement
	rec, _ := s.apply(ctx, models.OpSaveProgress, userID, courseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			unlocked = s.engine.CheckAchievements(rec, course)
			return len(unlocked) > 0
		})
	return &models.AchievementsResponse{Unlocked: unlocked, TotalXP: rec.TotalXP, Level: rec.Level}, nil
}

// TriggerLateStudy unlocks the night owl achievement when the service clock
// is inside the late window. Outside the window it returns nil.
func (s *Service) TriggerLateStudy(ctx context.Context, userID, courseID string) (*models.UnlockedAchievement, error) {
	return s.trigger(ctx, userID, courseID, func(rec *models.ProgressRecord) *models.UnlockedAchievement {
		if !s.opts.Window.IsLate(s.clock.Now()) {
			return nil
		}
		return s.engine.TriggerLateStudy(rec)
	})
}

func (s *Service) TriggerEarlyStudy(ctx context.Context, userID, courseID string) (*models.UnlockedAchievement, error) {
	return s.trigger(ctx, userID, courseID, func(rec *models.ProgressRecord) *models.UnlockedAchievement {
		if !s.opts.Window.IsEarly(s.clock.Now()) {
			return nil
		}
		return s.engine.TriggerEarlyStudy(rec)
	})
}

func (s *Service) TriggerSpeedAchievement(ctx context.Context, userID, courseID string, speed float64) (*models.UnlockedAchievement, error) {
	if speed <= 0 {
		return nil, &ValidationError{Field: "speed", Message: "must be positive"}
	}
	return s.trigger(ctx, userID, courseID, func(rec *models.ProgressRecord) *models.UnlockedAchievement {
		return s.engine.TriggerSpeedAchievement(rec, speed)
	})
}

func (s *Service) TriggerPerfectWeek(ctx context.Context, userID, courseID string) (*models.UnlockedAchievement, error) {
	return s.trigger(ctx, userID, courseID, s.engine.TriggerPerfectWeek)
}

func (s *Service) trigger(ctx context.Context, userID, courseID string, fn func(*models.ProgressRecord) *models.UnlockedAchievement) (*models.UnlockedAchievement, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}
	var unlocked *models.UnlockedAchievement
	s.apply(ctx, models.OpSaveProgress, userID, courseID,
		func(rec *models.ProgressRecord, course *models.Course) bool {
			unlocked = fn(rec)
			return unlocked != nil
		})
	return unlocked, nil
}

// AchievementProgress reports current/target for every catalog entry.
func (s *Service) AchievementProgress(ctx context.Context, userID, courseID string) ([]models.AchievementStatus, error) {
	rec, err := s.LoadProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	course, _ := s.course(courseID)
	return s.engine.AchievementProgress(rec, course), nil
}

// ListEarned reads the remote achievement ledger across all of a user's courses.
func (s *Service) ListEarned(ctx context.Context, userID string) ([]models.EarnedAchievement, error) {
	if err := required("user_id", userID); err != nil {
		return nil, err
	}
	lister, ok := s.remote.(remote.AchievementLister)
	if !ok {
		return nil, ErrNoLedger
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	return lister.ListAchievements(ctx, userID)
}

func (s *Service) Catalog() []models.Achievement {
	return s.engine.Catalog().All()
}

// ── Estimates ───────────────────────────────────────────

func (s *Service) EstimateTimeRemaining(ctx context.Context, userID, courseID string) (*models.EstimateResponse, error) {
	if err := validateIdentity(userID, courseID); err != nil {
		return nil, err
	}
	course, ok := s.course(courseID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCourse, courseID)
	}
	rec, err := s.LoadProgress(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	est := s.engine.EstimateRemaining(course, rec)
	return &models.EstimateResponse{
		RemainingMinutes: est.RemainingMinutes,
		AdjustedMinutes:  est.AdjustedMinutes,
		Sessions:         est.Sessions,
		Complete:         est.Complete,
		Text:             est.String(),
	}, nil
}

// ── Sync ────────────────────────────────────────────────

// Drain replays queued operations in FIFO order, one at a time. A concurrent
// call returns immediately with Skipped set. Once an operation for a key
// fails, later operations for that key wait for the next pass. Nothing is
// removed from the queue without a successful remote write, except
// operations dropped at the retry ceiling.
//
// A failure that means the remote is unreachable ends the pass after
// counting that one attempt, so the operations behind it keep their retry
// budget and are neither attempted nor deferred. A remote that is not ready
// for writes ends the pass before any attempt.
func (s *Service) Drain(ctx context.Context) models.DrainResponse {
	return s.drain(ctx, "")
}

// DrainUser is Drain restricted to one user's operations. Other users'
// operations are left untouched and not counted.
func (s *Service) DrainUser(ctx context.Context, userID string) (models.DrainResponse, error) {
	if err := required("user_id", userID); err != nil {
		return models.DrainResponse{}, err
	}
	return s.drain(ctx, userID), nil
}

func (s *Service) drain(ctx context.Context, userID string) models.DrainResponse {
	var res models.DrainResponse
	if !s.draining.CompareAndSwap(false, true) {
		res.Skipped = true
		return res
	}
	defer s.draining.Store(false)

	failed := map[string]bool{}
	prepared := false
	for _, op := range s.queue.snapshot() {
		if ctx.Err() != nil || !s.conn.Online() {
			break
		}
		if userID != "" && keyUser(op.Key) != userID {
			continue
		}
		if failed[op.Key] {
			res.Deferred++
			continue
		}
		if !prepared {
			if err := s.prepareRemote(ctx); err != nil {
				s.log.Warn("remote not ready for writes, queue left as is", "error", err)
				break
			}
			prepared = true
		}

		res.Attempted++
		err := s.put(ctx, op.Key, op.Record)
		if err == nil {
			s.queue.remove(op.ID)
			s.markSynced(op.Key)
			res.Synced++
			continue
		}
		if ctx.Err() != nil {
			// Shutdown, not a failed attempt.
			res.Attempted--
			break
		}

		failed[op.Key] = true
		op.RetryCount++
		op.LastError = err.Error()
		s.setLastError(op.Key, err)
		if op.RetryCount >= s.opts.MaxRetries {
			s.queue.remove(op.ID)
			s.reportPermanent(op, err)
			res.Dropped++
		} else {
			s.queue.replace(op)
			res.Retried++
			s.log.Warn("queued sync failed",
				"op_id", op.ID, "key", op.Key, "retry_count", op.RetryCount,
				"error", &TransientSyncError{Key: op.Key, Err: err})
		}

		if remote.IsOffline(err) {
			s.markOffline()
			break
		}
	}
	return res
}

// GetSyncStatus reports the sync state as one user sees it: only that user's
// queued operations, drops and errors are counted.
func (s *Service) GetSyncStatus(userID string) models.SyncStatus {
	st := models.SyncStatus{
		IsOnline:              s.conn.Online(),
		PendingOperationCount: len(s.PendingFor(userID)),
		IsSyncing:             s.draining.Load(),
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if u, ok := s.users[userID]; ok {
		st.DroppedOperationCount = u.dropped
		st.LastError = u.lastError
		if u.lastSyncAt != nil {
			t := *u.lastSyncAt
			st.LastSyncAt = &t
		}
	}
	return st
}

// QueueStatus is the process-wide view used by the retry job and health
// checks. It carries no per-user errors.
func (s *Service) QueueStatus() models.SyncStatus {
	s.statusMu.Lock()
	dropped := s.dropped
	s.statusMu.Unlock()
	return models.SyncStatus{
		IsOnline:              s.conn.Online(),
		PendingOperationCount: s.queue.len(),
		IsSyncing:             s.draining.Load(),
		DroppedOperationCount: dropped,
	}
}

// Pending returns the queued operations in FIFO order.
func (s *Service) Pending() []models.OfflineOperation {
	return s.queue.snapshot()
}

// PendingFor returns one user's queued operations in FIFO order.
func (s *Service) PendingFor(userID string) []models.OfflineOperation {
	mine := []models.OfflineOperation{}
	for _, op := range s.queue.snapshot() {
		if keyUser(op.Key) == userID {
			mine = append(mine, op)
		}
	}
	return mine
}

// ── Internals ───────────────────────────────────────────

type mutation func(rec *models.ProgressRecord, course *models.Course) (changed bool)

// apply runs fn on the current record under the key lock. When fn reports a
// change the record is written locally, then synced or queued. The returned
// record is a copy.
func (s *Service) apply(ctx context.Context, op models.OperationType, userID, courseID string, fn mutation) (*models.ProgressRecord, bool) {
	key := storage.ProgressKey(userID, courseID)
	unlock := s.lock(key)
	defer unlock()

	rec := s.current(ctx, key, userID, courseID)
	s.engine.RefreshStreak(rec)
	course, _ := s.course(courseID)
	if !fn(rec, course) {
		return rec.Clone(), false
	}

	now := s.clock.Now()
	rec.LastAccessed = now
	rec.UpdatedAt = now
	s.engine.RefreshStreak(rec)

	s.saveLocal(ctx, key, rec)
	queued := s.syncRemote(ctx, op, key, rec)
	return rec.Clone(), queued
}

// syncRemote writes rec to the remote store when online and nothing older is
// queued for the key. Otherwise, or on failure, it queues a snapshot.
func (s *Service) syncRemote(ctx context.Context, op models.OperationType, key string, rec *models.ProgressRecord) bool {
	if !s.conn.Online() || s.queue.pendingFor(key) {
		s.enqueue(op, key, rec, 0, nil)
		return true
	}

	if err := s.prepareRemote(ctx); err != nil {
		s.log.Warn("remote not ready for writes, queued", "key", key, "error", err)
		s.enqueue(op, key, rec, 0, nil)
		return true
	}

	err := s.put(ctx, key, rec)
	if err == nil {
		s.markSynced(key)
		return false
	}
	if ctx.Err() != nil {
		// The caller went away; the write itself was never judged.
		s.enqueue(op, key, rec, 0, nil)
		return true
	}

	s.setLastError(key, err)
	s.log.Warn("remote write failed, queued for retry",
		"key", key, "error", &TransientSyncError{Key: key, Err: err})
	if remote.IsOffline(err) {
		s.markOffline()
	}
	s.enqueue(op, key, rec, 1, err)
	return true
}

func (s *Service) enqueue(t models.OperationType, key string, rec *models.ProgressRecord, attempts int, err error) {
	op := models.OfflineOperation{
		ID:         uuid.NewString(),
		Type:       t,
		Key:        key,
		Record:     rec.Clone(),
		CreatedAt:  s.clock.Now(),
		RetryCount: attempts,
	}
	if err != nil {
		op.LastError = err.Error()
	}
	if attempts >= s.opts.MaxRetries {
		s.reportPermanent(op, err)
		return
	}
	s.queue.push(op)
	s.log.Debug("operation queued", "op_id", op.ID, "key", key, "type", string(t))
}

func (s *Service) reportPermanent(op models.OfflineOperation, err error) {
	perr := &PermanentSyncError{Op: op, Err: err}
	s.statusMu.Lock()
	s.dropped++
	s.userLocked(op.Key).dropped++
	s.statusMu.Unlock()
	s.log.Error("sync operation dropped",
		"op_id", op.ID, "key", op.Key, "retry_count", op.RetryCount, "error", perr)
	if s.opts.OnPermanentFailure != nil {
		s.opts.OnPermanentFailure(perr)
	}
}

// prepareRemote runs the remote store's one-time setup, if it has any.
func (s *Service) prepareRemote(ctx context.Context) error {
	p, ok := s.remote.(remote.Preparer)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	return p.Prepare(ctx)
}

func (s *Service) put(ctx context.Context, key string, rec *models.ProgressRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	return s.remote.Put(ctx, key, rec)
}

func (s *Service) getRemote(ctx context.Context, key string) (*models.ProgressRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OpTimeout)
	defer cancel()
	rec, err := s.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, remote.ErrNotFound) {
			s.log.Warn("remote read failed, using local copy", "key", key, "error", err)
			if remote.IsOffline(err) && ctx.Err() == nil {
				s.markOffline()
			}
		}
		return nil, err
	}
	if rec.LessonPositions == nil {
		rec.LessonPositions = map[string]models.LessonPosition{}
	}
	return rec, nil
}

// loadLocal reports false for a missing or unreadable record; the latter is
// logged.
func (s *Service) loadLocal(ctx context.Context, key string) (*models.ProgressRecord, bool) {
	rec, err := storage.LoadProgress(context.WithoutCancel(ctx), s.local, s.opts.Codec, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("local read failed", "key", key, "error", &LocalStorageError{Op: "read", Key: key, Err: err})
		}
		return nil, false
	}
	return rec, true
}

func (s *Service) saveLocal(ctx context.Context, key string, rec *models.ProgressRecord) {
	if err := storage.SaveProgress(context.WithoutCancel(ctx), s.local, s.opts.Codec, key, rec); err != nil {
		s.log.Error("local write failed", "key", key, "error", &LocalStorageError{Op: "write", Key: key, Err: err})
	}
}

func (s *Service) newRecord(userID, courseID string) *models.ProgressRecord {
	return models.NewProgressRecord(userID, courseID, s.opts.DefaultDailyGoal, s.clock.Now())
}

func (s *Service) course(id string) (*models.Course, bool) {
	if s.courses == nil {
		return nil, false
	}
	return s.courses.Course(id)
}

func (s *Service) lock(key string) func() {
	v, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) markSynced(key string) {
	now := s.clock.Now()
	s.statusMu.Lock()
	u := s.userLocked(key)
	u.lastSyncAt = &now
	u.lastError = ""
	s.statusMu.Unlock()
}

func (s *Service) setLastError(key string, err error) {
	s.statusMu.Lock()
	s.userLocked(key).lastError = err.Error()
	s.statusMu.Unlock()
}

// userLocked returns the status entry for the user owning key. statusMu must
// be held.
func (s *Service) userLocked(key string) *userSync {
	userID := keyUser(key)
	u, ok := s.users[userID]
	if !ok {
		u = &userSync{}
		s.users[userID] = u
	}
	return u
}

// keyUser returns the user id encoded in a progress key, or "" for anything
// else.
func keyUser(key string) string {
	userID, _, err := storage.ParseProgressKey(key)
	if err != nil {
		return ""
	}
	return userID
}

// markOffline lets a probe-based signal learn about a failure before its
// next probe.
func (s *Service) markOffline() {
	if m, ok := s.conn.(interface{ MarkOffline() }); ok {
		m.MarkOffline()
	}
}

func validateIdentity(userID, courseID string) error {
	if err := required("user_id", userID); err != nil {
		return err
	}
	return required("course_id", courseID)
}
