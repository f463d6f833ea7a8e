package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/medmentor/backend/internal/auth"
	"github.com/medmentor/backend/internal/catalog"
	"github.com/medmentor/backend/internal/clock"
	"github.com/medmentor/backend/internal/config"
	"github.com/medmentor/backend/internal/connectivity"
	"github.com/medmentor/backend/internal/database"
	"github.com/medmentor/backend/internal/platform/logger"
	"github.com/medmentor/backend/internal/progress"
	"github.com/medmentor/backend/internal/remote"
	"github.com/medmentor/backend/internal/scheduler"
	"github.com/medmentor/backend/internal/storage"
	"github.com/medmentor/backend/internal/tracking"
)

var (
	queueJSON bool

	tokenUser string
	tokenTTL  time.Duration
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "medmentor",
		Short:        "Study progress and sync backend",
		SilenceUsage: true,
		RunE:         runServeCmd,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServeCmd,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply remote database migrations",
		RunE:  runMigrateCmd,
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Print operations waiting for remote sync",
		RunE:  runQueueCmd,
	}
	queueCmd.Flags().BoolVar(&queueJSON, "json", false, "print the queue as JSON")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE:  runTokenCmd,
	}
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to put in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd, migrateCmd, queueCmd, tokenCmd)
	return rootCmd
}

// ── serve ───────────────────────────────────────────────

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		return err
	}
	defer log.Sync()

	codec := storage.Codec{Location: cfg.Location}

	local, err := storage.OpenSQLite(cfg.LocalDBPath)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer local.Close()

	store, online, closeRemote, err := openRemote(cfg, codec, log)
	if err != nil {
		return err
	}
	defer closeRemote()

	courses, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load course catalog: %w", err)
	}
	log.Info("course catalog loaded", "path", cfg.CatalogPath, "courses", courses.Len())

	clk := clock.System{Location: cfg.Location}
	monitor := connectivity.NewMonitor(store, cfg.Sync.OpTimeout, online, log)
	svc := tracking.NewService(tracking.Deps{
		Local:        local,
		Remote:       store,
		Engine:       progress.NewEngine(progress.DefaultCatalog(), clk, cfg.Progress.HistoryCap),
		Connectivity: monitor,
		Clock:        clk,
		Courses:      courses,
		Log:          log,
	}, tracking.Options{
		Codec: codec,
		Window: tracking.StudyWindow{
			LateStart:  cfg.Progress.LateStartHour,
			LateEnd:    cfg.Progress.LateEndHour,
			EarlyStart: cfg.Progress.EarlyStartHour,
			EarlyEnd:   cfg.Progress.EarlyEndHour,
		},
		MaxRetries:       cfg.Sync.MaxRetries,
		OpTimeout:        cfg.Sync.OpTimeout,
		DefaultDailyGoal: cfg.Progress.DefaultDailyGoal,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc.Start(ctx)
	defer svc.Close()

	sched := scheduler.New(monitor, svc, cfg.Sync.ProbeInterval, cfg.Sync.RetryInterval, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	courseHandler := catalog.NewHandler(courses)
	api.HandleFunc("/courses", courseHandler.ListCourses).Methods("GET")
	api.HandleFunc("/courses/{courseID}", courseHandler.GetCourse).Methods("GET")

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(auth.Middleware([]byte(cfg.JWTSecret)))
	protected.HandleFunc("/auth/me", auth.GetCurrentUser).Methods("GET")
	tracking.NewHandler(svc).Register(protected)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		st := svc.QueueStatus()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"online":  st.IsOnline,
			"pending": st.PendingOperationCount,
		})
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "remote", cfg.RemoteBackend, "online", online)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openRemote builds the configured remote store. An unreachable backend is
// logged and reported as offline, not treated as fatal.
func openRemote(cfg *config.Config, codec storage.Codec, log *logger.Logger) (remote.Store, bool, func(), error) {
	switch cfg.RemoteBackend {
	case config.BackendRedis:
		s, err := remote.NewRedisStore(cfg.RedisAddr, codec)
		if s == nil {
			return nil, false, nil, err
		}
		if err != nil {
			log.Warn("redis unreachable, starting offline", "addr", cfg.RedisAddr, "error", err)
		}
		return s, err == nil, func() { s.Close() }, nil

	case config.BackendMemory:
		log.Warn("using in-memory remote store; nothing survives a restart")
		return remote.NewMemoryStore(), true, func() {}, nil

	default:
		db, err := database.Connect(cfg.DB.DSN())
		if db == nil {
			return nil, false, nil, err
		}
		// Migrations run before the first remote write, whenever that happens.
		store := remote.NewPostgresStore(db, codec).WithMigrator(database.Migrate)
		if err != nil {
			log.Warn("postgres unreachable, starting offline; migrations run on reconnect", "error", err)
			return store, false, func() { db.Close() }, nil
		}
		if err := store.Prepare(context.Background()); err != nil {
			db.Close()
			return nil, false, nil, err
		}
		return store, true, func() { db.Close() }, nil
	}
}

// ── migrate ─────────────────────────────────────────────

func runMigrateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Connect(cfg.DB.DSN())
	if err != nil {
		if db != nil {
			db.Close()
		}
		return err
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		return err
	}
	version, dirty, err := database.Version(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", version, dirty)
	return nil
}

// ── queue ───────────────────────────────────────────────

func runQueueCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	local, err := storage.OpenSQLite(cfg.LocalDBPath)
	if err != nil {
		return err
	}
	defer local.Close()

	ops, err := storage.LoadQueue(cmd.Context(), local, storage.Codec{Location: cfg.Location})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queueJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ops)
	}
	if len(ops) == 0 {
		fmt.Fprintln(out, "offline queue is empty")
		return nil
	}
	for _, op := range ops {
		fmt.Fprintf(out, "%s  %-14s  %-40s  retries=%d  queued=%s",
			op.ID, op.Type, op.Key, op.RetryCount, op.CreatedAt.Format(time.RFC3339))
		if op.LastError != "" {
			fmt.Fprintf(out, "  last_error=%q", op.LastError)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// ── token ───────────────────────────────────────────────

func runTokenCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	tok, err := auth.IssueToken([]byte(cfg.JWTSecret), tokenUser, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
	return nil
}
