package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"

	"classtable-service/internal/adapter"
	"classtable-service/internal/auth"
	"classtable-service/internal/config"
	lmsGet "classtable-service/internal/http-server/handlers/lms/get"
	lmsLink "classtable-service/internal/http-server/handlers/lms/link"
	scheduleDay "classtable-service/internal/http-server/handlers/schedules/day"
	scheduleSync "classtable-service/internal/http-server/handlers/schedules/sync"
	scheduleUpcoming "classtable-service/internal/http-server/handlers/schedules/upcoming"
	semesterGet "classtable-service/internal/http-server/handlers/semesters/get"
	semesterRefresh "classtable-service/internal/http-server/handlers/semesters/refresh"
	"classtable-service/internal/lock"
	"classtable-service/internal/models"
	svc "classtable-service/internal/service"
	"classtable-service/internal/storage/postgres"
	"classtable-service/pkg/handlers/slogpretty"
	"classtable-service/pkg/middleware/mwlogger"
	"classtable-service/pkg/sl"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting API", slog.String("env", cfg.Env))
	log.Debug("Debug messages are enabled")

	storage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		log.Error("Failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := storage.Init(initCtx); err != nil {
		cancelInit()
		log.Error("Failed to init schema", sl.Err(err))
		os.Exit(1)
	}
	cancelInit()

	locker, err := lock.NewRedisLock(cfg.RedisAddr)
	if err != nil {
		log.Error("Failed to init redis lock", sl.Err(err))
		os.Exit(1)
	}

	accounts, err := auth.NewFileStore(cfg.AccountsPath)
	if err != nil {
		log.Error("Failed to init account store", sl.Err(err))
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	providers := map[string]auth.Provider{
		"jaccount": &auth.JAccountProvider{Client: httpClient},
		"shsmu":    &auth.SHSMUProvider{Client: httpClient},
	}

	semesters := adapter.NewSemesterClient(httpClient)

	service := svc.New(log, storage, locker, accounts, providers, semesters, httpClient)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(mwlogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)

	// Schedules
	router.Post("/schedules/sync", scheduleSync.New(log, service))
	router.Get("/schedules/day", scheduleDay.New(log, service))
	router.Get("/schedules/upcoming", scheduleUpcoming.New(log, service))

	// Semesters
	router.Get("/semesters", semesterGet.New(log, service))
	router.Post("/semesters/refresh", semesterRefresh.New(log, service))

	// LMS links
	router.Put("/lms/links", lmsLink.New(log, service))
	router.Get("/lms/links", lmsGet.New(log, service))

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go refreshSemestersLoop(refreshCtx, log, service, cfg.SemesterRefreshInterval)

	serv := &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	serverErrCh := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", slog.String("addr", cfg.Address))
		if err := serv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		} else {
			serverErrCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			log.Error("HTTP server stopped unexpectedly", sl.Err(err))
		} else {
			log.Info("HTTP server stopped gracefully")
		}
	}

	stopRefresh()

	shutdownTimeout := cfg.HTTPServer.ShutdownTimeout

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down HTTP server", slog.String("timeout", shutdownTimeout.String()))

	if err := serv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", sl.Err(err))
	} else {
		log.Info("Server shutdown complete")
	}

	if storage != nil {
		if err := storage.Close(); err != nil {
			log.Error("Failed to close storage", sl.Err(err))
		} else {
			log.Info("Storage closed")
		}
	}

	if locker != nil {
		if err := locker.Close(); err != nil {
			log.Error("Failed to close locker", sl.Err(err))
		}
	}

	log.Info("Shutdown finished, server stopped")

}

// refreshSemestersLoop keeps the published calendars warm. It only
// touches the semesters table, so it never contends with user syncs.
func refreshSemestersLoop(ctx context.Context, log *slog.Logger, service *svc.Service, interval time.Duration) {
	colleges := []models.College{models.CollegeSJTU, models.CollegeSHSMU, models.CollegeSJTUG}

	refresh := func() {
		for _, college := range colleges {
			if _, err := service.RefreshSemesters(ctx, college); err != nil {
				log.Warn("Semester refresh failed",
					slog.String("college", college.String()), sl.Err(err))
			}
		}
	}

	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
