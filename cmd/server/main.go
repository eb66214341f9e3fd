package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"posconsole/backend/internal/cache"
	"posconsole/backend/internal/config"
	"posconsole/backend/internal/domain"
	"posconsole/backend/internal/httpapi"
	"posconsole/backend/internal/leaderboard"
	"posconsole/backend/internal/logger"
	"posconsole/backend/internal/recompute"
	"posconsole/backend/internal/scheduler"
	"posconsole/backend/internal/service"
	"posconsole/backend/internal/store"
	"posconsole/backend/internal/store/memory"
	pgstore "posconsole/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal("invalid security configuration", zap.Error(err))
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		repo   store.Repository
		ledger store.Ledger
	)
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback: %w", err)
		}
		closers = append(closers, pg.Close)
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		repo, ledger = pg, pg
		log.Info("repository: postgres", zap.Bool("auto_migrate", cfg.AutoMigrate))
		if err := ensureAdmin(ctx, pg, cfg); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	} else {
		mem := memory.NewSeeded()
		if cfg.LedgerFixture != "" {
			if err := mem.LoadLedgerFixture(cfg.LedgerFixture); err != nil {
				return fmt.Errorf("load ledger fixture: %w", err)
			}
			log.Info("ledger fixture loaded", zap.String("path", cfg.LedgerFixture))
		}
		repo, ledger = mem, mem
		log.Info("repository: in-memory")
	}

	var (
		boardCache cache.LeaderboardCache = cache.NewMemoryLeaderboardCache(0)
		jobs       cache.JobStore         = cache.NewMemoryJobStore(0)
	)
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using in-process caches", zap.Error(err))
			_ = redisCache.Close()
		} else {
			boardCache, jobs = redisCache, redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		log.Info("cache: in-process")
	}

	boards := leaderboard.NewEngine(boardCache, 0, log.Named("leaderboard"))
	orch := recompute.New(repo, ledger, jobs, boards, recompute.Options{
		Workers: cfg.RecomputeWorkers,
		Timeout: cfg.RecomputeTimeout,
		Logger:  log.Named("recompute"),
	})
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), cfg.ManagerPIN, repo)
	svc := service.New(repo, orch, boards, service.Options{
		DefaultStoreID: cfg.StoreID,
		PINs:           auth,
		Logger:         log.Named("service"),
	})
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log.Named("http"))

	var sched *scheduler.Scheduler
	if cfg.RecomputeSchedule != "" {
		s, err := scheduler.New(cfg.RecomputeSchedule, ledger, orch, scheduler.Options{
			Timeout: cfg.RecomputeTimeout,
			Logger:  log.Named("scheduler"),
		})
		if err != nil {
			return err
		}
		sched = s
		sched.Start()
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("commission console listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	if err := orch.Close(shutdownCtx); err != nil {
		log.Warn("recompute jobs still running at shutdown", zap.Error(err))
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warn("close error", zap.Error(err))
		}
	}

	log.Info("server stopped")
	return nil
}

type userAccounts interface {
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

// ensureAdmin creates an "admin" account from SEED_ADMIN_PASSWORD when the
// user table has no admin yet. A fresh postgres database is otherwise
// unusable since every mutation needs the admin role.
func ensureAdmin(ctx context.Context, users userAccounts, cfg config.Config) error {
	if cfg.SeedAdminPassword == "" {
		return nil
	}
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range existing {
		if user.Role == domain.RoleAdmin {
			return nil
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(cfg.SeedAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = users.CreateUser(ctx, domain.UserAccount{
		Username: "admin",
		Password: string(hashed),
		Role:     domain.RoleAdmin,
		StoreID:  cfg.StoreID,
		Active:   true,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	return err
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated, sequential and well-known PINs.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "121212": true, "112233": true,
		"123123": true, "696969": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
