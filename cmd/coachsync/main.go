package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coachsync/internal/config"
	httpapi "coachsync/internal/http"
	"coachsync/internal/identity"
	"coachsync/internal/logger"
	"coachsync/internal/reconcile"
	"coachsync/internal/repository"
	"coachsync/internal/service"
	"coachsync/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env 仅本地开发使用；生产环境直接注入环境变量
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "coachsync")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 缺 key 必须 fail loudly：弱默认 key 会写出永远匹配不上的 hash
	hasher, err := identity.NewHasher(cfg.Identity.HashKey)
	if err != nil {
		log.Fatal("IDENTITY_HASH_KEY is required", zap.Error(err))
	}

	var (
		db        *sql.DB
		persons   repository.PersonsRepository
		clients   repository.ClientsRepository
		meetings  repository.MeetingsRepository
		attendees repository.AttendeesRepository
		review    repository.ReviewRepository
	)
	if cfg.DBEnabled {
		if d, err := store.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			log.Info("DB enabled for coachsync")
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory store", zap.Error(err))
		}
	}
	if db != nil {
		persons = repository.NewPostgresPersonsRepository(db)
		clients = repository.NewPostgresClientsRepository(db)
		meetings = repository.NewPostgresMeetingsRepository(db)
		attendees = repository.NewPostgresAttendeesRepository(db)
		review = repository.NewPostgresReviewRepository(db)
	} else {
		// DB 未就绪：内存 store 支持联测（数据不落盘）
		mem := repository.NewMemoryStore()
		persons, clients, meetings, attendees, review = mem, mem, mem, mem, mem
	}

	// Redis 仅用于 reconciliation run 互斥；不可用时单进程照常跑
	var locker reconcile.Locker
	redisClient := store.NewRedisClient(&cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unavailable, reconciliation runs without cross-process lock", zap.Error(err))
	} else {
		locker = store.NewRedisRunLock(redisClient)
	}

	resolver := service.NewResolver(persons, clients, review, hasher, cfg.Identity.DefaultRegion, log)
	mergeSvc := service.NewMergeService(persons, log)
	meetingSvc := service.NewMeetingService(meetings, attendees, resolver, log)
	reviewSvc := service.NewReviewService(review, persons, hasher, cfg.Identity.DefaultRegion, log)
	reconciler := reconcile.NewReconciler(meetings, attendees, resolver, locker, log)

	router := httpapi.NewRouter(log)
	router.RegisterIngestRoutes(httpapi.NewIngestHandler(meetingSvc, log))
	router.RegisterReviewRoutes(httpapi.NewReviewHandler(reviewSvc, mergeSvc, log))
	router.RegisterReconcileRoutes(httpapi.NewReconcileHandler(reconciler, log))
	router.RegisterClientRoutes(httpapi.NewClientHandler(clients, log))
	router.RegisterHealthRoutes()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 周期 reconciliation（interval=0 时禁用，仅手动触发）
	if cfg.Reconcile.IntervalSeconds > 0 {
		go runReconcileLoop(ctx, reconciler, cfg.Reconcile, log)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}

// runReconcileLoop 周期性跑 reconciliation，直到进程退出
func runReconcileLoop(ctx context.Context, r *reconcile.Reconciler, cfg config.ReconcileConfig, log *zap.Logger) {
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	opts := reconcile.Options{
		LookbackHours:    cfg.LookbackHours,
		ProximityMinutes: cfg.ProximityMinutes,
		MaxRuntime:       time.Duration(cfg.MaxRuntimeSec) * time.Second,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, opts); err != nil {
				if err == reconcile.ErrRunInProgress {
					log.Debug("skipping scheduled reconciliation, run already in progress")
					continue
				}
				log.Error("scheduled reconciliation run failed", zap.Error(err))
			}
		}
	}
}
