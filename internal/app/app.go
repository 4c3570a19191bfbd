// Package app はアプリケーションの起動・配線・シャットダウンを提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/tabiplan/internal/audit"
	"github.com/hitoshi/tabiplan/internal/clock"
	"github.com/hitoshi/tabiplan/internal/config"
	"github.com/hitoshi/tabiplan/internal/database"
	"github.com/hitoshi/tabiplan/internal/handler"
	"github.com/hitoshi/tabiplan/internal/logger"
	"github.com/hitoshi/tabiplan/internal/metrics"
	"github.com/hitoshi/tabiplan/internal/middleware"
	"github.com/hitoshi/tabiplan/internal/model"
	"github.com/hitoshi/tabiplan/internal/notify"
	"github.com/hitoshi/tabiplan/internal/queue"
	"github.com/hitoshi/tabiplan/internal/reminder"
	"github.com/hitoshi/tabiplan/internal/repository"
	"github.com/hitoshi/tabiplan/internal/security"
	"github.com/hitoshi/tabiplan/internal/vote"
	"github.com/hitoshi/tabiplan/internal/worker/dispatch"
	"github.com/hitoshi/tabiplan/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildResolver は投票リゾルバーと依存をワイヤリングする。
// serveとworkerの両モードで同じ構成を使う。
func buildResolver(
	db *sql.DB,
	recorder audit.Recorder,
	clk clock.Clock,
	collector metrics.MetricsCollector,
) *vote.Resolver {
	questionRepo := repository.NewPostgresVoteQuestionRepo(db)
	optionRepo := repository.NewPostgresVoteOptionRepo(db)
	answerRepo := repository.NewPostgresVoteAnswerRepo(db)
	cityRepo := repository.NewPostgresCityRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	sanitizer := security.NewTitleSanitizer()

	materializers := map[model.VoteType]vote.WinnerMaterializer{
		model.VoteTypeCity:  vote.NewCityMaterializer(cityRepo, sanitizer),
		model.VoteTypeEvent: vote.NewEventMaterializer(eventRepo, sanitizer),
	}

	return vote.NewResolver(
		questionRepo, optionRepo, answerRepo, materializers,
		clk, recorder, slog.Default(), collector,
	)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリ・共通サービスの初期化
	tripRepo := repository.NewPostgresTripRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	auditRepo := repository.NewPostgresAuditLogRepo(db)

	clk := clock.SystemClock{}
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	recorder := audit.NewLogger(auditRepo, slog.Default())

	// 3. ドメインサービスの初期化
	taskQueue := queue.NewQueue(taskRepo, clk, slog.Default(), collector)
	reminderService := reminder.NewService(tripRepo, taskQueue, clk, recorder, slog.Default(), collector)
	resolver := buildResolver(db, recorder, clk, collector)

	// 4. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		// configのRateLimitGeneralはreq/min単位なのでreq/secに変換する
		rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	}

	deps := &handler.RouterDeps{
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        middleware.NewRateLimiter(rateLimiterCfg),
		Logger:             slog.Default(),
		HealthChecker:      db,
		ReminderService:    reminderService,
		VoteResolver:       resolver,
		NotificationLister: notificationRepo,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ディスパッチャと投票クローズジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリ・共通サービスの初期化
	taskRepo := repository.NewPostgresTaskRepo(db)
	questionRepo := repository.NewPostgresVoteQuestionRepo(db)
	notificationRepo := repository.NewPostgresNotificationRepo(db)
	auditRepo := repository.NewPostgresAuditLogRepo(db)

	clk := clock.SystemClock{}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	recorder := audit.NewLogger(auditRepo, slog.Default())

	// 3. タスクハンドラーとディスパッチャの初期化
	sanitizer := security.NewTitleSanitizer()
	reminderHandler := notify.NewReminderHandler(notificationRepo, sanitizer, slog.Default())
	dispatcher := dispatch.NewDispatcher(
		taskRepo, reminderHandler, clk, slog.Default(), collector, cfg.DispatchMaxConcurrent,
	)

	// 4. 投票クローズジョブの初期化
	resolver := buildResolver(db, recorder, clk, collector)
	sweepJob := sweep.NewSweepJob(questionRepo, resolver, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("dispatch_interval", cfg.DispatchInterval),
		slog.Duration("sweep_interval", cfg.SweepInterval),
		slog.Int("max_concurrent", cfg.DispatchMaxConcurrent),
	)

	// メトリクスエンドポイントをバックグラウンドで公開
	metricsServer := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: metrics.SetupMetricsRoute(registry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	// 投票クローズジョブをバックグラウンドで起動
	go sweepJob.Start(ctx, cfg.SweepInterval)

	// ディスパッチャをメインgoroutineで実行（ブロッキング）
	dispatcher.Start(ctx, cfg.DispatchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
