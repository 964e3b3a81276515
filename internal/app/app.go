// Package app はサブコマンドごとの依存関係のワイヤリングと起動を行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawbox/pawbox/internal/auth"
	"github.com/pawbox/pawbox/internal/blueprint"
	"github.com/pawbox/pawbox/internal/config"
	"github.com/pawbox/pawbox/internal/database"
	"github.com/pawbox/pawbox/internal/handler"
	"github.com/pawbox/pawbox/internal/logger"
	"github.com/pawbox/pawbox/internal/metrics"
	"github.com/pawbox/pawbox/internal/middleware"
	"github.com/pawbox/pawbox/internal/pawapi"
	"github.com/pawbox/pawbox/internal/repository"
	"github.com/pawbox/pawbox/internal/security"
	"github.com/pawbox/pawbox/internal/session"
	"github.com/pawbox/pawbox/internal/showcase"
	"github.com/pawbox/pawbox/internal/storage"
	"github.com/pawbox/pawbox/internal/worker/cleanup"
	fetchpkg "github.com/pawbox/pawbox/internal/worker/fetch"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

const (
	dbPingTimeout       = 5 * time.Second
	shutdownTimeout     = 30 * time.Second
	sessionCleanup      = 5 * time.Minute
	sessionTouch        = time.Hour
	storageCleanupEvery = 24 * time.Hour
	importConcurrency   = 4
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もログに残せるよう、先に既定レベルで初期化する
	logger.SetupDefault(w, slog.LevelInfo)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
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
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage_backend", string(cfg.StorageBackend)),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		action, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, action)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、到達を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newClientStorage はSTORAGE_BACKENDに応じたクライアントストレージを生成する。
// 返すclose関数はRedis接続の解放に使う。
func newClientStorage(cfg *config.Config, db *sql.DB) (storage.KV, func(), error) {
	switch cfg.StorageBackend {
	case storage.BackendRedis:
		client, err := storage.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		retention := time.Duration(cfg.StorageRetentionDays) * 24 * time.Hour
		return storage.NewRedisKV(client, retention), func() { client.Close() }, nil
	case storage.BackendMemory:
		slog.Warn("client storage is in-memory; sessions are lost on restart")
		return storage.NewMemoryKV(), func() {}, nil
	default:
		return storage.NewPostgresKV(db), func() {}, nil
	}
}

// newRegistry はプロセス情報を含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// perMinute はreq/minの設定値をrate.Limit(req/sec)に変換する。
func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. クライアントストレージとメトリクス
	kv, closeKV, err := newClientStorage(cfg, db)
	if err != nil {
		return fmt.Errorf("failed to initialize client storage: %w", err)
	}
	defer closeKV()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	// 3. セッション
	sessions := session.NewManager(kv, auth.NewCodec(), session.ManagerConfig{
		IdleTTL:         cfg.ClientIdleTTL,
		CleanupInterval: sessionCleanup,
		TouchInterval:   sessionTouch,
	}, session.WithRecorder(collector))
	defer sessions.Stop()

	// 4. ドメインサービス
	sanitizer := security.NewSanitizer()
	backend := pawapi.NewClient(
		&http.Client{Timeout: cfg.BackendTimeout},
		cfg.APIBaseURL, slog.Default(), collector,
	)
	blueprintService := blueprint.NewService(backend, sanitizer, slog.Default())
	showcaseService := showcase.NewService(
		repository.NewPostgresBuildRepo(db),
		repository.NewPostgresLikeRepo(db),
		slog.Default(),
	)

	// 5. ハンドラー
	renderer, err := handler.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	authHandler := handler.NewAuthHandler(handler.AuthHandlerConfig{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	})
	pageHandler := handler.NewPageHandler(renderer, showcaseService, authHandler, handler.PageHandlerConfig{
		GIS:           auth.NewGoogleIdentityConfig(cfg.GoogleClientID, cfg.BaseURL),
		UploadMaxSize: cfg.UploadMaxSize,
	})
	blueprintHandler := handler.NewBlueprintHandler(blueprintService, backend, sanitizer, cfg.UploadMaxSize)

	// 6. ルーター
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.BlueprintRate = perMinute(cfg.RateLimitBlueprint)
	rateLimiterCfg.BlueprintBurst = cfg.RateLimitBlueprint
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:    sessions,
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),
		Client: middleware.ClientConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxAge:       cfg.ClientCookieMaxAge,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			ExemptPaths:  []string{"/auth/google/callback"},
		},
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),
		Renderer:       renderer,
		Auth:           authHandler,
		Pages:          pageHandler,
		Blueprint:      blueprintHandler,
	})

	// 7. HTTPサーバーの起動
	// 図面生成はバックエンドの応答を待つため、書き込みタイムアウトはその分を見込む
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BackendTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "web server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ショーケースの取り込みスケジューラとクライアントストレージのクリーンアップを実行し、
// スクレイプ用に/metricsを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリとメトリクス
	sourceRepo := repository.NewPostgresImportSourceRepo(db)
	buildRepo := repository.NewPostgresBuildRepo(db)

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sourceRepo.Register(ctx, cfg.ShowcaseFeedURLs); err != nil {
		return fmt.Errorf("failed to register showcase feeds: %w", err)
	}

	// 3. 取り込みのフェッチャーとスケジューラ
	fetcher := fetchpkg.NewFetcher(
		sourceRepo, buildRepo,
		security.NewFeedGuard(), security.NewSanitizer(), collector,
		slog.Default(),
		fetchpkg.FetcherConfig{
			Interval:    cfg.ImportInterval,
			Timeout:     cfg.ImportTimeout,
			MaxBodySize: cfg.ImportMaxSize,
		},
	)
	scheduler := fetchpkg.NewScheduler(sourceRepo, fetcher, slog.Default(), importConcurrency)

	// 4. クリーンアップジョブ（Postgresストレージのみ対象）
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default(), cfg.StorageRetentionDays)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer metricsServer.Close()

	slog.Info("worker starting",
		slog.Int("feeds", len(cfg.ShowcaseFeedURLs)),
		slog.Duration("import_interval", cfg.ImportInterval),
		slog.Int("retention_days", cfg.StorageRetentionDays),
	)

	if cfg.StorageBackend == storage.BackendPostgres {
		go cleanupJob.Start(ctx, storageCleanupEvery)
	}

	// 取り込みスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ImportInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("action", string(action.Kind)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action.Kind {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, action.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
