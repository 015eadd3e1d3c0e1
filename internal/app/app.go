package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/mailadmin/internal/auth"
	"github.com/hitoshi/mailadmin/internal/config"
	"github.com/hitoshi/mailadmin/internal/database"
	"github.com/hitoshi/mailadmin/internal/handler"
	"github.com/hitoshi/mailadmin/internal/logger"
	"github.com/hitoshi/mailadmin/internal/mailer"
	"github.com/hitoshi/mailadmin/internal/metrics"
	"github.com/hitoshi/mailadmin/internal/middleware"
	"github.com/hitoshi/mailadmin/internal/repository"
	"github.com/hitoshi/mailadmin/internal/token"
	"github.com/hitoshi/mailadmin/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間の上限。
const shutdownTimeout = 30 * time.Second

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
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信すると停止する。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はRunと同じだが、ctxのキャンセルで停止する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("env", cfg.AppEnv),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、APIサーバー・メトリクスサーバー・
// リセット要求のクリーンアップを同じerrgroupで実行する。ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	resetRepo := repository.NewPostgresPasswordResetRepo(db)

	// 3. トークン発行とメール送信
	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		ResetSecret:   []byte(cfg.JWTResetSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		ResetTTL:      cfg.ResetTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	sender := newMailSender(cfg)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(userRepo, resetRepo, issuer, sender,
		auth.ServiceConfig{OTPTTL: cfg.OTPTTL},
	)

	// 5. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitAuth))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		HealthChecker:     db,
		AuthService:       authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			Production:   cfg.IsProduction(),
		},
	})

	// 7. HTTPサーバー
	apiServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	cleanupJob := cleanup.NewCleanupJob(resetRepo, slog.Default(), cfg.ResetRetention,
		cleanup.WithMetrics(collector),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", apiServer.Addr))
		return listenAndServe(apiServer)
	})
	g.Go(func() error {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		return listenAndServe(metricsServer)
	})
	g.Go(func() error {
		cleanupJob.Start(gctx, cfg.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(
			apiServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、リセット要求のクリーンアップを定期実行する。ctxが終了すると停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	resetRepo := repository.NewPostgresPasswordResetRepo(db)
	cleanupJob := cleanup.NewCleanupJob(resetRepo, slog.Default(), cfg.ResetRetention)

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("retention", cfg.ResetRetention),
	)

	// ブロッキング。ctxの終了で戻る
	cleanupJob.Start(ctx, cfg.CleanupInterval)

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
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// newMailSender はSMTP設定があればSMTPSenderを、無ければログ出力のみのSenderを返す。
func newMailSender(cfg *config.Config) mailer.Sender {
	if cfg.SMTPHost == "" {
		slog.Warn("SMTP_HOST is not set; OTP mails will not be delivered")
		return mailer.LogSender{}
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		AppName:  cfg.MailAppName,
		ValidFor: cfg.OTPTTL,
	})
}

// listenAndServe はサーバーを起動し、Shutdownによる終了はエラーとして扱わない。
func listenAndServe(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", server.Addr, err)
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
