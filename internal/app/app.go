// Package app はアプリケーションの起動とライフサイクル管理を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/memoman/internal/auth"
	"github.com/hitoshi/memoman/internal/config"
	"github.com/hitoshi/memoman/internal/database"
	"github.com/hitoshi/memoman/internal/handler"
	"github.com/hitoshi/memoman/internal/logger"
	"github.com/hitoshi/memoman/internal/metrics"
	"github.com/hitoshi/memoman/internal/middleware"
	"github.com/hitoshi/memoman/internal/note"
	"github.com/hitoshi/memoman/internal/repository"
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
		slog.String("auth_mode", string(cfg.AuthMode)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、AUTH_MODEに応じた認可ゲートウェイをワイヤリングし、HTTPサーバーを起動する。
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

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 認可ゲートウェイの初期化
	// JWKSキャッシュはプロセス全体で1つ。どちらのモードでもIDトークン/アクセストークンの
	// 署名検証に使用する。
	jwks := auth.NewJWKSCache(
		auth.JWKSURLForDomain(cfg.Auth0Domain),
		&http.Client{Timeout: cfg.UpstreamTimeout},
		collector,
	)

	var resolver auth.Resolver
	var authService handler.AuthServiceInterface

	switch cfg.AuthMode {
	case config.AuthModeBearer:
		// bearerモード: Authorizationヘッダーのアクセストークンを検証する。
		// audienceにはAPIのidentifierを要求する。
		verifier := auth.NewVerifier(jwks, cfg.Issuer(), cfg.Auth0Audience)
		resolver = auth.NewBearerResolver(verifier)

	default:
		// sessionモード: 認可コードフローをサーバーで完了し、opaqueなセッションIDを
		// HTTP Only Cookieで保持する。IDトークンのaudienceはクライアントID。
		provider := auth.NewAuth0Provider(auth.Auth0Config{
			Domain:       cfg.Auth0Domain,
			ClientID:     cfg.Auth0ClientID,
			ClientSecret: cfg.Auth0ClientSecret,
			RedirectURL:  cfg.Auth0RedirectURL,
			Timeout:      cfg.UpstreamTimeout,
		})
		verifier := auth.NewVerifier(jwks, cfg.Issuer(), cfg.Auth0ClientID)
		authService = auth.NewService(
			provider, verifier, userRepo, sessionRepo, collector,
			auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
		)
		resolver = auth.NewSessionResolver(sessionRepo)
	}

	// 5. ドメインサービスの初期化
	noteService := note.NewService(userRepo, noteRepo, collector)

	// 6. レート制限の初期化
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		HealthChecker:     db,
		Resolver:          resolver,
		Metrics:           collector,
		Gatherer:          registry,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,

		EnableAuthRoutes: cfg.AuthMode == config.AuthModeSession,
		AuthService:      authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		NoteService: noteService,
	}

	router := handler.NewRouter(deps)

	// 8. 期限切れセッションの掃除（sessionモードのみ）
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	if cfg.AuthMode == config.AuthModeSession {
		go sweepExpiredSessions(sweepCtx, sessionRepo)
	}

	// 9. HTTPサーバーの起動
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

// sweepExpiredSessions は期限切れセッションを日次で削除する。
// 起動直後に1回実行し、以降は24時間ごとに実行する。
func sweepExpiredSessions(ctx context.Context, sessions repository.SessionRepository) {
	sweep := func() {
		deleted, err := sessions.DeleteExpired(ctx)
		if err != nil {
			slog.Error("session sweep failed", slog.String("error", err.Error()))
			return
		}
		if deleted > 0 {
			slog.Info("expired sessions deleted", slog.Int64("count", deleted))
		}
	}

	sweep()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
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
