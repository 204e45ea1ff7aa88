// @title Alert Relay API
// @version 1.0
// @description Receives monitoring alerts, archives them and relays notifications to chat channels.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alert-relay/backend/internal/archive"
	"github.com/alert-relay/backend/internal/client"
	"github.com/alert-relay/backend/internal/config"
	"github.com/alert-relay/backend/internal/db"
	"github.com/alert-relay/backend/internal/handler"
	"github.com/alert-relay/backend/internal/logger"
	"github.com/alert-relay/backend/internal/model"
	"github.com/alert-relay/backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// channelStore - db.Postgres의 채널 저장 메서드
type channelStore interface {
	GetChannelConfigs(ctx context.Context) ([]model.ChannelConfig, error)
	UpsertChannelConfig(ctx context.Context, cfg model.ChannelConfig) (int, error)
	DeleteChannelConfig(ctx context.Context, name string) error
}

func main() {
	mode := flag.String("mode", "all", "run mode: web | poll | all")
	issueFor := flag.String("issue-token", "", "print an API token for the given subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *issueFor != "" {
		os.Exit(issueToken(cfg, *issueFor, *tokenTTL))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "alert-relay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	runWeb, runPoll, err := parseMode(*mode)
	if err != nil {
		log.Fatal("invalid run mode", zap.String("mode", *mode), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB는 설정된 경우에만 사용 (채널 설정 저장용)
	var repo channelStore
	if cfg.Postgres.Enabled() {
		pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		pg := &db.Postgres{Pool: pool}
		if err := pg.EnsureChannelSchema(ctx); err != nil {
			log.Fatal("failed to ensure channel schema", zap.Error(err))
		}
		repo = pg
		log.Info("channel store enabled")
	}

	store := archive.NewStore(cfg.Archive.Dir, log)
	router := service.NewRouter(log,
		client.NewTelegramClient(log),
		client.NewTeamsClient(log),
		client.NewGatewayClient(log),
	)
	channelService := service.NewChannelService(cfg.Channels, repo, router, log)
	alertService := service.NewAlertService(store, router, channelService, log)

	log.Info("alert relay starting",
		zap.String("mode", *mode),
		zap.String("archive_dir", store.Dir()),
		zap.Int("static_channels", len(cfg.Channels)),
	)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	if runPoll {
		monitor := client.NewMonitorClient(cfg.Monitor.BaseURL, cfg.Monitor.APIToken, log)
		poller := service.NewPoller(monitor, alertService, cfg.Monitor.Interval, cfg.Monitor.Limit, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := poller.Run(ctx); err != nil {
				errCh <- fmt.Errorf("poller: %w", err)
			}
		}()
	}

	if runWeb {
		handlers := handler.Handlers{
			Alert:    handler.NewAlertHandler(alertService, log),
			Archive:  handler.NewArchiveHandler(store, log),
			Channels: handler.NewChannelHandler(channelService),
		}
		if cfg.Auth.JWTSecret != "" {
			authService, err := service.NewAuthService(cfg.Auth)
			if err != nil {
				log.Fatal("failed to init auth", zap.Error(err))
			}
			handlers.Auth = authService
		} else {
			log.Warn("AUTH_JWT_SECRET is not set, /api/v1 is not protected")
		}

		gin.SetMode(gin.ReleaseMode)
		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler.NewRouter(handlers, log),
			ReadHeaderTimeout: 10 * time.Second,
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("failed to shut down http server", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		stop()
		if errors.Is(err, service.ErrMisconfigured) {
			log.Error("poll loop is misconfigured", zap.Error(err))
		} else {
			log.Error("component failed", zap.Error(err))
		}
		wg.Wait()
		_ = log.Sync()
		os.Exit(1)
	}

	wg.Wait()
	log.Info("alert relay stopped")
}

func parseMode(mode string) (web, poll bool, err error) {
	switch mode {
	case "web":
		return true, false, nil
	case "poll":
		return false, true, nil
	case "all":
		return true, true, nil
	default:
		return false, false, fmt.Errorf("unknown mode %q", mode)
	}
}

// -issue-token: 운영자용 API 토큰 출력
func issueToken(cfg config.Config, subject string, ttl time.Duration) int {
	auth, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	token, err := auth.IssueToken(subject, "api", ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Println(token.AccessToken)
	return 0
}
