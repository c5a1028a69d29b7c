package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tmail/internal/api"
	"tmail/internal/auth"
	"tmail/internal/biz"
	"tmail/internal/conf"
	"tmail/internal/data"
	"tmail/internal/log"
	"tmail/internal/server"
	"tmail/internal/service"

	"golang.org/x/sync/errgroup"
)

var flagconf string

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// load config
	cfg, err := conf.Load(flagconf)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}

	// 手动依赖注入
	// data 层
	tokenRepo, err := data.NewTokenRepo(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to init token repo: %w", err)
	}
	defer tokenRepo.Close()
	mailboxRepo := data.NewMemoryMailboxRepo()
	logger.Info("token store ready", "driver", cfg.Store.Driver)

	// auth 层
	redirectURL := cfg.Auth.GetRedirectURL(cfg.Server.BaseURL)
	provider, err := auth.NewIdentityProvider(ctx, &cfg.Auth, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to init identity provider: %w", err)
	}
	logger.Info("identity provider ready", "provider", provider.Name(), "redirect_url", redirectURL)

	// biz 层
	opts := []biz.AuthOption{biz.WithLogger(logger)}
	if cfg.Auth.VerifyState {
		opts = append(opts, biz.WithStateVerification(auth.NewStateStore(ctx)))
		logger.Info("state verification enabled")
	}
	if cfg.Auth.TokenTTL > 0 {
		opts = append(opts, biz.WithExpiryPolicy(biz.MaxAge{TTL: cfg.Auth.TokenTTL}))
	}
	authUsecase := biz.NewAuthUsecase(tokenRepo, provider, opts...)
	mailUsecase := biz.NewMailUsecase(mailboxRepo, cfg.Mail.Domains)

	// service 层
	authService := service.NewAuthService(authUsecase)
	mailService := service.NewMailService(mailUsecase)

	// api 层
	routerOpts := api.RouterOptions{
		HealthChecks: map[string]api.HealthCheck{
			"token_store": func(ctx context.Context) error { return data.Ping(ctx, tokenRepo) },
		},
	}
	if cfg.Auth.Provider == "mock" && cfg.Auth.MockAuthorize {
		routerOpts.MockAuthorize = api.MockAuthorizeHandler(redirectURL)
		logger.Info("mock authorize endpoint enabled", "path", "/mock/oauth/authorize")
	}
	router := api.NewRouter(
		api.NewAuthHandler(authService, mailService),
		api.NewMailHandler(mailService),
		auth.BearerMiddleware(authUsecase),
		routerOpts,
	)

	handler := server.ChainMiddleware(router,
		server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		server.NewRecoverMiddleware(logger),
		server.NewLoggerMiddleware(logger),
	)
	httpServer := server.NewHTTPServer(handler, cfg.Server.Addr, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
