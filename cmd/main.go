package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	httpctx "github.com/ndrama/panel-server/internal/api/http/context"
	"github.com/ndrama/panel-server/internal/api/http/handler"
	"github.com/ndrama/panel-server/internal/api/http/middleware"
	"github.com/ndrama/panel-server/internal/api/http/router"
	httpServer "github.com/ndrama/panel-server/internal/api/http/server"
	"github.com/ndrama/panel-server/internal/config"
	"github.com/ndrama/panel-server/internal/credential"
	"github.com/ndrama/panel-server/internal/logger"
	"github.com/ndrama/panel-server/internal/metrics"
	"github.com/ndrama/panel-server/internal/model"
	"github.com/ndrama/panel-server/internal/oauth"
	"github.com/ndrama/panel-server/internal/repository/memory"
	"github.com/ndrama/panel-server/internal/repository/postgres"
	"github.com/ndrama/panel-server/internal/server"
	"github.com/ndrama/panel-server/internal/service"
	"github.com/ndrama/panel-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	var (
		userStore model.UserStore
		pinger    handler.Pinger
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory user store, data is lost on restart")
		userStore = memory.NewUserRepository()
	default:
		db, err := postgres.NewConnection(ctx, postgres.PoolConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			logger.Fatal("failed to initialize storage", "error", err)
		}
		defer db.Close()

		userStore = postgres.NewUserRepository(db)
		pinger = db
	}

	tokenManager, err := token.NewJWT(token.Config{Secret: cfg.JWT.Secret})
	if err != nil {
		logger.Fatal("failed to initialize token manager", "error", err)
	}
	hasher := credential.NewBcrypt(cfg.Bcrypt.Cost)

	tokenService := service.NewTokenService(tokenManager, cfg.JWT.AccessTTL(), cfg.JWT.RefreshTTL(), logger)
	authService := service.NewAuth(userStore, hasher, tokenService, logger)
	guard := service.NewGuard(userStore, tokenService, logger)
	userService := service.NewUsers(userStore, hasher, logger)

	var google handler.OAuthProvider
	if cfg.Google.Enabled() {
		google = oauth.NewGoogle(oauth.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURI,
		})
	} else {
		logger.Info("Google sign-in disabled, GOOGLE_CLIENT_ID is not set")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RateLimit.RPS),
		Burst: cfg.RateLimit.Burst,
	}, logger)
	defer limiter.Stop()

	r := router.New(router.Deps{
		AuthService:    authService,
		UserService:    userService,
		Guard:          guard,
		Google:         google,
		ContextManager: httpctx.NewManager(),
		Pinger:         pinger,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		RateLimiter:    limiter,
		AuthConfig: handler.AuthConfig{
			FrontendURL:  cfg.FrontendURL,
			SecureCookie: cfg.HTTP.EnableHTTPS,
			NewState:     oauth.NewState,
		},
		AllowedOrigin:     cfg.FrontendURL,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		Logger:            logger,
	})

	srv := httpServer.NewHTTPServer(r.Register(), cfg.HTTP.Address)

	var sl model.SecurityLayer
	if cfg.HTTP.EnableHTTPS {
		sl = server.NewTLSListener(cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address(), "https", cfg.HTTP.EnableHTTPS)
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(srv)

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", srv.Address())
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
