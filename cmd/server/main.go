// Command leadgate-server serves the lead-capture API, token landing pages and the admin API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/leadgate/internal/botguard"
	"github.com/and161185/leadgate/internal/config"
	"github.com/and161185/leadgate/internal/email"
	"github.com/and161185/leadgate/internal/limiter"
	"github.com/and161185/leadgate/internal/logger"
	"github.com/and161185/leadgate/internal/migrate"
	"github.com/and161185/leadgate/internal/repository/postgres"
	grpcserver "github.com/and161185/leadgate/internal/server/grpc"
	httpserver "github.com/and161185/leadgate/internal/server/http"
	"github.com/and161185/leadgate/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// Admin login lockout: 5 failures within 15 minutes block for 15 minutes.
const (
	lockoutWindow   = 15 * time.Minute
	lockoutMaxFails = 5
	lockoutBlockFor = 15 * time.Minute
)

const healthInterval = 10 * time.Second

// main loads configuration, runs migrations, and serves HTTP plus the optional gRPC health endpoint.
func main() {
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	flag.Parse()

	envErr := config.LoadDotEnv(*envFile)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lg, err := logger.New(logger.Config{
		Debug:     cfg.Log.Debug,
		SentryDSN: cfg.Log.SentryDSN,
		Tags:      map[string]string{"service": "leadgate", "version": version},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer lg.Close(2 * time.Second)
	log := lg.Logger

	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Server.ListenAddr),
	)
	switch {
	case errors.Is(envErr, fs.ErrNotExist):
		log.Warn("env file not found; using process environment", zap.String("path", *envFile))
	case envErr != nil:
		log.Fatal("env file", zap.Error(envErr))
	}

	if err := run(cfg, log); err != nil {
		log.Error("server error", zap.Error(err))
		lg.Close(2 * time.Second)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applied, err := migrate.Up(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	for _, m := range applied {
		log.Info("migration applied", zap.Int64("version", m.Version), zap.String("path", m.Path))
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	// Repositories
	db := &postgres.DB{Pool: pool}
	leadRepo := postgres.NewLeadRepo(db)
	magnetRepo := postgres.NewMagnetRepo(db)

	// Rate limiting
	local := limiter.NewMemory(cfg.RateLimit.Max, cfg.RateLimit.Window())
	var lim limiter.Limiter = local
	if cfg.Redis.Enabled() {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		lim = limiter.NewFallback(limiter.NewRedis(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window()), local, log)
		log.Info("rate limiter: redis with in-process fallback")
	} else {
		log.Info("rate limiter: in-process")
	}

	outbound := &http.Client{Timeout: cfg.Server.OutboundTimeout}

	verifier := botguard.NewVerifier(cfg.Turnstile.SiteKey, cfg.Turnstile.SecretKey, cfg.Turnstile.VerifyURL,
		cfg.Server.OutboundTimeout, log.Named("turnstile"))

	sender := email.NewSender(cfg.Email, outbound)
	if !cfg.Email.Configured() {
		log.Warn("email provider not configured; submissions will fail at the email stage",
			zap.String("provider", cfg.Email.Provider))
	}
	mailer := email.NewDispatcher(sender, email.Config{
		From:      cfg.Email.From,
		To:        cfg.Email.Recipient(),
		AutoReply: cfg.Email.To != "",
		SiteName:  cfg.Site.Name,
	}, log.Named("email"))

	// Services
	leads := service.NewLeadService(service.LeadDeps{
		Leads:    leadRepo,
		Magnets:  magnetRepo,
		Verifier: verifier,
		Limiter:  lim,
		Mailer:   mailer,
		SiteURL:  cfg.Site.URL,
		Log:      log,
	})

	var admin httpserver.Admin
	if cfg.Admin.Enabled() {
		admin = service.NewAdminService(service.AdminConfig{
			Username:     cfg.Admin.Username,
			PasswordHash: cfg.Admin.PasswordHash,
			SignKey:      []byte(cfg.Admin.JWTKey),
			AccessTTL:    cfg.Admin.TokenTTL,
		}, leadRepo, limiter.NewPGLockout(pool, lockoutWindow, lockoutMaxFails, lockoutBlockFor))
	} else {
		log.Info("admin API disabled")
	}

	proxies, err := cfg.Server.Proxies()
	if err != nil {
		return err
	}
	if len(proxies) == 0 {
		log.Info("no trusted proxies; client identity is the connection address")
	}

	api := httpserver.New(httpserver.Deps{
		Leads:           leads,
		Admin:           admin,
		DB:              db,
		Log:             log,
		GAMeasurementID: cfg.Site.GAMeasurementID,
		SiteName:        cfg.Site.Name,
		RetryAfter:      cfg.RateLimit.Window(),
		TrustedProxies:  proxies,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("listening (http)", zap.String("addr", cfg.Server.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var gs *grpc.Server
	if addr := cfg.Server.HealthGRPCAddr; addr != "" {
		hc := grpcserver.NewHealth(db, healthInterval, log)
		gs = grpcserver.NewServer(hc, log)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		go hc.Run(ctx)
		go func() {
			log.Info("listening (grpc health)", zap.String("addr", addr))
			errCh <- gs.Serve(lis)
		}()
	}

	// Wait for stop
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			gs.Stop()
		}
	}
	return nil
}
