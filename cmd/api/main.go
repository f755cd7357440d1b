package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"realtyportal/internal/assets"
	"realtyportal/internal/config"
	"realtyportal/internal/database"
	"realtyportal/internal/metrics"
	"realtyportal/internal/notify"
	"realtyportal/internal/pdf"
	"realtyportal/internal/ratelimit"
	"realtyportal/internal/server"
	"realtyportal/internal/services"
	"realtyportal/internal/store"
	"realtyportal/internal/util"
)

const (
	shutdownTimeout = 30 * time.Second
	readTimeout     = 15 * time.Second
	writeTimeout    = 60 * time.Second
	idleTimeout     = 60 * time.Second
	notifyTimeout   = 30 * time.Second
	dbStatsInterval = 15 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	setupLogging(&cfg.Log)
	log := logrus.WithField("component", "api")

	// Validate critical configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.WithFields(logrus.Fields{
		"version": cfg.App.Version,
		"debug":   cfg.App.Debug,
		"port":    cfg.App.Port,
		"host":    cfg.App.Host,
	}).Infof("Starting %s", cfg.App.Name)

	// Initialize database
	if err := database.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		log.Info("Closing database connections...")
		if err := database.Close(); err != nil {
			log.WithError(err).Error("Error closing database")
		}
	}()
	db := database.GetDB()
	st := store.New(db)

	// Rate limit store
	var (
		limitStore  ratelimit.Store
		redisPinger services.Pinger
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		redisStore, err := ratelimit.NewRedisStore(cfg.RateLimit.RedisURL)
		if err != nil {
			log.Fatalf("Failed to configure redis rate limiting: %v", err)
		}
		defer redisStore.Close()
		limitStore, redisPinger = redisStore, redisStore
	default:
		log.Warn("Rate limiting uses process memory; counters are per instance and lost on restart")
		limitStore = ratelimit.NewMemoryStore(cfg.RateLimit.SweepInterval)
	}
	limiter := ratelimit.NewLimiter(limitStore)

	// Optional subsystems run degraded when unconfigured
	var degraded []string
	uploader, err := assets.New(&cfg.Assets)
	if err != nil {
		log.Fatalf("Failed to configure asset storage: %v", err)
	}
	if mu, ok := uploader.(*assets.MinioUploader); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := mu.EnsureBucket(ctx); err != nil {
			log.WithError(err).Warn("Asset bucket unavailable, uploads will fail")
		}
		cancel()
	} else {
		degraded = append(degraded, "assets")
	}
	if !cfg.Email.Enabled {
		log.Warn("Email disabled, notifications are logged only")
		degraded = append(degraded, "email")
	}
	if !cfg.PDF.Enabled {
		degraded = append(degraded, "pdf")
	}
	if !cfg.Identity.Enabled() {
		log.Warn("Identity provider key not set, investor portal routes will refuse every request")
		degraded = append(degraded, "identity")
	}
	identity, err := util.NewIdentityVerifier(&cfg.Identity)
	if err != nil {
		log.Fatalf("Failed to configure identity provider: %v", err)
	}

	// Create service instances
	notifier := notify.NewNotifier(notify.NewSMTPSender(&cfg.Email), cfg.Email.AdminEmail, cfg.App.PublicURL)
	dispatch := services.NewDispatcher(notifier, notifyTimeout)

	srv := server.New(server.Deps{
		Config: cfg,
		Auth:   services.NewAuthService(db, &cfg.Auth),
		Leads: services.NewLeadService(st, dispatch, services.RateLimit{
			Limiter: limiter, Limit: cfg.RateLimit.LeadLimit, Window: cfg.RateLimit.LeadWindow,
		}),
		Investors: services.NewInvestorService(st, uploader),
		LOIs: services.NewLOIService(services.LOIServiceOptions{
			Store:    st,
			Dispatch: dispatch,
			Uploader: uploader,
			Renderer: pdf.NewRenderer(cfg.PDF.Enabled, cfg.PDF.Timeout),
			Limit: services.RateLimit{
				Limiter: limiter, Limit: cfg.RateLimit.LOILimit, Window: cfg.RateLimit.LOIWindow,
			},
			StrictTransitions: cfg.LOI.StrictTransitions,
		}),
		Prospectuses: services.NewProspectusService(st),
		Health:       services.NewHealthService(cfg.App.Name, cfg.App.Version, db, redisPinger, degraded),
		Identity:     identity,
	})
	if !cfg.LOI.StrictTransitions {
		log.Warn("LOI_STRICT_TRANSITIONS=false, admin status overrides bypass the transition table")
	}

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go reportDBStats(statsCtx)

	// Create HTTP server with timeouts
	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalf("Server failed to start: %v", err)
	case sig := <-shutdown:
		log.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Error during graceful shutdown")
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("Shutdown timeout exceeded, forcing close...")
			httpServer.Close()
		}
	}
	if err := dispatch.Drain(ctx); err != nil {
		log.WithError(err).Warn("Pending notifications abandoned")
	}

	log.Info("Server shutdown complete")
}

// setupLogging configures the global logrus logger
func setupLogging(cfg *config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stdout)
}

// validateConfig validates critical configuration values
func validateConfig(cfg *config.Config) error {
	if cfg.Auth.SecretKey == "" || cfg.Auth.SecretKey == "your-secret-key-change-in-production" {
		return fmt.Errorf("SECRET_KEY must be set and changed from default value")
	}
	if len(cfg.Auth.SecretKey) < 32 {
		return fmt.Errorf("SECRET_KEY must be at least 32 characters for security")
	}
	if cfg.App.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	return nil
}

// reportDBStats publishes connection pool gauges until ctx is done
func reportDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats, err := database.GetStats(); err == nil {
				metrics.UpdateDBConnections(stats.InUse, stats.Idle)
			}
		}
	}
}
