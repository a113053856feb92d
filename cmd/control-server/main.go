package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tvlink-server/tvlink-server/internal/api"
	"github.com/tvlink-server/tvlink-server/internal/config"
	"github.com/tvlink-server/tvlink-server/internal/controller"
	"github.com/tvlink-server/tvlink-server/internal/discovery"
	"github.com/tvlink-server/tvlink-server/internal/integration"
	"github.com/tvlink-server/tvlink-server/internal/models"
	"github.com/tvlink-server/tvlink-server/internal/session"
	"github.com/tvlink-server/tvlink-server/internal/storage"
	"github.com/tvlink-server/tvlink-server/pkg/crypto"
)

func main() {
	// Command line flags
	var configPath = flag.String("config", "config/control-server.yml", "配置文件路径")
	var validateOnly = flag.Bool("validate", false, "仅验证配置文件")
	var showConfig = flag.Bool("show-config", false, "显示配置并退出")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	if *validateOnly {
		cfg.PrintConfigSummary()
		log.Info().Msg("Configuration is valid")
		return
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Seed the initial admin user on an empty user table
	if err := seedAdminUser(ctx, store, cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed admin user")
	}

	// Optional: connect to NATS
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("tvlink-control-server"),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without event publishing")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Session orchestrator
	manager := controller.NewManager(store, nc, session.Options{
		ConnectTimeout: cfg.TV.ConnectTimeout,
		RequestTimeout: cfg.TV.RequestTimeout,
		PairingWindow:  cfg.TV.PairingWindow,
		SecurePort:     cfg.TV.SecurePort,
		InsecurePort:   cfg.TV.InsecurePort,
	})

	// 启动时尝试用存储的凭据恢复会话
	if cfg.TV.AutoReconnect {
		go func() {
			rctx, rcancel := context.WithTimeout(ctx, 30*time.Second)
			defer rcancel()
			if err := manager.EnsureConnection(rctx); err != nil {
				log.Warn().Err(err).Msg("Auto-reconnect failed")
			}
		}()
	}

	// SSDP scanner
	scanner := discovery.NewScanner(cfg.Discovery.MulticastAddr, cfg.Discovery.SearchTarget)

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, manager, scanner)

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Start integration forwarder
	if nc != nil && (cfg.Integration.MQTT.Enabled || cfg.Integration.HTTP.Enabled) {
		forwarder := integration.NewForwarderService(nc, cfg.Integration)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("Starting integration forwarder")
			if err := forwarder.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Integration forwarder stopped")
			}
		}()
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Cancel context
	cancel()

	// Tear down the TV session
	manager.Disconnect()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Control server stopped")
}

// seedAdminUser 用户表为空时创建初始管理员
func seedAdminUser(ctx context.Context, store storage.Store, cfg *config.Config) error {
	count, err := store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		log.Warn().Msg("No users exist and no admin credentials configured, API logins will fail")
		return nil
	}

	hash, err := crypto.HashPassword(cfg.Admin.Password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	user := &models.User{
		Email:        cfg.Admin.Email,
		Name:         "Administrator",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	log.Info().Str("email", cfg.Admin.Email).Msg("Seeded initial admin user")
	return nil
}
