package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clinic-management-api/internal/api"
	"clinic-management-api/internal/clinic"
	"clinic-management-api/internal/config"
	gweb "clinic-management-api/internal/grpcweb"
	"clinic-management-api/internal/handler"
	"clinic-management-api/internal/logging"
	"clinic-management-api/internal/middleware"
	"clinic-management-api/internal/stats"
	"clinic-management-api/internal/store"
	"clinic-management-api/internal/store/leveldb"
	"clinic-management-api/internal/store/memory"
	"clinic-management-api/internal/store/mongo"
	"clinic-management-api/internal/store/postgres"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Clinic management API server",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd(), createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST, gRPC and gRPC-Web listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the postgres backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := postgres.Migrate(ctx, pool, dir)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", n)
			return nil
		},
	}
	cmd.Flags().String("dir", "db/migrations", "Path to migrations directory")
	return cmd
}

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreBackend == config.BackendMemory {
				return fmt.Errorf("create-admin needs a persistent STORE_BACKEND")
			}

			ctx := context.Background()
			b, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close(ctx)

			svc := clinic.New(b, stats.NewCache(), cfg.JWTSecret)
			u, err := svc.CreateAdmin(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (%s).\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().String("name", "Administrator", "Display name")
	cmd.Flags().String("email", "", "Login email")
	cmd.Flags().String("password", "", "Login password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBackend connects the persistence engine named by STORE_BACKEND.
func openBackend(ctx context.Context, cfg *config.Config) (*store.Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendLevelDB:
		return leveldb.Open(cfg.LevelDBPath)
	case config.BackendMongo:
		return mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		return postgres.New(pool), nil
	default:
		return memory.New(), nil
	}
}

func runServer(cfg *config.Config) error {
	logger := logging.New(cfg.IsDev())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close backend")
		}
	}()
	logger.Info().Str("backend", b.Name).Bool("exact_count", b.Counters != nil).Msg("store ready")

	cache := stats.NewCache(stats.WithTTL(cfg.StatsCacheTTL))
	agg := stats.NewAggregator(stats.NewStore(b), cache, stats.WithLogger(logger))
	svc := clinic.New(b, cache, cfg.JWTSecret, clinic.WithLogger(logger))
	rl := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	// grpc
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			middleware.UnaryLogger(logger),
			middleware.RateLimit(rl),
			middleware.Auth(cfg.JWTSecret),
		),
	)
	handler.RegisterStatsServer(srv, handler.New(agg, logger))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		logger.Info().Str("port", cfg.GRPCPort).Msg("grpc listening")
		if err := srv.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("grpc")
		}
	}()

	// grpc-web bridge forwards browser requests to grpc on localhost
	bridge, err := gweb.New("localhost:"+cfg.GRPCPort, logger, gweb.WithOrigins(cfg.CORSOrigins...))
	if err != nil {
		srv.Stop()
		return err
	}
	defer bridge.Close()

	e := api.NewServer(api.NewHandler(svc, agg, cfg.JWTSecret, rl), logger, api.ServerConfig{
		Dev:         cfg.IsDev(),
		CORSOrigins: cfg.CORSOrigins,
		GRPCWeb:     bridge.Handler(),
	})
	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(logger, e.Shutdown, srv, hs)
	return nil
}

func shutdown(logger zerolog.Logger, httpShutdown func(context.Context) error, srv *grpc.Server, hs *health.Server) {
	logger.Info().Msg("shutting down")
	hs.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpShutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}
