package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/victornm/emstudy/internal/api"
	"github.com/victornm/emstudy/internal/catalog"
	"github.com/victornm/emstudy/internal/domain"
	"github.com/victornm/emstudy/internal/event"
	"github.com/victornm/emstudy/internal/leaderboard"
	"github.com/victornm/emstudy/internal/submission"
	"github.com/victornm/emstudy/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type RedisConfig struct {
	Addrs  []string `validate:"required,min=1"`
	Pass   string
	Prefix string
}

type PostgresConfig struct {
	Addr string
	User string
	Pass string
	Name string
}

func (c PostgresConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name)
}

type Config struct {
	HTTP struct {
		Port int32 `validate:"required"`
	}

	GRPC struct {
		Port int32 `validate:"required"`
	}

	Auth struct {
		Secret string `validate:"required"`
	}

	Redis struct {
		Cache       RedisConfig
		Leaderboard RedisConfig
		Pubsub      RedisConfig
	}

	Cache struct {
		QuizTTL time.Duration
	}

	Postgres struct {
		Catalog    PostgresConfig
		Submission PostgresConfig
	}

	Submission struct {
		Driver     string `validate:"oneof=postgres sqlite"`
		SQLitePath string
	}
}

// DefaultConfig holds the values used when neither the file nor the environment sets them.
func DefaultConfig() Config {
	var c Config
	c.Cache.QuizTTL = 5 * time.Minute
	c.Submission.Driver = DriverPostgres
	c.Submission.SQLitePath = "submissions.db"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			cache       redis.UniversalClient
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			catalog    *gorm.DB
			submission *pgxpool.Pool
		}

		sqlite *submission.SQLiteStore
	}

	service struct {
		catalog     *catalog.Repository
		quizzes     *catalog.Cache
		submission  *submission.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if s.c.Submission.Driver == DriverSQLite {
		store, err := submission.NewSQLiteStore(s.c.Submission.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
		s.infra.sqlite = store
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(c RedisConfig) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    c.Addrs,
			Password: c.Pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.cache, err = connect(s.c.Redis.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.infra.postgres.catalog, err = gorm.Open(postgres.Open(s.c.Postgres.Catalog.dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	sqlDB, err := s.infra.postgres.catalog.DB()
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	if s.c.Submission.Driver != DriverPostgres {
		return nil
	}

	cc, err := pgxpool.ParseConfig(s.c.Postgres.Submission.dsn())
	if err != nil {
		return fmt.Errorf("submission: %w", err)
	}

	s.infra.postgres.submission, err = pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("submission: %w", err)
	}

	if err := s.infra.postgres.submission.Ping(ctx); err != nil {
		return fmt.Errorf("submission: %w", err)
	}

	return nil
}

func (s *Server) initService() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.service.catalog = catalog.NewRepository(catalog.Config{
		DB: s.infra.postgres.catalog,
	})
	if err := s.service.catalog.Migrate(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	s.service.catalog.CompleteOnSubmit(s.eb)

	s.service.quizzes = catalog.NewCache(catalog.CacheConfig{
		Source: s.service.catalog,
		Redis:  s.infra.redis.cache,
		Prefix: s.c.Redis.Cache.Prefix,
		TTL:    s.c.Cache.QuizTTL,
	})

	var store submission.Store
	switch s.c.Submission.Driver {
	case DriverSQLite:
		store = s.infra.sqlite
	default:
		pg := submission.NewPostgresStore(s.infra.postgres.submission)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("submission: %w", err)
		}
		store = pg
	}

	s.service.submission = submission.NewService(submission.Config{
		Store:    store,
		Catalog:  s.service.catalog,
		Quizzes:  s.service.quizzes,
		EventBus: s.eb,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})

	return nil
}

// quizCatalog reads quizzes through the cache and everything else from the repository.
type quizCatalog struct {
	*catalog.Repository
	quizzes *catalog.Cache
}

func (c quizCatalog) ResolveQuiz(ctx context.Context, id int64) (*domain.Quiz, error) {
	return c.quizzes.ResolveQuiz(ctx, id)
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:      e,
		EventBus:    s.eb,
		Submission:  s.service.submission,
		Leaderboard: s.service.leaderboard,
		Catalog: quizCatalog{
			Repository: s.service.catalog,
			quizzes:    s.service.quizzes,
		},
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
		AuthSecret:   s.c.Auth.Secret,
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()
	s.closeInfra(ctx)

	slog.InfoContext(ctx, "server: shutdown completed")
}

func (s *Server) closeInfra(ctx context.Context) {
	for name, r := range map[string]redis.UniversalClient{
		"cache":       s.infra.redis.cache,
		"leaderboard": s.infra.redis.leaderboard,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "redis", name, "error", err)
		}
	}

	if s.infra.postgres.submission != nil {
		s.infra.postgres.submission.Close()
	}

	if sqlDB, err := s.infra.postgres.catalog.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close catalog failed", "error", err)
		}
	}

	if s.infra.sqlite != nil {
		if err := s.infra.sqlite.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close sqlite failed", "error", err)
		}
	}
}
