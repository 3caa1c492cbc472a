package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/templui/fileshare/internal/cache"
	"github.com/templui/fileshare/internal/config"
	"github.com/templui/fileshare/internal/db"
	"github.com/templui/fileshare/internal/ratelimit"
	"github.com/templui/fileshare/internal/repository"
	"github.com/templui/fileshare/internal/security"
	"github.com/templui/fileshare/internal/service"
	"github.com/templui/fileshare/internal/storage"
	"github.com/templui/fileshare/internal/validation"
)

const (
	memoryCacheEntries = 4096
	redisNamespace     = "fileshare"
)

// Limiters holds one limiter per protected route family.
type Limiters struct {
	API         *ratelimit.Limiter
	Auth        *ratelimit.Limiter
	Upload      *ratelimit.Limiter
	Download    *ratelimit.Limiter
	GroupCreate *ratelimit.Limiter
	FileAccess  *ratelimit.Limiter
}

type limiterSpec struct {
	name   string
	limit  int
	window time.Duration
	target **ratelimit.Limiter
}

type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	Mongo        *mongo.Database
	Redis        *redis.Client
	Storage      storage.Storage
	Cache        cache.Cache
	Limiters     Limiters
	Checks       map[string]func(context.Context) error
	AuthService  *service.AuthService
	FileService  *service.FileService
	GroupService *service.GroupService

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Cfg:    cfg,
		Checks: map[string]func(context.Context) error{},
	}

	users, files, groups, err := a.initStore(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	err = a.initRedis(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Storage, err = storage.New(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := security.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry)

	a.AuthService = service.NewAuthService(users, hasher, tokens)
	a.FileService = service.NewFileService(
		files,
		groups,
		a.Storage,
		hasher,
		validation.NewFileConstraints(cfg.AllowedFileTypes, cfg.MaxFileSize),
		cfg.StorageFolder,
		cfg.ShareURL,
	)
	a.GroupService = service.NewGroupService(groups, files)

	return a, nil
}

// initStore connects the record store selected by DB_DRIVER.
func (a *App) initStore(ctx context.Context) (repository.UserRepository, repository.FileRepository, repository.GroupRepository, error) {
	if a.Cfg.UsesMongo() {
		database, err := db.ConnectMongo(ctx, a.Cfg.MongoURL, a.Cfg.MongoDatabase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		a.Mongo = database
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return database.Client().Disconnect(ctx)
		})
		a.Checks["database"] = db.MongoHealthcheck(database.Client())

		err = repository.EnsureMongoIndexes(ctx, database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create mongodb indexes: %w", err)
		}

		return repository.NewMongoUserRepository(database),
			repository.NewMongoFileRepository(database),
			repository.NewMongoGroupRepository(database),
			nil
	}

	database, err := db.Init(a.Cfg.DBDriver, a.Cfg.DBConnection)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = database
	a.closers = append(a.closers, func() error { return db.Close(database) })
	a.Checks["database"] = db.Healthcheck(database)

	err = db.RunMigrations(ctx, database.DB, a.Cfg.DBDriver)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repository.NewUserRepository(database),
		repository.NewFileRepository(database),
		repository.NewGroupRepository(database),
		nil
}

// initRedis backs the cache and the limiters with Redis when REDIS_URL is
// set, and with process memory otherwise.
func (a *App) initRedis(ctx context.Context) error {
	var store ratelimit.Store

	if a.Cfg.RedisURL != "" {
		client, err := db.ConnectRedis(ctx, a.Cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)
		a.Checks["redis"] = db.RedisHealthcheck(client)

		a.Cache = cache.NewRedisCache(client, redisNamespace)
		store = ratelimit.NewRedisStore(client)
		slog.Info("using redis for cache and rate limits")
	} else {
		a.Cache = cache.NewMemoryCache(memoryCacheEntries)
		store = ratelimit.NewMemoryStore(time.Hour)
	}
	a.closers = append(a.closers, a.Cache.Close, store.Close)

	specs := []limiterSpec{
		{"api", 100, 15 * time.Minute, &a.Limiters.API},
		{"auth", 5, 15 * time.Minute, &a.Limiters.Auth},
		{"upload", 20, time.Hour, &a.Limiters.Upload},
		{"download", 50, 15 * time.Minute, &a.Limiters.Download},
		{"group_create", 10, time.Hour, &a.Limiters.GroupCreate},
		{"file_access", 100, 15 * time.Minute, &a.Limiters.FileAccess},
	}
	for _, spec := range specs {
		limiter, err := ratelimit.New(spec.name, store, spec.limit, spec.window)
		if err != nil {
			return fmt.Errorf("failed to create %s limiter: %w", spec.name, err)
		}
		*spec.target = limiter
	}

	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i]()
		if err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
