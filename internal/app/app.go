// Package app wires configuration, storage, the login flow and the HTTP
// server together.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/dataarchlabs/lab-portal/internal/authz"
	"github.com/dataarchlabs/lab-portal/internal/config"
	"github.com/dataarchlabs/lab-portal/internal/database"
	"github.com/dataarchlabs/lab-portal/internal/handler"
	"github.com/dataarchlabs/lab-portal/internal/identity"
	"github.com/dataarchlabs/lab-portal/internal/logger"
	"github.com/dataarchlabs/lab-portal/internal/middleware"
	"github.com/dataarchlabs/lab-portal/internal/oauthstate"
	"github.com/dataarchlabs/lab-portal/internal/provider"
	"github.com/dataarchlabs/lab-portal/internal/queue"
	"github.com/dataarchlabs/lab-portal/internal/repository"
	"github.com/dataarchlabs/lab-portal/internal/router"
	"github.com/dataarchlabs/lab-portal/internal/service"
	"github.com/dataarchlabs/lab-portal/internal/session"
)

type App struct {
	cfg   config.Config
	echo  *echo.Echo
	chain *authz.Chain
	db    *sql.DB
	redis *redis.Client

	stopConsumer context.CancelFunc
	consumerDone chan struct{}
}

// New builds every dependency. Anything misconfigured (signing key, Google
// credentials, database) is returned as an error so main can exit.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	key, err := session.NewKey(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, db: db}

	google, err := provider.NewGoogle(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	if err != nil {
		_ = a.close()
		return nil, err
	}

	opts := []identity.Option{identity.WithAdminEmails(cfg.AdminEmails...)}
	if cfg.AuthEventsEnabled {
		opts = append(opts, identity.WithEvents(service.NewAuthEventPublisher(cfg.AMQPURL)))
	}
	accounts := repository.NewAccountRepo(db)
	resolver := identity.NewResolver(accounts, opts...)

	a.chain = authz.NewChain(session.NewVerifier(key, cfg.JWTIssuer))
	issuer := session.NewIssuer(key, cfg.AccessTTL, cfg.JWTIssuer)

	auth := handler.NewAuthHandler(provider.NewRegistry(google), a.stateStore(), resolver, issuer, accounts, cfg.FrontendURL)

	e := echo.New()
	e.HideBanner = true
	e.Logger = logger.Echo()
	e.Use(echomw.Recover())
	e.Use(middleware.AccessLog())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
		AllowCredentials: true,
	}))
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, auth, a.chain)
	a.echo = e

	if cfg.AuthEventsConsumer {
		a.startConsumer()
	}
	return a, nil
}

// MountContent puts a content CRUD surface under /v1/<name> behind the
// authorization chain. The content resources live outside this module, so
// the server binary mounts none; an embedding program calls MountContent
// once per resource after New and before Run.
func (a *App) MountContent(name string, r handler.Resource) {
	router.RegisterContent(a.echo, a.chain, name, r)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.echo }

// Run serves HTTP until Shutdown is called.
func (a *App) Run() error {
	err := a.echo.Start(":" + a.cfg.Port)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains HTTP, stops the consumer and closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.echo.Shutdown(ctx)
	if a.stopConsumer != nil {
		a.stopConsumer()
		select {
		case <-a.consumerDone:
		case <-ctx.Done():
		}
	}
	return errors.Join(err, a.close())
}

func (a *App) close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func openDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = database.OpenSQLite(cfg.SQLitePath)
	default:
		db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	if err := database.Migrate(ctx, db, cfg.DBDriver); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// stateStore prefers Redis and degrades to the in-process store.
func (a *App) stateStore() oauthstate.Store {
	client, err := config.NewRedisClient(a.cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, keeping oauth state in memory", map[string]any{"err": err})
		return oauthstate.NewMemoryStore()
	}
	a.redis = client
	return oauthstate.NewRedisStore(client)
}

func (a *App) startConsumer() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopConsumer = cancel
	a.consumerDone = make(chan struct{})
	c := &queue.Consumer{URL: a.cfg.AMQPURL, LogDir: "logs"}
	go func() {
		defer close(a.consumerDone)
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("auth consumer stopped", map[string]any{"err": err})
		}
	}()
}
