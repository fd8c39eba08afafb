package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	account "github.com/goliatone/go-account"
	"github.com/goliatone/go-account/activitymap"
	"github.com/goliatone/go-account/config"
	"github.com/goliatone/go-account/mailer"
	"github.com/goliatone/go-account/middleware/csrf"
	"github.com/goliatone/go-account/redisstore"
	gconfig "github.com/goliatone/go-config/config"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

type App struct {
	config    *gconfig.Container[*config.BaseConfig]
	logger    *glog.BaseLogger
	db        *bun.DB
	repo      account.RepositoryManager
	tokens    *account.TokenIssuer
	sessions  account.SessionManager
	notifier  *account.Notifier
	lifecycle *account.Lifecycle
	roles     *account.RoleAdmin
	srv       router.Server[*fiber.App]
	closers   []func()
}

func (a *App) Config() *config.BaseConfig {
	return a.config.Raw()
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func main() {
	_ = godotenv.Load()

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("account"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := gconfig.New(&config.BaseConfig{}).
		WithLogger(lgr.GetLogger("config"))

	ctx := context.Background()
	if err := cfg.Load(ctx); err != nil {
		panic(err)
	}

	if err := cfg.Raw().Validate(); err != nil {
		panic(err)
	}

	if cfg.Raw().GetDebug() {
		fmt.Println("============")
		fmt.Println(print.MaybeHighlightJSON(cfg.Raw()))
		fmt.Println("============")
	}

	app := &App{
		config: cfg,
		logger: lgr,
	}

	if err := WithPersistence(ctx, app); err != nil {
		panic(err)
	}

	if err := WithAccountServices(ctx, app); err != nil {
		panic(err)
	}

	if err := WithAdminSeed(ctx, app); err != nil {
		panic(err)
	}

	if err := WithHTTPServer(ctx, app); err != nil {
		panic(err)
	}

	purgeCtx, stopPurge := context.WithCancel(ctx)
	go PurgeExpiredTokens(purgeCtx, app, time.Hour)

	addr := app.Config().GetServer().GetAddr()
	app.GetLogger("app").Info("serving", "addr", addr)
	app.srv.Serve(addr)

	sig := WaitExitSignal()
	app.GetLogger("app").Info("shutting down", "signal", sig.String())

	stopPurge()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := app.srv.Shutdown(shutdownCtx); err != nil {
		app.GetLogger("app").Error("server shutdown failed", "error", err)
	}

	app.notifier.Wait()

	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}

func WithPersistence(ctx context.Context, app *App) error {
	cfg := app.Config().GetPersistence()

	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)
	switch cfg.GetDriver() {
	case config.DriverPostgres:
		if sqldb, err = sql.Open("pgx", cfg.GetDSN()); err != nil {
			return err
		}
		dialect = pgdialect.New()
	default:
		if sqldb, err = sql.Open(sqliteshim.ShimName, cfg.GetDSN()); err != nil {
			return err
		}
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}

	for _, model := range account.Models() {
		persistence.RegisterModel(model)
	}

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		return err
	}
	client.SetLogger(app.GetLogger("persistence"))

	migrationsFS, err := fs.Sub(account.GetMigrationsFS(), account.MigrationsRoot)
	if err != nil {
		return err
	}
	client.RegisterDialectMigrations(
		migrationsFS,
		persistence.WithDialectSourceLabel(account.MigrationsRoot),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)
	if err := client.ValidateDialects(ctx); err != nil {
		return err
	}

	if err := client.Migrate(ctx); err != nil {
		return err
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		app.GetLogger("persistence").Info("migrations applied", "report", report.String())
	}

	db := client.DB()
	if cfg.GetDebug() {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.GetPingTimeout())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return err
	}

	pw := app.Config().GetPassword()
	repo := account.NewRepositoryManager(db,
		account.WithIdentitiesHasher(account.NewBcryptHasher(pw.GetBcryptCost())),
		account.WithIdentitiesPasswordPolicy(account.NewPasswordPolicy(pw)),
	)

	if err := repo.Validate(); err != nil {
		return err
	}

	app.db = db
	app.repo = repo
	app.onClose(func() { _ = db.Close() })

	return nil
}

func WithAccountServices(ctx context.Context, app *App) error {
	cfg := app.Config()

	app.tokens = account.NewTokenIssuer(app.repo, cfg.GetTokens()).
		WithLogger(app.GetLogger("account:tokens"))

	lockout := account.NewLockoutPolicy(app.repo, cfg.GetLockout()).
		WithLogger(app.GetLogger("account:lockout"))

	store, err := NewSessionStore(ctx, app)
	if err != nil {
		return err
	}

	app.sessions = account.NewJWTSessions(cfg.GetTokens(), cfg.GetSession(), store).
		WithLogger(app.GetLogger("account:sessions"))

	gateway, err := NewGateway(app)
	if err != nil {
		return err
	}

	composer, err := mailer.NewTemplateComposer(cfg.GetName())
	if err != nil {
		return err
	}

	app.notifier = account.NewNotifier(gateway, cfg.GetServer().GetBaseURL()).
		WithComposer(composer).
		WithTimeout(cfg.GetEmail().GetTimeout()).
		WithLogger(app.GetLogger("account:notifier"))

	activity := account.ActivitySinkFunc(func(ctx context.Context, event account.ActivityEvent) error {
		record := activitymap.Normalize(event)
		app.GetLogger("account:activity").Info("activity", record.Fields()...)
		return nil
	})

	app.lifecycle = account.NewLifecycle(app.repo, app.tokens, lockout, app.sessions, app.notifier).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("account:lifecycle"))

	app.roles = account.NewRoleAdmin(app.repo).
		WithActivitySink(activity).
		WithLogger(app.GetLogger("account:roles"))

	return nil
}

func NewSessionStore(ctx context.Context, app *App) (account.SessionStore, error) {
	if app.Config().GetSession().GetStore() != config.StoreRedis {
		return account.NewMemorySessionStore(), nil
	}

	rcfg := app.Config().GetRedis()
	store, err := redisstore.New(ctx, redisstore.Config{
		Addr:      rcfg.GetAddr(),
		Password:  rcfg.GetPassword(),
		DB:        rcfg.GetDB(),
		KeyPrefix: rcfg.GetKeyPrefix(),
	})
	if err != nil {
		return nil, err
	}

	app.onClose(func() { _ = store.Close() })
	return store, nil
}

func NewGateway(app *App) (account.NotificationGateway, error) {
	ecfg := app.Config().GetEmail()

	switch ecfg.GetTransport() {
	case config.TransportSMTP:
		smtp := ecfg.GetSMTP()
		return mailer.NewSMTPGateway(mailer.SMTPConfig{
			Host:      smtp.GetHost(),
			Port:      smtp.GetPort(),
			EnableSSL: smtp.GetEnableSSL(),
			Username:  smtp.GetUsername(),
			Password:  smtp.GetPassword(),
			From:      ecfg.GetFrom(),
			FromName:  ecfg.GetFromName(),
		}), nil
	case config.TransportMailgun:
		mg := ecfg.GetMailgun()
		return mailer.NewMailgunGateway(mailer.MailgunConfig{
			Domain:  mg.GetDomain(),
			APIKey:  mg.GetAPIKey(),
			APIBase: mg.GetAPIBase(),
			Sender:  fmt.Sprintf("%s <%s>", ecfg.GetFromName(), ecfg.GetFrom()),
		}), nil
	case config.TransportAMQP:
		q := ecfg.GetAMQP()
		gw, err := mailer.NewQueueGateway(q.GetURL(), q.GetQueue())
		if err != nil {
			return nil, err
		}
		app.onClose(gw.Close)
		return gw, nil
	default:
		return mailer.NewLogGateway(app.GetLogger("account:email")), nil
	}
}

func WithAdminSeed(ctx context.Context, app *App) error {
	acfg := app.Config().GetAdmin()
	if !acfg.GetEnabled() {
		return nil
	}

	_, err := account.EnsureAdmin(ctx, app.repo, account.AdminSeed{
		Username:  acfg.GetUsername(),
		Email:     acfg.GetEmail(),
		Password:  acfg.GetPassword(),
		FullName:  acfg.GetFullName(),
		Phone:     acfg.GetPhone(),
		UseHashid: acfg.GetUseHashid(),
	}, app.GetLogger("account:bootstrap"))
	return err
}

func WithHTTPServer(_ context.Context, app *App) error {
	scfg := app.Config().GetServer()

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		f := router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:      true,
			EnablePrintRoutes: app.Config().GetDebug(),
			StrictRouting:     false,
		}))

		f.Use("/account/login", limiter.New(limiter.Config{
			Max:        scfg.GetLoginRateLimit(),
			Expiration: scfg.GetLoginRateWindow(),
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(account.ErrorResponse{
					Code:              "TOO_MANY_REQUESTS",
					Message:           "too many login attempts, try again later",
					RetryAfterSeconds: int(scfg.GetLoginRateWindow().Seconds()),
				})
			},
		}))

		return f
	})

	srv.Router().WithLogger(app.GetLogger("router"))

	if scfg.GetRequestVerification() {
		srv.Router().Use(csrf.New(csrf.Config{
			SecureKey:     csrf.DeriveKey(app.Config().GetTokens().GetSigningKey()),
			SessionCookie: app.Config().GetSession().GetCookieName(),
		}))
		csrf.RegisterRoutes(srv.Router())
	}

	account.RegisterAccountRoutes(srv.Router(),
		account.WithControllerLifecycle(app.lifecycle),
		account.WithControllerRoles(app.roles),
		account.WithControllerSessions(app.sessions, app.Config().GetSession()),
		account.WithControllerLogger(app.GetLogger("account:http")),
		account.WithControllerDebug(app.Config().GetDebug()),
		account.WithControllerSecureCookies(scfg.GetSecureCookies()),
	)

	srv.Router().Get("/health", func(ctx router.Context) error {
		return ctx.JSON(fiber.StatusOK, map[string]any{"status": "ok"})
	})

	app.srv = srv
	return nil
}

// PurgeExpiredTokens removes expired ledger rows on every tick
func PurgeExpiredTokens(ctx context.Context, app *App, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger := app.GetLogger("account:purge")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.tokens.PurgeExpired(ctx)
			if err != nil {
				logger.Error("token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged tokens", "count", n)
			}
		}
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
