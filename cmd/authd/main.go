package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/goliatone/go-tokenauth/activitymap"
	"github.com/goliatone/go-tokenauth/config"
	"github.com/goliatone/go-tokenauth/metrics"
	"github.com/goliatone/go-tokenauth/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml or json config file")
	driver := flag.String("db-driver", store.DriverSQLite, "database driver: sqlite or postgres")
	dsn := flag.String("db-dsn", "file:authd.db?cache=shared", "database connection string")
	addr := flag.String("addr", ":8080", "listen address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if *debug {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(log, *configPath, *driver, *dsn, *addr); err != nil {
		log.WithError(err).Fatal("authd stopped")
	}
}

func run(log *logrus.Logger, configPath, driver, dsn, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := config.Load(configPath, config.DefaultEnvPrefix)
	if err != nil {
		return err
	}

	db, err := store.Open(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db, log); err != nil {
		return err
	}

	users := store.NewUsers(db)
	logger := auth.NewLogrusLogger(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)
	sink := auth.MultiActivitySink{collector, activitymap.NewLogSink(log)}

	// one codec, configured before it is shared by the authenticator and resolver
	codec, err := auth.NewTokenCodec(opts)
	if err != nil {
		return err
	}
	codec.WithLogger(logger)

	authenticator, err := auth.NewAuthenticator(users, opts)
	if err != nil {
		return err
	}
	authenticator.
		WithTokenCodec(codec).
		WithLogger(logger).
		WithActivitySink(sink)

	resolver := auth.NewResolver(users, codec).
		WithLogger(logger).
		WithActivitySink(sink)

	gate := auth.NewGate().
		WithLogger(logger).
		WithActivitySink(sink)

	if err := bootstrapSuperuser(ctx, users, authenticator.Hasher(), log); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	srv := &server{
		users:         users,
		authenticator: authenticator,
		resolver:      resolver,
		gate:          gate,
		policy:        auth.PasswordPolicyFromConfig(opts),
		activity:      sink,
		registry:      registry,
		log:           log,
	}
	srv.routes(app)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("authd listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return app.ShutdownWithTimeout(5 * time.Second)
	}
}

// bootstrapSuperuser creates the first superuser from
// TOKENAUTH_FIRST_SUPERUSER and TOKENAUTH_FIRST_SUPERUSER_PASSWORD.
func bootstrapSuperuser(ctx context.Context, users *store.Users, hasher auth.PasswordHasher, log *logrus.Logger) error {
	email := os.Getenv("TOKENAUTH_FIRST_SUPERUSER")
	password := os.Getenv("TOKENAUTH_FIRST_SUPERUSER_PASSWORD")
	if email == "" || password == "" {
		return nil
	}

	if _, err := users.GetByIdentifier(ctx, email); err == nil {
		return nil
	} else if !goerrors.IsNotFound(err) {
		return err
	}

	hash, err := hasher.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := users.Register(ctx, &store.User{
		Username:     email,
		Email:        email,
		Role:         string(auth.RoleOwner),
		PasswordHash: hash,
		Active:       true,
		Superuser:    true,
	})
	if err != nil {
		return err
	}

	log.WithField("user_id", user.ID.String()).Info("first superuser created")
	return nil
}
