// bakery-auth runs the session service and its maintenance tasks.
//
//	bakery-auth serve        start the HTTP API
//	bakery-auth sweep        terminate expired sessions (cron hook)
//	bakery-auth purge        delete sessions terminated before the retention window
//	bakery-auth migrate      apply schema migrations (-down to roll back)
//	bakery-auth create-user  add a user, for local setups
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	auth "github.com/goliatone/go-bakery-auth"
	"github.com/goliatone/go-bakery-auth/config"
	"github.com/goliatone/go-bakery-auth/database"
)

var commands = map[string]bool{
	"serve":       true,
	"sweep":       true,
	"purge":       true,
	"migrate":     true,
	"create-user": true,
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup happens before
// main exits
func run(argv []string) int {
	if len(argv) < 1 || !commands[argv[0]] {
		usage()
		return 2
	}

	cmd, args := argv[0], argv[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("BAKERY_AUTH_CONFIG"), "path to a YAML config file")
	down := fs.Bool("down", false, "migrate: roll back the last migration group")
	username := fs.String("username", "", "create-user: username")
	email := fs.String("email", "", "create-user: email")
	password := fs.String("password", "", "create-user: password")
	role := fs.String("role", string(auth.RoleStore), "create-user: store, distributor or admin")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	zl, err := auth.NewProductionZapLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		return 1
	}
	defer zl.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseDSN,
	})
	if err != nil {
		zl.Error("database", zap.Error(err))
		return 1
	}
	defer db.Close()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, db, zl)
	case "sweep":
		err = sweep(ctx, cfg, db, zl)
	case "purge":
		err = purge(ctx, cfg, db, zl)
	case "migrate":
		err = migrate(ctx, db, *down, zl)
	case "create-user":
		err = createUser(ctx, db, *username, *email, *password, *role, zl)
	}

	if err != nil {
		zl.Error(cmd+" failed", zap.Error(err))
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bakery-auth <serve|sweep|purge|migrate|create-user> [-config path]")
}

func newManager(cfg *config.Config, db *bun.DB, zl *zap.Logger) (*auth.SessionManager, error) {
	logger := auth.NewZapLogger(zl)

	issuer, err := auth.NewTokenService(cfg)
	if err != nil {
		return nil, err
	}
	issuer.WithLogger(logger)

	repos := auth.NewRepositoryManager(db, logger)
	repos.MustValidate()

	verifier := auth.NewCredentialVerifier(repos.Users()).WithLogger(logger)

	return auth.NewSessionManager(verifier, issuer, repos.Sessions(), repos.Users()).
		WithLogger(logger).
		WithActivitySink(auth.NewZapActivitySink(zl)), nil
}

func serve(ctx context.Context, cfg *config.Config, db *bun.DB, zl *zap.Logger) error {
	manager, err := newManager(cfg, db, zl)
	if err != nil {
		return err
	}

	var app *fiber.App
	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		app = router.DefaultFiberOptions(fiber.New(fiber.Config{
			AppName:      "bakery-auth",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}))
		return app
	})

	auth.RegisterAuthRoutes(srv.Router().Group("/auth"),
		auth.WithControllerLogger(auth.NewZapLogger(zl)),
		auth.WithControllerDebug(cfg.Debug),
		auth.WithSessionManager(manager, cfg),
	)

	errc := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		errc <- srv.Serve(cfg.HTTPAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	zl.Info("shutting down http server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func sweep(ctx context.Context, cfg *config.Config, db *bun.DB, zl *zap.Logger) error {
	manager, err := newManager(cfg, db, zl)
	if err != nil {
		return err
	}

	count, err := manager.Sweep(ctx)
	if err != nil {
		return err
	}

	zl.Info("sweep completed", zap.Int("terminated", count))
	return nil
}

func purge(ctx context.Context, cfg *config.Config, db *bun.DB, zl *zap.Logger) error {
	manager, err := newManager(cfg, db, zl)
	if err != nil {
		return err
	}

	count, err := manager.Purge(ctx, cfg.Retention())
	if err != nil {
		return err
	}

	zl.Info("purge completed", zap.Int("deleted", count), zap.Duration("retention", cfg.Retention()))
	return nil
}

func migrate(ctx context.Context, db *bun.DB, down bool, zl *zap.Logger) error {
	if down {
		group, err := database.Rollback(ctx, db)
		if err != nil {
			return err
		}
		zl.Info("rolled back", zap.String("migrations", group.Migrations.String()))
		return nil
	}

	group, err := database.Migrate(ctx, db)
	if err != nil {
		return err
	}

	if len(group.Migrations) == 0 {
		zl.Info("schema is up to date")
		return nil
	}

	zl.Info("migrated", zap.Int64("group", group.ID), zap.String("migrations", group.Migrations.String()))
	return nil
}

func createUser(ctx context.Context, db *bun.DB, username, email, password, roleName string, zl *zap.Logger) error {
	role, ok := auth.ParseRole(roleName)
	if !ok {
		return fmt.Errorf("unknown role %q", roleName)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := auth.NewUsersRepository(db).Create(ctx, &auth.User{
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		return err
	}

	zl.Info("user created", zap.String("id", user.ID.String()), zap.String("role", string(user.Role)))
	return nil
}
