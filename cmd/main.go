package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"stockledger/internal/auth"
	"stockledger/internal/config"
	httpapi "stockledger/internal/http"
	"stockledger/internal/logging"
	"stockledger/internal/repository"
	"stockledger/internal/service"

	_ "stockledger/docs"
)

// @title stockledger API
// @version 1.0
// @BasePath /api/v1
// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
func main() {
	app := &cli.App{
		Name:   "stockledger",
		Usage:  "warehouse inventory ledger",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrate,
			},
			{
				Name:  "seed",
				Usage: "load warehouses, products, users and transactions into an empty store",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "seed YAML file", Value: "configs/seed.yaml"},
				},
				Action: seed,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("stockledger failed")
	}
}

type env struct {
	cfg   *config.Config
	log   *logrus.Logger
	repos repository.Repositories
	close func() error
}

// setup reads config, builds the logger and opens the configured store.
func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: log, close: func() error { return nil }}
	if !cfg.Persistent() {
		e.repos = repository.NewMemoryRepositories(repository.NewMemoryStore())
		return e, nil
	}

	store, err := repository.OpenSQL(cfg.Storage, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	e.repos = store.Repositories()
	e.close = store.Close
	return e, nil
}

func (e *env) hasher() (auth.Hasher, error) {
	return auth.NewHasher(e.cfg.PasswordScheme)
}

func (e *env) applySeed(ctx context.Context, path string) error {
	s, err := repository.LoadSeedFile(path)
	if err != nil {
		return err
	}
	h, err := e.hasher()
	if err != nil {
		return err
	}
	applied, err := repository.ApplySeed(ctx, e.repos, s, h.Hash)
	if err != nil {
		return errors.Wrap(err, "apply seed")
	}
	entry := e.log.WithField("file", path)
	if applied {
		entry.Info("seed applied")
	} else {
		entry.Info("store already populated, seed skipped")
	}
	return nil
}

func serve(c *cli.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	ctx := c.Context

	if e.cfg.SeedFile != "" {
		if err := e.applySeed(ctx, e.cfg.SeedFile); err != nil {
			return err
		}
	}

	h, err := e.hasher()
	if err != nil {
		return err
	}
	policy, err := auth.NewPolicy(e.cfg.AdminSecret, h)
	if err != nil {
		return err
	}
	inv := service.NewInventoryService(e.repos, policy,
		service.WithLogger(e.log),
		service.WithDeleteMode(service.DeleteMode(e.cfg.TxDeleteMode)),
	)
	if err := inv.Load(ctx); err != nil {
		return err
	}
	defer inv.Close()
	if len(inv.Warehouses()) == 0 {
		e.log.Warn("no warehouses defined, set STOCKLEDGER_SEED_FILE to populate the store")
	}

	srv := httpapi.NewServer(inv, e.log)
	httpServer := &http.Server{
		Addr:    e.cfg.HTTPAddr,
		Handler: srv.Engine(),
	}

	go func() {
		e.log.WithField("addr", httpServer.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	e.log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		e.log.WithError(err).Error("shutdown error")
	}
	return nil
}

func migrate(*cli.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if !e.cfg.Persistent() {
		return errors.New("migrate needs sqlite3 or mysql storage")
	}
	// setup has already migrated the schema
	e.log.WithField("storage", e.cfg.Storage).Info("schema is up to date")
	return nil
}

func seed(c *cli.Context) error {
	e, err := setup()
	if err != nil {
		return err
	}
	defer e.close()
	if !e.cfg.Persistent() {
		return errors.New("seeding a memory store has no lasting effect, use sqlite3 or mysql storage")
	}
	return e.applySeed(c.Context, c.String("file"))
}
