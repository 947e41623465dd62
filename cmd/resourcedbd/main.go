// Command resourcedbd runs the resource store maintenance daemon: it opens
// the relational store, applies migrations and enforces retention against a
// statically configured type registry. The request-serving transport is wired
// by the embedding application; this daemon covers standalone deployments
// that only need the background machinery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/resourcedb/resourcedb"
	"github.com/resourcedb/resourcedb/backend"
	"github.com/resourcedb/resourcedb/backend/sqlbackend"
	"github.com/resourcedb/resourcedb/registry"
	"github.com/resourcedb/resourcedb/retention"
	"github.com/resourcedb/resourcedb/sqlite"
	"github.com/resourcedb/resourcedb/sqlite/migrations"
	itoml "github.com/resourcedb/resourcedb/toml"
	"github.com/resourcedb/resourcedb/typecache"
)

type config struct {
	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`
	Cache struct {
		TTL itoml.Duration `toml:"ttl"`
	} `toml:"cache"`
	Retention retention.Config            `toml:"retention"`
	Types     []resourcedb.TypeDefinition `toml:"types"`
	// Routes direct type patterns to dedicated sqlite files, keeping a hot
	// type's churn out of the default store.
	Routes []struct {
		Pattern string `toml:"pattern"`
		Path    string `toml:"path"`
	} `toml:"routes"`
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "resourcedbd",
		Short: "Resource store maintenance daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "resourcedb.toml", "path to the daemon configuration file")
	return cmd
}

func run(configPath string) error {
	var cfg config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		return fmt.Errorf("unable to load config %s: %w", configPath, err)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = sqlite.DefaultFilename
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	var stores []*sqlite.SqlStore
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()
	openBackend := func(path string) (*sqlbackend.SqlBackend, error) {
		store, err := sqlite.NewSqlStore(path, log.With(zap.String("service", "sqlite"), zap.String("path", path)))
		if err != nil {
			return nil, fmt.Errorf("unable to open sqlite store %s: %w", path, err)
		}
		stores = append(stores, store)
		if err := sqlite.NewMigrator(store, log.With(zap.String("service", "sqlite-migrations"))).Up(ctx, migrations.All); err != nil {
			return nil, fmt.Errorf("unable to apply migrations to %s: %w", path, err)
		}
		return sqlbackend.NewBackend(log.With(zap.String("service", "sqlbackend")), store), nil
	}

	reg, err := registry.NewStatic(cfg.Types)
	if err != nil {
		return fmt.Errorf("invalid type definitions: %w", err)
	}

	def, err := openBackend(cfg.Store.Path)
	if err != nil {
		return err
	}
	router := backend.NewRouter(def)
	for _, rt := range cfg.Routes {
		pattern, err := resourcedb.ParseTypePattern(rt.Pattern)
		if err != nil {
			return fmt.Errorf("invalid route pattern %q: %w", rt.Pattern, err)
		}
		b, err := openBackend(rt.Path)
		if err != nil {
			return err
		}
		router.Route(pattern, b)
	}

	var cacheOpts []typecache.Option
	if cfg.Cache.TTL > 0 {
		cacheOpts = append(cacheOpts, typecache.WithTTL(time.Duration(cfg.Cache.TTL)))
	}
	types := typecache.New(reg, cacheOpts...)

	purge := retention.NewService(cfg.Retention, log.With(zap.String("service", "retention")), router, types, reg)
	if err := purge.Open(); err != nil {
		return err
	}
	defer purge.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))
	return nil
}
