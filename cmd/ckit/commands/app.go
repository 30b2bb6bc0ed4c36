package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/contentkit/pkg/config"
	"github.com/openfroyo/contentkit/pkg/editor"
	"github.com/openfroyo/contentkit/pkg/stores"
	"github.com/openfroyo/contentkit/pkg/telemetry"
)

// app holds what every command needs: configuration, telemetry and the
// optional history store.
type app struct {
	cfg   *config.Config
	tel   *telemetry.Telemetry
	store *stores.SQLiteStore
}

func loadApp(ctx context.Context, withHistory bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	log.Debug().Str("config", cfg.String()).Msg("Configuration loaded")

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	if err := tel.StartMetricsServer(); err != nil {
		return nil, fmt.Errorf("failed to start metrics server: %w", err)
	}

	a := &app{cfg: cfg, tel: tel}
	if withHistory && cfg.History.Enabled {
		store, err := openStore(ctx, cfg.History.Path)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

func openStore(ctx context.Context, path string) (*stores.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open build history: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate build history: %w", err)
	}
	return store, nil
}

// open opens the project session, creating nothing.
func (a *app) open(ctx context.Context, opts ...editor.Option) (*editor.Session, error) {
	opts = append([]editor.Option{editor.WithTelemetry(a.tel)}, opts...)
	if a.store != nil {
		opts = append(opts, editor.WithStore(a.store))
	}
	return editor.Open(a.tel.WithContext(ctx), projectPath, a.cfg, opts...)
}

func (a *app) close(ctx context.Context) {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.tel.Shutdown(context.WithoutCancel(ctx)))
	if err := errors.Join(errs...); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
