package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/thetally/categorize/internal/config"
	"github.com/thetally/categorize/internal/storage"
)

// initStorage opens the database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// requireTenant returns the tenant from config/flags or an error when unset.
func requireTenant() (string, error) {
	tenant := viper.GetString("tenant")
	if tenant == "" {
		return "", fmt.Errorf("tenant is required: pass --tenant or set TALLY_TENANT")
	}
	return tenant, nil
}
