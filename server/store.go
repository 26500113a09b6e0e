package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/devilmonastery/ara/internal/config"
	"github.com/devilmonastery/ara/internal/domain/repositories"
	"github.com/devilmonastery/ara/internal/infrastructure/database/memory"
	"github.com/devilmonastery/ara/internal/infrastructure/database/postgres"
	"github.com/devilmonastery/ara/migrations"
)

// dataStore is the persistence backend selected by database.driver
type dataStore struct {
	uow    repositories.UnitOfWork
	repos  *repositories.Repositories
	health repositories.HealthChecker
	close  func() error
}

func (s *dataStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func openStore(cfg *config.Config, log *slog.Logger) (*dataStore, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("Using in-memory database; all data is lost on exit")
		store := memory.NewStore()
		return &dataStore{uow: store, repos: store.Repositories(), health: store}, nil
	}

	pgConn, err := connectPostgres(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := pgConn.RunMigrations(migrations.FS); err != nil {
		pgConn.Close()
		return nil, fmt.Errorf("failed to run PostgreSQL migrations: %w", err)
	}

	return &dataStore{
		uow:    postgres.NewUnitOfWork(pgConn.DB),
		repos:  postgres.NewRepositories(pgConn.DB),
		health: pgConn,
		close:  pgConn.Close,
	}, nil
}

// connectPostgres connects with retries so the server can start alongside the database
func connectPostgres(cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	log.Info("Initializing PostgreSQL database",
		"user", cfg.Database.Postgres.User,
		"host", cfg.Database.Postgres.Host,
		"database", cfg.Database.Postgres.Database)

	connString := cfg.Database.Postgres.ConnectionString()
	maxRetries := 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		pgConn, err := postgres.NewConnection(connString)
		if err == nil {
			log.Info("Successfully connected to PostgreSQL")
			return pgConn, nil
		}
		lastErr = err

		if i < maxRetries-1 {
			log.Warn("Failed to connect to PostgreSQL",
				"attempt", i+1,
				"max_retries", maxRetries,
				"error", err,
				"retry_delay", retryDelay)
			time.Sleep(retryDelay)
			retryDelay *= 2
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", maxRetries, lastErr)
}
