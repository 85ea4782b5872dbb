// Package app wires the optional backing services at startup.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"

	"patscan/internal/config"
)

// Dependencies holds the optional external connections. Fields stay nil for
// services disabled in config.
type Dependencies struct {
	DB          *sql.DB
	NSQProducer *nsq.Producer
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

func Bootstrap(cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	if cfg.EnablePostgres {
		db, err := openPostgres(cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = db
	}

	if cfg.EnableNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("create nsq producer: %w", err)
		}
		deps.NSQProducer = producer

		// NSQ creates topics lazily on first publish, but downstream
		// consumers querying lookupd get 404 until then. Pre-create the
		// topic via the nsqd http api, fire and forget.
		go createTopic(cfg.NSQDHTTP, cfg.NSQValidTopic)
	}

	return deps, nil
}

func openPostgres(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db connection: %w", err)
	}

	delay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", cfg.BootstrapRetryAttempts)
		time.Sleep(delay)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db after retries: %w", err)
	}

	if err := runMigrations(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("migrations applied successfully")
	return nil
}

func createTopic(nsqdHTTP, topic string) {
	// Give nsqd a moment to come up.
	time.Sleep(2 * time.Second)

	url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		slog.Warn("failed to pre-create topic", "topic", topic, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		slog.Info("topic pre-created successfully", "topic", topic)
	}
}
