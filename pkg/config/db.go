package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens the configured database. Postgres connections are retried with
// doubling backoff until ConnectRetries is spent or ctx ends; each attempt is
// verified with a ping bounded by Database.Timeout.
func NewDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{Logger: gormLogger(cfg)}

	attempts := max(cfg.Database.ConnectRetries, 1)
	backoff := time.Second
	var db *gorm.DB
	for attempt := 1; ; attempt++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			err = Ping(ctx, db, cfg.Database.Timeout)
		}
		if err == nil || attempt >= attempts {
			break
		}

		fmt.Fprintf(os.Stderr, "database not ready (attempt %d/%d): %v; retrying in %s\n", attempt, attempts, err, backoff)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s after %d attempts: %w", cfg.Database.Driver, attempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.Database.Driver == "sqlite" {
		// one writer at a time, or SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetMaxIdleConns(max(cfg.Database.MaxConns/2, 2))
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)
	return db, nil
}

func gormLogger(cfg *Config) gormlogger.Interface {
	level := gormlogger.Error
	if cfg.Server.Env == "development" {
		level = gormlogger.Info
	}
	return gormlogger.New(log.New(os.Stderr, "", log.LstdFlags), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func dialectorFor(cfg *Config) (gorm.Dialector, error) {
	d := cfg.Database
	switch d.Driver {
	case "postgres", "":
		return postgres.Open(fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)), nil
	case "sqlite":
		return sqlite.Open(d.SQLitePath), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", d.Driver)
}

// Ping checks the connection, giving up after timeout when it is positive
func Ping(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}
