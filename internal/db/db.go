package db

import (
	"context"
	"log"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open picks the driver from the DSN: "sqlite:" or "file:" prefixes open
// SQLite, anything else is a MySQL DSN.
func Open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return gorm.Open(gormsqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	case strings.HasPrefix(dsn, "file:"):
		return gorm.Open(gormsqlite.Open(dsn), cfg)
	default:
		return gorm.Open(mysql.Open(dsn), cfg)
	}
}

// Connect opens the database and migrates models, exiting on failure.
func Connect(dsn string, models ...any) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if len(models) > 0 {
		if err := gdb.AutoMigrate(models...); err != nil {
			log.Fatalf("db migrate: %v", err)
		}
	}
	return gdb
}

// Ping checks the pooled connection behind gdb.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
