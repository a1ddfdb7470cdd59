package config

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

func init() {
	// Missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
}

// ConnectDatabaseWithRetry connects and sets the global DB. Call it from main() once
// the HTTP server is listening.
//
// DB_DRIVER selects the backend: "mysql" (default) or "sqlite" for local demo runs,
// in which case DB_PATH names the database file.
func ConnectDatabaseWithRetry() {
	entry := GetLogger().WithFields(logrus.Fields{"field": "database", "driver": dbDriverName()})
	dialector := openDialector()

	for attempt := 1; ; attempt++ {
		conn, err := gorm.Open(dialector, initConfig())
		if err == nil {
			if sqlDB, derr := conn.DB(); derr == nil && sqlDB != nil {
				tunePool(sqlDB)
			}
			InstallPlugins(conn)
			db = conn
			entry.WithField("attempt", attempt).Info("connected to database")
			return
		}
		sleep := min(time.Second<<min(attempt, 5), 30*time.Second)
		entry.WithFields(logrus.Fields{"attempt": attempt, "retry_in": sleep.String()}).
			WithError(err).Warn("database connect failed")
		time.Sleep(sleep)
	}
}

// tunePool applies the pool limits. sqlite always gets a single connection.
//
// Env:
// - DB_MAX_OPEN_CONNS=50, DB_MAX_IDLE_CONNS=25
// - DB_CONN_MAX_LIFETIME_SECONDS=300, DB_CONN_MAX_IDLE_TIME_SECONDS=60
func tunePool(sqlDB *sql.DB) {
	maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 50)
	if dbDriverName() == "sqlite" {
		maxOpen = 1
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 25); maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if secs := intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300); secs > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(secs) * time.Second)
	}
	if secs := intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60); secs > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(secs) * time.Second)
	}
}

// InstallPlugins registers tracing and tenant isolation on a freshly opened handle.
func InstallPlugins(d *gorm.DB) {
	for _, p := range []gorm.Plugin{otelgorm.NewPlugin(), NewTenantGuardPlugin()} {
		if err := d.Use(p); err != nil {
			GetLogger().WithFields(logrus.Fields{"field": "database", "plugin": p.Name()}).
				WithError(err).Error("failed to install gorm plugin")
		}
	}
}

// OpenSQLite opens a CGO-free sqlite database. Used by local demo runs and tests
// (path ":memory:" or "file::memory:?cache=shared").
func OpenSQLite(path string) (*gorm.DB, error) {
	d, err := gorm.Open(sqlite.Open(path), initConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if sqlDB, derr := d.DB(); derr == nil && sqlDB != nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return d, nil
}

func dbDriverName() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if v == "" {
		return "mysql"
	}
	return v
}

func openDialector() gorm.Dialector {
	if dbDriverName() == "sqlite" {
		path := os.Getenv("DB_PATH")
		if path == "" {
			path = "demo.db"
		}
		return sqlite.Open(path)
	}
	return mysql.Open(mysqlDSN())
}

func mysqlDSN() string {
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")

	cfg := mysqlDriver.NewConfig()
	cfg.User = os.Getenv("DB_USER")
	cfg.Passwd = os.Getenv("DB_PASSWORD")
	cfg.DBName = os.Getenv("DB_NAME")
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%s", dbHost, dbPort)
	cfg.ParseTime = true
	cfg.MultiStatements = true
	cfg.Loc = time.UTC

	// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> connects over the proxy's unix socket.
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		cfg.Net = "unix"
		cfg.Addr = dbHost
	}
	return cfg.FormatDSN()
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	// sqlite reports constraint failures as plain text.
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatFromEnv(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes" || v == "y" || v == "on"
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         WriteGormLog(),
		NamingStrategy: &schema.NamingStrategy{},
	}
}

// WriteGormLog sends slow queries and errors to the application logger. With GORM_LOG
// set, every statement is also written to that file.
//
// DB_SLOW_QUERY_MS (default 1000) sets the slow query threshold.
func WriteGormLog() logger.Interface {
	cfg := logger.Config{
		LogLevel:                  logger.Warn,
		SlowThreshold:             time.Duration(intFromEnv("DB_SLOW_QUERY_MS", 1000)) * time.Millisecond,
		IgnoreRecordNotFoundError: true,
	}
	var w logger.Writer = log.New(os.Stdout, "", log.LstdFlags)
	if l := GetLogger(); l != nil {
		w = l
	}
	if path := os.Getenv("GORM_LOG"); path != "" {
		if f, err := os.Create(path); err == nil {
			w = log.New(f, "", log.LstdFlags)
			cfg.LogLevel = logger.Info
		}
	}
	return logger.New(w, cfg)
}
