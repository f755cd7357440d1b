package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"realtyportal/internal/config"
	"realtyportal/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var (
	db *gorm.DB
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 10 * time.Minute
	pingTimeout     = 5 * time.Second
)

var log = logrus.WithField("component", "db")

// Init initializes the database connection with connection pooling
func Init() error {
	cfg := config.Get()

	conn, err := Open(&cfg.Database)
	if err != nil {
		return err
	}
	db = conn

	// Test connection
	if err := testConnection(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	log.Info("Running database migrations...")
	if err := Migrate(db); err != nil {
		return err
	}

	log.Info("Database connected and migrated successfully")
	return nil
}

// Open connects to the database named by cfg without migrating it.
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.IsPostgres() {
		log.Info("Connecting to PostgreSQL database...")
		conn, err := gorm.Open(postgres.Open(cfg.GetPostgresDSN()), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

		log.WithFields(logrus.Fields{"max_open": maxOpenConns, "max_idle": maxIdleConns}).Info("Connection pool configured")
		return conn, nil
	}

	log.Info("Connecting to SQLite database...")
	return OpenSQLite(cfg.GetSQLitePath())
}

// OpenSQLite opens a SQLite database through the pure Go driver. A single
// connection is kept so ":memory:" databases are shared by every query.
func OpenSQLite(path string) (*gorm.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	conn, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
		Conn:       sqlDB,
	}, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}

func gormConfig() *gorm.Config {
	// SQL is never logged: queries carry investor PII.
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		// References between documents are not database foreign keys.
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Migrate creates or updates every table the portal uses.
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&domain.User{},
		&domain.Lead{},
		&domain.Investor{},
		&domain.AccreditationDocument{},
		&domain.Prospectus{},
		&domain.LetterOfIntent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// At most one active LOI per (investor, prospectus). Both postgres and
	// sqlite support partial indexes.
	err = conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_loi_active_pair
		ON letters_of_intent (investor_ref, prospectus_ref)
		WHERE status IN ('submitted', 'review', 'approved')`).Error
	if err != nil {
		return fmt.Errorf("failed to create active LOI index: %w", err)
	}
	return nil
}

// testConnection tests the database connection
func testConnection() error {
	return Ping(context.Background(), db)
}

// Ping checks that conn answers within the ping timeout.
func Ping(ctx context.Context, conn *gorm.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	if db == nil {
		log.Fatal("Database not initialized. Call database.Init() first.")
	}
	return db
}

// Close closes the underlying connection pool.
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetStats returns database connection statistics
func GetStats() (*sql.DBStats, error) {
	sqlDB, err := GetDB().DB()
	if err != nil {
		return nil, err
	}
	stats := sqlDB.Stats()
	return &stats, nil
}
