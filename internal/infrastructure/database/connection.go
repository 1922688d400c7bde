package database

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Connection wraps the policy store handle.
// Note: sql.DB is already thread-safe and manages its own connection pool,
// so we do not wrap it with additional mutexes.
type Connection struct {
	db     *sql.DB
	driver string
}

var (
	instance *Connection
	once     sync.Once
	initErr  error
)

// GetInstance returns the singleton policy store connection, configured from
// SQLRAG_DB_DRIVER (mysql or sqlite3) and SQLRAG_DB_DSN.
func GetInstance() (*Connection, error) {
	once.Do(func() {
		instance, initErr = newConnection()
	})
	return instance, initErr
}

func newConnection() (*Connection, error) {
	driver := os.Getenv("SQLRAG_DB_DRIVER")
	if driver == "" {
		driver = "sqlite3"
	}
	if driver != "mysql" && driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	dsn := os.Getenv("SQLRAG_DB_DSN")
	if dsn == "" {
		if driver == "sqlite3" {
			dsn = "sqlrag.db"
		} else {
			return nil, fmt.Errorf("SQLRAG_DB_DSN is required for driver %s", driver)
		}
	}

	return Open(driver, dsn)
}

// Open creates a connection with pool settings tuned per driver.
func Open(driver, dsn string) (*Connection, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		// sqlite serializes writers; a single connection avoids
		// SQLITE_BUSY churn under concurrent access.
		db.SetMaxOpenConns(1)
	} else {
		// MaxIdleConns must equal MaxOpenConns to prevent port
		// exhaustion from frequent reconnects under load.
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(100)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(3 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Connection{db: db, driver: driver}, nil
}

// DB returns the underlying *sql.DB handle.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Driver reports which driver the connection was opened with.
func (c *Connection) Driver() string {
	return c.driver
}

// Close closes the database connection.
func (c *Connection) Close() error {
	return c.db.Close()
}
