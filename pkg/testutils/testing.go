// Package testutils contains some common utilities used exclusively
// by the test suite.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DSN() string {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		return "dbserde:dbserde@tcp(127.0.0.1:3306)/test"
	}
	return dsn
}

var (
	mysqlAvailable     bool
	mysqlAvailableOnce sync.Once
)

// RequireMySQL skips the test when the server in DSN() can not be reached.
// Set MYSQL_REQUIRED=1 to fail instead.
func RequireMySQL(t *testing.T) {
	t.Helper()
	mysqlAvailableOnce.Do(func() {
		cfg, err := mysql.ParseDSN(DSN())
		if err != nil {
			return
		}
		cfg.Timeout = 2 * time.Second
		db, err := sql.Open("mysql", cfg.FormatDSN())
		if err != nil {
			return
		}
		defer func() {
			_ = db.Close()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mysqlAvailable = db.PingContext(ctx) == nil
	})
	if mysqlAvailable {
		return
	}
	if os.Getenv("MYSQL_REQUIRED") != "" {
		t.Fatalf("MySQL is not reachable at %s", DSN())
	}
	t.Skipf("MySQL is not reachable at %s", DSN())
}

// DSNForDatabase returns a DSN for a specific database name
func DSNForDatabase(dbName string) string {
	cfg, err := mysql.ParseDSN(DSN())
	if err != nil {
		return DSN()
	}
	cfg.DBName = dbName
	return cfg.FormatDSN()
}

// CreateUniqueTestDatabase creates a unique database for a test and drops
// it when the test completes.
func CreateUniqueTestDatabase(t *testing.T) string {
	t.Helper()
	RequireMySQL(t)

	// Create a unique database name based on test name
	dbName := fmt.Sprintf("t_%s_%d",
		strings.ReplaceAll(strings.ToLower(t.Name()), "/", "_"),
		os.Getpid())

	// Connect to MySQL without specifying a database
	rootDSN := DSNForDatabase("")
	db, err := sql.Open("mysql", rootDSN)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	_, err = db.ExecContext(t.Context(), "CREATE DATABASE IF NOT EXISTS `"+dbName+"`")
	require.NoError(t, err)

	t.Cleanup(func() {
		db, err := sql.Open("mysql", rootDSN)
		assert.NoError(t, err)
		defer func() {
			_ = db.Close()
		}()
		_, err = db.ExecContext(context.Background(), "DROP DATABASE IF EXISTS `"+dbName+"`")
		assert.NoError(t, err)
	})
	return dbName
}

// RunSQLInDatabase runs SQL in a specific database
func RunSQLInDatabase(t *testing.T, dbName, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSNForDatabase(dbName))
	assert.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	_, err = db.ExecContext(t.Context(), stmt)
	assert.NoError(t, err)
}

func RunSQL(t *testing.T, stmt string) {
	t.Helper()
	db, err := sql.Open("mysql", DSN())
	assert.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()
	_, err = db.ExecContext(t.Context(), stmt)
	assert.NoError(t, err)
}
