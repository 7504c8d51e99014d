// Package drivers wires database/sql drivers and gorm dialectors for the
// database kinds sqlrun supports.
package drivers

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ieshan/sqlrun"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// sqlDriverNames maps sqlrun driver names to registered database/sql drivers.
// Local libsql databases are plain SQLite files.
var sqlDriverNames = map[string]string{
	sqlrun.DbSqlite:   "sqlite",
	sqlrun.DbLibSQL:   "sqlite",
	sqlrun.DbMySQL:    "mysql",
	sqlrun.DbPostgres: "postgres",
}

// Supported returns whether driverName can be opened.
func Supported(driverName string) bool {
	_, ok := sqlDriverNames[driverName]
	return ok
}

// Open opens a database/sql handle for driverName and dsn.
func Open(driverName, dsn string) (*sql.DB, error) {
	name, ok := sqlDriverNames[driverName]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver: %s", driverName)
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// OpenGorm opens a gorm connection on top of the handle returned by Open.
func OpenGorm(driverName, dsn string) (*gorm.DB, error) {
	sqlDB, err := Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch driverName {
	case sqlrun.DbSqlite, sqlrun.DbLibSQL:
		dialector = &sqlite.Dialector{DriverName: sqlDriverNames[driverName], Conn: sqlDB}
	case sqlrun.DbMySQL:
		dialector = mysql.New(mysql.Config{Conn: sqlDB})
	case sqlrun.DbPostgres:
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize gorm for %s: %w", driverName, err)
	}
	return db, nil
}

// Register installs connection functions for every supported driver on m.
func Register(m *sqlrun.ConnectionManager) {
	for driverName := range sqlDriverNames {
		m.AddConnectionFunc(driverName, func(dsn string) (*gorm.DB, error) {
			return OpenGorm(driverName, dsn)
		})
	}
}
