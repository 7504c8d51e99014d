package sqlrun

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// dialect holds the statements used to clear a database of a given driver.
type dialect struct {
	disableFK  string
	enableFK   string
	listTables string
	dropTable  string
	flushTable string
	quoteChar  string
}

// quote returns name as a quoted identifier, doubling embedded quote characters.
func (d dialect) quote(name string) string {
	return d.quoteChar + strings.ReplaceAll(name, d.quoteChar, d.quoteChar+d.quoteChar) + d.quoteChar
}

var dialects = map[string]dialect{
	DbSqlite: {
		disableFK:  "PRAGMA foreign_keys = OFF",
		enableFK:   "PRAGMA foreign_keys = ON",
		listTables: "SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'",
		dropTable:  "DROP TABLE IF EXISTS %s",
		flushTable: "DELETE FROM %s",
		quoteChar:  `"`,
	},
	DbMySQL: {
		disableFK:  "SET FOREIGN_KEY_CHECKS = 0",
		enableFK:   "SET FOREIGN_KEY_CHECKS = 1",
		listTables: "SHOW TABLES",
		dropTable:  "DROP TABLE IF EXISTS %s",
		flushTable: "TRUNCATE TABLE %s",
		quoteChar:  "`",
	},
	DbPostgres: {
		// replica mode disables triggers, including foreign key checks
		disableFK:  "SET session_replication_role = 'replica'",
		enableFK:   "SET session_replication_role = 'origin'",
		listTables: "SELECT tablename FROM pg_tables WHERE schemaname = 'public'",
		dropTable:  "DROP TABLE IF EXISTS %s CASCADE",
		flushTable: "TRUNCATE TABLE %s CASCADE",
		quoteChar:  `"`,
	},
}

func init() {
	dialects[DbLibSQL] = dialects[DbSqlite]
}

func dialectFor(driverName string) (dialect, error) {
	d, ok := dialects[driverName]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported database driver: %s", driverName)
	}
	return d, nil
}

// tableScript builds a script applying perTable to every table, with foreign
// key enforcement switched off around it.
func (d dialect) tableScript(perTable string, tables []string) string {
	var sb strings.Builder
	sb.WriteString(d.disableFK)
	sb.WriteString(";\n")
	for _, table := range tables {
		fmt.Fprintf(&sb, perTable, d.quote(table))
		sb.WriteString(";\n")
	}
	sb.WriteString(d.enableFK)
	sb.WriteString(";\n")
	return sb.String()
}

// resetTables lists the tables of db and runs the generated script on a single
// pooled connection, since the foreign key switches are session settings.
func resetTables(ctx context.Context, db *gorm.DB, d dialect, perTable string) error {
	var tables []string
	if err := db.WithContext(ctx).Raw(d.listTables).Scan(&tables).Error; err != nil {
		return fmt.Errorf("failed to get table names: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return NewRunner(conn).Execute(ctx, d.tableScript(perTable, tables))
}

func (m *ConnectionManager) resetAllTables(ctx context.Context, name string, pick func(dialect) string) error {
	db, err := m.GetConnection(name)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	driverName, err := m.DriverName(name)
	if err != nil {
		return err
	}
	d, err := dialectFor(driverName)
	if err != nil {
		return err
	}
	return resetTables(ctx, db, d, pick(d))
}
