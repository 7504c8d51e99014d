package sqlrun

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"gorm.io/gorm"
)

const (
	DbMySQL    = "mysql"
	DbPostgres = "postgres"
	DbSqlite   = "sqlite"
	DbLibSQL   = "libsql"
)

// ConnectionFunc opens a gorm connection for a DSN.
type ConnectionFunc func(dsn string) (*gorm.DB, error)

type connDsn struct {
	DriverName string
	Dsn        string
}

// ConnectionManager keeps named database connections that are opened lazily on
// first use, and runs script files against them.
type ConnectionManager struct {
	connConfigs   map[string]connDsn
	connectionFns map[string]ConnectionFunc
	connections   map[string]*gorm.DB
	fs            afero.Fs
	mu            sync.RWMutex
	// Migration tracking for RunMigrationOnce
	executedMigrations map[string]struct{}
	migrationMu        sync.Mutex
}

// AddConnectionFunc registers how connections for driverName are opened.
func (m *ConnectionManager) AddConnectionFunc(driverName string, f ConnectionFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectionFns[driverName] = f
}

// SetFs sets the filesystem script files are read from.
func (m *ConnectionManager) SetFs(fs afero.Fs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fs = fs
}

func (m *ConnectionManager) SetDsn(name, driverName, dsn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connConfigs[name] = connDsn{
		DriverName: driverName,
		Dsn:        dsn,
	}
}

// DriverName returns the driver configured for the named connection.
func (m *ConnectionManager) DriverName(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	config, exists := m.connConfigs[name]
	if !exists {
		return "", fmt.Errorf("database connection config not found for %s", name)
	}
	return config.DriverName, nil
}

func (m *ConnectionManager) GetConnection(name string) (*gorm.DB, error) {
	var err error

	m.mu.RLock()
	config, exists := m.connConfigs[name]
	if !exists {
		m.mu.RUnlock()
		return nil, fmt.Errorf("database connection config not found for %s", name)
	}
	connFn, exists := m.connectionFns[config.DriverName]
	if !exists {
		m.mu.RUnlock()
		return nil, fmt.Errorf("database connection function not found for driver %s", config.DriverName)
	}
	conn, exists := m.connections[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check: another goroutine may have opened it while we waited for the lock
		conn, exists = m.connections[name]
		if !exists {
			conn, err = connFn(config.Dsn)
			if err != nil {
				m.mu.Unlock()
				return nil, fmt.Errorf("failed to open connection %s: %w", name, err)
			}
			m.connections[name] = conn
		}
		m.mu.Unlock()
	}
	return conn, nil
}

func (m *ConnectionManager) Close(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, exists := m.connections[name]
	if !exists {
		return fmt.Errorf("connection %s not found", name)
	}
	if conn == nil {
		return fmt.Errorf("connection was not established")
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err = sqlDB.Close(); err != nil {
		return err
	}
	delete(m.connections, name)
	return nil
}

func (m *ConnectionManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		if conn != nil {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err = sqlDB.Close(); err != nil {
				return err
			}
		}
	}
	m.connections = make(map[string]*gorm.DB)
	return nil
}

// RunScript executes a SQL file against the named connection statement by
// statement, outside any transaction. Statements that ran before a failure
// stay applied.
func (m *ConnectionManager) RunScript(ctx context.Context, name, filePath string, opts ...Option) error {
	db, err := m.GetConnection(name)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB for %s: %w", name, err)
	}

	opts = append([]Option{WithFs(m.filesystem())}, opts...)
	return NewRunner(sqlDB, opts...).ExecuteFile(ctx, filePath)
}

// RunMigration executes a SQL migration file in a single transaction using
// the quote-aware splitter. An empty file is a no-op.
func (m *ConnectionManager) RunMigration(ctx context.Context, name, filePath string) error {
	db, err := m.GetConnection(name)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}

	sqlContent, err := afero.ReadFile(m.filesystem(), filePath)
	if err != nil {
		return fmt.Errorf("failed to read SQL file %s: %w", filePath, err)
	}
	script := strings.TrimSpace(string(sqlContent))
	if script == "" {
		return nil
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return NewRunner(tx.Statement.ConnPool, WithSplitter(SplitQuoted)).Execute(ctx, script)
	})
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", filePath, err)
	}
	return nil
}

// RunMigrationOnce runs a migration file only once per connection name and
// file path. A failed run is not recorded, so it can be retried.
func (m *ConnectionManager) RunMigrationOnce(ctx context.Context, name, filePath string) error {
	migrationKey := fmt.Sprintf("%s:%s", name, filePath)

	m.migrationMu.Lock()
	defer m.migrationMu.Unlock()

	if _, exists := m.executedMigrations[migrationKey]; exists {
		return nil
	}

	if err := m.RunMigration(ctx, name, filePath); err != nil {
		return err
	}
	m.executedMigrations[migrationKey] = struct{}{}
	return nil
}

func (m *ConnectionManager) filesystem() afero.Fs {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fs
}

// Singleton instance and initialization
var (
	instance *ConnectionManager
	once     sync.Once
)

// GetManager returns the singleton instance of ConnectionManager
func GetManager() *ConnectionManager {
	once.Do(func() {
		instance = NewConnectionManager()
	})
	return instance
}

// NewConnectionManager creates a new ConnectionManager instance (for testing or when singleton is not needed)
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connConfigs:        make(map[string]connDsn),
		connectionFns:      make(map[string]ConnectionFunc),
		connections:        make(map[string]*gorm.DB),
		fs:                 afero.NewOsFs(),
		executedMigrations: make(map[string]struct{}),
	}
}
