package sqlrun

import (
	"context"
	"fmt"
)

// DropAllTables drops all tables in the database, ignoring foreign key constraints
func (m *ConnectionManager) DropAllTables(ctx context.Context, name string) error {
	err := m.resetAllTables(ctx, name, func(d dialect) string { return d.dropTable })
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}
