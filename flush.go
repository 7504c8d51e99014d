package sqlrun

import (
	"context"
	"fmt"
)

// FlushAllTables deletes all records from all tables in the database, ignoring foreign key constraints
func (m *ConnectionManager) FlushAllTables(ctx context.Context, name string) error {
	err := m.resetAllTables(ctx, name, func(d dialect) string { return d.flushTable })
	if err != nil {
		return fmt.Errorf("failed to flush tables: %w", err)
	}
	return nil
}
