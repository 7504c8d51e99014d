package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ieshan/sqlrun"
	"github.com/ieshan/sqlrun/internal/config"
	"github.com/ieshan/sqlrun/internal/watch"
	"github.com/spf13/afero"
)

// ExecCmd executes script files without a transaction
type ExecCmd struct {
	Files []string `arg:"" help:"SQL files to execute, in order" type:"path"`
}

func (e *ExecCmd) Run(rt *Runtime) error {
	for _, file := range e.Files {
		if err := rt.Manager.RunScript(rt.Ctx, connectionName, file, rt.RunnerOptions()...); err != nil {
			printError(rt.Out, "%s", file)
			return err
		}
		printSuccess(rt.Out, "%s", file)
	}
	return nil
}

// MigrateCmd runs each file as a transactional migration. Files listed more
// than once are applied once.
type MigrateCmd struct {
	Files []string `arg:"" help:"SQL migration files to apply, in order" type:"path"`
}

func (m *MigrateCmd) Run(rt *Runtime) error {
	for _, file := range m.Files {
		if err := rt.Manager.RunMigrationOnce(rt.Ctx, connectionName, file); err != nil {
			printError(rt.Out, "%s (rolled back)", file)
			return err
		}
		printSuccess(rt.Out, "%s", file)
	}
	return nil
}

// FlushCmd empties every table
type FlushCmd struct{}

func (f *FlushCmd) Run(rt *Runtime) error {
	if err := rt.Manager.FlushAllTables(rt.Ctx, connectionName); err != nil {
		return err
	}
	printSuccess(rt.Out, "flushed all tables")
	return nil
}

// DropCmd drops every table
type DropCmd struct {
	Yes bool `short:"y" help:"Confirm dropping every table"`
}

func (d *DropCmd) Run(rt *Runtime) error {
	if !d.Yes {
		return fmt.Errorf("refusing to drop all tables without --yes")
	}
	if err := rt.Manager.DropAllTables(rt.Ctx, connectionName); err != nil {
		return err
	}
	printSuccess(rt.Out, "dropped all tables")
	return nil
}

// WatchCmd re-executes a script on every save
type WatchCmd struct {
	File string `arg:"" help:"SQL file to watch" type:"path"`
}

func (w *WatchCmd) Run(rt *Runtime) error {
	watcher, err := watch.New(w.File, rt.Config.WatchDebounce, func(ctx context.Context) error {
		if err := rt.Manager.RunScript(ctx, connectionName, w.File, rt.RunnerOptions()...); err != nil {
			printError(rt.Out, "%s: %v", w.File, err)
			return err
		}
		printSuccess(rt.Out, "%s", w.File)
		return nil
	})
	if err != nil {
		return err
	}

	printInfo(rt.Out, "watching %s (ctrl-c to stop)", w.File)
	return watcher.Run(rt.Ctx)
}

// SplitCmd prints statements without touching the database
type SplitCmd struct {
	File string `arg:"" help:"SQL file to split" type:"path"`
}

func (s *SplitCmd) Run(rt *Runtime) error {
	content, err := afero.ReadFile(config.AppFs, s.File)
	if err != nil {
		return fmt.Errorf("failed to read SQL file %s: %w", s.File, err)
	}
	script := string(content)

	split := sqlrun.Split
	if rt.Config.Splitter == config.SplitterQuoted {
		split = sqlrun.SplitQuoted
	}
	statements := split(script)

	for i, statement := range statements {
		printInfo(rt.Out, "-- statement %d", i+1)
		fmt.Fprintln(rt.Out, strings.TrimSpace(statement))
	}
	if rt.Config.Splitter != config.SplitterQuoted {
		if tail := strings.TrimSpace(sqlrun.Remainder(script)); tail != "" {
			printError(rt.Out, "unterminated trailing fragment is not executed: %s", tail)
		}
	}
	return nil
}
