// Package sqlrun executes SQL scripts statement by statement against an open
// database connection and manages named connections for running script files.
package sqlrun

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/spf13/afero"
)

// Execer is the single capability a Runner needs from a connection.
// Implemented by *sql.DB, *sql.Tx, *sql.Conn and gorm's ConnPool.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var (
	_ Execer = (*sql.DB)(nil)
	_ Execer = (*sql.Tx)(nil)
	_ Execer = (*sql.Conn)(nil)
)

// Runner executes SQL scripts statement by statement against a connection it
// does not own.
//
// Execute never opens a transaction: when a statement fails, the statements
// before it stay applied. Wrap the connection in a *sql.Tx if the script must
// be atomic. A Runner must not be used from several goroutines at once.
type Runner struct {
	conn      Execer
	split     SplitFunc
	dropsTail bool
	strict    bool
	fs        afero.Fs
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSplitter replaces the default semicolon splitter. The unterminated tail
// check, and with it WithStrict, is disabled for custom splitters.
func WithSplitter(fn SplitFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.split = fn
			r.dropsTail = false
		}
	}
}

// WithStrict makes Execute reject scripts whose last fragment has no
// terminating semicolon instead of silently dropping it. It applies to the
// default splitter only; splitters set with WithSplitter decide for
// themselves what happens to an unterminated tail.
func WithStrict() Option {
	return func(r *Runner) {
		r.strict = true
	}
}

// WithFs sets the filesystem ExecuteFile reads from.
func WithFs(fs afero.Fs) Option {
	return func(r *Runner) {
		if fs != nil {
			r.fs = fs
		}
	}
}

// WithLogger sets the logger used for statement tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a Runner bound to conn. The connection is not checked
// until the first statement is executed; a nil conn, including a typed nil
// such as a nil *sql.DB, then fails with ErrNilConn.
func NewRunner(conn Execer, opts ...Option) *Runner {
	r := &Runner{
		conn:      conn,
		split:     Split,
		dropsTail: true,
		fs:        afero.NewOsFs(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute splits script into statements and executes them in order. It stops
// at the first failing statement and returns a *StatementError wrapping the
// connection's error; no later statement is submitted.
func (r *Runner) Execute(ctx context.Context, script string) error {
	if script == "" {
		return nil
	}

	if tail := strings.TrimSpace(Remainder(script)); r.dropsTail && tail != "" {
		if r.strict {
			return fmt.Errorf("%w: %q", ErrUnterminated, tail)
		}
		r.logger.Warn("Dropping unterminated trailing statement", "fragment", tail)
	}

	statements := r.split(script)
	if len(statements) == 0 {
		return nil
	}
	if isNilConn(r.conn) {
		return ErrNilConn
	}

	for i, statement := range statements {
		r.logger.Debug("Executing statement", "index", i+1, "total", len(statements))
		if _, err := r.conn.ExecContext(ctx, statement); err != nil {
			return &StatementError{Index: i + 1, Statement: statement, Err: err}
		}
	}
	return nil
}

// ExecuteFile reads the whole file at path and executes it.
func (r *Runner) ExecuteFile(ctx context.Context, path string) error {
	content, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read SQL file %s: %w", path, err)
	}
	if err := r.Execute(ctx, string(content)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ExecuteFiles executes each file in order, stopping at the first failure.
func (r *Runner) ExecuteFiles(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := r.ExecuteFile(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func isNilConn(conn Execer) bool {
	if conn == nil {
		return true
	}
	v := reflect.ValueOf(conn)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice:
		return v.IsNil()
	}
	return false
}
