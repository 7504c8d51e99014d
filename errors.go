package sqlrun

import (
	"errors"
	"fmt"
)

var (
	// ErrNilConn is returned when a Runner is used without a connection handle.
	ErrNilConn = errors.New("connection handle is nil")

	// ErrUnterminated is returned in strict mode when the script ends with a
	// fragment that has no terminating semicolon.
	ErrUnterminated = errors.New("script ends with an unterminated statement")
)

// StatementError reports the statement that failed and the error the
// connection returned for it. Statements before Index have already been
// applied.
type StatementError struct {
	Index     int // 1-based position in the script
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("failed to execute statement %d: %v\nStatement: %s", e.Index, e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
