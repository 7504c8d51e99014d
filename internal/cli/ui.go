package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
)

func printSuccess(w io.Writer, format string, args ...any) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	_, _ = errorColor.Fprintf(w, "✗ %s\n", fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	_, _ = infoColor.Fprintf(w, "%s\n", fmt.Sprintf(format, args...))
}
