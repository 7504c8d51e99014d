package sqlrun

import (
	"regexp"
	"strings"
	"unicode"
)

// SplitFunc turns a script into the ordered statements to execute.
type SplitFunc func(script string) []string

var statementPattern = regexp.MustCompile(`[^;]*;`)

// Split returns every maximal substring of script that ends in a semicolon,
// in order. Whitespace is kept and the terminator is part of the statement.
// Anything after the last semicolon is not returned; see Remainder.
func Split(script string) []string {
	return statementPattern.FindAllString(script, -1)
}

// Remainder returns the trailing fragment of script that Split drops.
func Remainder(script string) string {
	return script[strings.LastIndex(script, ";")+1:]
}

// SplitQuoted splits script on semicolons that are outside single or double
// quoted literals and outside comments. "--" and "/* */" comments are removed
// wherever they start; "#" starts a comment only as the first non-blank
// character of a line, since Postgres uses it as an operator. Statements are
// trimmed and returned without their terminator, and an unterminated tail is
// kept as the last statement.
func SplitQuoted(script string) []string {
	var statements []string
	var current strings.Builder
	runes := []rune(script)
	lineStart := true

	flush := func() {
		if statement := strings.TrimSpace(current.String()); statement != "" {
			statements = append(statements, statement)
		}
		current.Reset()
	}

	for i := 0; i < len(runes); i++ {
		char := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case char == '\'' || char == '"':
			end := closingQuote(runes, i)
			current.WriteString(string(runes[i : end+1]))
			i = end
		case (char == '-' && next == '-') || (char == '#' && lineStart):
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case char == '/' && next == '*':
			i = blockCommentEnd(runes, i)
			current.WriteRune(' ')
		case char == ';':
			flush()
		default:
			current.WriteRune(char)
		}

		if i < len(runes) {
			if runes[i] == '\n' {
				lineStart = true
			} else if !unicode.IsSpace(runes[i]) {
				lineStart = false
			}
		}
	}
	flush()

	return statements
}

// closingQuote returns the index of the quote closing the literal opened at
// start. A doubled quote is an escape. Unterminated literals run to the end.
func closingQuote(runes []rune, start int) int {
	quote := runes[start]
	for j := start + 1; j < len(runes); j++ {
		if runes[j] != quote {
			continue
		}
		if j+1 < len(runes) && runes[j+1] == quote {
			j++
			continue
		}
		return j
	}
	return len(runes) - 1
}

// blockCommentEnd returns the index of the "/" closing the comment opened at
// start, or the last index when it is never closed.
func blockCommentEnd(runes []rune, start int) int {
	for j := start + 2; j+1 < len(runes); j++ {
		if runes[j] == '*' && runes[j+1] == '/' {
			return j + 1
		}
	}
	return len(runes) - 1
}
