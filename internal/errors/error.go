package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// Category represents the kind of failure.
type Category string

const (
	CategoryTree     Category = "tree"
	CategoryProtocol Category = "protocol"
	CategoryJournal  Category = "journal"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Location is a position in a source file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as file:line[:column].
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// CodedError is a structured error with an optional source location,
// suggestion and documentation link.
type CodedError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	Location *Location

	// Context holds the source lines around Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Wrapped
}

// WithLocation records where the error occurred and reads the surrounding
// lines from file.
func (e *CodedError) WithLocation(file string, line, column int) *CodedError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, contextSize)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CodedError) WithSuggestion(s string) *CodedError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the registered explanation.
func (e *CodedError) WithDetail(d string) *CodedError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CodedError) Wrap(err error) *CodedError {
	e.Wrapped = err
	return e
}

// contextSize is the number of source lines kept around a location.
const contextSize = 5

// readContextLines reads up to contextSize lines centred on targetLine.
func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}
	return lines
}

// New creates a CodedError from a registered code.
func New(code string) *CodedError {
	template, ok := registry[code]
	if !ok {
		return &CodedError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CodedError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates an uncoded error with a formatted message.
func Newf(category Category, format string, args ...any) *CodedError {
	return &CodedError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError returns err itself when it already is, or wraps, a
// *CodedError, and wraps it under code otherwise.
func FromError(err error, code string) *CodedError {
	if err == nil {
		return nil
	}
	var ce *CodedError
	if stderrors.As(err, &ce) {
		return ce
	}
	return New(code).Wrap(err)
}
