package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// colorEnabled controls whether Format emits ANSI colors. It starts out
// following color.NoColor, which is set when stdout is not a terminal.
var colorEnabled = !color.NoColor

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func paint(text string, attrs ...color.Attribute) string {
	if !colorEnabled {
		return text
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(text)
}

// Format renders the error for terminal display.
func (e *CodedError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	if e.Code != "" {
		b.WriteString(paint("ERROR ", color.FgRed, color.Bold))
		b.WriteString(paint(e.Code+": ", color.FgWhite, color.Bold))
	} else {
		b.WriteString(paint("ERROR: ", color.FgRed, color.Bold))
	}
	b.WriteString(paint(e.Message, color.FgWhite))
	b.WriteString("\n\n")

	if e.Location != nil {
		b.WriteString("  ")
		b.WriteString(paint(e.Location.String(), color.FgCyan))
		b.WriteString("\n\n")
		if len(e.Context) > 0 {
			e.writeContext(&b)
		}
	}

	if e.Detail != "" {
		for _, line := range wrapText(e.Detail, 70) {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if e.Wrapped != nil {
		b.WriteString("  ")
		b.WriteString(paint("Cause: ", color.FgYellow))
		b.WriteString(e.Wrapped.Error())
		b.WriteString("\n\n")
	}

	if e.Suggestion != "" {
		b.WriteString("  ")
		b.WriteString(paint("Hint: ", color.FgCyan))
		b.WriteString(e.Suggestion)
		b.WriteString("\n\n")
	}

	if e.DocURL != "" {
		b.WriteString("  ")
		b.WriteString(paint("Learn more: ", color.FgHiBlack))
		b.WriteString(paint(e.DocURL, color.FgBlue))
		b.WriteString("\n")
	}

	return b.String()
}

func (e *CodedError) writeContext(b *strings.Builder) {
	startLine := max(e.Location.Line-contextSize/2, 1)
	for i, line := range e.Context {
		lineNum := startLine + i
		if lineNum != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", lineNum, paint(" │ ", color.FgHiBlack), line)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", paint("→ ", color.FgRed), lineNum, paint(" │ ", color.FgHiBlack), line)
		if e.Location.Column > 0 {
			b.WriteString("        ")
			b.WriteString(paint("│ ", color.FgHiBlack))
			b.WriteString(strings.Repeat(" ", e.Location.Column-1))
			b.WriteString(paint("^", color.FgRed))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

// FormatCompact returns a single-line form.
func (e *CodedError) FormatCompact() string {
	var b strings.Builder
	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}
	b.WriteString(e.Error())
	return b.String()
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cause      string        `json:"cause,omitempty"`
	DocURL     string        `json:"docUrl,omitempty"`
}

// FormatJSON returns the error as a JSON object.
func (e *CodedError) FormatJSON() string {
	je := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Location != nil {
		je.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		je.Cause = e.Wrapped.Error()
	}
	data, _ := json.Marshal(je)
	return string(data)
}

// wrapText wraps text to the specified width.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}

	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+len(word)+1 > width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// Fprint writes err to w, formatted when it is a *CodedError.
func Fprint(w io.Writer, err error) {
	var ce *CodedError
	if stderrors.As(err, &ce) {
		fmt.Fprint(w, ce.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", paint("ERROR:", color.FgRed, color.Bold), err.Error())
}

// PrintError prints a formatted error to stderr.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}
