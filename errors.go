// Completion: 100% - Error handling complete, clear and helpful messages
package main

import (
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/xyproto/elf2efi/internal/wrapper"
)

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryUsage ErrorCategory = iota
	CategoryIO
	CategoryFormat
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryUsage:
		return "usage"
	case CategoryIO:
		return "io"
	case CategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}

// ToolError is an error as it is reported to the user
type ToolError struct {
	Category ErrorCategory
	Message  string
	Hint     string // Explanatory help text
	Err      error
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return e.Message
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExitCode is 2 for usage errors and 1 for everything else
func (e *ToolError) ExitCode() int {
	if e.Category == CategoryUsage {
		return 2
	}
	return 1
}

// Format returns the error message with an optional hint line
func (e *ToolError) Format(useColor bool) string {
	head := color.New(color.FgRed, color.Bold)
	note := color.New(color.FgCyan, color.Bold)
	if useColor {
		head.EnableColor()
		note.EnableColor()
	} else {
		head.DisableColor()
		note.DisableColor()
	}

	var sb strings.Builder
	sb.WriteString(head.Sprint("error:"))
	sb.WriteString(" ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")
	if e.Hint != "" {
		sb.WriteString(note.Sprint("   note:"))
		sb.WriteString(" ")
		sb.WriteString(e.Hint)
		sb.WriteString("\n")
	}
	return sb.String()
}

// UsageError creates an error for bad command line arguments
func UsageError(message string) *ToolError {
	return &ToolError{
		Category: CategoryUsage,
		Message:  message,
		Hint:     "run 'elf2efi --help' for usage information",
	}
}

// formatHints maps the wrapper's sentinel errors to a help text
var formatHints = []struct {
	err  error
	hint string
}{
	{wrapper.ErrNotELF, "the input must be an ELF shared object, for example one linked with -shared"},
	{wrapper.ErrUnsupportedClass, "only ELF32 (i386) and ELF64 (x86_64) objects can be wrapped"},
	{wrapper.ErrTruncatedHeader, "the file ends inside the ELF header"},
	{wrapper.ErrImageTooLarge, "PE image sizes are 32-bit, the payload must stay below 4 GiB"},
	{wrapper.ErrClassMismatch, "drop --class or rebuild the object for the requested class"},
	{wrapper.ErrNotWrappedImage, "inspect reads images written by elf2efi and raw ELF objects"},
}

// classifyError turns any error into a ToolError
func classifyError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	for _, fh := range formatHints {
		if errors.Is(err, fh.err) {
			return &ToolError{Category: CategoryFormat, Message: err.Error(), Hint: fh.hint, Err: err}
		}
	}

	te = &ToolError{Category: CategoryIO, Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, wrapper.ErrShortPayload):
		te.Hint = "the input changed while it was being converted"
	case errors.Is(err, os.ErrNotExist):
		te.Hint = "check that the input path is correct"
	case errors.Is(err, os.ErrPermission):
		te.Hint = "check the permissions of the input file and the output directory"
	}
	return te
}
