// Package diag provides the diagnostic model shared by the script parser,
// validator and executor: source locations, severities, and the
// machine-readable event stream consumed by installer front-ends.
package diag

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a diagnostic.
type Severity int

const (
	// SeverityError marks a failure. Errors are counted and make a load,
	// validation or execution unsuccessful.
	SeverityError Severity = iota
	// SeverityWarning marks a problem that does not block the run.
	SeverityWarning
	// SeverityInfo marks a progress or informational note.
	SeverityInfo
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Location identifies the script line a directive came from.
type Location struct {
	Name      string // Script file name, or a descriptive name for streams
	Line      int    // 1-based line number
	Inherited bool   // True if the line was read from an inherited script
}

// String renders the location as name:line.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Name, l.Line)
}

// Diagnostic is a single message attached to an optional script location.
type Diagnostic struct {
	Severity Severity
	Location *Location
	Message  string
	Detail   string
}

// String renders the diagnostic as the payload of a log event.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Severity.String())
	b.WriteString(": ")
	if d.Location != nil {
		b.WriteString(d.Location.String())
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	if d.Detail != "" {
		b.WriteString(": ")
		b.WriteString(d.Detail)
	}
	return b.String()
}

// Loc returns a pointer to a copy of l, for use in Diagnostic literals.
func Loc(l Location) *Location {
	return &l
}
