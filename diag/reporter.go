package diag

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/colorstring"
)

// TimestampFormat is the layout of the first field of every event line.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Kind identifies the type of an event on the diagnostics stream.
type Kind string

const (
	// KindStepStart marks the beginning of an execution phase.
	KindStepStart Kind = "step-start"
	// KindStepEnd marks the successful end of an execution phase.
	KindStepEnd Kind = "step-end"
	// KindLog carries a diagnostic.
	KindLog Kind = "log"
)

var severityColors = map[Severity]string{
	SeverityError:   "[bold][red]",
	SeverityWarning: "[bold][yellow]",
	SeverityInfo:    "[bold][green]",
}

// Reporter writes the tab-separated diagnostics stream and keeps running
// error and warning counts. It is not safe for concurrent use.
type Reporter struct {
	writer   io.Writer
	color    colorstring.Colorize
	now      func() time.Time
	errors   int
	warnings int
	records  []Diagnostic
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithColor enables or disables colorized severities.
func WithColor(enabled bool) ReporterOption {
	return func(r *Reporter) {
		r.color.Disable = !enabled
	}
}

// WithClock replaces the clock used for event timestamps.
func WithClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		r.now = now
	}
}

// NewReporter creates a new Reporter writing to w. A nil writer discards
// events; counts and records are still kept.
func NewReporter(w io.Writer, opts ...ReporterOption) *Reporter {
	if w == nil {
		w = io.Discard
	}
	r := &Reporter{
		writer: w,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: true,
			Reset:   true,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report records d, updates the counters and writes a log event.
func (r *Reporter) Report(d Diagnostic) {
	switch d.Severity {
	case SeverityError:
		r.errors++
	case SeverityWarning:
		r.warnings++
	}
	r.records = append(r.records, d)
	r.emit(KindLog, r.render(d))
}

// Error reports an error at loc.
func (r *Reporter) Error(loc *Location, message, detail string) {
	r.Report(Diagnostic{Severity: SeverityError, Location: loc, Message: message, Detail: detail})
}

// Warn reports a warning at loc.
func (r *Reporter) Warn(loc *Location, message, detail string) {
	r.Report(Diagnostic{Severity: SeverityWarning, Location: loc, Message: message, Detail: detail})
}

// Info reports an informational message at loc.
func (r *Reporter) Info(loc *Location, message, detail string) {
	r.Report(Diagnostic{Severity: SeverityInfo, Location: loc, Message: message, Detail: detail})
}

// StepStart writes a step-start event for the named phase.
func (r *Reporter) StepStart(step string) {
	r.emit(KindStepStart, step)
}

// StepEnd writes a step-end event for the named phase.
func (r *Reporter) StepEnd(step string) {
	r.emit(KindStepEnd, step)
}

// Errors returns the number of errors reported so far.
func (r *Reporter) Errors() int { return r.errors }

// Warnings returns the number of warnings reported so far.
func (r *Reporter) Warnings() int { return r.warnings }

// Diagnostics returns every diagnostic reported so far, in order.
func (r *Reporter) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Reporter) render(d Diagnostic) string {
	payload := d.String()
	if r.color.Disable {
		return payload
	}
	sev := d.Severity.String()
	return r.color.Color(severityColors[d.Severity]+sev) + strings.TrimPrefix(payload, sev)
}

func (r *Reporter) emit(kind Kind, payload string) {
	// Newlines would break line-oriented consumers.
	payload = strings.ReplaceAll(payload, "\n", " ")
	ts := r.now().UTC().Format(TimestampFormat)
	_, _ = fmt.Fprintf(r.writer, "%s\t%s\t%s\n", ts, kind, payload)
}
