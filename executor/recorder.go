package executor

import (
	"context"
	"strings"
)

// Call is one command seen by a Recorder.
type Call struct {
	Argv    []string
	Options Options
}

// Line returns the call's argv joined by spaces.
func (c Call) Line() string {
	return strings.Join(c.Argv, " ")
}

// Recorder is a Runner that records commands without running them. Its
// responses can be scripted by argv prefix.
type Recorder struct {
	Calls []Call

	responses []response
}

type response struct {
	prefix string
	result *Result
	err    error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Respond makes commands whose space-joined argv starts with prefix return
// stdout and err. Later registrations win.
func (r *Recorder) Respond(prefix, stdout string, err error) {
	r.responses = append(r.responses, response{
		prefix: prefix,
		result: &Result{Stdout: stdout, Err: err},
		err:    err,
	})
}

// Run implements Runner.
func (r *Recorder) Run(_ context.Context, argv []string, opts ...Option) (*Result, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	call := Call{Argv: append([]string(nil), argv...), Options: *o}
	r.Calls = append(r.Calls, call)

	line := call.Line()
	for i := len(r.responses) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, r.responses[i].prefix) {
			res := *r.responses[i].result
			if res.Err != nil {
				res.ExitCode = 1
			}
			return &res, r.responses[i].err
		}
	}
	return &Result{}, nil
}

// Lines returns every recorded call as a space-joined line.
func (r *Recorder) Lines() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Line()
	}
	return out
}

// Find returns the first call whose line starts with prefix.
func (r *Recorder) Find(prefix string) (Call, bool) {
	for _, c := range r.Calls {
		if strings.HasPrefix(c.Line(), prefix) {
			return c, true
		}
	}
	return Call{}, false
}
