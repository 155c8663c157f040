package script

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
)

// minimal is the smallest script that loads.
const minimal = `network false
hostname box
kernel easy-kernel
mount /dev/sda2 /
`

func load(t *testing.T, text string, opts ...Option) (*Script, *diag.Reporter, error) {
	t.Helper()
	rep := diag.NewReporter(nil)
	opts = append([]Option{WithReporter(rep)}, opts...)
	s, err := LoadReader(strings.NewReader(text), "installfile", opts...)
	return s, rep, err
}

func mustLoad(t *testing.T, text string, opts ...Option) (*Script, *diag.Reporter) {
	t.Helper()
	s, rep, err := load(t, text, opts...)
	require.NoError(t, err, "diagnostics: %v", messages(rep, diag.SeverityError))
	return s, rep
}

// messages returns the rendered diagnostics of one severity.
func messages(rep *diag.Reporter, sev diag.Severity) []string {
	var out []string
	for _, d := range rep.Diagnostics() {
		if d.Severity == sev {
			out = append(out, d.String())
		}
	}
	return out
}

// codes returns the code of every failure aggregated in a load or
// validation error.
func codes(t *testing.T, err error) []herrors.ErrorCode {
	t.Helper()
	var le *LoadError
	var ve *ValidationError
	var list []error
	switch {
	case errors.As(err, &le):
		list = le.Err.Errors
	case errors.As(err, &ve):
		list = ve.Err.Errors
	default:
		t.Fatalf("unexpected error type %T", err)
	}
	out := make([]herrors.ErrorCode, 0, len(list))
	for _, e := range list {
		out = append(out, herrors.CodeOf(e))
	}
	return out
}
