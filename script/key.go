package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
)

// Key is one parsed directive. The set of implementations is closed: every
// Key is one of the types in this package, created by the parse function
// registered for its name.
type Key interface {
	// Name returns the directive keyword, e.g. "hostname".
	Name() string
	// Location returns the script line the directive was read from.
	Location() diag.Location
	// Value returns the directive's value as written.
	Value() string
	// Validate checks the directive on its own. It may consult other
	// directives in the script but has no side effects.
	Validate(ctx context.Context) error
	// Execute performs the directive's side effect.
	Execute(ctx context.Context, rt *Runtime) error

	sealed()
}

// keyBase carries what every directive has: its owning script, keyword and
// location. The no-op Validate and Execute are overridden by directives
// that check or do something.
type keyBase struct {
	script *Script
	name   string
	loc    diag.Location
	raw    string
}

func newBase(s *Script, name string, loc diag.Location, raw string) keyBase {
	return keyBase{script: s, name: name, loc: loc, raw: raw}
}

func (k *keyBase) Name() string { return k.name }

func (k *keyBase) Location() diag.Location { return k.loc }

func (k *keyBase) Value() string { return k.raw }

func (k *keyBase) Validate(context.Context) error { return nil }

func (k *keyBase) Execute(context.Context, *Runtime) error { return nil }

func (k *keyBase) sealed() {}

// errorf creates a coded error carrying the directive's location.
func (k *keyBase) errorf(code herrors.ErrorCode, format string, args ...any) error {
	return herrors.Newf(code, format, args...).At(k.loc.String())
}

// wrapf wraps err with the directive's location.
func (k *keyBase) wrapf(err error, code herrors.ErrorCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &herrors.Error{Code: code, Message: fmt.Sprintf(format, args...), Location: k.loc.String(), Err: err}
}

// BoolKey is a directive whose value is a boolean.
type BoolKey struct {
	keyBase
	value bool
}

// Bool returns the parsed value.
func (k *BoolKey) Bool() bool { return k.value }

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, herrors.Newf(herrors.CodeInvalidInput, "expected a boolean value, got %q", value)
}

// StringKey is a directive whose value is a single string.
type StringKey struct {
	keyBase
}

// String returns the parsed value.
func (k *StringKey) String() string { return k.raw }

// Network enables networking during installation.
type Network struct{ BoolKey }

func parseNetwork(s *Script, loc diag.Location, value string) (Key, error) {
	b, err := parseBool(value)
	if err != nil {
		return nil, err
	}
	return &Network{BoolKey{keyBase: newBase(s, "network", loc, value), value: b}}, nil
}

// Firmware requests non-free firmware packages.
type Firmware struct{ BoolKey }

func parseFirmware(s *Script, loc diag.Location, value string) (Key, error) {
	b, err := parseBool(value)
	if err != nil {
		return nil, err
	}
	return &Firmware{BoolKey{keyBase: newBase(s, "firmware", loc, value), value: b}}, nil
}

// splitFirst splits value at its first run of spaces or tabs.
func splitFirst(value string) (string, string) {
	i := strings.IndexAny(value, " \t")
	if i < 0 {
		return value, ""
	}
	return value[:i], strings.Trim(value[i:], " \t")
}
