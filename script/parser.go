package script

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/fs"
	"github.com/horizon-installer/hscript/fs/billy"
)

// MaxLineLength is the longest line a script may contain, in bytes.
const MaxLineLength = 512

type parser struct {
	script   *Script
	files    fs.Filesystem
	reporter *diag.Reporter
	flags    Flag

	loaded   map[string]bool
	errs     *multierror.Error
	errors   int
	seenWarn int
	fatal    bool
}

// Load reads and parses the script at path. Inherited scripts are read
// from the same filesystem.
func Load(name string, opts ...Option) (*Script, error) {
	options := mergeOptions(opts...)
	files := options.Filesystem
	if files == nil {
		files = billy.NewBaseOSFS()
		if abs, err := filepath.Abs(name); err == nil {
			name = filepath.ToSlash(abs)
		}
	}

	p := newParser(options, files)
	name = path.Clean(name)
	data, err := files.ReadFile(name)
	if err != nil {
		p.fail(nil, herrors.Wrapf(err, herrors.CodeNotFound, "cannot read script %s", name))
		return nil, p.loadError()
	}
	p.loaded[name] = true
	p.parse(bytes.NewReader(data), name, false)
	return p.finish()
}

// LoadReader parses a script from r. The name is used in diagnostics and
// to resolve relative inherit paths.
func LoadReader(r io.Reader, name string, opts ...Option) (*Script, error) {
	options := mergeOptions(opts...)
	files := options.Filesystem
	if files == nil {
		files = billy.NewBaseOSFS()
	}

	p := newParser(options, files)
	p.loaded[path.Clean(name)] = true
	p.parse(r, name, false)
	return p.finish()
}

func newParser(opts *Options, files fs.Filesystem) *parser {
	return &parser{
		script:   newScript(opts),
		files:    files,
		reporter: opts.Reporter,
		flags:    opts.Flags,
		loaded:   make(map[string]bool),
		seenWarn: opts.Reporter.Warnings(),
	}
}

func (p *parser) stopped() bool {
	return p.fatal || (p.errors > 0 && !p.flags.Has(KeepGoing))
}

func (p *parser) parse(r io.Reader, name string, inherited bool) {
	br := bufio.NewReader(r)
	for line := 1; !p.stopped(); line++ {
		text, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			p.fail(&diag.Location{Name: name, Line: line, Inherited: inherited},
				herrors.Wrap(err, herrors.CodeParse, "error reading script"))
			p.fatal = true
			return
		}
		if text == "" && err != nil {
			return
		}

		loc := diag.Location{Name: name, Line: line, Inherited: inherited}
		text = strings.TrimRight(text, "\r\n")
		if len(text) > MaxLineLength {
			p.fail(&loc, herrors.Newf(herrors.CodeParse, "line exceeds maximum length of %d bytes", MaxLineLength))
		} else {
			p.line(loc, text)
		}

		if err != nil {
			return
		}
	}
}

func (p *parser) line(loc diag.Location, text string) {
	text = strings.TrimLeft(text, " \t")
	if text == "" || text[0] == '#' {
		return
	}

	key, value := text, ""
	if i := strings.IndexAny(text, " \t"); i >= 0 {
		key, value = text[:i], strings.Trim(text[i:], " \t")
	}
	key = strings.ToLower(key)

	if key == "inherit" {
		p.inherit(loc, value)
		return
	}

	parse, ok := catalogue[key]
	if !ok {
		if p.flags.Has(StrictMode) {
			p.fail(&loc, herrors.Newf(herrors.CodeParse, "unknown key '%s'", key))
		} else {
			p.warn(&loc, "unknown key '"+key+"'", "")
		}
		return
	}
	if value == "" {
		p.fail(&loc, herrors.Newf(herrors.CodeParse, "key '%s' requires a value", key))
		return
	}

	k, err := parse(p.script, loc, value)
	if err != nil {
		p.fail(&loc, err)
		return
	}
	if err := p.script.store(k); err != nil {
		p.fail(&loc, err)
	}
}

func (p *parser) inherit(loc diag.Location, value string) {
	if value == "" {
		p.fail(&loc, herrors.New(herrors.CodeParse, "inherit requires a path"))
		return
	}
	target := value
	if !path.IsAbs(target) {
		target = path.Join(path.Dir(loc.Name), target)
	}
	target = path.Clean(target)

	if p.loaded[target] {
		p.fail(&loc, herrors.Newf(herrors.CodeConflict, "script %s has already been loaded; inheritance cycle", target))
		p.fatal = true
		return
	}

	data, err := p.files.ReadFile(target)
	if err != nil {
		p.fail(&loc, herrors.Wrapf(err, herrors.CodeNotFound, "cannot read inherited script %s", target))
		p.fatal = true
		return
	}
	p.loaded[target] = true
	p.parse(bytes.NewReader(data), target, true)
}

// finish applies the whole-script checks and returns the Script, or a
// LoadError if any error was reported.
func (p *parser) finish() (*Script, error) {
	if !p.stopped() {
		p.requireKeys()
	}
	if p.errors > 0 {
		return nil, p.loadError()
	}
	return p.script, nil
}

func (p *parser) requireKeys() {
	s := p.script
	for _, name := range []string{"network", "hostname", "kernel"} {
		if s.GetOne(name) == nil {
			p.fail(nil, herrors.Newf(herrors.CodeParse, "required key '%s' is missing", name))
		}
	}
	if p.flags.Has(RequireNetwork) && s.GetOne("network") != nil && !s.networkEnabled() {
		p.fail(nil, herrors.New(herrors.CodeParse, "networking is required but 'network' is false"))
	}
	if !p.flags.Has(ImageOnly) && len(s.many["mount"]) == 0 {
		p.fail(nil, herrors.New(herrors.CodeParse, "at least one 'mount' key is required"))
	}
}

func (p *parser) fail(loc *diag.Location, err error) {
	msg, detail := describe(err)
	p.reporter.Error(loc, msg, detail)
	p.errors++
	p.errs = multierror.Append(p.errs, located(err, loc))
}

func (p *parser) warn(loc *diag.Location, msg, detail string) {
	p.reporter.Warn(loc, msg, detail)
}

func (p *parser) loadError() *LoadError {
	return &LoadError{Errors: p.errors, Warnings: p.reporter.Warnings() - p.seenWarn, Err: p.errs}
}

// describe splits an error into the message and detail of a diagnostic.
func describe(err error) (string, string) {
	var e *herrors.Error
	if errors.As(err, &e) {
		detail := ""
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return e.Message, detail
	}
	return err.Error(), ""
}

// located attaches loc to err unless it already carries a location.
func located(err error, loc *diag.Location) error {
	if loc == nil {
		return err
	}
	var e *herrors.Error
	if errors.As(err, &e) {
		if e.Location == "" {
			return e.At(loc.String())
		}
		return err
	}
	return &herrors.Error{Code: herrors.CodeParse, Message: err.Error(), Location: loc.String()}
}
