package script

import (
	"context"
	_ "crypto/sha256" // registers the digests fingerprints are checked with
	_ "crypto/sha512"
	"net/url"
	"path"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/fs"
)

// Collection ceilings.
const (
	MaxRepositories = 10
	MaxSigningKeys  = 10
	MaxNameservers  = 3
)

// DistfilesURL is the base URL default repositories and keys are taken from.
const DistfilesURL = "https://distfiles.adelielinux.org/adelie"

// RepositoriesPath is the package repository list in the target.
const RepositoriesPath = "/etc/apk/repositories"

var defaultKeys = []string{
	"packages@adelielinux.org.pub",
	"packages@pleroma.net.pub",
}

// defaultLocation marks directives synthesized when none were declared.
var defaultLocation = diag.Location{Name: "(default)"}

func isURL(value string, schemes ...string) bool {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" {
		return false
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return true
		}
	}
	return false
}

// Repository adds a package repository.
type Repository struct{ StringKey }

func parseRepository(s *Script, loc diag.Location, value string) (Key, error) {
	if !isURL(value, "http", "https") && !fs.IsAbs(value) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "repository %q must be an http(s) URL or an absolute path", value)
	}
	return &Repository{StringKey{newBase(s, "repository", loc, value)}}, nil
}

func (k *Repository) Execute(_ context.Context, rt *Runtime) error {
	return k.wrapf(rt.System.Files.AppendFile(rt.Path(RepositoriesPath), []byte(k.raw+"\n"), 0o644),
		herrors.CodeExecutionFailed, "cannot add repository")
}

// defaultRepositories returns the repositories of the declared version.
func (s *Script) defaultRepositories() []Key {
	base := DistfilesURL + "/" + s.version()
	return []Key{
		&Repository{StringKey{newBase(s, "repository", defaultLocation, base+"/system")}},
		&Repository{StringKey{newBase(s, "repository", defaultLocation, base+"/user")}},
	}
}

// SigningKey installs a key trusted to sign packages.
type SigningKey struct {
	keyBase
	source      string
	fingerprint digest.Digest
}

func parseSigningKey(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) > 2 {
		return nil, herrors.New(herrors.CodeParse, "signingkey requires a source and an optional fingerprint")
	}
	if !isURL(f[0], "https") && !fs.IsAbs(f[0]) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "signing key %q must be an https URL or an absolute path", f[0])
	}
	k := &SigningKey{keyBase: newBase(s, "signingkey", loc, value), source: f[0]}
	if len(f) == 2 {
		fp, err := parseFingerprint(f[1])
		if err != nil {
			return nil, err
		}
		k.fingerprint = fp
	}
	return k, nil
}

// parseFingerprint accepts a bare hex SHA-256 digest or an
// algorithm-prefixed one such as "sha512:...".
func parseFingerprint(value string) (digest.Digest, error) {
	d := digest.Digest(strings.ToLower(value))
	if !strings.Contains(value, ":") {
		d = digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(value))
	}
	if err := d.Validate(); err != nil {
		return "", herrors.Wrapf(err, herrors.CodeInvalidInput, "fingerprint %q is not a valid digest", value)
	}
	return d, nil
}

// Fingerprint returns the expected digest of the key, if one was given.
func (k *SigningKey) Fingerprint() digest.Digest { return k.fingerprint }

// Destination returns the path the key is installed at in the target.
func (k *SigningKey) Destination() string {
	return "/etc/apk/keys/" + path.Base(k.source)
}

func (k *SigningKey) Execute(ctx context.Context, rt *Runtime) error {
	dest := rt.Path(k.Destination())
	var err error
	if isURL(k.source, "https") {
		err = rt.System.Fetcher.Download(ctx, k.source, dest)
	} else {
		err = rt.System.Files.CopyFile(k.source, dest, 0o644)
	}
	if err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot install signing key %s", k.source)
	}

	if k.fingerprint == "" || rt.System.Simulated {
		return nil
	}
	data, err := rt.System.Files.ReadFile(dest)
	if err != nil {
		return k.wrapf(err, herrors.CodeExecutionFailed, "cannot read signing key %s", dest)
	}
	if got := k.fingerprint.Algorithm().FromBytes(data); got != k.fingerprint {
		_ = rt.System.Files.Remove(dest)
		return k.errorf(herrors.CodeConflict, "signing key %s does not match its fingerprint: got %s", k.source, got)
	}
	return nil
}

func (s *Script) defaultSigningKeys() []Key {
	keys := make([]Key, 0, len(defaultKeys))
	for _, name := range defaultKeys {
		src := DistfilesURL + "/keys/" + name
		keys = append(keys, &SigningKey{keyBase: newBase(s, "signingkey", defaultLocation, src), source: src})
	}
	return keys
}
