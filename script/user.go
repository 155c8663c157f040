package script

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/fs"
)

// MaxGroups is the number of groups an account may join.
const MaxGroups = 16

// IconDir holds account pictures in the target.
const IconDir = "/var/lib/AccountsService/icons"

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)

var reservedUsers = []string{
	"root", "bin", "daemon", "adm", "lp", "sync", "shutdown", "halt",
	"mail", "news", "uucp", "operator", "man", "postmaster", "cron", "ftp",
	"sshd", "at", "squid", "xfs", "games", "postgres", "cyrus", "vpopmail",
	"ntp", "smmsp", "guest", "nobody", "messagebus", "polkitd", "sddm",
}

var knownGroups = []string{
	"users", "lp", "audio", "cdrom", "cdrw", "scanner", "camera", "video",
	"games", "usb", "kvm", "input", "netdev", "wheel", "dialout", "disk",
	"floppy", "tape", "plugdev", "power", "lpadmin",
}

func parseUsername(name string) error {
	if len(name) > 32 || !usernameRe.MatchString(name) {
		return herrors.Newf(herrors.CodeInvalidInput, "%q is not a valid user name", name)
	}
	if slices.Contains(reservedUsers, name) {
		return herrors.Newf(herrors.CodeInvalidInput, "user name %q is reserved for the system", name)
	}
	return nil
}

// accountOf returns the user an account directive applies to.
func accountOf(k Key) string {
	switch v := k.(type) {
	case *Username:
		return v.raw
	case *UserAlias:
		return v.user
	case *UserPassphrase:
		return v.user
	case *UserIcon:
		return v.user
	case *UserGroups:
		return v.user
	}
	return ""
}

// Username creates a user account.
type Username struct{ StringKey }

func parseUsernameKey(s *Script, loc diag.Location, value string) (Key, error) {
	if err := parseUsername(value); err != nil {
		return nil, err
	}
	return &Username{StringKey{newBase(s, "username", loc, value)}}, nil
}

func (k *Username) name() string { return k.raw }

func (k *Username) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.Run(ctx, []string{"useradd", "-R", rt.Target, "-m", "-U", k.raw}),
		herrors.CodeExecutionFailed, "cannot create user %s", k.raw)
}

// userArgs splits "<user> <rest>" and validates the user name.
func userArgs(value, key string) (string, string, error) {
	user, rest := splitFirst(value)
	if rest == "" {
		return "", "", herrors.Newf(herrors.CodeParse, "%s requires a user name and a value", key)
	}
	if err := parseUsername(user); err != nil {
		return "", "", err
	}
	return user, rest, nil
}

// UserAlias sets an account's full name.
type UserAlias struct {
	keyBase
	user  string
	alias string
}

func parseUserAlias(s *Script, loc diag.Location, value string) (Key, error) {
	user, alias, err := userArgs(value, "useralias")
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(alias, ":\n") {
		return nil, herrors.New(herrors.CodeInvalidInput, "alias may not contain ':'")
	}
	return &UserAlias{keyBase: newBase(s, "useralias", loc, value), user: user, alias: alias}, nil
}

// Alias returns the full name.
func (k *UserAlias) Alias() string { return k.alias }

func (k *UserAlias) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.Run(ctx, []string{"usermod", "-R", rt.Target, "-c", k.alias, k.user}),
		herrors.CodeExecutionFailed, "cannot set alias for %s", k.user)
}

// UserPassphrase sets an account's hashed passphrase.
type UserPassphrase struct {
	keyBase
	user string
	hash string
}

func parseUserPassphrase(s *Script, loc diag.Location, value string) (Key, error) {
	user, hash, err := userArgs(value, "userpw")
	if err != nil {
		return nil, err
	}
	if err := parseCrypt(hash); err != nil {
		return nil, err
	}
	return &UserPassphrase{keyBase: newBase(s, "userpw", loc, value), user: user, hash: hash}, nil
}

func (k *UserPassphrase) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(setPassphrase(ctx, rt, k.user, k.hash), herrors.CodeExecutionFailed,
		"cannot set passphrase for %s", k.user)
}

// UserIcon sets an account's picture.
type UserIcon struct {
	keyBase
	user   string
	source string
}

func parseUserIcon(s *Script, loc diag.Location, value string) (Key, error) {
	user, source, err := userArgs(value, "usericon")
	if err != nil {
		return nil, err
	}
	if !isURL(source, "http", "https") && !fs.IsAbs(source) {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "icon %q must be an http(s) URL or an absolute path", source)
	}
	return &UserIcon{keyBase: newBase(s, "usericon", loc, value), user: user, source: source}, nil
}

// Execute installs the icon. Failures are reported as warnings: a
// missing picture does not make the account unusable.
func (k *UserIcon) Execute(ctx context.Context, rt *Runtime) error {
	icon := rt.Path(IconDir + "/" + k.user)
	var err error
	if isURL(k.source, "http", "https") {
		err = rt.System.Fetcher.Download(ctx, k.source, icon)
	} else {
		err = rt.System.Files.CopyFile(k.source, icon, 0o644)
	}
	if err != nil {
		rt.soft(diag.Loc(k.loc), "cannot install icon for "+k.user, err)
		return nil
	}
	if !rt.System.Simulated {
		if err := k.checkImage(rt, icon); err != nil {
			_ = rt.System.Files.Remove(icon)
			rt.soft(diag.Loc(k.loc), "icon for "+k.user+" is not an image", err)
			return nil
		}
	}

	home := "/home/" + k.user
	if err := rt.System.Files.CopyFile(icon, rt.Path(home+"/.face"), 0o644); err != nil {
		rt.soft(diag.Loc(k.loc), "cannot install face picture for "+k.user, err)
		return nil
	}
	if err := rt.symlink(".face", home+"/.face.icon"); err != nil {
		rt.soft(diag.Loc(k.loc), "cannot link face picture for "+k.user, err)
	}
	return nil
}

// checkImage sniffs the installed icon.
func (k *UserIcon) checkImage(rt *Runtime, icon string) error {
	data, err := rt.System.Files.ReadFile(icon)
	if err != nil {
		return err
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return herrors.New(herrors.CodeInvalidInput, "detected "+mt.String())
	}
	return nil
}

// UserGroups adds an account to supplementary groups.
type UserGroups struct {
	keyBase
	user   string
	groups []string
}

func parseUserGroups(s *Script, loc diag.Location, value string) (Key, error) {
	user, list, err := userArgs(value, "usergroups")
	if err != nil {
		return nil, err
	}
	groups := strings.Split(list, ",")
	if len(groups) > MaxGroups {
		return nil, herrors.Newf(herrors.CodeLimitExceeded, "at most %d groups may be given", MaxGroups)
	}
	for _, g := range groups {
		if !slices.Contains(knownGroups, g) {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown group %q", g)
		}
	}
	return &UserGroups{keyBase: newBase(s, "usergroups", loc, value), user: user, groups: groups}, nil
}

// Groups returns the groups named by this directive.
func (k *UserGroups) Groups() []string { return append([]string(nil), k.groups...) }

func (k *UserGroups) Execute(ctx context.Context, rt *Runtime) error {
	return k.wrapf(rt.Run(ctx, []string{"usermod", "-R", rt.Target, "-a", "-G", strings.Join(k.groups, ","), k.user}),
		herrors.CodeExecutionFailed, "cannot add %s to groups", k.user)
}
