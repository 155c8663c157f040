package script

import (
	"gopkg.in/yaml.v3"

	herrors "github.com/horizon-installer/hscript/errors"
)

// Manifest is a serializable summary of a loaded script.
type Manifest struct {
	Target     string             `yaml:"target"`
	Arch       string             `yaml:"arch"`
	Version    string             `yaml:"version"`
	Network    bool               `yaml:"network"`
	Packages   []string           `yaml:"packages,omitempty"`
	Accounts   []ManifestAccount  `yaml:"accounts,omitempty"`
	Directives []ManifestDirective `yaml:"directives"`
}

// ManifestAccount summarizes one user account. Passphrases are never
// included.
type ManifestAccount struct {
	Name          string   `yaml:"name"`
	Alias         string   `yaml:"alias,omitempty"`
	Groups        []string `yaml:"groups,omitempty"`
	HasPassphrase bool     `yaml:"has_passphrase"`
	Icon          string   `yaml:"icon,omitempty"`
}

// ManifestDirective is one directive and where it was declared.
type ManifestDirective struct {
	Key       string `yaml:"key"`
	Value     string `yaml:"value"`
	Location  string `yaml:"location"`
	Inherited bool   `yaml:"inherited,omitempty"`
}

// redacted lists the directives whose value is a secret.
var redacted = map[string]bool{
	"rootpw": true,
	"userpw": true,
}

// Manifest returns a summary of the script.
func (s *Script) Manifest() *Manifest {
	m := &Manifest{
		Target:   s.target,
		Arch:     s.Architecture(),
		Version:  s.version(),
		Network:  s.networkEnabled(),
		Packages: s.Packages(),
	}
	for _, a := range s.Accounts() {
		ma := ManifestAccount{
			Name:          a.Name.name(),
			Groups:        a.GroupNames(),
			HasPassphrase: a.Passphrase != nil,
		}
		if a.Alias != nil {
			ma.Alias = a.Alias.alias
		}
		if a.Icon != nil {
			ma.Icon = a.Icon.source
		}
		m.Accounts = append(m.Accounts, ma)
	}
	for _, k := range s.order {
		value := k.Value()
		if redacted[k.Name()] {
			value = "(redacted)"
		}
		loc := k.Location()
		m.Directives = append(m.Directives, ManifestDirective{
			Key:       k.Name(),
			Value:     value,
			Location:  loc.String(),
			Inherited: loc.Inherited,
		})
	}
	return m
}

// YAML encodes the manifest.
func (m *Manifest) YAML() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeInternal, "cannot encode manifest")
	}
	return data, nil
}
