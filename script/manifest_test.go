package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestManifest(t *testing.T) {
	s, _ := mustLoad(t, minimal+`rootpw $6$saltsalt$0123456789abcdef
username alice
useralias alice Alice Liddell
userpw alice $6$saltsalt$fedcba9876543210
usergroups alice users,wheel
pkginstall vim
version 1.0
`)
	m := s.Manifest()
	assert.Equal(t, DefaultTarget, m.Target)
	assert.Equal(t, "1.0", m.Version)
	assert.False(t, m.Network)
	assert.Equal(t, []string{"vim"}, m.Packages)
	require.Len(t, m.Accounts, 1)
	assert.Equal(t, ManifestAccount{
		Name:          "alice",
		Alias:         "Alice Liddell",
		Groups:        []string{"users", "wheel"},
		HasPassphrase: true,
	}, m.Accounts[0])

	data, err := m.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "0123456789abcdef")
	assert.NotContains(t, string(data), "fedcba9876543210")

	var decoded Manifest
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded.Directives, 11)
	assert.Equal(t, ManifestDirective{Key: "hostname", Value: "box", Location: "installfile:2"}, decoded.Directives[1])
	assert.Equal(t, "(redacted)", decoded.Directives[4].Value)
	assert.Equal(t, "rootpw", decoded.Directives[4].Key)
}
