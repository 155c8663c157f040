package script

import (
	"sort"

	"github.com/horizon-installer/hscript/diag"
)

// parseFunc turns a directive's value into a Key owned by s.
type parseFunc func(s *Script, loc diag.Location, value string) (Key, error)

var catalogue = map[string]parseFunc{
	// Disk
	"diskid":    parseDiskID,
	"disklabel": parseDiskLabel,
	"partition": parsePartition,
	"lvm_pv":    parseLVMPhysical,
	"lvm_vg":    parseLVMGroup,
	"lvm_lv":    parseLVMVolume,
	"encrypt":   parseEncrypt,
	"fs":        parseFilesystem,
	"mount":     parseMount,

	// Metadata
	"network":    parseNetwork,
	"hostname":   parseHostname,
	"arch":       parseArch,
	"rootpw":     parseRootPassphrase,
	"language":   parseLanguage,
	"keymap":     parseKeymap,
	"firmware":   parseFirmware,
	"timezone":   parseTimezone,
	"repository": parseRepository,
	"signingkey": parseSigningKey,
	"svcenable":  parseServiceEnable,
	"version":    parseVersion,
	"bootloader": parseBootloader,
	"kernel":     parseKernel,
	"autologin":  parseAutologin,
	"pkginstall": parsePackageInstall,

	// Network
	"netconfigtype": parseNetConfigType,
	"netaddress":    parseNetAddress,
	"nameserver":    parseNameserver,
	"netssid":       parseNetSSID,
	"pppoe":         parsePPPoE,

	// Accounts
	"username":   parseUsernameKey,
	"useralias":  parseUserAlias,
	"userpw":     parseUserPassphrase,
	"usericon":   parseUserIcon,
	"usergroups": parseUserGroups,
}

// KnownKeys returns the name of every directive, sorted.
func KnownKeys() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
