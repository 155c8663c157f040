package script

import (
	"context"
	"math/bits"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"

	"github.com/horizon-installer/hscript/diag"
	herrors "github.com/horizon-installer/hscript/errors"
	"github.com/horizon-installer/hscript/netconf"
)

var ifaceRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,15}$`)

func parseInterface(name string) error {
	if !ifaceRe.MatchString(name) {
		return herrors.Newf(herrors.CodeInvalidInput, "%q is not a network interface name", name)
	}
	return nil
}

// NetConfigType selects how network configuration is written.
type NetConfigType struct {
	keyBase
	system netconf.System
}

func parseNetConfigType(s *Script, loc diag.Location, value string) (Key, error) {
	sys, err := netconf.ParseSystem(value)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeInvalidInput, "invalid network configuration type")
	}
	return &NetConfigType{keyBase: newBase(s, "netconfigtype", loc, value), system: sys}, nil
}

// System returns the selected configuration system.
func (k *NetConfigType) System() netconf.System { return k.system }

func (s *Script) netSystem() netconf.System {
	if k, ok := s.singles["netconfigtype"].(*NetConfigType); ok {
		return k.system
	}
	return netconf.Netifrc
}

// warnInterface reports a missing or unsuitable interface. These are
// warnings: the interface may appear once drivers are loaded.
func (k *keyBase) warnInterface(ctx context.Context, iface string, wireless bool) {
	probe := k.script.probe()
	if probe == nil {
		return
	}
	info, err := probe.Interface(ctx, iface)
	switch {
	case err != nil || !info.Exists:
		k.script.opts.Reporter.Warn(diag.Loc(k.loc), "interface "+iface+" does not exist", "")
	case wireless && !info.Wireless:
		k.script.opts.Reporter.Warn(diag.Loc(k.loc), "interface "+iface+" is not a wireless interface", "")
	}
}

// NetAddress configures an address on an interface.
type NetAddress struct {
	keyBase
	iface string
	addr  netconf.Address
}

func parseNetAddress(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if len(f) < 2 {
		return nil, herrors.New(herrors.CodeParse, "netaddress requires an interface and an address type")
	}
	if err := parseInterface(f[0]); err != nil {
		return nil, err
	}
	k := &NetAddress{keyBase: newBase(s, "netaddress", loc, value), iface: f[0]}

	switch strings.ToLower(f[1]) {
	case "dhcp", "slaac":
		if len(f) != 2 {
			return nil, herrors.Newf(herrors.CodeParse, "address type %s takes no further values", f[1])
		}
		k.addr.Method = netconf.DHCP
		if strings.EqualFold(f[1], "slaac") {
			k.addr.Method = netconf.SLAAC
		}
		return k, nil
	case "static":
	default:
		return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown address type %q; expected dhcp, slaac or static", f[1])
	}

	if len(f) < 4 || len(f) > 5 {
		return nil, herrors.New(herrors.CodeParse, "static address requires an address, a prefix length and an optional gateway")
	}
	addr, err := netip.ParseAddr(f[2])
	if err != nil || addr.Zone() != "" || addr.IsUnspecified() || addr.IsMulticast() {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a usable IP address", f[2])
	}
	addr = addr.Unmap()
	prefix, err := parsePrefix(addr, f[3])
	if err != nil {
		return nil, err
	}
	k.addr = netconf.Address{Method: netconf.Static, Addr: addr, Prefix: prefix}

	if len(f) == 5 {
		gw, err := netip.ParseAddr(f[4])
		if err != nil || gw.Zone() != "" {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a valid gateway address", f[4])
		}
		gw = gw.Unmap()
		if gw.Is4() != addr.Is4() {
			return nil, herrors.New(herrors.CodeInvalidInput, "gateway and address must be of the same family")
		}
		if gw == addr {
			return nil, herrors.New(herrors.CodeInvalidInput, "gateway may not be the interface's own address")
		}
		k.addr.Gateway = gw
	}
	return k, nil
}

// parsePrefix parses a prefix length, or for IPv4 a dotted netmask.
func parsePrefix(addr netip.Addr, s string) (int, error) {
	limit := addr.BitLen()
	if addr.Is4() && strings.Contains(s, ".") {
		mask, err := netip.ParseAddr(s)
		if err != nil || !mask.Is4() {
			return 0, herrors.Newf(herrors.CodeInvalidInput, "%q is not a netmask", s)
		}
		b := mask.As4()
		m := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		ones := bits.OnesCount32(m)
		if ones == 0 || m != ^uint32(0)<<(32-ones) {
			return 0, herrors.Newf(herrors.CodeInvalidInput, "netmask %s is not contiguous", s)
		}
		return ones, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > limit {
		return 0, herrors.Newf(herrors.CodeInvalidInput, "prefix length %q must be between 1 and %d", s, limit)
	}
	return n, nil
}

// Interface returns the interface name.
func (k *NetAddress) Interface() string { return k.iface }

// Address returns the parsed address.
func (k *NetAddress) Address() netconf.Address { return k.addr }

func (k *NetAddress) Validate(ctx context.Context) error {
	k.warnInterface(ctx, k.iface, false)
	return nil
}

func (k *NetAddress) Execute(_ context.Context, rt *Runtime) error {
	rt.net.AddAddress(k.iface, k.addr)
	return nil
}

// Nameserver adds a DNS resolver.
type Nameserver struct {
	keyBase
	addr netip.Addr
}

func parseNameserver(s *Script, loc diag.Location, value string) (Key, error) {
	addr, err := netip.ParseAddr(value)
	if err != nil || addr.Zone() != "" || addr.IsUnspecified() {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "%q is not a valid resolver address", value)
	}
	return &Nameserver{keyBase: newBase(s, "nameserver", loc, value), addr: addr.Unmap()}, nil
}

// Addr returns the resolver address.
func (k *Nameserver) Addr() netip.Addr { return k.addr }

func (k *Nameserver) Execute(_ context.Context, rt *Runtime) error {
	rt.net.AddNameserver(k.addr)
	return nil
}

var securityKinds = map[string]netconf.Security{
	"none": netconf.SecurityNone,
	"wep":  netconf.SecurityWEP,
	"wpa":  netconf.SecurityWPA,
}

// NetSSID associates a wireless interface with a network.
type NetSSID struct {
	keyBase
	network netconf.Wireless
}

func parseNetSSID(s *Script, loc diag.Location, value string) (Key, error) {
	iface, rest := splitFirst(value)
	if err := parseInterface(iface); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(rest, `"`) {
		return nil, herrors.New(herrors.CodeParse, "the SSID must be quoted")
	}
	words, err := shellwords.Parse(rest)
	if err != nil {
		return nil, herrors.Wrap(err, herrors.CodeParse, "cannot parse netssid value")
	}
	if len(words) < 2 || len(words) > 3 {
		return nil, herrors.New(herrors.CodeParse, "netssid requires an interface, an SSID, a security type and an optional passphrase")
	}

	ssid := words[0]
	if ssid == "" || len(ssid) > 32 {
		return nil, herrors.New(herrors.CodeInvalidInput, "SSID must be 1 to 32 bytes")
	}
	sec, ok := securityKinds[strings.ToLower(words[1])]
	if !ok {
		return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown security type %q; expected none, wep or wpa", words[1])
	}
	w := netconf.Wireless{Interface: iface, SSID: ssid, Security: sec}
	if len(words) == 3 {
		w.Passphrase = words[2]
	}
	if err := checkPassphrase(w); err != nil {
		return nil, err
	}

	raw := iface + ` "` + ssid + `" ` + sec.String()
	return &NetSSID{keyBase: newBase(s, "netssid", loc, raw), network: w}, nil
}

func checkPassphrase(w netconf.Wireless) error {
	n := len(w.Passphrase)
	switch w.Security {
	case netconf.SecurityNone:
		if n != 0 {
			return herrors.New(herrors.CodeInvalidInput, "an open network takes no passphrase")
		}
	case netconf.SecurityWEP:
		if n != 5 && n != 13 && !netconf.IsHexWEPKey(w.Passphrase) {
			return herrors.New(herrors.CodeInvalidInput, "WEP keys must be 5 or 13 characters, or 10 or 26 hex digits")
		}
	case netconf.SecurityWPA:
		if n < 8 || n > 63 {
			return herrors.New(herrors.CodeInvalidInput, "WPA passphrases must be 8 to 63 characters")
		}
	}
	return nil
}

// Interface returns the wireless interface.
func (k *NetSSID) Interface() string { return k.network.Interface }

// SSID returns the network name.
func (k *NetSSID) SSID() string { return k.network.SSID }

func (k *NetSSID) Validate(ctx context.Context) error {
	k.warnInterface(ctx, k.network.Interface, true)
	return nil
}

func (k *NetSSID) Execute(_ context.Context, rt *Runtime) error {
	rt.net.AddWireless(k.network)
	return nil
}

var pppoeParams = map[string]bool{
	"username":          true,
	"password":          true,
	"lcp-echo-interval": true,
	"lcp-echo-failure":  true,
	"mtu":               true,
}

// PPPoE brings up a PPP-over-Ethernet link on an interface.
type PPPoE struct {
	keyBase
	iface  string
	params []netconf.Param
}

func parsePPPoE(s *Script, loc diag.Location, value string) (Key, error) {
	f := strings.Fields(value)
	if err := parseInterface(f[0]); err != nil {
		return nil, err
	}
	k := &PPPoE{iface: f[0]}
	raw := []string{f[0]}
	seen := make(map[string]bool)
	for _, tok := range f[1:] {
		key, val, ok := strings.Cut(tok, "=")
		if !ok || val == "" {
			return nil, herrors.Newf(herrors.CodeParse, "PPPoE parameter %q must be key=value", tok)
		}
		if !pppoeParams[key] {
			return nil, herrors.Newf(herrors.CodeInvalidInput, "unknown PPPoE parameter %q", key)
		}
		if seen[key] {
			return nil, herrors.Newf(herrors.CodeAlreadyExists, "duplicate PPPoE parameter %q", key)
		}
		seen[key] = true
		k.params = append(k.params, netconf.Param{Key: key, Value: val})
		if key == "password" {
			tok = "password=****"
		}
		raw = append(raw, tok)
	}
	k.keyBase = newBase(s, "pppoe", loc, strings.Join(raw, " "))
	return k, nil
}

// Interface returns the interface carrying the link.
func (k *PPPoE) Interface() string { return k.iface }

func (k *PPPoE) Validate(ctx context.Context) error {
	k.warnInterface(ctx, k.iface, false)
	return nil
}

func (k *PPPoE) Execute(_ context.Context, rt *Runtime) error {
	rt.net.AddPPPoE(netconf.PPPoE{Link: rt.nextPPPLink(), Interface: k.iface, Params: k.params})
	return nil
}
