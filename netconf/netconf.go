// Package netconf renders declared network settings into the files a
// target system's network stack reads at boot: netifrc's /etc/conf.d/net
// or ifupdown's /etc/network/interfaces, plus wpa_supplicant and resolver
// configuration.
package netconf

import (
	"fmt"
	"net/netip"
	"strings"
)

// System is a network configuration convention.
type System string

const (
	// Netifrc is Gentoo-style netifrc, one set of variables per interface.
	Netifrc System = "netifrc"
	// ENI is Debian-style /etc/network/interfaces, one stanza per interface.
	ENI System = "eni"
)

// ParseSystem validates a configuration system name.
func ParseSystem(s string) (System, error) {
	switch System(strings.ToLower(s)) {
	case Netifrc:
		return Netifrc, nil
	case ENI:
		return ENI, nil
	}
	return "", fmt.Errorf("unknown network configuration system %q", s)
}

// Method is an address configuration method.
type Method int

const (
	// DHCP requests an IPv4 lease.
	DHCP Method = iota
	// SLAAC uses IPv6 stateless autoconfiguration.
	SLAAC
	// Static assigns a fixed address.
	Static
)

// String returns the directive keyword for the method.
func (m Method) String() string {
	switch m {
	case DHCP:
		return "dhcp"
	case SLAAC:
		return "slaac"
	case Static:
		return "static"
	default:
		return "unknown"
	}
}

// Address is one address assignment on an interface.
type Address struct {
	Method  Method
	Addr    netip.Addr
	Prefix  int
	Gateway netip.Addr
}

// CIDR returns the address in prefix notation. Only valid for Static.
func (a Address) CIDR() string {
	return netip.PrefixFrom(a.Addr, a.Prefix).String()
}

// Param is a PPP option. An empty Value denotes a bare flag.
type Param struct {
	Key   string
	Value string
}

// PPPoE is a PPP-over-Ethernet link carried by an interface.
type PPPoE struct {
	Link      string // generated link name, e.g. ppp0
	Interface string
	Params    []Param
}

// Param returns the value of a named parameter.
func (p PPPoE) Param(key string) (string, bool) {
	for _, kv := range p.Params {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Security is a wireless security kind.
type Security int

const (
	// SecurityNone is an open network.
	SecurityNone Security = iota
	// SecurityWEP is WEP.
	SecurityWEP
	// SecurityWPA is WPA-PSK.
	SecurityWPA
)

// String returns the directive keyword for the security kind.
func (s Security) String() string {
	switch s {
	case SecurityNone:
		return "none"
	case SecurityWEP:
		return "wep"
	case SecurityWPA:
		return "wpa"
	default:
		return "unknown"
	}
}

// Wireless is a wireless network to associate with.
type Wireless struct {
	Interface  string
	SSID       string
	Security   Security
	Passphrase string
}

// Config accumulates network settings for rendering.
type Config struct {
	System      System
	Domain      string
	Nameservers []netip.Addr

	order     []string
	addresses map[string][]Address
	pppoe     []PPPoE
	wireless  []Wireless
}

// New creates an empty Config for the given system.
func New(sys System) *Config {
	return &Config{
		System:    sys,
		addresses: make(map[string][]Address),
	}
}

func (c *Config) touch(iface string) {
	for _, name := range c.order {
		if name == iface {
			return
		}
	}
	c.order = append(c.order, iface)
}

// AddAddress adds an address to an interface.
func (c *Config) AddAddress(iface string, a Address) {
	c.touch(iface)
	c.addresses[iface] = append(c.addresses[iface], a)
}

// AddPPPoE adds a PPPoE link.
func (c *Config) AddPPPoE(p PPPoE) {
	c.touch(p.Interface)
	c.pppoe = append(c.pppoe, p)
}

// AddWireless adds a wireless network.
func (c *Config) AddWireless(w Wireless) {
	c.touch(w.Interface)
	c.wireless = append(c.wireless, w)
}

// AddNameserver adds a resolver address.
func (c *Config) AddNameserver(a netip.Addr) {
	c.Nameservers = append(c.Nameservers, a)
}

// Interfaces returns every configured interface in declaration order.
func (c *Config) Interfaces() []string {
	return append([]string(nil), c.order...)
}

// Wireless returns the declared wireless networks.
func (c *Config) Wireless() []Wireless {
	return append([]Wireless(nil), c.wireless...)
}

// HasInterfaces reports whether any address or PPPoE link was declared.
func (c *Config) HasInterfaces() bool {
	return len(c.addresses) > 0 || len(c.pppoe) > 0
}

// UsesDHCP reports whether any interface is configured by DHCP.
func (c *Config) UsesDHCP() bool {
	for _, addrs := range c.addresses {
		for _, a := range addrs {
			if a.Method == DHCP {
				return true
			}
		}
	}
	return false
}

func (c *Config) pppFor(iface string) *PPPoE {
	for i := range c.pppoe {
		if c.pppoe[i].Interface == iface {
			return &c.pppoe[i]
		}
	}
	return nil
}

func (c *Config) wirelessOn(iface string) bool {
	for _, w := range c.wireless {
		if w.Interface == iface {
			return true
		}
	}
	return false
}
