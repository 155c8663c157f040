package netconf

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/apparentlymart/go-shquot/shquot"
)

// Paths of rendered files, relative to the target root.
const (
	NetifrcPath     = "/etc/conf.d/net"
	ENIPath         = "/etc/network/interfaces"
	WPAPath         = "/etc/wpa_supplicant/wpa_supplicant.conf"
	ResolvPath      = "/etc/resolv.conf"
	ResolvHeadPath  = "/etc/resolv.conf.head"
	pppPeersDir     = "/etc/ppp/peers"
	defaultRunlevel = "/etc/runlevels/default"
)

const header = "# Generated by hscript.\n"

// File is a rendered file.
type File struct {
	Path    string
	Content []byte
	Mode    os.FileMode
}

// Link is a symlink to create.
type Link struct {
	Path   string
	Target string
}

// Plan is the set of files and links that realize a Config.
type Plan struct {
	Files []File
	Links []Link
}

// Render renders the interface configuration for c.System. Wireless and
// resolver files are rendered separately.
func (c *Config) Render() (*Plan, error) {
	switch c.System {
	case Netifrc, "":
		return c.renderNetifrc(), nil
	case ENI:
		return c.renderENI(), nil
	}
	return nil, fmt.Errorf("unknown network configuration system %q", c.System)
}

func shellValue(v string) string {
	return shquot.POSIXShell([]string{v})
}

func (c *Config) renderNetifrc() *Plan {
	var b strings.Builder
	plan := &Plan{}
	b.WriteString(header)

	if c.Domain != "" {
		fmt.Fprintf(&b, "dns_domain_lo=\"%s\"\n", c.Domain)
	}

	for _, iface := range c.order {
		var config, routes []string
		for _, a := range c.addresses[iface] {
			switch a.Method {
			case DHCP:
				config = append(config, "dhcp")
			case Static:
				config = append(config, a.CIDR())
				if a.Gateway.IsValid() {
					routes = append(routes, "default via "+a.Gateway.String())
				}
			}
		}
		if len(config) == 0 {
			config = []string{"null"}
		}

		b.WriteByte('\n')
		fmt.Fprintf(&b, "config_%s=\"%s\"\n", ident(iface), strings.Join(config, "\n"))
		if len(routes) > 0 {
			fmt.Fprintf(&b, "routes_%s=\"%s\"\n", ident(iface), strings.Join(routes, "\n"))
		}
		if c.wirelessOn(iface) {
			fmt.Fprintf(&b, "modules_%s=\"wpa_supplicant\"\n", ident(iface))
			fmt.Fprintf(&b, "wpa_supplicant_%s=\"-c%s\"\n", ident(iface), WPAPath)
		}
		plan.Links = append(plan.Links, serviceLinks("net."+iface, "net.lo")...)

		if p := c.pppFor(iface); p != nil {
			b.WriteByte('\n')
			link := ident(p.Link)
			fmt.Fprintf(&b, "config_%s=\"ppp\"\n", link)
			fmt.Fprintf(&b, "link_%s=\"%s\"\n", link, iface)
			fmt.Fprintf(&b, "plugins_%s=\"pppoe\"\n", link)
			if v, ok := p.Param("username"); ok {
				fmt.Fprintf(&b, "username_%s=%s\n", link, shellValue(v))
			}
			if v, ok := p.Param("password"); ok {
				fmt.Fprintf(&b, "password_%s=%s\n", link, shellValue(v))
			}
			fmt.Fprintf(&b, "pppd_%s=\"%s\"\n", link, strings.Join(pppdOptions(*p), "\n"))
			plan.Links = append(plan.Links, serviceLinks("net."+p.Link, "net.lo")...)
		}
	}

	plan.Files = append([]File{{Path: NetifrcPath, Content: []byte(b.String()), Mode: 0o600}}, plan.Files...)
	return plan
}

// serviceLinks returns the init script alias and runlevel links for an
// OpenRC service that is an alias of base.
func serviceLinks(service, base string) []Link {
	return []Link{
		{Path: "/etc/init.d/" + service, Target: base},
		{Path: defaultRunlevel + "/" + service, Target: "/etc/init.d/" + service},
	}
}

func pppdOptions(p PPPoE) []string {
	opts := []string{"noauth", "defaultroute", "usepeerdns"}
	for _, kv := range p.Params {
		switch kv.Key {
		case "username", "password":
			continue
		}
		if kv.Value == "" {
			opts = append(opts, kv.Key)
			continue
		}
		opts = append(opts, kv.Key+" "+kv.Value)
	}
	return opts
}

// ident makes an interface name usable in a shell variable name.
func ident(name string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, name)
}

func (c *Config) renderENI() *Plan {
	var b strings.Builder
	plan := &Plan{}
	b.WriteString(header)
	b.WriteString("auto lo\niface lo inet loopback\n")

	for _, iface := range c.order {
		addrs := c.addresses[iface]
		wpa := c.wirelessOn(iface)
		stanzas := 0

		b.WriteString("\nauto " + iface + "\n")
		for _, a := range addrs {
			if stanzas > 0 {
				b.WriteByte('\n')
			}
			switch a.Method {
			case DHCP:
				fmt.Fprintf(&b, "iface %s inet dhcp\n", iface)
			case SLAAC:
				fmt.Fprintf(&b, "iface %s inet6 auto\n", iface)
			case Static:
				family := "inet"
				if a.Addr.Is6() {
					family = "inet6"
				}
				fmt.Fprintf(&b, "iface %s %s static\n", iface, family)
				fmt.Fprintf(&b, "\taddress %s\n", a.CIDR())
				if a.Gateway.IsValid() {
					fmt.Fprintf(&b, "\tgateway %s\n", a.Gateway)
				}
			}
			if wpa && stanzas == 0 {
				fmt.Fprintf(&b, "\twpa-conf %s\n", WPAPath)
			}
			stanzas++
		}
		if stanzas == 0 {
			fmt.Fprintf(&b, "iface %s inet manual\n", iface)
			if wpa {
				fmt.Fprintf(&b, "\twpa-conf %s\n", WPAPath)
			}
		}

		if p := c.pppFor(iface); p != nil {
			fmt.Fprintf(&b, "\nauto %s\niface %s inet ppp\n", p.Link, p.Link)
			fmt.Fprintf(&b, "\tpre-up /sbin/ip link set dev %s up\n", iface)
			fmt.Fprintf(&b, "\tprovider %s\n", p.Link)
			plan.Files = append(plan.Files, File{
				Path:    pppPeersDir + "/" + p.Link,
				Content: renderPeer(*p),
				Mode:    0o600,
			})
		}
	}

	plan.Files = append([]File{{Path: ENIPath, Content: []byte(b.String()), Mode: 0o644}}, plan.Files...)
	plan.Links = append(plan.Links, Link{Path: defaultRunlevel + "/networking", Target: "/etc/init.d/networking"})
	return plan
}

func renderPeer(p PPPoE) []byte {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("plugin rp-pppoe.so\n")
	b.WriteString(p.Interface + "\n")
	if v, ok := p.Param("username"); ok {
		fmt.Fprintf(&b, "user %q\n", v)
	}
	if v, ok := p.Param("password"); ok {
		fmt.Fprintf(&b, "password %q\n", v)
	}
	for _, opt := range pppdOptions(p) {
		b.WriteString(opt + "\n")
	}
	return []byte(b.String())
}

// RenderWPA renders the wpa_supplicant configuration.
func (c *Config) RenderWPA() []byte {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("ctrl_interface=/var/run/wpa_supplicant\n")
	b.WriteString("ctrl_interface_group=wheel\n")
	b.WriteString("update_config=1\n")

	for _, w := range c.wireless {
		b.WriteString("\nnetwork={\n")
		fmt.Fprintf(&b, "\tssid=%s\n", wpaString(w.SSID))
		switch w.Security {
		case SecurityNone:
			b.WriteString("\tkey_mgmt=NONE\n")
		case SecurityWEP:
			b.WriteString("\tkey_mgmt=NONE\n")
			fmt.Fprintf(&b, "\twep_key0=%s\n", wepKey(w.Passphrase))
			b.WriteString("\twep_tx_keyidx=0\n")
		case SecurityWPA:
			fmt.Fprintf(&b, "\tpsk=%s\n", wpaString(w.Passphrase))
		}
		b.WriteString("\tpriority=5\n")
		b.WriteString("}\n")
	}
	return []byte(b.String())
}

// wpaString quotes s for wpa_supplicant, falling back to hex for values
// that cannot be expressed as a quoted string.
func wpaString(s string) string {
	for _, r := range s {
		if r == '"' || r < 0x20 || r == 0x7f {
			return hex.EncodeToString([]byte(s))
		}
	}
	return `"` + s + `"`
}

// IsHexWEPKey reports whether key is a 40- or 104-bit WEP key written as
// hex digits.
func IsHexWEPKey(key string) bool {
	if len(key) != 10 && len(key) != 26 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}

// wepKey writes hex keys bare; wpa_supplicant reads a quoted key as ASCII.
func wepKey(key string) string {
	if IsHexWEPKey(key) {
		return key
	}
	return wpaString(key)
}

// RenderResolv renders resolver configuration.
func (c *Config) RenderResolv() []byte {
	var b strings.Builder
	b.WriteString(header)
	if c.Domain != "" && c.System == ENI {
		fmt.Fprintf(&b, "domain %s\n", c.Domain)
	}
	for _, ns := range c.Nameservers {
		fmt.Fprintf(&b, "nameserver %s\n", ns)
	}
	return []byte(b.String())
}
