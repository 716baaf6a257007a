package config

import (
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// DomainMap maps base domains (optionally wildcarded) to the IPv4 address
// their A records should point at.
type DomainMap struct {
	entries map[string]string
}

// NewDomainMap builds a DomainMap, rejecting entries that are not IPv4
// addresses.
func NewDomainMap(raw map[string]string) (*DomainMap, error) {
	entries := make(map[string]string, len(raw))
	for domain, value := range raw {
		addr, err := netip.ParseAddr(strings.TrimSpace(value))
		if err != nil || !addr.Is4() {
			return nil, fmt.Errorf("domain map: %q maps to %q, want an IPv4 address", domain, value)
		}
		entries[strings.TrimSuffix(domain, ".")] = addr.String()
	}
	return &DomainMap{entries: entries}, nil
}

// LoadDomainMap reads a YAML file mapping domains to IPv4 addresses.
func LoadDomainMap(path string) (*DomainMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading domain map file: %w", err)
	}

	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing domain map file: %w", err)
	}

	return NewDomainMap(raw)
}

// LookupIP finds the address for a hostname. It walks up the domain labels
// checking for an exact entry first and then a wildcard entry at each level,
// so given
//
//	"*.mydomain.com":    "10.0.0.1"
//	"app2.mydomain.com": "10.0.0.2"
//
// "app1.mydomain.com" resolves to 10.0.0.1 and "app2.mydomain.com" to 10.0.0.2.
// A wildcard never matches its bare base domain.
func (dm *DomainMap) LookupIP(hostname string) (string, bool) {
	hostname = strings.TrimSuffix(hostname, ".")
	for h := hostname; h != ""; {
		if ip, ok := dm.entries[h]; ok {
			return ip, true
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		if ip, ok := dm.entries["*."+h[idx+1:]]; ok {
			return ip, true
		}
		h = h[idx+1:]
	}
	return "", false
}

// Domains returns all configured base domains in sorted order.
func (dm *DomainMap) Domains() []string {
	domains := make([]string, 0, len(dm.entries))
	for d := range dm.entries {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}
