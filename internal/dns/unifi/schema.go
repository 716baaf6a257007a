package unifi

import "github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"

// policyDTO is a DNS policy as returned by the controller. The controller
// sends camelCase keys; the snake_case spellings are accepted as well since
// older tooling documents the listing that way.
type policyDTO struct {
	ID                string  `json:"id"`
	Type              string  `json:"type"`
	Domain            string  `json:"domain"`
	IPv4Address       *string `json:"ipv4Address"`
	IPv4AddressLegacy *string `json:"ipv4_address"`
	TTLSeconds        *int    `json:"ttlSeconds"`
	TTLSecondsLegacy  *int    `json:"ttl_seconds"`
	Enabled           *bool   `json:"enabled"`
}

func (d policyDTO) toPolicy() dns.Policy {
	p := dns.Policy{
		ID:          d.ID,
		Type:        dns.PolicyType(d.Type),
		Domain:      d.Domain,
		IPv4Address: d.IPv4Address,
		TTLSeconds:  dns.DefaultTTLSeconds,
		Enabled:     true,
	}
	if p.IPv4Address == nil {
		p.IPv4Address = d.IPv4AddressLegacy
	}
	switch {
	case d.TTLSeconds != nil:
		p.TTLSeconds = *d.TTLSeconds
	case d.TTLSecondsLegacy != nil:
		p.TTLSeconds = *d.TTLSecondsLegacy
	}
	if d.Enabled != nil {
		p.Enabled = *d.Enabled
	}
	return p
}

// policyBody is the request body for create and update.
type policyBody struct {
	Type        dns.PolicyType `json:"type"`
	Domain      string         `json:"domain"`
	IPv4Address *string        `json:"ipv4Address"`
	TTLSeconds  int            `json:"ttlSeconds"`
	Enabled     bool           `json:"enabled"`
}

func newPolicyBody(p dns.Policy) policyBody {
	return policyBody{
		Type:        p.Type,
		Domain:      p.Domain,
		IPv4Address: p.IPv4Address,
		TTLSeconds:  p.TTLSeconds,
		Enabled:     p.Enabled,
	}
}
