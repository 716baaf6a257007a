package dns

import "strings"

// PolicyType is the kind of DNS record a policy manages.
type PolicyType string

const (
	TypeA     PolicyType = "A_RECORD"
	TypeCNAME PolicyType = "CNAME_RECORD"
)

// Valid reports whether t is one of the supported policy types.
func (t PolicyType) Valid() bool {
	return t == TypeA || t == TypeCNAME
}

// State is the desired presence of a policy.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// DefaultTTLSeconds is used when the caller does not specify a TTL.
const DefaultTTLSeconds = 3600

// Site is a management domain on the controller.
type Site struct {
	ID   string
	Name string
}

// Policy is a DNS policy as known to the controller. ID is empty until the
// policy has been matched against or created on the remote side.
type Policy struct {
	ID          string
	Type        PolicyType
	Domain      string
	IPv4Address *string // only meaningful for A_RECORD
	TTLSeconds  int
	Enabled     bool
}

// DesiredPolicy is the caller's requested state for one domain.
type DesiredPolicy struct {
	Policy
	State State
}

// NewDesiredPolicy returns a present, enabled policy for domain with the
// default TTL.
func NewDesiredPolicy(domain string) DesiredPolicy {
	return DesiredPolicy{
		Policy: Policy{
			Domain:     domain,
			TTLSeconds: DefaultTTLSeconds,
			Enabled:    true,
		},
		State: StatePresent,
	}
}

// FindSite returns the first site whose name matches name case-insensitively.
func FindSite(sites []Site, name string) (Site, bool) {
	for _, s := range sites {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Site{}, false
}

// FindPolicy returns the first policy whose domain equals domain exactly,
// along with the number of policies sharing that domain.
func FindPolicy(policies []Policy, domain string) (match Policy, found bool, count int) {
	for _, p := range policies {
		if p.Domain != domain {
			continue
		}
		if count == 0 {
			match, found = p, true
		}
		count++
	}
	return match, found, count
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
