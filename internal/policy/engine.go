// Package policy reconciles a desired DNS policy against the policies that
// currently exist on a controller site.
package policy

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
)

// Mode selects whether Reconcile mutates the controller.
type Mode int

const (
	// ModeApply performs the create, update or delete.
	ModeApply Mode = iota
	// ModeCheck computes the outcome without any mutating call.
	ModeCheck
)

func (m Mode) String() string {
	if m == ModeCheck {
		return "check"
	}
	return "apply"
}

// Record is the policy as reported back to the caller. Absent policies only
// carry Domain and State.
type Record struct {
	Domain      string         `json:"domain" yaml:"domain"`
	Type        dns.PolicyType `json:"type,omitempty" yaml:"type,omitempty"`
	IPv4Address *string        `json:"ipv4_address,omitempty" yaml:"ipv4_address,omitempty"`
	TTLSeconds  *int           `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
	Enabled     *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	State       dns.State      `json:"state" yaml:"state"`
}

// Outcome is the result of one reconciliation pass.
type Outcome struct {
	Changed bool   `json:"changed" yaml:"changed"`
	Message string `json:"msg" yaml:"msg"`
	Policy  Record `json:"dns_policy" yaml:"dns_policy"`
}

// Engine converges one DNS policy at a time. It holds no state between calls.
type Engine struct {
	dir dns.Directory
	log logr.Logger
}

// NewEngine returns an Engine that reads and writes through dir.
func NewEngine(dir dns.Directory, log logr.Logger) *Engine {
	return &Engine{dir: dir, log: log}
}

// Validate checks desired-state input before any remote call is made.
func Validate(desired dns.DesiredPolicy) error {
	if desired.Domain == "" {
		return &ValidationError{Field: "domain", Reason: "must not be empty"}
	}
	switch desired.State {
	case dns.StatePresent:
		if !desired.Type.Valid() {
			return &ValidationError{
				Field:  "type",
				Reason: fmt.Sprintf("%q is not one of %s, %s", desired.Type, dns.TypeA, dns.TypeCNAME),
			}
		}
		if desired.TTLSeconds < 0 {
			return &ValidationError{Field: "ttl_seconds", Reason: "must not be negative"}
		}
	case dns.StateAbsent:
	default:
		return &ValidationError{
			Field:  "state",
			Reason: fmt.Sprintf("%q is not one of %s, %s", desired.State, dns.StatePresent, dns.StateAbsent),
		}
	}
	return nil
}

// Reconcile brings the policy for desired.Domain on the named site to the
// desired state. In ModeCheck no create, update or delete is issued but the
// returned Outcome is the one ModeApply would produce. On error no Outcome is
// returned.
func (e *Engine) Reconcile(ctx context.Context, siteName string, desired dns.DesiredPolicy, mode Mode) (*Outcome, error) {
	if err := Validate(desired); err != nil {
		return nil, err
	}
	desired.ID = ""
	log := e.log.WithValues("site", siteName, "domain", desired.Domain, "mode", mode)

	sites, err := e.dir.ListSites(ctx)
	if err != nil {
		return nil, &SiteLookupError{SiteName: siteName, Err: err}
	}
	site, ok := dns.FindSite(sites, siteName)
	if !ok {
		return nil, &SiteNotFoundError{SiteName: siteName}
	}
	log.V(1).Info("resolved site", "siteID", site.ID)

	policies, err := e.dir.ListPolicies(ctx, site.ID)
	if err != nil {
		return nil, &PolicyLookupError{SiteID: site.ID, Err: err}
	}
	existing, found, count := dns.FindPolicy(policies, desired.Domain)
	if count > 1 {
		log.V(1).Info("multiple DNS policies share this domain, using the first", "count", count, "id", existing.ID)
	}

	if desired.State == dns.StateAbsent {
		return e.reconcileAbsent(ctx, log, site.ID, desired, existing, found, mode)
	}
	return e.reconcilePresent(ctx, log, site.ID, desired, existing, found, mode)
}

func (e *Engine) reconcileAbsent(ctx context.Context, log logr.Logger, siteID string, desired dns.DesiredPolicy, existing dns.Policy, found bool, mode Mode) (*Outcome, error) {
	tombstone := Record{Domain: desired.Domain, State: dns.StateAbsent}

	if !found {
		log.V(1).Info("DNS policy already absent")
		return &Outcome{
			Message: fmt.Sprintf("DNS policy for domain %s does not exist", desired.Domain),
			Policy:  tombstone,
		}, nil
	}
	if existing.ID == "" {
		return nil, &InconsistentStateError{Domain: desired.Domain}
	}

	if mode == ModeApply {
		if _, err := e.dir.DeletePolicy(ctx, siteID, existing.ID); err != nil {
			return nil, &MutationError{Action: "delete", Domain: desired.Domain, Err: err}
		}
		log.Info("DNS policy deleted", "id", existing.ID)
	} else {
		log.Info("DNS policy would be deleted", "id", existing.ID)
	}
	return &Outcome{
		Changed: true,
		Message: fmt.Sprintf("DNS policy for domain %s deleted", desired.Domain),
		Policy:  tombstone,
	}, nil
}

func (e *Engine) reconcilePresent(ctx context.Context, log logr.Logger, siteID string, desired dns.DesiredPolicy, existing dns.Policy, found bool, mode Mode) (*Outcome, error) {
	record := recordOf(desired)

	if !found {
		if mode == ModeApply {
			created, err := e.dir.CreatePolicy(ctx, siteID, desired.Policy)
			if err != nil {
				return nil, &MutationError{Action: "create", Domain: desired.Domain, Err: err}
			}
			log.Info("DNS policy created", "id", created.ID)
		} else {
			log.Info("DNS policy would be created")
		}
		return &Outcome{
			Changed: true,
			Message: fmt.Sprintf("DNS policy for domain %s created", desired.Domain),
			Policy:  record,
		}, nil
	}

	if !dns.NeedsUpdate(existing, desired.Policy) {
		log.V(1).Info("DNS policy up to date", "id", existing.ID)
		return &Outcome{
			Message: fmt.Sprintf("DNS policy for domain %s already exists with correct configuration", desired.Domain),
			Policy:  record,
		}, nil
	}

	if mode == ModeApply {
		update := desired.Policy
		update.ID = existing.ID
		if _, err := e.dir.UpdatePolicy(ctx, siteID, existing.ID, update); err != nil {
			return nil, &MutationError{Action: "update", Domain: desired.Domain, Err: err}
		}
		log.Info("DNS policy updated", "id", existing.ID)
	} else {
		log.Info("DNS policy would be updated", "id", existing.ID)
	}
	return &Outcome{
		Changed: true,
		Message: fmt.Sprintf("DNS policy for domain %s updated", desired.Domain),
		Policy:  record,
	}, nil
}

func recordOf(desired dns.DesiredPolicy) Record {
	ttl := desired.TTLSeconds
	enabled := desired.Enabled
	return Record{
		Domain:      desired.Domain,
		Type:        desired.Type,
		IPv4Address: desired.IPv4Address,
		TTLSeconds:  &ttl,
		Enabled:     &enabled,
		State:       dns.StatePresent,
	}
}
