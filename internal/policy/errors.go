package policy

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed desired-state input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SiteNotFoundError is returned when no site matches the requested name.
type SiteNotFoundError struct {
	SiteName string
}

func (e *SiteNotFoundError) Error() string {
	return fmt.Sprintf("Site with name '%s' not found on UniFi Network", e.SiteName)
}

// SiteLookupError wraps a transport failure while listing sites.
type SiteLookupError struct {
	SiteName string
	Err      error
}

func (e *SiteLookupError) Error() string {
	return fmt.Sprintf("resolving site %q: %v", e.SiteName, e.Err)
}

func (e *SiteLookupError) Unwrap() error { return e.Err }

// PolicyLookupError wraps a transport failure while listing policies.
type PolicyLookupError struct {
	SiteID string
	Err    error
}

func (e *PolicyLookupError) Error() string {
	return fmt.Sprintf("listing DNS policies of site %s: %v", e.SiteID, e.Err)
}

func (e *PolicyLookupError) Unwrap() error { return e.Err }

// MutationError wraps a transport failure of a create, update or delete.
// The remote side may or may not have applied the change.
type MutationError struct {
	Action string
	Domain string
	Err    error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s DNS policy for domain %s: %v", e.Action, e.Domain, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// InconsistentStateError is returned when a matched remote policy has no id.
type InconsistentStateError struct {
	Domain string
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("DNS policy for domain %s found but has no ID", e.Domain)
}

// Error kinds as reported to callers.
const (
	KindValidation        = "validation"
	KindSiteNotFound      = "site_not_found"
	KindSiteLookup        = "site_lookup"
	KindPolicyLookup      = "policy_lookup"
	KindMutation          = "mutation"
	KindInconsistentState = "inconsistent_state"
	KindUnknown           = "unknown"
)

// Kind classifies an error returned by Engine.Reconcile.
func Kind(err error) string {
	var (
		validation   *ValidationError
		siteNotFound *SiteNotFoundError
		siteLookup   *SiteLookupError
		policyLookup *PolicyLookupError
		mutation     *MutationError
		inconsistent *InconsistentStateError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &siteNotFound):
		return KindSiteNotFound
	case errors.As(err, &siteLookup):
		return KindSiteLookup
	case errors.As(err, &policyLookup):
		return KindPolicyLookup
	case errors.As(err, &mutation):
		return KindMutation
	case errors.As(err, &inconsistent):
		return KindInconsistentState
	}
	return KindUnknown
}
