package dns

import "context"

// Directory is the remote collection of sites and DNS policies. Implementations
// are pure transport: they perform exactly one logical remote operation per
// call, never retry, and report every failure as a *TransportError.
type Directory interface {
	// ListSites returns every site known to the controller.
	ListSites(ctx context.Context) ([]Site, error)
	// ListPolicies returns every DNS policy of the given site.
	ListPolicies(ctx context.Context, siteID string) ([]Policy, error)
	CreatePolicy(ctx context.Context, siteID string, policy Policy) (Policy, error)
	UpdatePolicy(ctx context.Context, siteID, id string, policy Policy) (Policy, error)
	DeletePolicy(ctx context.Context, siteID, id string) (bool, error)
}
