package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/go-logr/logr"
	"k8s.io/client-go/util/retry"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/event"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/policy"
)

const (
	finalizerName              = "dns.yk/cleanup"
	managedHostnamesAnnotation = "dns.yk/managed-hostnames"
)

// PolicyReconciler converges a single DNS policy. *policy.Engine satisfies it.
type PolicyReconciler interface {
	Reconcile(ctx context.Context, siteName string, desired dns.DesiredPolicy, mode policy.Mode) (*policy.Outcome, error)
}

// HTTPRouteReconciler keeps one A_RECORD DNS policy per HTTPRoute hostname
// that matches the domain map.
type HTTPRouteReconciler struct {
	client.Client
	APIReader  client.Reader
	Log        logr.Logger
	DomainMap  *config.DomainMap
	Policies   PolicyReconciler
	SiteName   string
	TTLSeconds int
	Mode       policy.Mode
}

func (r *HTTPRouteReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	var route gatewayv1.HTTPRoute
	if err := r.APIReader.Get(ctx, req.NamespacedName, &route); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	previous := managedHostnames(&route)
	desired := r.desiredPolicies(&route)

	// Handle deletion
	if !route.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&route, finalizerName) {
			r.Log.Info("removing DNS policies for HTTPRoute", "name", req.NamespacedName)
			for _, hostname := range union(previous, keys(desired)) {
				if err := r.remove(ctx, hostname); err != nil {
					return ctrl.Result{}, err
				}
			}

			err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
				if err := r.APIReader.Get(ctx, req.NamespacedName, &route); err != nil {
					return err
				}
				controllerutil.RemoveFinalizer(&route, finalizerName)
				return r.Update(ctx, &route)
			})
			if err != nil {
				return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
			}
		}
		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&route, finalizerName) {
		err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
			if err := r.APIReader.Get(ctx, req.NamespacedName, &route); err != nil {
				return err
			}
			controllerutil.AddFinalizer(&route, finalizerName)
			return r.Update(ctx, &route)
		})
		if err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to add finalizer: %w", err)
		}
		return ctrl.Result{}, nil
	}

	// Remove policies for hostnames that left the spec or the domain map
	for _, hostname := range previous {
		if _, ok := desired[hostname]; ok {
			continue
		}
		if err := r.remove(ctx, hostname); err != nil {
			return ctrl.Result{}, err
		}
	}

	current := keys(desired)
	for _, hostname := range current {
		if err := r.converge(ctx, desired[hostname]); err != nil {
			return ctrl.Result{}, fmt.Errorf("reconciling DNS policy for %s: %w", hostname, err)
		}
	}

	// Check mode leaves the record of managed hostnames untouched
	if r.Mode == policy.ModeApply && !slices.Equal(previous, current) {
		err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
			if err := r.APIReader.Get(ctx, req.NamespacedName, &route); err != nil {
				return err
			}
			if route.Annotations == nil {
				route.Annotations = make(map[string]string)
			}
			data, _ := json.Marshal(current)
			route.Annotations[managedHostnamesAnnotation] = string(data)
			return r.Update(ctx, &route)
		})
		if err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to update managed-hostnames annotation: %w", err)
		}
	}

	return ctrl.Result{}, nil
}

// desiredPolicies returns the policy each mapped hostname of the route should
// have, keyed by hostname.
func (r *HTTPRouteReconciler) desiredPolicies(route *gatewayv1.HTTPRoute) map[string]dns.DesiredPolicy {
	desired := make(map[string]dns.DesiredPolicy, len(route.Spec.Hostnames))
	for _, h := range route.Spec.Hostnames {
		hostname := string(h)
		ip, ok := r.DomainMap.LookupIP(hostname)
		if !ok {
			r.Log.V(1).Info("no domain mapping found for hostname", "hostname", hostname)
			continue
		}

		p := dns.NewDesiredPolicy(hostname)
		p.Type = dns.TypeA
		p.IPv4Address = dns.StringPtr(ip)
		if r.TTLSeconds > 0 {
			p.TTLSeconds = r.TTLSeconds
		}
		desired[hostname] = p
	}
	return desired
}

func (r *HTTPRouteReconciler) remove(ctx context.Context, hostname string) error {
	p := dns.NewDesiredPolicy(hostname)
	p.State = dns.StateAbsent
	if err := r.converge(ctx, p); err != nil {
		return fmt.Errorf("removing DNS policy for %s: %w", hostname, err)
	}
	return nil
}

// converge runs one engine pass and records its result.
func (r *HTTPRouteReconciler) converge(ctx context.Context, desired dns.DesiredPolicy) error {
	outcome, err := r.Policies.Reconcile(ctx, r.SiteName, desired, r.Mode)
	observeReconcile(desired.State, r.Mode, outcome, err)
	if err != nil {
		return err
	}
	if outcome.Changed {
		r.Log.Info(outcome.Message, "hostname", desired.Domain, "mode", r.Mode)
	} else {
		r.Log.V(1).Info(outcome.Message, "hostname", desired.Domain)
	}
	return nil
}

func managedHostnames(route *gatewayv1.HTTPRoute) []string {
	var hostnames []string
	if val, ok := route.Annotations[managedHostnamesAnnotation]; ok {
		_ = json.Unmarshal([]byte(val), &hostnames)
	}
	sort.Strings(hostnames)
	return hostnames
}

func keys(m map[string]dns.DesiredPolicy) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func (r *HTTPRouteReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&gatewayv1.HTTPRoute{}).
		WithEventFilter(predicate.Funcs{
			UpdateFunc: func(e event.UpdateEvent) bool {
				// Reconcile if the Spec (Generation) has changed.
				if e.ObjectOld.GetGeneration() != e.ObjectNew.GetGeneration() {
					return true
				}
				// Also reconcile if finalizers have changed (e.g. our finalizer was added).
				if len(e.ObjectOld.GetFinalizers()) != len(e.ObjectNew.GetFinalizers()) {
					return true
				}
				// Ignore status-only updates.
				return false
			},
		}).
		Complete(r)
}
