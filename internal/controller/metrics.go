package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/policy"
)

const (
	resultChanged   = "changed"
	resultUnchanged = "unchanged"
	resultError     = "error"
)

var policyReconciles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "yk_unifi_dns_policy_reconciles_total",
		Help: "DNS policy reconciliations by desired state, result and mode",
	},
	[]string{"state", "result", "mode"},
)

func init() {
	metrics.Registry.MustRegister(policyReconciles)
}

func observeReconcile(state dns.State, mode policy.Mode, outcome *policy.Outcome, err error) {
	result := resultUnchanged
	switch {
	case err != nil:
		result = resultError
	case outcome.Changed:
		result = resultChanged
	}
	policyReconciles.WithLabelValues(string(state), result, mode.String()).Inc()
}
