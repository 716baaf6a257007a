package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/policy"
)

// applyFlags holds the desired-state flags of the apply command.
type applyFlags struct {
	PolicyFile  string
	Type        string
	Domain      string
	IPv4Address string
	TTLSeconds  int
	Enabled     bool
	State       string
	Check       bool
	Output      string
}

func newApplyCommand(v *viper.Viper) *cobra.Command {
	var flags applyFlags

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge one DNS policy to the desired state",
		Long: `Apply looks up the DNS policy for --domain on the selected site and creates,
updates or deletes it so that it matches the desired state. Nothing is changed
when the policy already matches.

The result is printed as a single JSON (or YAML) document:

  {"changed": true, "msg": "...", "dns_policy": {...}}

Failures are printed as {"failed": true, "msg": "...", "kind": "..."} and exit
with a non-zero status.

Examples:
  # Create an A record
  yk-unifi-dns apply --host unifi.example.com --type A_RECORD \
    --domain my-server.example.com --ipv4-address 192.168.0.23

  # See what deleting a policy would do
  UNIFI_API_KEY=... yk-unifi-dns apply --host unifi.example.com \
    --domain old-server.example.com --state absent --check

  # Desired state from a file
  yk-unifi-dns apply --config-path unifi.yaml --policy-file policy.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, v, &flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.PolicyFile, "policy-file", "f", "", "YAML or JSON file with the desired state (flags override its values)")
	f.StringVar(&flags.Type, "type", "", "Type of the DNS policy: A_RECORD or CNAME_RECORD")
	f.StringVar(&flags.Domain, "domain", "", "Domain of the DNS policy")
	f.StringVar(&flags.IPv4Address, "ipv4-address", "", "IPv4 address of the DNS policy")
	f.IntVar(&flags.TTLSeconds, "ttl-seconds", dns.DefaultTTLSeconds, "TTL in seconds of the DNS policy")
	f.BoolVar(&flags.Enabled, "enabled", true, "Whether the DNS policy is enabled")
	f.StringVar(&flags.State, "state", string(dns.StatePresent), "Whether the DNS policy should be present or absent")
	f.BoolVar(&flags.Check, "check", false, "Show what would change without changing anything")
	f.StringVarP(&flags.Output, "output", "o", "json", "Output format: json or yaml")

	return cmd
}

func runApply(cmd *cobra.Command, v *viper.Viper, flags *applyFlags) error {
	out := cmd.OutOrStdout()
	format := flags.Output
	if format != "json" && format != "yaml" {
		return ExitWithCode(ExitUsage, fmt.Errorf("unsupported output format %q", format))
	}

	fail := func(code int, kind string, err error) error {
		if rerr := render(out, format, newFailure(kind, err)); rerr != nil {
			return rerr
		}
		return ExitWithCode(code, err)
	}

	conn, err := loadConnection(v)
	if err != nil {
		return fail(ExitUsage, kindConfig, err)
	}

	desired, siteName, err := desiredFromFlags(cmd, flags, conn.SiteName, v.IsSet(keySiteName))
	if err != nil {
		return fail(ExitUsage, kindConfig, err)
	}

	log := ctrl.Log.WithName("apply")
	log.V(1).Info("loaded connection", "connection", conn.String())

	dir, err := dns.NewDirectory("unifi", ctrl.Log.WithName("dns-unifi"), conn)
	if err != nil {
		return fail(ExitUsage, kindConfig, err)
	}

	mode := policy.ModeApply
	if flags.Check {
		mode = policy.ModeCheck
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	outcome, err := policy.NewEngine(dir, log).Reconcile(ctx, siteName, desired, mode)
	if err != nil {
		kind := policy.Kind(err)
		log.Error(err, "reconciliation failed", "kind", kind, "domain", desired.Domain)
		code := ExitFailure
		if kind == policy.KindValidation {
			code = ExitUsage
		}
		return fail(code, kind, err)
	}

	return render(out, format, outcome)
}

// desiredFromFlags merges the policy file, if any, with explicitly set flags.
// It returns the desired policy and the site to reconcile it on. A site_name
// in the policy file wins over the config file but not over --site-name or
// UNIFI_SITE_NAME.
func desiredFromFlags(cmd *cobra.Command, flags *applyFlags, siteName string, siteOverridden bool) (dns.DesiredPolicy, string, error) {
	params := &config.PolicyParams{}
	if flags.PolicyFile != "" {
		loaded, err := config.LoadPolicyParams(flags.PolicyFile)
		if err != nil {
			return dns.DesiredPolicy{}, "", err
		}
		params = loaded
	}

	changed := cmd.Flags().Changed
	if changed("type") {
		params.Type = &flags.Type
	}
	if changed("domain") {
		params.Domain = &flags.Domain
	}
	if changed("ipv4-address") {
		params.IPv4Address = &flags.IPv4Address
	}
	if changed("ttl-seconds") {
		params.TTLSeconds = &flags.TTLSeconds
	}
	if changed("enabled") {
		params.Enabled = &flags.Enabled
	}
	if changed("state") {
		params.State = &flags.State
	}
	if params.SiteName != nil && !siteOverridden {
		siteName = *params.SiteName
	}

	desired := dns.NewDesiredPolicy("")
	if params.Domain != nil {
		desired.Domain = *params.Domain
	}
	if params.Type != nil {
		desired.Type = dns.PolicyType(*params.Type)
	}
	// An empty address means none, as the controller reports it.
	if params.IPv4Address != nil && *params.IPv4Address != "" {
		desired.IPv4Address = params.IPv4Address
	}
	if params.TTLSeconds != nil {
		desired.TTLSeconds = *params.TTLSeconds
	}
	if params.Enabled != nil {
		desired.Enabled = *params.Enabled
	}
	if params.State != nil {
		desired.State = dns.State(*params.State)
	}
	return desired, siteName, nil
}
