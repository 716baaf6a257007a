package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/policy"
)

const defaultDomainMapPath = "configs/domain-map.yaml"

type controllerFlags struct {
	DomainMapPath      string
	TTLSeconds         int
	Check              bool
	MetricsBindAddress string
	ProbeBindAddress   string
}

func newControllerCommand(v *viper.Viper) *cobra.Command {
	var flags controllerFlags

	cmd := &cobra.Command{
		Use:   "controller",
		Short: "Run a Kubernetes controller that keeps DNS policies in sync with HTTPRoutes",
		Long: `Controller watches Gateway API HTTPRoutes and keeps one A_RECORD DNS policy
per route hostname that matches the domain map. Policies are removed again when
a hostname leaves the route or the route is deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runController(v, &flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.DomainMapPath, "domain-map", "", "Path to the domain map (defaults to $DOMAIN_MAP_PATH, then "+defaultDomainMapPath+")")
	f.IntVar(&flags.TTLSeconds, "ttl-seconds", dns.DefaultTTLSeconds, "TTL in seconds of the managed DNS policies")
	f.BoolVar(&flags.Check, "check", false, "Log what would change without changing anything")
	f.StringVar(&flags.MetricsBindAddress, "metrics-bind-address", ":9090", "Address the metrics endpoint binds to")
	f.StringVar(&flags.ProbeBindAddress, "health-probe-bind-address", ":8081", "Address the health probe endpoint binds to")

	return cmd
}

func runController(v *viper.Viper, flags *controllerFlags) error {
	log := ctrl.Log.WithName("setup")

	log.Info("starting yk-unifi-dns controller", "version", Version)

	domainMapPath := flags.DomainMapPath
	if domainMapPath == "" {
		domainMapPath = os.Getenv("DOMAIN_MAP_PATH")
	}
	if domainMapPath == "" {
		domainMapPath = defaultDomainMapPath
	}
	domainMap, err := config.LoadDomainMap(domainMapPath)
	if err != nil {
		return ExitWithCode(ExitUsage, fmt.Errorf("unable to load domain map: %w", err))
	}
	log.Info("loaded domain map", "path", domainMapPath, "domains", len(domainMap.Domains()))

	conn, err := loadConnection(v)
	if err != nil {
		return ExitWithCode(ExitUsage, fmt.Errorf("unable to load connection config: %w", err))
	}
	log.Info("loaded connection config", "connection", conn.String())

	dir, err := dns.NewDirectory("unifi", ctrl.Log.WithName("dns-unifi"), conn)
	if err != nil {
		return fmt.Errorf("unable to create DNS directory: %w", err)
	}

	scheme := runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(gatewayv1.Install(scheme))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: flags.MetricsBindAddress},
		HealthProbeBindAddress: flags.ProbeBindAddress,
	})
	if err != nil {
		return fmt.Errorf("unable to create manager: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	mode := policy.ModeApply
	if flags.Check {
		mode = policy.ModeCheck
	}

	reconciler := &controller.HTTPRouteReconciler{
		Client:     mgr.GetClient(),
		APIReader:  mgr.GetAPIReader(),
		Log:        ctrl.Log.WithName("httproute-controller"),
		DomainMap:  domainMap,
		Policies:   policy.NewEngine(dir, ctrl.Log.WithName("policy")),
		SiteName:   conn.SiteName,
		TTLSeconds: flags.TTLSeconds,
		Mode:       mode,
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to set up HTTPRoute controller: %w", err)
	}

	log.Info("starting manager", "site", conn.SiteName, "mode", mode)
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		return fmt.Errorf("manager exited with error: %w", err)
	}

	return nil
}
