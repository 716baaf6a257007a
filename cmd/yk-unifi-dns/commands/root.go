package commands

import (
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-unifi-dns/internal/config"
	_ "github.com/yuriy-kovalchuk/yk-unifi-dns/internal/dns/providers"
)

var Version = "dev"

// connection flag keys, also used as viper keys; UNIFI_<KEY> in the
// environment.
const (
	keyConfigPath = "config-path"
	keyHost       = "host"
	keyAPIKey     = "api-key"
	keySiteName   = "site-name"
	keyVerifySSL  = "verify-ssl"
)

// NewRootCommand builds the command tree. Every call returns an independent
// tree so tests can run commands in isolation.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("UNIFI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	zapOpts := zap.Options{
		Development: true,
	}

	root := &cobra.Command{
		Use:           "yk-unifi-dns",
		Short:         "Manage DNS policies on a UniFi Network controller",
		Long:          `A command-line tool that converges DNS policies (A and CNAME records) on a UniFi Network controller to a desired state.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zapOpts.DestWriter = cmd.ErrOrStderr()
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String(keyConfigPath, "", "Path to a YAML connection config file (host, api_key, site_name, verify_ssl, timeout, page_size)")
	pf.String(keyHost, "", "Hostname or IP address of the UniFi Network controller")
	pf.String(keyAPIKey, "", "API key for the UniFi Network controller")
	pf.String(keySiteName, config.DefaultSiteName, "Name of the site that holds the DNS policies")
	pf.Bool(keyVerifySSL, true, "Verify the controller's TLS certificate")
	if err := v.BindPFlags(pf); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	zapOpts.BindFlags(goFlags)
	pf.AddGoFlagSet(goFlags)

	root.AddCommand(newApplyCommand(v))
	root.AddCommand(newControllerCommand(v))
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// loadConnection assembles the connection settings. Flags and UNIFI_*
// environment variables override the config file.
func loadConnection(v *viper.Viper) (config.Connection, error) {
	var conn config.Connection
	if path := v.GetString(keyConfigPath); path != "" {
		loaded, err := config.LoadConnectionFromPath(path)
		if err != nil {
			return conn, err
		}
		conn = *loaded
	}

	if v.IsSet(keyHost) {
		conn.Host = v.GetString(keyHost)
	}
	if v.IsSet(keyAPIKey) {
		conn.APIKey = v.GetString(keyAPIKey)
	}
	if v.IsSet(keySiteName) {
		conn.SiteName = v.GetString(keySiteName)
	}
	if v.IsSet(keyVerifySSL) {
		verify := v.GetBool(keyVerifySSL)
		conn.VerifySSL = &verify
	}

	conn = conn.WithDefaults()
	return conn, conn.Validate()
}
