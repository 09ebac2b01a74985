package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/giantswarm/kubedeck/internal/config"
)

// configFile is set by the persistent --config flag.
var configFile string

// rootCmd represents the base command for the kubedeck application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kubedeck",
	Short: "Kubernetes cluster registry and session server",
	Long: `kubedeck keeps a registry of Kubernetes clusters together with an isolated
credential vault, and serves them over the Model Context Protocol (MCP).
Clients can register clusters from existing kubeconfig files, list pods and
namespaces, and start live pod watches and container log tails whose updates
are pushed as events.

When run without subcommands, it starts the MCP server (equivalent to 'kubedeck serve').`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// It is called from the main package to inject the version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kubedeck version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default is $HOME/.kubedeck/config.yaml)")
	flags.String("data-dir", "", "directory holding the registry database and the credential vault (default $HOME/.kubedeck)")
	flags.String("vault-dir", "", "credential vault directory (default <data-dir>/kubeconfigs)")
	flags.String("database-path", "", "registry database file (default <data-dir>/clusters.db)")
	flags.String("legacy-dir", "", "directory scanned by migrate for pre-registry kubeconfigs (default the vault dir)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	flags.String("log-file", "", "write logs to this rotated file instead of stderr")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClustersCmd())
}

// loadConfig resolves the configuration for cmd. Flags only override the
// config file and environment when set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
}
