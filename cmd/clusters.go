package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/giantswarm/kubedeck/internal/config"
	"github.com/giantswarm/kubedeck/internal/logging"
	"github.com/giantswarm/kubedeck/internal/registry"
	"github.com/giantswarm/kubedeck/internal/vault"
)

// Output formats of the clusters commands.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// newClustersCmd groups the registry commands. They work on the same data
// directory as serve and do not need a running server.
func newClustersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Manage the cluster registry",
		Long: `Manage registered clusters directly on the registry database and the
credential vault. A running server picks up changes on its next request.`,
	}

	cmd.PersistentFlags().StringP("output", "o", outputTable, "Output format: table, json or yaml")

	cmd.AddCommand(
		newClustersListCmd(),
		newClustersAddCmd(),
		newClustersDeleteCmd(),
		newClustersMigrateCmd(),
		newClustersDiscoverCmd(),
	)
	return cmd
}

// stores is the registry and vault opened for one command.
type stores struct {
	cfg      *config.Config
	logger   *slog.Logger
	vault    *vault.Vault
	registry *registry.Store

	logCloser io.Closer
}

func openStores(cmd *cobra.Command) (*stores, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	v, err := vault.New(cfg.VaultDir,
		vault.WithLogger(logger),
		vault.WithMaxDiscoveryDepth(cfg.Discovery.MaxDepth),
	)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to open credential vault: %w", err)
	}

	store, err := registry.Open(cmd.Context(), cfg.DatabasePath, v, registry.WithLogger(logger))
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("failed to open cluster registry: %w", err)
	}

	return &stores{cfg: cfg, logger: logger, vault: v, registry: store, logCloser: logCloser}, nil
}

func (s *stores) Close() {
	if err := s.registry.Close(); err != nil {
		s.logger.Warn("Error closing registry", logging.Err(err))
	}
	_ = s.logCloser.Close()
}

// withStores opens the stores, runs fn and closes them again.
func withStores(fn func(cmd *cobra.Command, args []string, s *stores) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if _, err := outputFormat(cmd); err != nil {
			return err
		}
		s, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer s.Close()
		return fn(cmd, args, s)
	}
}

func newClustersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clusters, most recently used first",
		Args:  cobra.NoArgs,
		RunE: withStores(func(cmd *cobra.Command, _ []string, s *stores) error {
			records, err := s.registry.List(cmd.Context())
			if err != nil {
				return err
			}
			return printClusters(cmd, records...)
		}),
	}
}

func newClustersAddCmd() *cobra.Command {
	var (
		contextName string
		kubeconfig  string
		icon        string
		description string
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a cluster from a context of a kubeconfig file",
		Long: `Copies the named context, with its cluster and user, from the kubeconfig
file into the credential vault and registers it under NAME.`,
		Args: cobra.ExactArgs(1),
		RunE: withStores(func(cmd *cobra.Command, args []string, s *stores) error {
			rec, err := addCluster(cmd.Context(), s, registry.ClusterRecord{
				Name:        args[0],
				ContextName: contextName,
				Icon:        flagPointer(cmd, "icon", icon),
				Description: flagPointer(cmd, "description", description),
				Tags:        tags,
			}, kubeconfig)
			if err != nil {
				return err
			}
			return printClusters(cmd, rec)
		}),
	}

	cmd.Flags().StringVar(&contextName, "context", "", "Context to import from the kubeconfig file")
	cmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Kubeconfig file to import from (default $HOME/.kube/config)")
	cmd.Flags().StringVar(&icon, "icon", "", "Icon shown for the cluster")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Tags, comma separated")
	_ = cmd.MarkFlagRequired("context")

	return cmd
}

// addCluster imports the credentials and registers rec. The credential file
// is removed again when the registry rejects the record.
func addCluster(ctx context.Context, s *stores, rec registry.ClusterRecord, kubeconfig string) (registry.ClusterRecord, error) {
	if kubeconfig == "" {
		kubeconfig = defaultKubeconfig()
	}

	source, err := s.vault.ImportSource(kubeconfig)
	if err != nil {
		return registry.ClusterRecord{}, err
	}

	if existing, err := s.registry.FindByContext(ctx, rec.ContextName); err == nil && len(existing) > 0 {
		s.logger.Warn("Context is already registered, adding another cluster for it",
			logging.Context(rec.ContextName),
			logging.ClusterID(existing[0].ID))
	}

	rec.ID = registry.NewID()
	rec.CredentialPath, err = s.vault.ExtractContext(source, rec.ContextName, rec.ID)
	if err != nil {
		return registry.ClusterRecord{}, err
	}

	added, err := s.registry.Add(ctx, rec)
	if err != nil {
		if rmErr := s.vault.Remove(rec.CredentialPath); rmErr != nil {
			s.logger.Warn("Failed to remove credential file of rejected cluster",
				logging.Path(rec.CredentialPath),
				logging.Err(rmErr))
		}
		return registry.ClusterRecord{}, err
	}
	return added, nil
}

func newClustersDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a cluster and its vault credentials",
		Args:  cobra.ExactArgs(1),
		RunE: withStores(func(cmd *cobra.Command, args []string, s *stores) error {
			if err := s.registry.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s deleted\n", args[0])
			return nil
		}),
	}
}

func newClustersMigrateCmd() *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Register contexts from kubeconfig files written by older releases",
		Args:  cobra.NoArgs,
		RunE: withStores(func(cmd *cobra.Command, _ []string, s *stores) error {
			dir := from
			if dir == "" {
				dir = s.cfg.LegacyDir
			}

			report, err := s.registry.MigrateLegacy(cmd.Context(), dir)
			if err != nil {
				return err
			}

			return printOutput(cmd, report, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "Migrated: %d\tSkipped: %d\tFailed: %d\n",
					len(report.Migrated), len(report.Skipped), len(report.Failed))
				for _, f := range report.Failed {
					_, _ = fmt.Fprintf(w, "  %s (%s): %s\n", f.ContextName, f.SourceFile, f.Error)
				}
			})
		}),
	}

	cmd.Flags().StringVar(&from, "from", "", "Directory to migrate from (default the configured legacy dir)")
	return cmd
}

func newClustersDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover PATH",
		Short: "List the contexts in a kubeconfig file or in every kubeconfig under a folder",
		Args:  cobra.ExactArgs(1),
		RunE: withStores(func(cmd *cobra.Command, args []string, s *stores) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}

			var found []vault.DiscoveredContext
			if info.IsDir() {
				found, err = s.vault.DiscoverContextsInFolder(args[0])
			} else {
				found, err = s.vault.DiscoverContextsInFile(args[0])
			}
			if err != nil {
				return err
			}
			if found == nil {
				found = []vault.DiscoveredContext{}
			}

			return printOutput(cmd, found, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "CONTEXT\tCLUSTER\tUSER\tNAMESPACE\tFILE")
				for _, c := range found {
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						c.ContextName, c.ClusterName, c.UserName, orDash(c.Namespace), c.SourceFile)
				}
				_ = tw.Flush()
			})
		}),
	}
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	switch format {
	case outputTable, outputJSON, outputYAML:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (supported: %s, %s, %s)", format, outputTable, outputJSON, outputYAML)
	}
}

// printOutput writes v as JSON or YAML, or calls table for the table format.
func printOutput(cmd *cobra.Command, v any, table func(w io.Writer)) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case outputJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case outputYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		table(out)
		return nil
	}
}

func printClusters(cmd *cobra.Command, records ...registry.ClusterRecord) error {
	if records == nil {
		records = []registry.ClusterRecord{}
	}

	now := time.Now()
	return printOutput(cmd, records, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tNAME\tCONTEXT\tTAGS\tLAST USED")
		for _, r := range records {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				r.ID, r.Name, r.ContextName, orDash(strings.Join(r.Tags, ",")), lastUsed(r.LastAccessed, now))
		}
		_ = tw.Flush()
	})
}

func lastUsed(unix int64, now time.Time) string {
	if unix == 0 {
		return "never"
	}
	d := now.Sub(time.Unix(unix, 0)).Truncate(time.Second)
	if d < 0 {
		d = 0
	}
	return d.String() + " ago"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// flagPointer returns &value when the flag was set.
func flagPointer(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}

func defaultKubeconfig() string {
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return strings.Split(env, string(os.PathListSeparator))[0]
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}
