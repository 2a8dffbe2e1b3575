package commands

import (
	"errors"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/catalog"
	"github.com/conduit-lang/entitycore/internal/cli/config"
	"github.com/conduit-lang/entitycore/internal/cli/ui"
	"github.com/conduit-lang/entitycore/internal/logging"
	"github.com/conduit-lang/entitycore/internal/orm/metadata"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globalOptions holds the persistent flags and the state built from them
type globalOptions struct {
	configPath string
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger
}

// setup loads the configuration and builds the logger once. Development
// logs go to w in console form.
func (o *globalOptions) setup(w io.Writer) error {
	if o.cfg != nil {
		return nil
	}

	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return err
	}
	var logger *zap.Logger
	if cfg.Log.Development {
		logger, err = logging.NewWriter(w, cfg.Log.Level)
	} else {
		logger, err = logging.New(cfg.Log.Level, false)
	}
	if err != nil {
		return err
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

// registry builds a registry holding the catalog models
func (o *globalOptions) registry() (*metadata.Registry, []*metadata.EntityModel, error) {
	reg := metadata.NewRegistry(metadata.WithLogger(o.logger))
	models, err := catalog.Register(reg)
	if err != nil {
		return nil, nil, err
	}
	return reg, models, nil
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "entitycore",
		Short: "Entity metadata, partitioned queries and change tracking",
		Long: color.CyanString(`entitycore - entity metadata and unit-of-work toolkit

entitycore describes entity types (keys, partitions, relationships and
calculated properties), confines queries to a data partition and saves
tracked changes to a document store.

Stores:
  • memory   in-process, for trying things out
  • sqlite3  a single SQLite table
  • pgx      a single PostgreSQL table
  • redis    one hash per entity type`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: ./entitycore.yml)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewModelsCommand(opts))
	rootCmd.AddCommand(NewPartitionCommand(opts))
	rootCmd.AddCommand(NewCustomersCommand(opts))
	rootCmd.AddCommand(NewOrdersCommand(opts))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the entitycore version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			noColor, _ := cmd.Flags().GetBool("no-color")
			details := ui.NewDetails(cmd.OutOrStdout(), "entitycore", noColor)
			details.Add("Version", Version)
			details.Add("Git commit", GitCommit)
			details.Add("Build date", BuildDate)
			details.Add("Go version", goVer)
			details.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		noColor, _ := rootCmd.PersistentFlags().GetBool("no-color")
		var unknown *unknownEntityError
		if errors.As(err, &unknown) {
			ui.Failure(rootCmd.ErrOrStderr(), noColor, err, unknown.suggestions...)
		} else {
			ui.Failure(rootCmd.ErrOrStderr(), noColor, err)
		}
		return err
	}
	return nil
}
