package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/tsgdraft/internal/agentapi"
	"github.com/dusk-indust/tsgdraft/internal/config"
	"github.com/dusk-indust/tsgdraft/internal/orchestrator"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tsgdraft",
		Short: "tsgdraft drafts Technical Support Guides from troubleshooting notes",
		Long: `tsgdraft turns raw troubleshooting notes into a Technical Support Guide by
running three agents in sequence: a researcher, a writer, and a reviewer.

Missing facts come back as {{MISSING::...}} placeholders with follow-up questions.
Answer them with 'tsgdraft answer' to continue the same conversation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a tsgdraft.yml config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDraftCmd(opts))
	root.AddCommand(newAnswerCmd(opts))
	root.AddCommand(newValidateCmd())
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newServeMCPCmd(opts))
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig resolves the config file and applies the --verbose flag.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if o.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// newLogger builds a development logger at Debug level in verbose mode.
// Otherwise warnings and errors still reach stderr as JSON.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zc.Build()
}

// app bundles what every pipeline-backed command needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	pipeline orchestrator.Orchestrator
}

// setup loads and validates config, then wires the dialer and pipeline.
// Overrides are applied to the loaded config before validation.
func (o *rootOptions) setup(overrides ...func(*config.Config)) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	for _, fn := range overrides {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	dialer := agentapi.NewHTTPDialer(cfg.Endpoint,
		agentapi.WithAPIKey(cfg.APIKey),
		agentapi.WithConnectTimeout(cfg.Timeouts.Connect),
		agentapi.WithLogger(log),
	)
	pipeline := orchestrator.NewPipeline(dialer, cfg.Orchestrator(), orchestrator.WithLogger(log))
	return &app{cfg: cfg, log: log, pipeline: pipeline}, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tsgdraft version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tsgdraft version %s\n", version)
		},
	}
}
