package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/forcemeta/sfmeta/internal/batch"
	"github.com/forcemeta/sfmeta/internal/config"
	"github.com/forcemeta/sfmeta/internal/history"
	"github.com/forcemeta/sfmeta/internal/permissions"
	"github.com/forcemeta/sfmeta/internal/retrieve"
	"github.com/forcemeta/sfmeta/internal/salesforce"
)

// RetrieveOptions holds flags for the retrieve command.
type RetrieveOptions struct {
	*RootOptions
	Profiles     []string
	ProfilesFile string
	OutputDir    string
	APIVersion   string
	NoHistory    bool
}

// NewRetrieveCommand creates the retrieve command.
func NewRetrieveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RetrieveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Retrieve profiles and everything they grant access to",
		Long: `Resolve the permission closure of the given profiles against the org,
build a retrieval manifest, and unpack the returned metadata archive.

Example:
  sfmeta retrieve --profiles Admin
  sfmeta retrieve --profiles "Admin,Standard User" --out ./unpackaged
  sfmeta retrieve --profiles-file ./profiles.yaml --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetrieve(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Profiles, "profiles", nil, "comma-separated profile names")
	cmd.Flags().StringVar(&opts.ProfilesFile, "profiles-file", "", "YAML file listing profiles to retrieve")
	cmd.Flags().StringVar(&opts.OutputDir, "out", "", "output directory (overrides config)")
	cmd.Flags().StringVar(&opts.APIVersion, "api-version", "", "API version (overrides config)")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "skip recording this run in the history database")

	return cmd
}

func runRetrieve(opts *RetrieveOptions, cmd *cobra.Command) error {
	configureLogging(opts.RootOptions)

	profiles, err := gatherProfiles(opts)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.APIVersion != "" {
		cfg.APIVersion = opts.APIVersion
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	clientCfg := salesforce.DefaultClientConfig()
	clientCfg.InstanceURL = cfg.InstanceURL
	clientCfg.AccessToken = cfg.AccessToken
	clientCfg.APIVersion = cfg.APIVersion

	executor := batch.New(salesforce.NewClient(clientCfg), salesforce.NewBulkClient(clientCfg))
	task := &retrieve.Task{
		Resolver:   permissions.NewResolver(executor),
		Metadata:   retrieve.NewMetadataClient(cfg.InstanceURL, cfg.AccessToken),
		APIVersion: cfg.APIVersion,
		OutputDir:  cfg.OutputDir,
	}

	if !opts.NoHistory {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			// History is bookkeeping; a broken local db must not block the
			// retrieval itself.
			slog.Warn("history database unavailable, continuing without it", "error", err)
		} else {
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Error("error closing history database", "error", closeErr)
				}
			}()
			task.History = store
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := task.Run(ctx, profiles)
	if err != nil {
		return WrapExitError(ExitFailure, "retrieval failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if done, err := formatter.JSON(retrieveSummary(result)); done {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Retrieved %d profiles into %s\n", len(profiles), result.OutputDir)
	names := make([]string, 0, len(result.Categories))
	for name := range result.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-20s %d members\n", name, len(result.Categories[name]))
	}
	return nil
}

// RetrieveSummary is the JSON payload for a completed retrieval.
type RetrieveSummary struct {
	RunID      string         `json:"run_id"`
	OutputDir  string         `json:"output_dir"`
	Categories map[string]int `json:"categories"`
}

func retrieveSummary(result *retrieve.Result) RetrieveSummary {
	categories := make(map[string]int, len(result.Categories))
	for name, members := range result.Categories {
		categories[name] = len(members)
	}
	return RetrieveSummary{
		RunID:      result.RunID,
		OutputDir:  result.OutputDir,
		Categories: categories,
	}
}

// profilesFile is the YAML shape of --profiles-file.
type profilesFile struct {
	Profiles []string `yaml:"profiles"`
}

// gatherProfiles merges --profiles and --profiles-file, preserving order.
func gatherProfiles(opts *RetrieveOptions) ([]string, error) {
	profiles := append([]string(nil), opts.Profiles...)

	if opts.ProfilesFile != "" {
		data, err := os.ReadFile(opts.ProfilesFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read profiles file", err)
		}
		var parsed profilesFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to parse profiles file", err)
		}
		profiles = append(profiles, parsed.Profiles...)
	}

	if len(profiles) == 0 {
		return nil, NewExitError(ExitCommandError, "at least one profile is required (--profiles or --profiles-file)")
	}
	return profiles, nil
}
