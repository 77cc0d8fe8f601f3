package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"soil-platform/internal/config"
	"soil-platform/internal/evaluator"
	"soil-platform/internal/models"
	"soil-platform/internal/repository"
	"soil-platform/internal/services"
	"soil-platform/internal/standards"
	"soil-platform/migrations"
	"soil-platform/pkg/database"
	"soil-platform/pkg/logging"
	"soil-platform/pkg/metrics"
)

// options collects the flags shared by every subcommand
type options struct {
	useDB        bool
	defaultsFile string
	asJSON       bool
	verbose      bool
	ctx          models.Context
	age          float64
}

// app is the wired service graph for one invocation
type app struct {
	ranges      *services.IdealRangeService
	profiles    *services.ProfileService
	evaluations *services.EvaluationService
	close       func()
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "soilcheck",
		Short:        "Evaluate soil analyses against crop ideal ranges",
		Long:         `Resolves ideal nutrient ranges for a crop context and classifies readings. Works offline from the default table unless --db is set.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.useDB, "db", false, "Use the reference store from SOIL_* configuration")
	flags.StringVar(&opts.defaultsFile, "defaults-file", "", "YAML file overriding the default ranges")
	flags.BoolVar(&opts.asJSON, "json", false, "Print JSON instead of a table")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log lookups to stderr")
	flags.StringVar(&opts.ctx.Crop, "crop", "", "Crop name")
	flags.StringVar(&opts.ctx.Variety, "variety", "", "Crop variety")
	flags.StringVar(&opts.ctx.State, "state", "", "State or region")
	flags.StringVar(&opts.ctx.City, "city", "", "City")
	flags.StringVar(&opts.ctx.Extractor, "extractor", "", "Extraction method, e.g. mehlich-1")
	flags.StringVar(&opts.ctx.Stage, "stage", "", "Phenological stage")
	flags.Float64Var(&opts.age, "age-months", 0, "Plant age in months")

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("age-months") {
			age := opts.age
			opts.ctx.AgeMonths = &age
		}
	}

	root.AddCommand(
		newEvaluateCmd(opts),
		newRangeCmd(opts),
		newProfileCmd(opts),
	)

	return root
}

func newEvaluateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "evaluate key=value [key=value...]",
		Short:   "Classify soil analysis readings",
		Example: "soilcheck evaluate --crop abacate --extractor mehlich-1 pH=5.2 P=14 K=0.35",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			readings, err := parseReadings(args)
			if err != nil {
				return err
			}

			a, err := build(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			eval, err := a.evaluations.Evaluate(cmd.Context(), opts.ctx, readings)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, eval)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NUTRIENT\tVALUE\tIDEAL\tUNIT\tSTATUS\tPERCENT\tSOURCE\tADVICE")
			for _, r := range eval.Results {
				status := string(r.Status)
				if r.Label != "" {
					status += " (" + r.Label + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%s\t%s\n",
					r.Nutrient,
					strconv.FormatFloat(r.Value, 'f', -1, 64),
					r.Range.IdealRange.String(),
					r.Range.Unit,
					status,
					r.Percent,
					r.Range.Source,
					r.Advice,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(out, "\nbelow: %d  ideal: %d  above: %d\n",
				eval.Summary[evaluator.StatusBelow],
				eval.Summary[evaluator.StatusIdeal],
				eval.Summary[evaluator.StatusAbove],
			)
			return nil
		},
	}
}

func newRangeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "range nutrient [nutrient...]",
		Short:   "Resolve ideal ranges for nutrients",
		Example: "soilcheck range P K pH --crop abacate --variety fortuna",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			resolved := a.ranges.ResolveMany(cmd.Context(), args, opts.ctx)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, resolved)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NUTRIENT\tIDEAL\tUNIT\tSOURCE")
			for _, n := range args {
				r := resolved[n]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Nutrient, r.IdealRange.String(), r.Unit, r.Source)
			}
			return tw.Flush()
		},
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the crop profile for the context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := build(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			profile := a.profiles.GetProfile(cmd.Context(), opts.ctx)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, profile)
			}

			fmt.Fprintf(out, "%s (%s)\n%s\n", profile.Crop, profile.Source, models.Summarize(profile.Ideal))
			return nil
		},
	}
}

// build wires the services, against the configured store when --db is set
func build(ctx context.Context, opts *options, stderr io.Writer) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	level := logging.ErrorLevel
	if opts.verbose {
		level = logging.DebugLevel
	}
	logger := logging.NewStructuredLoggerWithWriter("soilcheck", "1.0.0", level, stderr)
	collector := metrics.NewCollectorWithRegisterer("soilcheck", prometheus.NewRegistry())

	defaults, err := standards.Load(opts.defaultsFile)
	if err != nil {
		return nil, err
	}

	a := &app{close: func() {}}

	var rangeStore services.ReferenceFinder
	var profileStore services.ProfileFinder
	var resolverOpts []services.IdealRangeOption

	if opts.useDB {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}

		db, err := database.Open(cfg.DatabaseSettings(), logger, collector)
		if err != nil {
			return nil, err
		}
		a.close = func() { db.Close() }

		if db.DriverName() == database.DriverSQLite {
			if err := migrations.Apply(ctx, db, migrations.Up); err != nil {
				db.Close()
				return nil, err
			}
		}

		repo := repository.NewReferenceRepository(db, logger, collector)
		rangeStore, profileStore = repo, repo
		resolverOpts = append(resolverOpts,
			services.WithLookupTimeout(cfg.Resolver.LookupTimeout),
			services.WithConcurrency(cfg.Resolver.Concurrency),
		)
	}

	a.ranges = services.NewIdealRangeService(rangeStore, defaults, logger, collector, resolverOpts...)
	a.profiles = services.NewProfileService(profileStore, defaults, logger, collector)
	a.evaluations = services.NewEvaluationService(a.ranges, logger, collector)

	return a, nil
}

// parseReadings turns key=value arguments into readings
func parseReadings(args []string) ([]models.NutrientReading, error) {
	readings := make([]models.NutrientReading, 0, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid reading %q, expected key=value", arg)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", arg, err)
		}
		readings = append(readings, models.NutrientReading{Key: strings.TrimSpace(key), Value: value})
	}
	return readings, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
