/*
root.go - CLI entry point and shared composition

PURPOSE:
  Defines the root cobra command, loads configuration, and builds the
  object graph the subcommands share: loader, runner, detector, store and
  the adapter functions. This is the only place the forecast and cluster
  packages meet the API layer; the server itself sees them as injected
  function values.

COMMANDS:
  sentinel run      One-shot pipeline run, summary to stdout
  sentinel serve    Run the pipeline and start the dashboard API
  sentinel states   Print the canonical state enumeration
  sentinel version  Print version information

CONFIGURATION:
  --config points at a YAML file; SENTINEL_* environment variables and
  the per-command flags override it. Flag overrides apply only when the
  flag was actually set, so config-file values survive untouched flags.

SEE ALSO:
  - config/config.go: The configuration structure and precedence
  - cmd/sentinel/main.go: main() wrapper
*/
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haldar/aadhaar-sentinel/anomaly"
	"github.com/haldar/aadhaar-sentinel/api"
	"github.com/haldar/aadhaar-sentinel/cluster"
	"github.com/haldar/aadhaar-sentinel/config"
	"github.com/haldar/aadhaar-sentinel/dataset"
	"github.com/haldar/aadhaar-sentinel/forecast"
	"github.com/haldar/aadhaar-sentinel/pipeline"
	"github.com/haldar/aadhaar-sentinel/store"
	"github.com/haldar/aadhaar-sentinel/store/sqlite"
	"github.com/haldar/aadhaar-sentinel/table"
)

var (
	// Global flags, applied over the loaded config when set.
	cfgFile          string
	flagDataDir      string
	flagDatabase     string
	flagRegionPolicy string
	flagTrees        int
	flagContam       float64
	flagSeed         int64

	// Loaded configuration
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Aadhaar Sentinel: registry activity reconciliation and anomaly analytics",
	Long: `Aadhaar Sentinel ingests enrolment, biometric-update and demographic-update
dumps, reconciles their schemas into one analysis table, and layers anomaly
scoring, forecasting and district clustering on top for the dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		f := cmd.Flags()
		if f.Changed("data-dir") {
			c.DataDir = flagDataDir
		}
		if f.Changed("db") {
			c.DatabasePath = flagDatabase
		}
		if f.Changed("region-policy") {
			c.RegionPolicy = flagRegionPolicy
		}
		if f.Changed("trees") {
			c.Trees = flagTrees
		}
		if f.Changed("contamination") {
			c.Contamination = flagContam
		}
		if f.Changed("seed") {
			c.Seed = flagSeed
		}
		cfg = c
		return nil
	},
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./sentinel.yaml)")
	pf.StringVar(&flagDataDir, "data-dir", "", "dataset root directory (overrides config)")
	pf.StringVar(&flagDatabase, "db", "", "SQLite path for run history (overrides config)")
	pf.StringVar(&flagRegionPolicy, "region-policy", "", "unrecognized-state policy: passthrough or quarantine")
	pf.IntVar(&flagTrees, "trees", 0, "isolation forest size (overrides config)")
	pf.Float64Var(&flagContam, "contamination", 0, "expected anomaly fraction (overrides config)")
	pf.Int64Var(&flagSeed, "seed", 0, "detector random seed (overrides config)")
}

// =============================================================================
// COMPOSITION
// =============================================================================

func buildRunner(c *config.Config) (*pipeline.Runner, error) {
	policy, err := dataset.ParseRegionPolicy(c.RegionPolicy)
	if err != nil {
		return nil, err
	}

	loader := dataset.NewLoader(c.DataDir)
	loader.Regions = dataset.NewCanonicalizer(policy)
	if c.AliasFile != "" {
		if err := loader.Regions.LoadAliases(c.AliasFile); err != nil {
			return nil, err
		}
	}
	if c.MappingFile != "" {
		m, err := dataset.LoadMapping(c.MappingFile)
		if err != nil {
			return nil, err
		}
		loader.Mapping = m
	}
	return pipeline.NewRunner(loader), nil
}

func buildDetector(c *config.Config) *anomaly.Detector {
	d := anomaly.NewDetector()
	d.Config.Trees = c.Trees
	d.Config.Contamination = c.Contamination
	d.Config.Seed = c.Seed
	if c.ExplainThreshold > 0 {
		d.Config.Threshold = c.ExplainThreshold
	}
	return d
}

// openStore returns the run store: SQLite when a path is configured,
// in-memory otherwise. The closer is a no-op for the memory store.
func openStore(c *config.Config) (store.RunStore, func() error, error) {
	if c.DatabasePath == "" {
		return store.NewMemory(), func() error { return nil }, nil
	}
	s, err := sqlite.New(c.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open run store: %w", err)
	}
	return s, s.Close, nil
}

// forecastAdapter wraps the Holt-Winters forecaster into the API's
// injected function shape.
func forecastAdapter(c *config.Config) api.ForecastFunc {
	f := forecast.NewForecaster()
	if c.ForecastHorizon > 0 {
		f.Horizon = c.ForecastHorizon
	}
	if c.ForecastSeason > 0 {
		f.SeasonLength = c.ForecastSeason
	}
	if c.ForecastMinHistory > 0 {
		f.MinHistory = c.ForecastMinHistory
	}
	return func(t *table.Table, metric string) ([]api.SeriesPoint, error) {
		points, err := f.Forecast(t, metric)
		if err != nil {
			return nil, err
		}
		out := make([]api.SeriesPoint, len(points))
		for i, p := range points {
			out[i] = api.SeriesPoint{Date: p.Date, Value: p.Value}
		}
		return out, nil
	}
}

// clusterAdapter wraps the k-means district tiering the same way.
func clusterAdapter(conf *config.Config) api.ClusterFunc {
	c := cluster.NewClusterer()
	if conf.ClusterGroups > 0 {
		c.K = conf.ClusterGroups
	}
	return func(t *table.Table) ([]api.DistrictGroup, error) {
		groups, err := c.Cluster(t)
		if err != nil {
			return nil, err
		}
		out := make([]api.DistrictGroup, len(groups))
		for i, g := range groups {
			out[i] = api.DistrictGroup{
				District:    g.District,
				MeanEnrol:   g.MeanEnrol,
				MeanBio:     g.MeanBio,
				MeanDemo:    g.MeanDemo,
				UpdateRatio: g.UpdateRatio,
				Cluster:     g.Cluster,
				Label:       g.Label,
			}
		}
		return out, nil
	}
}
