/*
Package config loads service configuration.

PURPOSE:
  One struct for everything tunable at deploy time. Precedence is
  env > config file > defaults, with every key given a default so the
  SENTINEL_* environment variables always bind.
*/
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	// DataDir is the root the category dump folders live under.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// ListenAddr is the API server's bind address.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`

	// CORSOrigins lists the origins the dashboard may call from.
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// DatabasePath points at the SQLite file for run history. Empty keeps
	// history in memory only.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// MappingFile optionally overlays the built-in header mapping.
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file"`

	// AliasFile optionally extends the built-in state spelling aliases.
	AliasFile string `mapstructure:"alias_file" yaml:"alias_file"`

	// RegionPolicy is what happens to rows with unrecognized states:
	// "passthrough" keeps them, "quarantine" holds them out.
	RegionPolicy string `mapstructure:"region_policy" yaml:"region_policy"`

	// Anomaly model knobs. ExplainThreshold is the z-score / fold-change
	// multiple a count must exceed before its row earns a spike reason.
	Contamination    float64 `mapstructure:"contamination" yaml:"contamination"`
	Seed             int64   `mapstructure:"seed" yaml:"seed"`
	Trees            int     `mapstructure:"trees" yaml:"trees"`
	ExplainThreshold float64 `mapstructure:"explain_threshold" yaml:"explain_threshold"`

	// Forecast model knobs: projection length, seasonal cycle length and
	// the minimum daily history the model accepts.
	ForecastHorizon    int `mapstructure:"forecast_horizon" yaml:"forecast_horizon"`
	ForecastSeason     int `mapstructure:"forecast_season" yaml:"forecast_season"`
	ForecastMinHistory int `mapstructure:"forecast_min_history" yaml:"forecast_min_history"`

	// ClusterGroups is the number of district activity tiers.
	ClusterGroups int `mapstructure:"cluster_groups" yaml:"cluster_groups"`

	// RefreshInterval is how often the server reloads the dataset on its
	// own. Zero disables the background refresh.
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`

	// KeepRuns caps the persisted run history. Zero keeps everything.
	KeepRuns int `mapstructure:"keep_runs" yaml:"keep_runs"`
}

// Load reads configuration from file, env, and defaults.
// Precedence: env > config file > defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("database_path", "")
	v.SetDefault("mapping_file", "")
	v.SetDefault("alias_file", "")
	v.SetDefault("region_policy", "passthrough")
	v.SetDefault("contamination", 0.01)
	v.SetDefault("seed", 42)
	v.SetDefault("trees", 100)
	v.SetDefault("explain_threshold", 3.0)
	v.SetDefault("forecast_horizon", 30)
	v.SetDefault("forecast_season", 7)
	v.SetDefault("forecast_min_history", 14)
	v.SetDefault("cluster_groups", 3)
	v.SetDefault("refresh_interval", "0s")
	v.SetDefault("keep_runs", 10)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("sentinel")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
