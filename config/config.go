// Package config holds runtime-tunable settings for the merge driver,
// detransitive pass, and external tool adapters, unmarshalled from
// Viper (defaults, PANGRAPH_* environment variables, and an optional
// pangraph.yaml).
package config

import (
	"runtime"

	"github.com/spf13/viper"
)

// MergeConfig mirrors pangraph.MergeConfig's tunables; it lives here
// rather than importing the pangraph package so config stays a leaf
// dependency.
type MergeConfig struct {
	MinBlock int `mapstructure:"min-block"`
	Threads  int `mapstructure:"threads"`
}

// EnergyConfig holds the parameters of the default merge-acceptance
// energy function (4.6): score = -length + ClipPenalty*clipped_ends +
// MismatchPenalty*mismatches, accepted when length >= MinLength. Its
// defaults equal the constants pangraph.DefaultEnergy and
// pangraph.Accept use; those functions do not read this struct, so
// changing these values does not change which alignments are merged.
type EnergyConfig struct {
	MinLength       int     `mapstructure:"min-length"`
	ClipPenalty     float64 `mapstructure:"clip-penalty"`
	MismatchPenalty float64 `mapstructure:"mismatch-penalty"`
}

// ExternConfig locates the external aligner and MSA tool binaries
// (6.4).
type ExternConfig struct {
	AlignerPath string `mapstructure:"aligner-path"`
	MSAPath     string `mapstructure:"msa-path"`
}

// Config is the root settings struct.
type Config struct {
	Merge  MergeConfig  `mapstructure:"merge"`
	Energy EnergyConfig `mapstructure:"energy"`
	Extern ExternConfig `mapstructure:"extern"`
}

// Load reads defaults, then pangraph.yaml (if present in the given
// search paths), then PANGRAPH_* environment overrides, into Config.
func Load(searchPaths ...string) (Config, error) {
	v := viper.New()
	v.SetDefault("merge.min-block", 500)
	v.SetDefault("merge.threads", runtime.NumCPU())
	v.SetDefault("energy.min-length", 100)
	v.SetDefault("energy.clip-penalty", 100.0)
	v.SetDefault("energy.mismatch-penalty", 20.0)
	v.SetDefault("extern.aligner-path", "minimap2")
	v.SetDefault("extern.msa-path", "mafft")

	v.SetConfigName("pangraph")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("pangraph")
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
