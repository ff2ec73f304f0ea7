// Package config loads the simulator's boot parameters — disk image
// paths, frame pool size, swap size, scheduler policy, MLFQS constants —
// from a YAML file and/or flags, the way gcsfuse's cfg package combines
// viper with a YAML config file to assemble its own mount configuration.
// The teacher itself (Oichkatzelesfrettschen-biscuit) takes these same
// parameters from bootloader-supplied arguments; there is no bootloader
// here, so a config file stands in for it.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SchedPolicy mirrors sched.Policy without importing package sched, so a
// config file can select it before any kernel package is wired up.
type SchedPolicy string

const (
	SchedPriorityDonation SchedPolicy = "priority"
	SchedMLFQS             SchedPolicy = "mlfqs"
)

// Config holds every boot-time parameter this kernel core needs before
// its singleton subsystems (scheduler, frame table, swap, FAT volume)
// can be constructed.
type Config struct {
	// FSImage is the path to the filesystem disk image file.
	FSImage string `mapstructure:"fs-image" yaml:"fs-image"`
	// FSSectors is the filesystem disk's capacity in sectors.
	FSSectors int `mapstructure:"fs-sectors" yaml:"fs-sectors"`

	// SwapSectors is the swap disk's capacity in sectors. The swap disk
	// is always an in-memory device (spec.md's "never needs to survive a
	// process restart").
	SwapSectors int `mapstructure:"swap-sectors" yaml:"swap-sectors"`

	// FramePoolSize is the number of physical frames the frame table
	// manages.
	FramePoolSize int `mapstructure:"frame-pool-size" yaml:"frame-pool-size"`

	// SchedPolicy selects between the two interchangeable policies
	// spec.md §4.1 describes.
	SchedPolicy SchedPolicy `mapstructure:"sched-policy" yaml:"sched-policy"`

	// MetricsAddr, if non-empty, is the address internal/metrics serves
	// Prometheus metrics on (e.g. ":9100").
	MetricsAddr string `mapstructure:"metrics-addr" yaml:"metrics-addr"`

	// LogPath is where internal/klog rotates its output; empty means
	// stderr only.
	LogPath string `mapstructure:"log-path" yaml:"log-path"`
	// LogLevel is one of debug/info/warn/error.
	LogLevel string `mapstructure:"log-level" yaml:"log-level"`
}

// Defaults returns the configuration used when no file or flags override
// it, sized for the scenarios spec.md §8 walks through.
func Defaults() Config {
	return Config{
		FSImage:       "kcore.img",
		FSSectors:     8192,
		SwapSectors:   800, // 100 page-sized slots at 8 sectors/page
		FramePoolSize: 64,
		SchedPolicy:   SchedPriorityDonation,
		LogLevel:      "info",
	}
}

// Load reads configuration from path (if non-empty) layered over
// Defaults(), using viper the way gcsfuse's cfg package binds a YAML
// file into its Config struct.
func Load(path string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decoding: %w", err)
	}
	return cfg, nil
}

// WriteDefault marshals Defaults() to path as YAML, for `kerneld config
// init` to hand the operator a starting point, the same role
// gcsfuse's autogen tool plays in reverse (it consumes a YAML file to
// generate Go; this produces one for a human to edit).
func WriteDefault(path string) error {
	buf, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("config: marshaling defaults: %w", err)
	}
	return os.WriteFile(path, buf, 0o644)
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("fs-image", cfg.FSImage)
	v.SetDefault("fs-sectors", cfg.FSSectors)
	v.SetDefault("swap-sectors", cfg.SwapSectors)
	v.SetDefault("frame-pool-size", cfg.FramePoolSize)
	v.SetDefault("sched-policy", string(cfg.SchedPolicy))
	v.SetDefault("metrics-addr", cfg.MetricsAddr)
	v.SetDefault("log-path", cfg.LogPath)
	v.SetDefault("log-level", cfg.LogLevel)
}
