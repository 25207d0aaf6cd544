// Package config resolves RUSHB server settings from flags, environment
// variables, and an optional config file via viper, in the shape of
// sun977-NeoScan's internal/config loader.
package config

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the settings the listener and logger need to start. The
// protocol itself takes no configuration — every field here is ambient
// (bind address, timing, logging) rather than part of RUSHB's wire
// behavior.
type Config struct {
	// ListenAddr is host:port to bind; an empty port (":0" or "host:")
	// lets the OS choose, matching the spec's CLI surface.
	ListenAddr string

	// RootDir is the directory GET requests are resolved against.
	RootDir string

	// RetransmitTimeout overrides the stop-and-wait retransmit deadline;
	// the spec observes 4s, kept here so it never has to be a recompile to
	// tune for a slower/lossier network.
	RetransmitTimeout time.Duration

	LogLevel string
	LogFile  string
}

// Defaults match the spec's observed behavior: bind on all interfaces
// with an OS-chosen port, serve the current working directory, retransmit
// after 4 seconds, log at info level to stderr only.
func Defaults() Config {
	return Config{
		ListenAddr:        ":0",
		RootDir:           ".",
		RetransmitTimeout: 4 * time.Second,
		LogLevel:          "info",
		LogFile:           "",
	}
}

// Load resolves a Config from flags, then RUSHB_-prefixed environment
// variables, then an optional config file named by --config, falling
// back to Defaults for anything unset.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	cfg := Defaults()

	v.SetDefault("listen", cfg.ListenAddr)
	v.SetDefault("root", cfg.RootDir)
	v.SetDefault("retransmit-timeout", cfg.RetransmitTimeout)
	v.SetDefault("log-level", cfg.LogLevel)
	v.SetDefault("log-file", cfg.LogFile)

	v.SetEnvPrefix("RUSHB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return cfg, err
		}
		if cfgFile, _ := flags.GetString("config"); cfgFile != "" {
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return cfg, err
			}
		}
	}

	cfg.ListenAddr = v.GetString("listen")
	cfg.RootDir = v.GetString("root")
	cfg.RetransmitTimeout = v.GetDuration("retransmit-timeout")
	cfg.LogLevel = v.GetString("log-level")
	cfg.LogFile = v.GetString("log-file")

	return cfg, nil
}
