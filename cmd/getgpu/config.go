package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kevmo314/fedtorch/getgpu/claim"
)

const (
	envPrefix = "GETGPU"

	defaultWait        = 25
	defaultStartupTime = 30
)

type config struct {
	Dir         string
	Wait        time.Duration
	StartupTime time.Duration
	Verbose     bool
}

func bindFlags(fs *pflag.FlagSet) {
	fs.StringP("dir", "d", claim.DefaultDir, "Shared directory used to coordinate claims between processes.")
	fs.IntP("wait", "w", defaultWait, "If no GPUs are available, wait this many seconds before giving up.")
	fs.IntP("startup-time", "s", defaultStartupTime, "Seconds to treat a GPU as occupied after another getgpu has "+
		"claimed it, but before a process actually starts using it.")
	fs.BoolP("verbose", "v", false, "Log every claim attempt.")
}

// newViper reads settings from flags, falling back to GETGPU_* environment
// variables, e.g. GETGPU_STARTUP_TIME.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("cannot bind flags: %w", err)
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (config, error) {
	wait := v.GetInt("wait")
	if wait < 0 {
		return config{}, fmt.Errorf("wait must not be negative, got %d", wait)
	}
	startup := v.GetInt("startup-time")
	if startup < 0 {
		return config{}, fmt.Errorf("startup time must not be negative, got %d", startup)
	}
	dir := v.GetString("dir")
	if dir == "" {
		return config{}, fmt.Errorf("claim directory must not be empty")
	}

	return config{
		Dir:         dir,
		Wait:        time.Duration(wait) * time.Second,
		StartupTime: time.Duration(startup) * time.Second,
		Verbose:     v.GetBool("verbose"),
	}, nil
}
