package main

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/kevmo314/fedtorch/getgpu/claim"
)

func TestLoadConfig(t *testing.T) {
	configs := []struct {
		name string
		args []string
		want config
		succ bool
	}{
		{
			name: "Defaults",
			want: config{
				Dir:         claim.DefaultDir,
				Wait:        25 * time.Second,
				StartupTime: 30 * time.Second,
			},
			succ: true,
		},
		{
			name: "Flags",
			args: []string{"-w", "0", "--startup-time", "5", "-d", "/run/getgpu", "-v"},
			want: config{
				Dir:         "/run/getgpu",
				StartupTime: 5 * time.Second,
				Verbose:     true,
			},
			succ: true,
		},
		{
			name: "NegativeWait",
			args: []string{"--wait", "-1"},
		},
		{
			name: "NegativeStartup",
			args: []string{"-s", "-3"},
		},
		{
			name: "EmptyDir",
			args: []string{"--dir", ""},
		},
	}

	for _, c := range configs {
		t.Run(c.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("getgpu", pflag.ContinueOnError)
			bindFlags(fs)
			require.NoError(t, fs.Parse(c.args))

			v, err := newViper(fs)
			require.NoError(t, err)

			got, err := loadConfig(v)
			if !c.succ {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("GETGPU_WAIT", "7")
	t.Setenv("GETGPU_VERBOSE", "true")

	fs := pflag.NewFlagSet("getgpu", pflag.ContinueOnError)
	bindFlags(fs)
	require.NoError(t, fs.Parse(nil))

	v, err := newViper(fs)
	require.NoError(t, err)
	got, err := loadConfig(v)
	require.NoError(t, err)
	require.Equal(t, 7*time.Second, got.Wait)
	require.True(t, got.Verbose)
}
