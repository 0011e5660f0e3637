package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevmo314/fedtorch/getgpu/allocator"
	"github.com/kevmo314/fedtorch/getgpu/claim"
	"github.com/kevmo314/fedtorch/getgpu/metadata/gpu"
)

// exitFailure is what -1 becomes as a process exit status.
const exitFailure = 255

type oracle interface {
	gpu.Oracle
	Shutdown() error
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg    config
	logger *zap.Logger

	openOracle func() (oracle, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:     stdout,
		stderr:     stderr,
		logger:     newLogger(stderr, false),
		openOracle: openNVML,
	}
}

func openNVML() (oracle, error) {
	n := gpu.NewNVML()
	if err := n.Init(); err != nil {
		return nil, err
	}
	return n, nil
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "getgpu",
		Short: "Claim an idle GPU and print its device number",
		Long: "getgpu finds a GPU with no running compute processes, claims it so that " +
			"concurrent getgpu invocations do not pick it, and prints its device number.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.allocate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, d)
			return nil
		},
	}
	bindFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		v, err := newViper(cmd.Flags())
		if err != nil {
			return err
		}
		if a.cfg, err = loadConfig(v); err != nil {
			return err
		}
		a.logger = newLogger(a.stderr, a.cfg.Verbose)
		return nil
	}

	root.AddCommand(a.statusCommand(), a.execCommand())
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	return root
}

func (a *app) allocate(ctx context.Context) (int, error) {
	o, err := a.openOracle()
	if err != nil {
		return -1, err
	}
	defer func() {
		if err := o.Shutdown(); err != nil {
			a.logger.Warn("cannot shut down oracle", zap.Error(err))
		}
	}()

	store, err := claim.Prepare(claim.O{
		Dir:    a.cfg.Dir,
		Logger: a.logger,
	})
	if err != nil {
		return -1, err
	}

	d, err := allocator.New(allocator.O{
		Oracle:      o,
		Claimer:     store,
		Wait:        a.cfg.Wait,
		StartupTime: a.cfg.StartupTime,
		Logger:      a.logger,
	}).Allocate(ctx)
	if err != nil {
		return -1, err
	}

	a.logger.Info(fmt.Sprintf("Assigned GPU %d.", d))
	return d, nil
}

// report logs err and returns the process exit status to use.
func (a *app) report(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		return exitErr.ExitCode()
	}

	if errors.Is(err, allocator.ErrTimeout) {
		a.logger.Error(fmt.Sprintf("failed to obtain a GPU in %d seconds", int(a.cfg.Wait.Seconds())))
	} else {
		a.logger.Error(err.Error())
	}
	return exitFailure
}
