package main

import (
	"errors"
	"fmt"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevmo314/fedtorch/getgpu/claim"
	"github.com/kevmo314/fedtorch/getgpu/metadata/gpu"
)

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show occupancy and claim age of every GPU without claiming any",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return a.status()
		},
	}
}

func (a *app) status() error {
	o, err := a.openOracle()
	if err != nil {
		return err
	}
	defer func() {
		if err := o.Shutdown(); err != nil {
			a.logger.Warn("cannot shut down oracle", zap.Error(err))
		}
	}()

	devices, err := gpu.Get(o)
	if err != nil {
		return err
	}

	markers, err := claim.Open(claim.O{Dir: a.cfg.Dir, Logger: a.logger}).Markers()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	claimed := make(map[int]time.Time, len(markers))
	for _, m := range markers {
		claimed[m.Device] = m.LastClaim
	}

	now := time.Now()
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GPU\tNAME\tMEMORY\tBUSY\tLAST CLAIM\tAVAILABLE")
	for _, g := range devices {
		last := "never"
		available := !g.Busy()
		if t, ok := claimed[g.DeviceNumber()]; ok {
			last = humanize.RelTime(t, now, "ago", "from now")
			if now.Sub(t) < a.cfg.StartupTime {
				available = false
			}
		}
		mem := "-"
		if g.Memory() > 0 {
			mem = humanize.IBytes(uint64(g.Memory()))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%t\n", g.DeviceNumber(), g.Name(), mem, g.Busy(), last, available)
	}
	return w.Flush()
}
