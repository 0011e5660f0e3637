package main

import (
	"github.com/spf13/cobra"

	"github.com/kevmo314/fedtorch/getgpu/pkg/hypervisor"
)

func (a *app) execCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Claim an idle GPU and run a command pinned to it",
		Long: "exec claims a GPU exactly like getgpu does, then runs the command with " +
			hypervisor.VisibleDevicesEnv + " set to the claimed device. The command's " +
			"exit status is passed through.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hypervisor.NewHypervisor(args[0], args[1:]...)
			if err != nil {
				return err
			}

			d, err := a.allocate(cmd.Context())
			if err != nil {
				return err
			}
			return h.Run(d)
		},
	}
	// Everything after the command name belongs to the command.
	cmd.Flags().SetInterspersed(false)
	return cmd
}
