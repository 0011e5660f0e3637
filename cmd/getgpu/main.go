// Command getgpu claims an idle GPU and prints its device number.
//
//	CUDA_VISIBLE_DEVICES=$(getgpu) python train.py
//
// Concurrent invocations on the same host never hand out the same GPU within
// the startup window, even before the claimer's workload is visible to NVML.
package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

func main() {
	// Claim markers must be writable by every user on the host.
	unix.Umask(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	a := newApp(os.Stdout, os.Stderr)
	if err := a.command().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(a.report(err))
	}
}
