package hypervisor

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// VisibleDevicesEnv restricts CUDA to the listed devices in the child process.
const VisibleDevicesEnv = "CUDA_VISIBLE_DEVICES"

// Hypervisor runs a workload pinned to a single claimed GPU.
type Hypervisor exec.Cmd

// NewHypervisor resolves the workload's executable. Resolution happens up
// front so that a typo does not cost a GPU claim.
func NewHypervisor(name string, args ...string) (*Hypervisor, error) {
	if name == "" {
		return nil, fmt.Errorf("no command given")
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find command %q: %w", name, err)
	}

	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return (*Hypervisor)(cmd), nil
}

func (h *Hypervisor) Cmd() *exec.Cmd { return (*exec.Cmd)(h) }

// Run starts the workload on the given device and waits for it to exit. A
// workload exiting with a nonzero status is reported as an *exec.ExitError.
func (h *Hypervisor) Run(device int) error {
	if device < 0 {
		return fmt.Errorf("invalid device %d", device)
	}

	cmd := h.Cmd()
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, VisibleDevicesEnv+"="+strconv.Itoa(device))
	return cmd.Run()
}
