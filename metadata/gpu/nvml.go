package gpu

import (
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// NVML is an Oracle backed by the NVIDIA management library. Init must be
// called before use.
type NVML struct {
	lib nvml.Interface
}

func NewNVML() *NVML { return &NVML{lib: nvml.New()} }

func (n *NVML) Init() error {
	if ret := n.lib.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("cannot initialize NVML: %v", ret)
	}
	return nil
}

func (n *NVML) Shutdown() error {
	if ret := n.lib.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("cannot shut down NVML: %v", ret)
	}
	return nil
}

func (n *NVML) Count() (int, error) {
	c, ret := n.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("cannot get device count: %v", ret)
	}
	return c, nil
}

func (n *NVML) Busy(d int) (bool, error) {
	dev, err := n.device(d)
	if err != nil {
		return false, err
	}
	procs, ret := dev.GetComputeRunningProcesses()
	if ret != nvml.SUCCESS {
		return false, fmt.Errorf("cannot list compute processes on device %d: %v", d, ret)
	}
	return len(procs) > 0, nil
}

func (n *NVML) Describe(d int) (string, int64, error) {
	dev, err := n.device(d)
	if err != nil {
		return "", 0, err
	}
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		return "", 0, fmt.Errorf("cannot get name of device %d: %v", d, ret)
	}
	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return "", 0, fmt.Errorf("cannot get memory of device %d: %v", d, ret)
	}
	return name, int64(mem.Total), nil
}

func (n *NVML) device(d int) (nvml.Device, error) {
	dev, ret := n.lib.DeviceGetHandleByIndex(d)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("cannot get handle for device %d: %v", d, ret)
	}
	return dev, nil
}
