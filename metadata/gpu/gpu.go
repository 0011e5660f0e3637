package gpu

import (
	"fmt"
)

// Oracle reports device occupancy. Answers are assumed to be consistent for
// the duration of a single polling pass.
type Oracle interface {
	// Count returns the number of devices on the host. Valid device numbers
	// are [0, Count).
	Count() (int, error)

	// Busy returns true if any compute process is currently running on the
	// device.
	Busy(d int) (bool, error)
}

// Describer is implemented by oracles which can also report static device
// metadata.
type Describer interface {
	Describe(d int) (name string, memoryBytes int64, err error)
}

type GPU interface {
	DeviceNumber() int
	Name() string
	Memory() int64
	Busy() bool
}

type gpu struct {
	deviceNumber int
	name         string
	memoryBytes  int64
	busy         bool
}

func (g gpu) DeviceNumber() int { return g.deviceNumber }
func (g gpu) Name() string      { return g.name }
func (g gpu) Memory() int64     { return g.memoryBytes }
func (g gpu) Busy() bool        { return g.busy }

// Idle returns the device numbers which have no running compute process.
func Idle(o Oracle) ([]int, error) {
	n, err := o.Count()
	if err != nil {
		return nil, err
	}

	idle := make([]int, 0, n)
	for d := 0; d < n; d++ {
		busy, err := o.Busy(d)
		if err != nil {
			return nil, err
		}
		if !busy {
			idle = append(idle, d)
		}
	}
	return idle, nil
}

// Get enumerates all devices. Name and memory are only filled in if the oracle
// is also a Describer.
func Get(o Oracle) ([]GPU, error) {
	n, err := o.Count()
	if err != nil {
		return nil, err
	}

	desc, _ := o.(Describer)

	devices := make([]GPU, 0, n)
	for d := 0; d < n; d++ {
		busy, err := o.Busy(d)
		if err != nil {
			return nil, err
		}
		g := gpu{
			deviceNumber: d,
			busy:         busy,
		}
		if desc != nil {
			if g.name, g.memoryBytes, err = desc.Describe(d); err != nil {
				return nil, fmt.Errorf("cannot describe device %d: %w", d, err)
			}
		}
		devices = append(devices, g)
	}

	return devices, nil
}
