// device.go - Geraete-Typen fuer die Modell-Erzeugung
package ml

import (
	"fmt"
	"strings"
)

// DeviceType selects where an engine executes. Values follow the DLPack
// device codes the engines use natively.
type DeviceType int

const (
	DeviceCPU    DeviceType = 1
	DeviceGPU    DeviceType = 2
	DeviceOpenCL DeviceType = 4
)

func (d DeviceType) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	case DeviceOpenCL:
		return "opencl"
	default:
		return fmt.Sprintf("DeviceType(%d)", int(d))
	}
}

func ParseDevice(s string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cpu":
		return DeviceCPU, nil
	case "gpu", "cuda":
		return DeviceGPU, nil
	case "opencl":
		return DeviceOpenCL, nil
	default:
		return 0, fmt.Errorf("unknown device type %q", s)
	}
}
