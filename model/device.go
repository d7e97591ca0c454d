package model

import (
	"errors"
	"fmt"
)

// Device selects the execution provider for the whole editing call. One
// device context is acquired at load time and released by Model.Close.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ErrDeviceUnavailable is returned at load time when the requested
// accelerator is absent. Device failures never surface mid-loop.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ParseDevice validates a device identifier.
func ParseDevice(s string) (Device, error) {
	switch Device(s) {
	case DeviceCPU, DeviceCUDA:
		return Device(s), nil
	case "":
		return DeviceCPU, nil
	}
	return "", fmt.Errorf("unknown device %q (want cpu or cuda)", s)
}
