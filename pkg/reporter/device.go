// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reporter

import (
	"os"
	"runtime"

	"github.com/FlowMo7/Koarl/pkg/api"
)

// DeviceInfo supplies the device dimension and the volatile device
// state attached to every crash. Injected so embedded or mobile-bridge
// environments can report real hardware data.
type DeviceInfo interface {
	DeviceData() *api.DeviceData
	DeviceState() api.DeviceState
}

// HostDeviceInfo is the default DeviceInfo for server and CLI processes,
// derived from the Go runtime and the host.
type HostDeviceInfo struct{}

// DeviceData describes the host process environment.
func (HostDeviceInfo) DeviceData() *api.DeviceData {
	hostname, _ := os.Hostname()
	return &api.DeviceData{
		DeviceName:   hostname,
		Manufacturer: runtime.GOOS,
		Brand:        runtime.GOARCH,
		Model:        runtime.GOARCH,
		BuildID:      runtime.Version(),
	}
}

// DeviceState samples current memory statistics. Hosts have no screen
// orientation, so it is always Undefined.
func (HostDeviceInfo) DeviceState() api.DeviceState {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return api.DeviceState{
		FreeMemory:  int64(ms.HeapIdle),
		TotalMemory: int64(ms.Sys),
		Orientation: api.OrientationUndefined,
	}
}

var _ DeviceInfo = HostDeviceInfo{}
