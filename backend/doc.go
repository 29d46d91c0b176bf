// Package backend provides a registry of native device backends.
//
// Backends register themselves via init() functions and are selected at
// runtime:
//
//	import (
//	    "github.com/gogpu/dx12/backend"
//	    _ "github.com/gogpu/dx12/backend/software"
//	    _ "github.com/gogpu/dx12/backend/wgpu"
//	)
//
//	// Get the default (best available) backend
//	b, err := backend.Default()
//
//	// Or request a specific backend
//	b, err := backend.Get(backend.BackendSoftware)
//
// The returned gpucore.Backend is handed to dx12.NewDevice.
package backend
