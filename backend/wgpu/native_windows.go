//go:build windows

package wgpu

import (
	"github.com/gogpu/gputypes"

	_ "github.com/gogpu/wgpu/hal/dx12"
)

var nativeBackend = gputypes.BackendDX12
