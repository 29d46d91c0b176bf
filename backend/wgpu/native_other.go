//go:build !windows

package wgpu

import (
	"github.com/gogpu/gputypes"

	_ "github.com/gogpu/wgpu/hal/vulkan"
)

var nativeBackend = gputypes.BackendVulkan
