package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"golang.org/x/exp/constraints"
)

// successCodes holds every VkResult that does not indicate failure.
// See https://registry.khronos.org/vulkan/specs/1.3-extensions/man/html/VkResult.html
var successCodes = map[vk.Result]string{
	vk.Success:                 "VK_SUCCESS",
	vk.NotReady:                "VK_NOT_READY",
	vk.Timeout:                 "VK_TIMEOUT",
	vk.EventSet:                "VK_EVENT_SET",
	vk.EventReset:              "VK_EVENT_RESET",
	vk.Incomplete:              "VK_INCOMPLETE",
	vk.Suboptimal:              "VK_SUBOPTIMAL_KHR",
	vk.ThreadIdle:              "VK_THREAD_IDLE_KHR",
	vk.ThreadDone:              "VK_THREAD_DONE_KHR",
	vk.OperationDeferred:       "VK_OPERATION_DEFERRED_KHR",
	vk.OperationNotDeferred:    "VK_OPERATION_NOT_DEFERRED_KHR",
	vk.PipelineCompileRequired: "VK_PIPELINE_COMPILE_REQUIRED_EXT",
}

var errorCodes = map[vk.Result]string{
	vk.ErrorOutOfHostMemory:             "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:           "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed:        "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:                  "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:             "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:             "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:         "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:           "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:          "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:              "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:          "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:              "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:                 "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:           "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:                   "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:         "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorInvalidShaderNv:             "VK_ERROR_INVALID_SHADER_NV",
	vk.ErrorOutOfPoolMemory:             "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorInvalidExternalHandle:       "VK_ERROR_INVALID_EXTERNAL_HANDLE",
	vk.ErrorFragmentation:               "VK_ERROR_FRAGMENTATION",
	vk.ErrorInvalidDeviceAddress:        "VK_ERROR_INVALID_DEVICE_ADDRESS_EXT",
	vk.ErrorFullScreenExclusiveModeLost: "VK_ERROR_FULL_SCREEN_EXCLUSIVE_MODE_LOST_EXT",
	vk.ErrorUnknown:                     "VK_ERROR_UNKNOWN",
}

// VulkanResultString returns the symbolic name of a VkResult. When getExtended
// is true the numeric value is appended as well, which is useful in log
// messages for codes added by extensions this table does not know about.
func VulkanResultString(result vk.Result, getExtended bool) string {
	name, ok := successCodes[result]
	if !ok {
		name, ok = errorCodes[result]
	}
	if !ok {
		name = "VK_RESULT_UNRECOGNIZED"
	}
	if getExtended {
		return fmt.Sprintf("%s (%d)", name, int32(result))
	}
	return name
}

// VulkanResultIsSuccess reports whether the result is one of the non-error
// codes. Unrecognized codes are treated as success, matching the Vulkan
// convention that all error codes are negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	if _, ok := errorCodes[result]; ok {
		return false
	}
	return true
}

const nullTerminator = "\x00"

// VulkanSafeString ensures the string is null-terminated for handoff to the C
// side of the Vulkan bindings.
func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + nullTerminator
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first null byte, or 0 when
// the array has no terminator.
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return 0
}

func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
